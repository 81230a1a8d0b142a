// Package chat содержит групповой чат, в который бот публикует отчёты.
package chat

import (
	"context"
	"time"
)

// Type - тип чата Telegram.
type Type string

const (
	TypePrivate    Type = "private"
	TypeGroup      Type = "group"
	TypeSupergroup Type = "supergroup"
	TypeChannel    Type = "channel"
)

// Chat - настроенный чат сообщества. Поддерживается один чат.
type Chat struct {
	ID         int64
	Type       Type
	Language   string
	JoinFilter bool
	CreatedAt  time.Time
}

// New создаёт чат с языком по умолчанию.
func New(id int64, chatType Type, now time.Time) *Chat {
	return &Chat{ID: id, Type: chatType, Language: "en", CreatedAt: now}
}

// Repository хранит настроенный чат.
type Repository interface {
	// Save сохраняет чат, заменяя ранее настроенный.
	Save(ctx context.Context, c *Chat) error

	// Get возвращает настроенный чат.
	// Возвращает shared.ErrChatNotConfigured, если чат не задан.
	Get(ctx context.Context) (*Chat, error)
}
