// Package kata содержит каталог задач Codewars и факты их решения участниками.
package kata

import (
	"context"
	"strings"
	"time"

	"github.com/alem-hub/kata-mentor-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENTITIES
// ══════════════════════════════════════════════════════════════════════════════

// Kata - задача из общего каталога сообщества.
type Kata struct {
	// ID - идентификатор задачи во внешнем сервисе.
	ID   string
	Name string
	Slug string
}

// NewKata создаёт задачу каталога.
func NewKata(id, name, slug string) (*Kata, error) {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)
	if id == "" || name == "" {
		return nil, shared.ErrInvalidKata
	}
	return &Kata{ID: id, Name: name, Slug: strings.TrimSpace(slug)}, nil
}

// SolvedKata - факт решения задачи участником.
// Уникален по (UserID, KataID), только добавляется.
type SolvedKata struct {
	UserID shared.TelegramID
	KataID string
}

// CompletedItem - решённая задача из внешнего источника.
type CompletedItem struct {
	ID          string
	Name        string
	Slug        string
	CompletedAt time.Time
}

// CompletedPage - одна страница списка решённых задач.
type CompletedPage struct {
	Items      []CompletedItem
	TotalPages int
	TotalItems int
}

// UserStats - строка ежедневной статистики.
type UserStats struct {
	CodewarsUsername shared.CodewarsHandle
	Solved           int
}

// ══════════════════════════════════════════════════════════════════════════════
// PORTS
// ══════════════════════════════════════════════════════════════════════════════

// Repository - каталог задач и факты решения.
type Repository interface {
	// UpsertKata добавляет задачу в каталог или обновляет название и slug.
	UpsertKata(ctx context.Context, k *Kata) error

	// GetKata возвращает задачу каталога.
	// Возвращает shared.ErrKataNotFound, если задачи нет в каталоге.
	GetKata(ctx context.Context, id string) (*Kata, error)

	// MarkSolved записывает факт решения, если задача есть в каталоге
	// и факта ещё нет. Возвращает true, только если была вставлена новая строка.
	MarkSolved(ctx context.Context, userID shared.TelegramID, kataID string) (bool, error)

	// CountSolved возвращает число решённых задач каталога у участника.
	CountSolved(ctx context.Context, userID shared.TelegramID) (int, error)

	// Stats возвращает число решённых задач каталога по участникам, больше - первыми.
	Stats(ctx context.Context) ([]UserStats, error)

	// Missing возвращает страницу задач каталога, которые участник ещё не решил,
	// и общее их количество.
	Missing(ctx context.Context, userID shared.TelegramID, offset, limit int) ([]*Kata, int, error)
}

// Source - внешний источник решённых задач.
type Source interface {
	// FetchCompletedPage возвращает страницу решённых задач пользователя (страницы с нуля).
	FetchCompletedPage(ctx context.Context, handle shared.CodewarsHandle, page int) (*CompletedPage, error)

	// UserExists проверяет, что пользователь существует во внешнем сервисе.
	UserExists(ctx context.Context, handle shared.CodewarsHandle) (bool, error)

	// FetchKata возвращает описание задачи по идентификатору или slug.
	FetchKata(ctx context.Context, idOrSlug string) (*Kata, error)
}
