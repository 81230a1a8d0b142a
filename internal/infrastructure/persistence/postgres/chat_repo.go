package postgres

import (
	"context"
	"fmt"

	"github.com/alem-hub/kata-mentor-bot/internal/domain/chat"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/shared"
)

// ChatRepository implements chat.Repository for PostgreSQL.
// The table holds at most one row.
type ChatRepository struct {
	conn *Connection
}

// NewChatRepository creates a new ChatRepository.
func NewChatRepository(conn *Connection) *ChatRepository {
	return &ChatRepository{conn: conn}
}

// Save replaces the configured chat.
func (r *ChatRepository) Save(ctx context.Context, c *chat.Chat) error {
	return r.conn.WithinTx(ctx, func(ctx context.Context) error {
		q := r.conn.q(ctx)

		if _, err := q.Exec(ctx, `DELETE FROM chats WHERE id <> $1`, c.ID); err != nil {
			return fmt.Errorf("failed to clear chats: %w", err)
		}

		query := `
			INSERT INTO chats (id, type, language, join_filter, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				type = EXCLUDED.type,
				language = EXCLUDED.language,
				join_filter = EXCLUDED.join_filter
		`
		if _, err := q.Exec(ctx, query, c.ID, string(c.Type), c.Language, c.JoinFilter, c.CreatedAt); err != nil {
			return fmt.Errorf("failed to save chat: %w", err)
		}
		return nil
	})
}

// Get returns the configured chat.
func (r *ChatRepository) Get(ctx context.Context) (*chat.Chat, error) {
	var (
		c        chat.Chat
		chatType string
	)

	err := r.conn.q(ctx).QueryRow(ctx, `
		SELECT id, type, language, join_filter, created_at
		FROM chats
		ORDER BY created_at DESC
		LIMIT 1
	`).Scan(&c.ID, &chatType, &c.Language, &c.JoinFilter, &c.CreatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrChatNotConfigured
		}
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}

	c.Type = chat.Type(chatType)
	return &c, nil
}
