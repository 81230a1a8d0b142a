package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alem-hub/kata-mentor-bot/internal/application/command"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/shared"
)

// ConversationStore implements command.ConversationStore.
// A step lives under one key per user and expires by TTL.
type ConversationStore struct {
	c *Client
}

// NewConversationStore creates a store.
func NewConversationStore(c *Client) *ConversationStore {
	return &ConversationStore{c: c}
}

func (s *ConversationStore) key(userID shared.TelegramID) string {
	return s.c.key("conversation", strconv.FormatInt(userID.Int64(), 10))
}

// SetStep stores the pending step.
func (s *ConversationStore) SetStep(ctx context.Context, userID shared.TelegramID, step command.ConversationStep, ttl time.Duration) error {
	if err := s.c.rdb.Set(ctx, s.key(userID), string(step), ttl).Err(); err != nil {
		return fmt.Errorf("set conversation step: %w", err)
	}
	return nil
}

// Step returns the pending step.
func (s *ConversationStore) Step(ctx context.Context, userID shared.TelegramID) (command.ConversationStep, bool, error) {
	val, err := s.c.rdb.Get(ctx, s.key(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get conversation step: %w", err)
	}
	return command.ConversationStep(val), true, nil
}

// Clear removes the pending step.
func (s *ConversationStore) Clear(ctx context.Context, userID shared.TelegramID) error {
	if err := s.c.rdb.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("clear conversation step: %w", err)
	}
	return nil
}
