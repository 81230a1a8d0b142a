package command

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/kata-mentor-bot/internal/domain/chat"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SET CHAT COMMAND
// Stores the group chat that receives scheduled reports. Only one chat is
// kept: setting a new one replaces the previous.
// ══════════════════════════════════════════════════════════════════════════════

// SetChatCommand contains the chat to store.
type SetChatCommand struct {
	ChatID int64
	Type   chat.Type
}

// Validate validates the command.
func (c SetChatCommand) Validate() error {
	if c.ChatID == 0 {
		return shared.ErrInvalidChatID
	}
	return nil
}

// SetChatHandler handles SetChatCommand.
type SetChatHandler struct {
	chats          chat.Repository
	eventPublisher shared.EventPublisher
	now            func() time.Time
}

// NewSetChatHandler creates a new SetChatHandler.
func NewSetChatHandler(chats chat.Repository, eventPublisher shared.EventPublisher) *SetChatHandler {
	if eventPublisher == nil {
		eventPublisher = shared.NopPublisher{}
	}
	return &SetChatHandler{chats: chats, eventPublisher: eventPublisher, now: time.Now}
}

// Handle executes the command.
func (h *SetChatHandler) Handle(ctx context.Context, cmd SetChatCommand) (*chat.Chat, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("set_chat: validation failed: %w", err)
	}

	now := h.now().UTC()
	c := chat.New(cmd.ChatID, cmd.Type, now)
	if err := h.chats.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("set_chat: save: %w", err)
	}

	_ = h.eventPublisher.Publish(shared.NewChatConfiguredEvent(c.ID, now))
	return c, nil
}
