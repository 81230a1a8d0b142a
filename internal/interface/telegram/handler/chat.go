package handler

import (
	"context"
	"log/slog"

	"github.com/alem-hub/kata-mentor-bot/internal/application/command"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/chat"
	"github.com/alem-hub/kata-mentor-bot/internal/interface/telegram/presenter"
)

// ChatHandler handles /set_chat.
type ChatHandler struct {
	setChatCmd *command.SetChatHandler
	logger     *slog.Logger
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(setChatCmd *command.SetChatHandler, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{
		setChatCmd: setChatCmd,
		logger:     loggerOrDefault(logger, "chat"),
	}
}

// SetChat makes the current chat the broadcast target of scheduled reports.
func (h *ChatHandler) SetChat(ctx context.Context, req Request) (*Response, error) {
	c, err := h.setChatCmd.Handle(ctx, command.SetChatCommand{
		ChatID: req.ChatID,
		Type:   chat.Type(req.ChatType),
	})
	if err != nil {
		return errorResponse(h.logger, "set_chat", err), nil
	}

	h.logger.Info("chat set", "chat_id", c.ID, "type", string(c.Type))
	return Text(presenter.TextChatSet), nil
}
