package handler

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/alem-hub/kata-mentor-bot/internal/application/command"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/shared"
	"github.com/alem-hub/kata-mentor-bot/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// AUTHORIZE HANDLER
// The /authorize conversation: ask for a Codewars username, validate it,
// bind it. /cancel or the text "cancel" ends the conversation.
// ══════════════════════════════════════════════════════════════════════════════

// AuthorizeHandler drives the /authorize conversation.
type AuthorizeHandler struct {
	authorizeCmd *command.AuthorizeUserHandler
	logger       *slog.Logger
}

// NewAuthorizeHandler creates a new AuthorizeHandler.
func NewAuthorizeHandler(authorizeCmd *command.AuthorizeUserHandler, logger *slog.Logger) *AuthorizeHandler {
	return &AuthorizeHandler{
		authorizeCmd: authorizeCmd,
		logger:       loggerOrDefault(logger, "authorize"),
	}
}

// Begin asks for the username.
func (h *AuthorizeHandler) Begin(ctx context.Context, req Request) (*Response, error) {
	if err := h.authorizeCmd.Begin(ctx, shared.TelegramID(req.TelegramID)); err != nil {
		return errorResponse(h.logger, "authorize_begin", err), nil
	}
	return Text(presenter.TextAskHandle), nil
}

// Cancel ends a pending conversation. Without one it stays silent.
func (h *AuthorizeHandler) Cancel(ctx context.Context, req Request) (*Response, error) {
	id := shared.TelegramID(req.TelegramID)

	awaiting, err := h.authorizeCmd.IsAwaitingHandle(ctx, id)
	if err != nil {
		return errorResponse(h.logger, "authorize_cancel", err), nil
	}
	if !awaiting {
		return nil, nil
	}

	if err := h.authorizeCmd.Cancel(ctx, id); err != nil {
		return errorResponse(h.logger, "authorize_cancel", err), nil
	}
	return &Response{Text: presenter.TextCancelled, RemoveKeyboard: true}, nil
}

// IsCancelText reports the plain-text cancel word.
func IsCancelText(text string) bool {
	return strings.EqualFold(strings.TrimSpace(text), "cancel")
}

// Awaiting reports whether the sender's next text is a username.
func (h *AuthorizeHandler) Awaiting(ctx context.Context, telegramID int64) bool {
	awaiting, err := h.authorizeCmd.IsAwaitingHandle(ctx, shared.TelegramID(telegramID))
	if err != nil {
		h.logger.Warn("failed to read conversation state", "telegram_id", telegramID, "error", err)
		return false
	}
	return awaiting
}

// HandleText takes the username typed after /authorize.
func (h *AuthorizeHandler) HandleText(ctx context.Context, req Request) (*Response, error) {
	handle := strings.TrimSpace(req.Text)

	result, err := h.authorizeCmd.Handle(ctx, command.AuthorizeUserCommand{
		TelegramID: shared.TelegramID(req.TelegramID),
		Username:   req.Username,
		Handle:     handle,
	})
	if err != nil {
		if errors.Is(err, shared.ErrDuplicateAuthorization) {
			return HTML(presenter.HandleNotFound(handle)), nil
		}
		return errorResponse(h.logger, "authorize", err), nil
	}

	resp := HTML(presenter.Welcome(result.Handle.String()))
	resp.RemoveKeyboard = true
	return resp, nil
}
