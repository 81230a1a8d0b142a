package handler

import (
	"context"
	"log/slog"

	"github.com/alem-hub/kata-mentor-bot/internal/application/command"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/shared"
	"github.com/alem-hub/kata-mentor-bot/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// START HANDLER
// Handles /start, /help, /mentor and /commands.
// ══════════════════════════════════════════════════════════════════════════════

// StartHandler registers members and enrolls mentors.
type StartHandler struct {
	registerCmd *command.RegisterUserHandler
	mentorCmd   *command.MakeMentorHandler
	keyboards   *presenter.KeyboardBuilder
	logger      *slog.Logger
}

// NewStartHandler creates a new StartHandler with dependencies.
func NewStartHandler(
	registerCmd *command.RegisterUserHandler,
	mentorCmd *command.MakeMentorHandler,
	keyboards *presenter.KeyboardBuilder,
	logger *slog.Logger,
) *StartHandler {
	return &StartHandler{
		registerCmd: registerCmd,
		mentorCmd:   mentorCmd,
		keyboards:   keyboards,
		logger:      loggerOrDefault(logger, "start"),
	}
}

// Start registers the sender (get-or-create) and greets them.
func (h *StartHandler) Start(ctx context.Context, req Request) (*Response, error) {
	_, err := h.registerCmd.Handle(ctx, command.RegisterUserCommand{
		TelegramID: shared.TelegramID(req.TelegramID),
		Username:   req.Username,
	})
	if err != nil {
		return errorResponse(h.logger, "start", err), nil
	}
	return Text(presenter.TextWelcome), nil
}

// Mentor marks the sender as a mentor.
func (h *StartHandler) Mentor(ctx context.Context, req Request) (*Response, error) {
	result, err := h.mentorCmd.Handle(ctx, command.MakeMentorCommand{
		TelegramID: shared.TelegramID(req.TelegramID),
		Username:   req.Username,
	})
	if err != nil {
		return errorResponse(h.logger, "mentor", err), nil
	}
	if result.AlreadyMentor {
		return Text(presenter.TextAlreadyMentor), nil
	}
	return Text(presenter.TextMentorEnrolled), nil
}

// Commands shows the shortcut keyboard.
func (h *StartHandler) Commands(_ context.Context, _ Request) (*Response, error) {
	return &Response{
		Text:          presenter.TextCommands,
		ReplyKeyboard: h.keyboards.CommandsKeyboard(),
	}, nil
}
