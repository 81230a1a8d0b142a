// Package handler contains Telegram command and callback handlers.
// Each handler follows the pattern: receive update → validate → call application layer → format response.
package handler

import (
	"context"
	"errors"
	"log/slog"

	"github.com/alem-hub/kata-mentor-bot/internal/domain/shared"
	"github.com/alem-hub/kata-mentor-bot/internal/interface/telegram/presenter"
)

// ParseModeHTML is the parse mode of every formatted reply.
const ParseModeHTML = "HTML"

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST / RESPONSE
// ══════════════════════════════════════════════════════════════════════════════

// Request contains the parsed data of a command, callback or text message.
type Request struct {
	// TelegramID is the sender's Telegram ID.
	TelegramID int64

	// Username is the sender's Telegram username (without @).
	Username string

	// ChatID is the chat the update came from.
	ChatID int64

	// ChatType is "private", "group", "supergroup" or "channel".
	ChatType string

	// MessageID is the message with the command or the inline keyboard.
	MessageID int64

	// Args is the text after the command.
	Args string

	// Text is the full message text.
	Text string

	// Data is the callback data.
	Data string
}

// IsPrivate reports a private chat with the bot.
func (r Request) IsPrivate() bool {
	return r.ChatType == "private"
}

// Response is what the router sends back.
type Response struct {
	// Text is the message text.
	Text string

	// ParseMode is "HTML" or empty.
	ParseMode string

	// Keyboard is the inline keyboard to attach.
	Keyboard *presenter.InlineKeyboard

	// ReplyKeyboard is a custom keyboard to show instead of the device keyboard.
	ReplyKeyboard *presenter.ReplyKeyboard

	// RemoveKeyboard hides a previously shown custom keyboard.
	RemoveKeyboard bool

	// Edit replaces the text of the originating message. A nil Keyboard
	// removes the inline keyboard.
	Edit bool

	// EditMarkup replaces only the inline keyboard of the originating message.
	EditMarkup bool

	// IsError indicates if this is an error response.
	IsError bool
}

// Text builds a plain reply.
func Text(text string) *Response {
	return &Response{Text: text}
}

// HTML builds an HTML reply.
func HTML(text string) *Response {
	return &Response{Text: text, ParseMode: ParseModeHTML}
}

// Func is the signature every route is adapted to.
type Func func(ctx context.Context, req Request) (*Response, error)

// ══════════════════════════════════════════════════════════════════════════════
// ERROR REPLIES
// Domain errors become plain-language replies; the raw error is only logged.
// ══════════════════════════════════════════════════════════════════════════════

// errorResponse maps err to a reply. Unknown errors are logged.
func errorResponse(logger *slog.Logger, op string, err error) *Response {
	text := presenter.TextInternalError

	switch {
	case errors.Is(err, shared.ErrNoMentorsAvailable):
		text = presenter.TextNoMentors
	case errors.Is(err, shared.ErrNoActiveRotation):
		text = presenter.TextNoRotation
	case errors.Is(err, shared.ErrMentorNotAssigned):
		text = presenter.TextNoMentor
	case errors.Is(err, shared.ErrInvalidRating):
		text = presenter.TextInvalidRating
	case errors.Is(err, shared.ErrUserNotAuthorized), errors.Is(err, shared.ErrUserNotFound):
		text = presenter.TextNotAuthorized
	case errors.Is(err, shared.ErrExternalSourceUnavailable):
		text = presenter.TextSourceUnavailable
	case errors.Is(err, shared.ErrChatNotConfigured):
		text = presenter.TextChatNotConfigured
	case errors.Is(err, shared.ErrKataNotFound):
		text = presenter.TextKataNotFound
	case errors.Is(err, shared.KindInvalid):
		text = presenter.TextInvalidInput
	case errors.Is(err, shared.KindUnavailable):
		text = presenter.TextSourceUnavailable
	default:
		logger.Error("handler failed", "op", op, "error", err)
		return &Response{Text: text, IsError: true}
	}

	logger.Debug("handler returned domain error", "op", op, "error", err)
	return &Response{Text: text, IsError: true}
}

func loggerOrDefault(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("handler", name)
}
