package telegram

import (
	"context"
	"fmt"

	"github.com/alem-hub/kata-mentor-bot/internal/infrastructure/external/telegram"
	"github.com/alem-hub/kata-mentor-bot/internal/interface/telegram/handler"
	"github.com/alem-hub/kata-mentor-bot/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// DELIVERY
// ══════════════════════════════════════════════════════════════════════════════

// Sender is the part of the Bot API used to deliver responses.
// *telegram.Client implements it.
type Sender interface {
	SendMessage(ctx context.Context, params telegram.SendMessageParams) (*telegram.Message, error)
	EditMessageText(ctx context.Context, chatID, messageID int64, text, parseMode string, keyboard *telegram.InlineKeyboardMarkup) (*telegram.Message, error)
	EditMessageReplyMarkup(ctx context.Context, chatID, messageID int64, keyboard *telegram.InlineKeyboardMarkup) error
	AnswerCallbackQuery(ctx context.Context, callbackQueryID, text string, showAlert bool) error
}

// deliver sends resp as the answer to req. A nil or empty response sends
// nothing; an edit that changes nothing is not an error.
func deliver(ctx context.Context, sender Sender, req handler.Request, resp *handler.Response) error {
	if resp == nil {
		return nil
	}

	var err error
	switch {
	case resp.EditMarkup:
		err = sender.EditMessageReplyMarkup(ctx, req.ChatID, req.MessageID, inlineMarkup(resp.Keyboard))
	case resp.Edit:
		_, err = sender.EditMessageText(ctx, req.ChatID, req.MessageID, resp.Text, resp.ParseMode, inlineMarkup(resp.Keyboard))
	case resp.Text != "":
		_, err = sender.SendMessage(ctx, telegram.SendMessageParams{
			ChatID:         req.ChatID,
			Text:           resp.Text,
			ParseMode:      resp.ParseMode,
			ReplyMarkup:    inlineMarkup(resp.Keyboard),
			ReplyKeyboard:  replyMarkup(resp.ReplyKeyboard),
			RemoveKeyboard: resp.RemoveKeyboard,
		})
	}
	if err != nil && !telegram.IsMessageNotModified(err) {
		return fmt.Errorf("deliver to chat %d: %w", req.ChatID, err)
	}
	return nil
}

func inlineMarkup(kb *presenter.InlineKeyboard) *telegram.InlineKeyboardMarkup {
	if kb == nil || len(kb.Rows) == 0 {
		return nil
	}
	rows := make([][]telegram.InlineKeyboardButton, 0, len(kb.Rows))
	for _, row := range kb.Rows {
		buttons := make([]telegram.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, telegram.InlineKeyboardButton{Text: b.Text, CallbackData: b.CallbackData, URL: b.URL})
		}
		rows = append(rows, buttons)
	}
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func replyMarkup(kb *presenter.ReplyKeyboard) *telegram.ReplyKeyboardMarkup {
	if kb == nil || len(kb.Rows) == 0 {
		return nil
	}
	rows := make([][]telegram.KeyboardButton, 0, len(kb.Rows))
	for _, row := range kb.Rows {
		keys := make([]telegram.KeyboardButton, 0, len(row))
		for _, text := range row {
			keys = append(keys, telegram.KeyboardButton{Text: text})
		}
		rows = append(rows, keys)
	}
	return &telegram.ReplyKeyboardMarkup{Keyboard: rows, ResizeKeyboard: true}
}

// Notifier sends messages that are not replies, such as scheduled reports.
type Notifier struct {
	sender Sender
}

// NewNotifier creates a Notifier over sender.
func NewNotifier(sender Sender) *Notifier {
	return &Notifier{sender: sender}
}

// SendHTML sends an HTML message with an optional inline keyboard.
func (n *Notifier) SendHTML(ctx context.Context, chatID int64, text string, keyboard *presenter.InlineKeyboard) error {
	_, err := n.sender.SendMessage(ctx, telegram.SendMessageParams{
		ChatID:      chatID,
		Text:        text,
		ParseMode:   handler.ParseModeHTML,
		ReplyMarkup: inlineMarkup(keyboard),
	})
	if err != nil {
		return fmt.Errorf("notify chat %d: %w", chatID, err)
	}
	return nil
}
