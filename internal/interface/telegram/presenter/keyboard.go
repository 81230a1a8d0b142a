// Package presenter renders query results as Telegram messages and
// keyboards.
package presenter

import (
	"strconv"
	"strings"

	"github.com/alem-hub/kata-mentor-bot/internal/application/query"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/mentorship"
)

// Keyboards are transport-agnostic; the bot converts them to Bot API markup.

// InlineButton opens URL when set, otherwise sends CallbackData.
type InlineButton struct {
	Text         string
	CallbackData string
	URL          string
}

// CallbackButton sends data when pressed.
func CallbackButton(text, data string) InlineButton { return InlineButton{Text: text, CallbackData: data} }

// URLButton opens url when pressed.
func URLButton(text, url string) InlineButton { return InlineButton{Text: text, URL: url} }

// InlineKeyboard is attached under a message.
type InlineKeyboard struct {
	Rows [][]InlineButton
}

// NewInlineKeyboard returns a keyboard without rows.
func NewInlineKeyboard() *InlineKeyboard { return &InlineKeyboard{} }

// AddRow appends buttons as one row. An empty row is dropped.
func (k *InlineKeyboard) AddRow(buttons ...InlineButton) *InlineKeyboard {
	if len(buttons) != 0 {
		k.Rows = append(k.Rows, buttons)
	}
	return k
}

// ReplyKeyboard replaces the device keyboard; each key sends its label.
type ReplyKeyboard struct {
	Rows [][]string
}

// ══════════════════════════════════════════════════════════════════════════════
// CALLBACK DATA
// ══════════════════════════════════════════════════════════════════════════════

// Callback data prefixes.
const (
	CallbackUser = "user_"
	CallbackNext = "next_"
	CallbackRate = "rate_"
)

// ParseCallbackInt reads the integer after prefix.
func ParseCallbackInt(data, prefix string) (int, bool) {
	raw, ok := strings.CutPrefix(data, prefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ══════════════════════════════════════════════════════════════════════════════
// KEYBOARDS
// ══════════════════════════════════════════════════════════════════════════════

// Button labels.
const (
	LabelNext          = "Далее"
	LabelPrev          = "Назад"
	LabelUnsolvedKatas = "Get list of unsolved katas"
	DefaultKataURLRoot = "https://www.codewars.com/kata"
)

// KeyboardBuilder builds keyboards for the bot's replies.
type KeyboardBuilder struct {
	kataURL string
}

// NewKeyboardBuilder links katas under kataURL, DefaultKataURLRoot when
// empty.
func NewKeyboardBuilder(kataURL string) *KeyboardBuilder {
	if kataURL == "" {
		kataURL = DefaultKataURLRoot
	}
	return &KeyboardBuilder{kataURL: strings.TrimRight(kataURL, "/")}
}

// KataURL returns the page of a kata.
func (b *KeyboardBuilder) KataURL(slug string) string {
	return b.kataURL + "/" + slug + "/"
}

// RatingKeyboard is one row of rate_N buttons for every rating of the scale.
func (b *KeyboardBuilder) RatingKeyboard(scale mentorship.RatingScale) *InlineKeyboard {
	values := scale.Values()
	row := make([]InlineButton, 0, len(values))
	for _, n := range values {
		label := strconv.Itoa(n)
		row = append(row, CallbackButton(label, CallbackRate+label))
	}
	return NewInlineKeyboard().AddRow(row...)
}

// MissingKatasKeyboard lists a page of unsolved katas as URL buttons, one per
// row, followed by the paging row.
func (b *KeyboardBuilder) MissingKatasKeyboard(page *query.MissingKatasResult) *InlineKeyboard {
	kb := NewInlineKeyboard()
	for _, k := range page.Katas {
		kb.AddRow(URLButton(k.Name, b.KataURL(k.Slug)))
	}

	var paging []InlineButton
	if page.HasNext() {
		paging = append(paging, CallbackButton(LabelNext, CallbackNext+strconv.Itoa(page.NextOffset())))
	}
	if page.HasPrev() {
		paging = append(paging, CallbackButton(LabelPrev, CallbackNext+strconv.Itoa(page.PrevOffset())))
	}
	kb.AddRow(paging...)

	return kb
}

// StatsKeyboard links every handle of the daily stats to its completed total.
func (b *KeyboardBuilder) StatsKeyboard(stats *query.DailyStatsResult) *InlineKeyboard {
	kb := NewInlineKeyboard()
	for _, row := range stats.Rows {
		kb.AddRow(CallbackButton(row.Handle, CallbackUser+row.Handle))
	}
	return kb
}

// CommandsKeyboard is the /commands shortcut keyboard.
func (b *KeyboardBuilder) CommandsKeyboard() *ReplyKeyboard {
	return &ReplyKeyboard{Rows: [][]string{{LabelUnsolvedKatas}}}
}
