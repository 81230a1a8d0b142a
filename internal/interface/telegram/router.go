// Package telegram implements the Telegram interface of the kata mentor bot.
package telegram

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/alem-hub/kata-mentor-bot/internal/infrastructure/external/telegram"
	"github.com/alem-hub/kata-mentor-bot/internal/interface/telegram/handler"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROUTER
// Maps commands, callback data and plain text to handlers.
// ══════════════════════════════════════════════════════════════════════════════

// RouterConfig configures a Router.
type RouterConfig struct {
	Logger *slog.Logger

	// Debug logs every registration.
	Debug bool
}

// Route is a resolved handler.
type Route struct {
	// Name is the command, callback prefix or text route name.
	Name   string
	Handle handler.Func
}

type commandRoute struct {
	name        string
	description string
	handle      handler.Func
}

type textRoute struct {
	Route
	match func(text string) bool
}

// Router is safe for concurrent use. Registration normally happens once,
// before polling starts.
type Router struct {
	logger *slog.Logger
	debug  bool

	mu        sync.RWMutex
	commands  []commandRoute // registration order
	callbacks []Route        // longest prefix first
	texts     []textRoute

	// awaiting reports a pending conversation; its next text goes to input.
	awaiting func(ctx context.Context, telegramID int64) bool
	input    handler.Func
}

// NewRouter creates an empty router.
func NewRouter(config RouterConfig) *Router {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Router{logger: config.Logger, debug: config.Debug}
}

// RegisterCommand routes "/name". A described command is published in the
// bot menu; re-registering replaces the handler in place.
func (r *Router) RegisterCommand(name, description string, h handler.Func) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := commandRoute{name: name, description: description, handle: h}
	if i := slices.IndexFunc(r.commands, func(c commandRoute) bool { return c.name == name }); i >= 0 {
		r.commands[i] = c
	} else {
		r.commands = append(r.commands, c)
	}
	if r.debug {
		r.logger.Debug("command registered", "command", name)
	}
}

// RegisterCallbackPrefix routes callback data starting with prefix. The
// prefix carries its delimiter, e.g. "rate_".
func (r *Router) RegisterCallbackPrefix(prefix string, h handler.Func) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.callbacks = slices.DeleteFunc(r.callbacks, func(c Route) bool { return c.Name == prefix })
	r.callbacks = append(r.callbacks, Route{Name: prefix, Handle: h})
	slices.SortStableFunc(r.callbacks, func(a, b Route) int { return cmp.Compare(len(b.Name), len(a.Name)) })
}

// RegisterText routes plain text accepted by match. Text routes are tried
// in registration order.
func (r *Router) RegisterText(name string, match func(text string) bool, h handler.Func) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.texts = append(r.texts, textRoute{Route: Route{Name: name, Handle: h}, match: match})
}

// RegisterConversation routes the remaining text of a user with a pending
// conversation to h.
func (r *Router) RegisterConversation(awaiting func(ctx context.Context, telegramID int64) bool, h handler.Func) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.awaiting, r.input = awaiting, h
}

// Command resolves a command name without "/".
func (r *Router) Command(name string) (Route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.commands {
		if c.name == name {
			return Route{Name: name, Handle: c.handle}, true
		}
	}
	return Route{}, false
}

// Callback resolves the longest registered prefix of data.
func (r *Router) Callback(data string) (Route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.callbacks {
		if strings.HasPrefix(data, c.Name) {
			return c, true
		}
	}
	return Route{}, false
}

// Text resolves plain text. Text routes win over a pending conversation,
// so "cancel" always cancels.
func (r *Router) Text(ctx context.Context, telegramID int64, text string) (Route, bool) {
	r.mu.RLock()
	texts, awaiting, input := r.texts, r.awaiting, r.input
	r.mu.RUnlock()

	for _, t := range texts {
		if t.match(text) {
			return t.Route, true
		}
	}
	if awaiting != nil && input != nil && awaiting(ctx, telegramID) {
		return Route{Name: "conversation", Handle: input}, true
	}
	return Route{}, false
}

// BotCommands returns the described commands in registration order.
func (r *Router) BotCommands() []telegram.BotCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []telegram.BotCommand
	for _, c := range r.commands {
		if c.description != "" {
			out = append(out, telegram.BotCommand{Command: c.name, Description: c.description})
		}
	}
	return out
}

// Commands returns every command name, sorted.
func (r *Router) Commands() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.commands))
	for i, c := range r.commands {
		names[i] = c.name
	}
	slices.Sort(names)
	return names
}
