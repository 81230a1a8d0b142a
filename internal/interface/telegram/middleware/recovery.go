package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/time/rate"

	"github.com/alem-hub/kata-mentor-bot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECOVERY
// A panicking handler becomes a *PanicError. The stack goes to the log,
// the user gets the generic error reply.
// ══════════════════════════════════════════════════════════════════════════════

// PanicCounter counts recovered panics.
type PanicCounter interface {
	PanicRecovered()
}

// PanicError is returned by Guard when the handler panicked.
type PanicError struct {
	Value      any
	Stack      string
	Route      string
	TelegramID int64
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Route, e.Value)
}

// Unwrap exposes a panic value that is itself an error.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// RecovererConfig configures a Recoverer.
type RecovererConfig struct {
	// LogsPerMinute caps how many panics are logged with a stack; the
	// rest are only counted. Default 60.
	LogsPerMinute int

	// OnPanic sees every logged panic.
	OnPanic func(ctx context.Context, p *PanicError)

	Counter PanicCounter
	Logger  *slog.Logger
}

// Recoverer guards route handlers.
type Recoverer struct {
	config  RecovererConfig
	logger  *slog.Logger
	limiter *rate.Limiter
}

// NewRecoverer creates a Recoverer.
func NewRecoverer(config RecovererConfig) *Recoverer {
	if config.LogsPerMinute <= 0 {
		config.LogsPerMinute = 60
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Recoverer{
		config:  config,
		logger:  config.Logger.With(logger.Component("recovery")),
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(config.LogsPerMinute)), config.LogsPerMinute),
	}
}

// Guard calls fn and returns its error, or a *PanicError if it panicked.
// The sender is read from ctx, see ContextWithTelegramID.
func (r *Recoverer) Guard(ctx context.Context, route string, fn func() error) (err error) {
	defer func() {
		v := recover()
		if v == nil {
			return
		}
		p := &PanicError{Value: v, Stack: string(debug.Stack()), Route: route, TelegramID: TelegramIDFromContext(ctx)}
		r.report(ctx, p)
		err = p
	}()
	return fn()
}

func (r *Recoverer) report(ctx context.Context, p *PanicError) {
	if r.config.Counter != nil {
		r.config.Counter.PanicRecovered()
	}
	if !r.limiter.Allow() {
		return
	}

	r.logger.ErrorContext(ctx, "panic recovered",
		logger.TelegramID(p.TelegramID),
		slog.String("route", p.Route),
		slog.Any("panic", p.Value),
		slog.String("stack", p.Stack),
	)
	if r.config.OnPanic != nil {
		r.config.OnPanic(ctx, p)
	}
}
