package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/alem-hub/kata-mentor-bot/internal/infrastructure/external/telegram"
	"github.com/alem-hub/kata-mentor-bot/internal/interface/telegram/handler"
	"github.com/alem-hub/kata-mentor-bot/internal/interface/telegram/middleware"
	"github.com/alem-hub/kata-mentor-bot/internal/interface/telegram/presenter"
	"github.com/alem-hub/kata-mentor-bot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// BOT CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// BotConfig contains configuration for the Telegram bot.
type BotConfig struct {
	// Debug enables debug logging.
	Debug bool

	// Logger for structured logging.
	Logger *slog.Logger

	// MaxConcurrentUpdates limits concurrent update processing.
	MaxConcurrentUpdates int

	// UpdateTimeout bounds the handling of one update.
	UpdateTimeout time.Duration

	// GracefulShutdownTimeout is how long Run waits for in-flight updates.
	GracefulShutdownTimeout time.Duration

	// AdminIDs may run admin commands. Empty allows everyone.
	AdminIDs []int64

	// RateLimit configures the per-user command throttle.
	RateLimit middleware.RateLimitConfig
}

// DefaultBotConfig returns sensible defaults.
func DefaultBotConfig() BotConfig {
	return BotConfig{
		Logger:                  slog.Default(),
		MaxConcurrentUpdates:    32,
		UpdateTimeout:           time.Minute,
		GracefulShutdownTimeout: 30 * time.Second,
		RateLimit:               middleware.DefaultRateLimitConfig(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// BOT DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Poller receives updates and publishes the command menu.
// *telegram.Client implements it.
type Poller interface {
	GetMe(ctx context.Context) (*telegram.User, error)
	SetMyCommands(ctx context.Context, commands []telegram.BotCommand) error
	StartPolling(ctx context.Context, handler telegram.UpdateHandler) error
}

// Recorder receives bot metrics. *metrics.Metrics implements it.
type Recorder interface {
	middleware.CommandRecorder
	middleware.PanicCounter
	RateLimited()
}

// BotDependencies contains all dependencies for the bot.
type BotDependencies struct {
	Poller Poller
	Sender Sender

	// Metrics may be nil.
	Metrics Recorder

	Start     *handler.StartHandler
	Authorize *handler.AuthorizeHandler
	Rotation  *handler.RotationHandler
	Feedback  *handler.FeedbackHandler
	Katas     *handler.KatasHandler
	Chat      *handler.ChatHandler
}

func (d BotDependencies) validate() error {
	switch {
	case d.Poller == nil:
		return errors.New("poller is required")
	case d.Sender == nil:
		return errors.New("sender is required")
	case d.Start == nil, d.Authorize == nil, d.Rotation == nil,
		d.Feedback == nil, d.Katas == nil, d.Chat == nil:
		return errors.New("all handlers are required")
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// BOT
// ══════════════════════════════════════════════════════════════════════════════

// Bot turns updates into handler calls.
type Bot struct {
	config BotConfig
	poller Poller
	sender Sender
	router *Router
	logger *slog.Logger
	rec    Recorder

	authMiddleware    *middleware.AuthMiddleware
	rateLimiter       *middleware.RateLimiter
	recoverer         *middleware.Recoverer
	metricsMiddleware *middleware.MetricsMiddleware

	slots *semaphore.Weighted
	wg    sync.WaitGroup

	statsMu sync.Mutex
	stats   Stats
}

// Stats counts updates since Run.
type Stats struct {
	StartedAt time.Time
	Received  int64
	Handled   int64
	Failed    int64
	Commands  map[string]int64
}

// NewBot creates a new Telegram bot and registers every route.
func NewBot(config BotConfig, deps BotDependencies) (*Bot, error) {
	if err := deps.validate(); err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}

	defaults := DefaultBotConfig()
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.MaxConcurrentUpdates <= 0 {
		config.MaxConcurrentUpdates = defaults.MaxConcurrentUpdates
	}
	if config.UpdateTimeout <= 0 {
		config.UpdateTimeout = defaults.UpdateTimeout
	}
	if config.GracefulShutdownTimeout <= 0 {
		config.GracefulShutdownTimeout = defaults.GracefulShutdownTimeout
	}

	if config.RateLimit.Whitelist == nil && len(config.AdminIDs) > 0 {
		config.RateLimit.Whitelist = make(map[int64]bool, len(config.AdminIDs))
		for _, id := range config.AdminIDs {
			config.RateLimit.Whitelist[id] = true
		}
	}

	var commands middleware.CommandRecorder
	var panics middleware.PanicCounter
	if deps.Metrics != nil {
		commands, panics = deps.Metrics, deps.Metrics
	}

	b := &Bot{
		config:         config,
		poller:         deps.Poller,
		sender:         deps.Sender,
		logger:         config.Logger.With(logger.Component("telegram_bot")),
		rec:            deps.Metrics,
		authMiddleware: middleware.NewAuthMiddleware(middleware.AuthConfig{AdminIDs: config.AdminIDs}),
		rateLimiter:    middleware.NewRateLimiter(config.RateLimit),
		recoverer:      middleware.NewRecoverer(middleware.RecovererConfig{
			Counter: panics,
			Logger:  config.Logger,
		}),
		metricsMiddleware: middleware.NewMetricsMiddleware(commands),
		slots:             semaphore.NewWeighted(int64(config.MaxConcurrentUpdates)),
		stats:             Stats{Commands: make(map[string]int64)},
	}

	b.router = NewRouter(RouterConfig{Logger: config.Logger, Debug: config.Debug})
	b.registerRoutes(deps)

	return b, nil
}

// registerRoutes wires commands, callbacks and text routes.
func (b *Bot) registerRoutes(deps BotDependencies) {
	r := b.router

	r.RegisterCommand("start", "Register in the community", deps.Start.Start)
	r.RegisterCommand("help", "", deps.Start.Start)
	r.RegisterCommand("authorize", "Bind your Codewars account", deps.Authorize.Begin)
	r.RegisterCommand("cancel", "Cancel the current dialog", deps.Authorize.Cancel)
	r.RegisterCommand("commands", "Show shortcut buttons", deps.Start.Commands)
	r.RegisterCommand("mentor", "Become a mentor", deps.Start.Mentor)
	r.RegisterCommand("daily_stats", "Solved katas ranking", deps.Katas.DailyStats)
	r.RegisterCommand("update_solutions", "Sync your solved katas", deps.Katas.UpdateSolutions)
	r.RegisterCommand("get_uncompleted", "Katas you have not solved yet", deps.Katas.Uncompleted)
	r.RegisterCommand("add_kata", "", deps.Katas.AddKata)
	r.RegisterCommand("set_chat", "Post reports to this chat", deps.Chat.SetChat)
	r.RegisterCommand("shuffle", "", deps.Rotation.Shuffle)
	r.RegisterCommand("reshuffle", "", deps.Rotation.Reshuffle)
	r.RegisterCommand("pairs", "Latest mentor/mentee pairs", deps.Rotation.Pairs)
	r.RegisterCommand("load", "Mentees per mentor", deps.Rotation.Load)
	r.RegisterCommand("rate", "Rate your mentor", deps.Feedback.Rate)
	r.RegisterCommand("ratings", "", deps.Feedback.Ratings)

	r.RegisterCallbackPrefix(presenter.CallbackUser, deps.Katas.UserTotal)
	r.RegisterCallbackPrefix(presenter.CallbackNext, deps.Katas.NextPage)
	r.RegisterCallbackPrefix(presenter.CallbackRate, deps.Feedback.RateCallback)

	r.RegisterText("cancel", handler.IsCancelText, deps.Authorize.Cancel)
	r.RegisterText("get_uncompleted", func(text string) bool {
		return strings.TrimSpace(text) == presenter.LabelUnsolvedKatas
	}, deps.Katas.Uncompleted)
	r.RegisterConversation(deps.Authorize.Awaiting, deps.Authorize.HandleText)
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE MANAGEMENT
// ══════════════════════════════════════════════════════════════════════════════

// Run verifies the token, publishes the command menu and polls until ctx is
// done. In-flight updates get GracefulShutdownTimeout to finish.
func (b *Bot) Run(ctx context.Context) error {
	defer b.rateLimiter.Stop()

	b.statsMu.Lock()
	b.stats.StartedAt = time.Now()
	b.statsMu.Unlock()

	if err := b.verifyToken(ctx); err != nil {
		return fmt.Errorf("failed to verify bot token: %w", err)
	}

	if err := b.poller.SetMyCommands(ctx, b.router.BotCommands()); err != nil {
		b.logger.Warn("failed to publish command menu", logger.Err(err))
	}

	b.logger.Info("starting long polling")
	err := b.poller.StartPolling(ctx, b.dispatch)

	b.waitInFlight()

	st := b.Stats()
	b.logger.Info("bot stopped",
		"uptime", time.Since(st.StartedAt).Round(time.Second).String(),
		"received", st.Received,
		"handled", st.Handled,
		"failed", st.Failed,
	)
	return err
}

// verifyToken verifies the bot token by calling getMe.
func (b *Bot) verifyToken(ctx context.Context) error {
	me, err := b.poller.GetMe(ctx)
	if err != nil {
		return err
	}

	b.logger.Info("bot verified",
		"id", me.ID,
		"username", me.Username,
	)
	return nil
}

func (b *Bot) waitInFlight() {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("all handlers completed gracefully")
	case <-time.After(b.config.GracefulShutdownTimeout):
		b.logger.Warn("graceful shutdown timeout exceeded")
	}
}

// dispatch hands update to a worker. It blocks while all slots are busy.
func (b *Bot) dispatch(ctx context.Context, update *telegram.Update) error {
	if err := b.slots.Acquire(ctx, 1); err != nil {
		return err
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer b.slots.Release(1)

		// Handlers finish even when polling stops.
		uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.config.UpdateTimeout)
		defer cancel()

		_ = b.HandleUpdate(uctx, update)
	}()
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE HANDLING
// ══════════════════════════════════════════════════════════════════════════════

// HandleUpdate processes a single Telegram update synchronously.
func (b *Bot) HandleUpdate(ctx context.Context, update *telegram.Update) error {
	b.statsMu.Lock()
	b.stats.Received++
	b.statsMu.Unlock()

	log := b.logger.With(
		logger.RequestID(uuid.NewString()),
		slog.Int64("update_id", update.UpdateID),
	)
	ctx = logger.WithContext(ctx, log)

	var err error
	switch {
	case update.Message != nil:
		err = b.handleMessage(ctx, log, update.Message)
	case update.CallbackQuery != nil:
		err = b.handleCallbackQuery(ctx, log, update.CallbackQuery)
	default:
		return nil
	}

	b.statsMu.Lock()
	if err != nil {
		b.stats.Failed++
	} else {
		b.stats.Handled++
	}
	b.statsMu.Unlock()

	if err != nil {
		log.Error("failed to handle update", logger.Err(err))
	}
	return err
}

// handleMessage processes a Telegram message.
func (b *Bot) handleMessage(ctx context.Context, log *slog.Logger, msg *telegram.Message) error {
	if msg.From == nil || msg.Chat == nil || msg.From.IsBot {
		return nil
	}

	req := handler.Request{
		TelegramID: msg.From.ID,
		Username:   msg.From.Username,
		ChatID:     msg.Chat.ID,
		ChatType:   msg.Chat.Type,
		MessageID:  msg.MessageID,
		Text:       msg.Text,
	}
	ctx = middleware.ContextWithTelegramID(ctx, req.TelegramID)

	if command, args := msg.Command(); command != "" {
		req.Args = args
		route, ok := b.router.Command(command)
		if !ok {
			if !msg.IsPrivate() {
				// Group chats see commands meant for other bots.
				return nil
			}
			return deliver(ctx, b.sender, req, handler.Text(presenter.TextUnknownCommand))
		}

		b.countCommand(command)
		if !b.authMiddleware.Allowed(req.TelegramID, command) {
			b.metricsMiddleware.Start(command).End(middleware.StatusForbidden)
			return deliver(ctx, b.sender, req, handler.Text(presenter.TextAdminOnly))
		}
		return b.runRoute(ctx, log, route, req, "")
	}

	if msg.Text == "" {
		return nil
	}
	route, ok := b.router.Text(ctx, req.TelegramID, msg.Text)
	if !ok {
		return nil
	}
	return b.runRoute(ctx, log, route, req, "")
}

// handleCallbackQuery processes a callback query from an inline keyboard.
func (b *Bot) handleCallbackQuery(ctx context.Context, log *slog.Logger, cq *telegram.CallbackQuery) error {
	if cq.From == nil {
		return nil
	}

	req := handler.Request{
		TelegramID: cq.From.ID,
		Username:   cq.From.Username,
		Data:       cq.Data,
	}
	if cq.Message != nil && cq.Message.Chat != nil {
		req.ChatID = cq.Message.Chat.ID
		req.ChatType = cq.Message.Chat.Type
		req.MessageID = cq.Message.MessageID
	}
	ctx = middleware.ContextWithTelegramID(ctx, req.TelegramID)

	route, ok := b.router.Callback(cq.Data)
	if !ok {
		log.Warn("unknown callback", "data", cq.Data)
		return b.sender.AnswerCallbackQuery(ctx, cq.ID, "", false)
	}

	return b.runRoute(ctx, log, route, req, cq.ID)
}

// runRoute applies the middleware chain: rate limit, metrics, recovery.
// A non-empty callbackID is answered exactly once.
func (b *Bot) runRoute(ctx context.Context, log *slog.Logger, route Route, req handler.Request, callbackID string) error {
	limit := b.rateLimiter.Check(req.TelegramID)
	if !limit.Allowed {
		if b.rec != nil {
			b.rec.RateLimited()
		}
		b.metricsMiddleware.Start(route.Name).End(middleware.StatusRateLimited)
		log.Debug("rate limited", logger.TelegramID(req.TelegramID), "banned", limit.IsBanned)

		if callbackID != "" {
			return b.sender.AnswerCallbackQuery(ctx, callbackID, presenter.TextRateLimitedAnswer, true)
		}
		if limit.IsBanned {
			return nil
		}
		seconds := int(limit.RetryAfter.Seconds()) + 1
		return deliver(ctx, b.sender, req, handler.Text(fmt.Sprintf(presenter.TextRateLimited, seconds)))
	}

	if callbackID != "" {
		defer func() {
			_ = b.sender.AnswerCallbackQuery(ctx, callbackID, "", false)
		}()
	}

	started := time.Now()
	rc := b.metricsMiddleware.Start(route.Name)

	var resp *handler.Response
	err := b.recoverer.Guard(ctx, route.Name, func() error {
		var err error
		resp, err = route.Handle(ctx, req)
		return err
	})

	var panicErr *middleware.PanicError
	switch {
	case errors.As(err, &panicErr):
		rc.End(middleware.StatusPanic)
		return deliver(ctx, b.sender, req, handler.Text(presenter.TextInternalError))
	case err != nil:
		rc.End(middleware.StatusError)
		log.Error("handler failed", "route", route.Name, logger.Err(err))
		return deliver(ctx, b.sender, req, handler.Text(presenter.TextInternalError))
	}

	if resp != nil && resp.IsError {
		rc.End(middleware.StatusError)
	} else {
		rc.End(middleware.StatusOK)
	}

	log.Info("update handled",
		"route", route.Name,
		logger.TelegramID(req.TelegramID),
		logger.Latency(time.Since(started)),
	)

	if err := deliver(ctx, b.sender, req, resp); err != nil {
		if telegram.IsUserBlocked(err) {
			log.Warn("user blocked the bot", logger.TelegramID(req.TelegramID))
			return nil
		}
		return err
	}
	return nil
}

func (b *Bot) countCommand(command string) {
	b.statsMu.Lock()
	b.stats.Commands[command]++
	b.statsMu.Unlock()
}

// Stats returns a copy of the counters.
func (b *Bot) Stats() Stats {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()

	st := b.stats
	st.Commands = maps.Clone(b.stats.Commands)
	return st
}

// Router returns the router.
func (b *Bot) Router() *Router {
	return b.router
}
