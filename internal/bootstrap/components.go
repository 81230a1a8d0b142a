package bootstrap

import (
	"fmt"
	"time"

	tgclient "github.com/alem-hub/kata-mentor-bot/internal/infrastructure/external/telegram"
	"github.com/alem-hub/kata-mentor-bot/internal/infrastructure/scheduler"
	"github.com/alem-hub/kata-mentor-bot/internal/infrastructure/scheduler/jobs"
	httpserver "github.com/alem-hub/kata-mentor-bot/internal/interface/http"
	"github.com/alem-hub/kata-mentor-bot/internal/interface/telegram"
	"github.com/alem-hub/kata-mentor-bot/internal/interface/telegram/handler"
	"github.com/alem-hub/kata-mentor-bot/internal/interface/telegram/middleware"
	"github.com/alem-hub/kata-mentor-bot/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// TELEGRAM
// ══════════════════════════════════════════════════════════════════════════════

// TelegramClient creates the Bot API client.
func (a *App) TelegramClient() *tgclient.Client {
	cfg := a.Config.Telegram
	return tgclient.NewClient(tgclient.ClientConfig{
		Token:           cfg.Token,
		BaseURL:         cfg.BaseURL,
		PollingTimeout:  cfg.PollingTimeout,
		Timeout:         time.Duration(cfg.PollingTimeout)*time.Second + 30*time.Second,
		OnCircuitChange: a.Metrics.ObserveCircuit,
		Logger:          a.Logger,
	})
}

// Keyboards returns the keyboard builder for the configured kata pages.
func (a *App) Keyboards() *presenter.KeyboardBuilder {
	return presenter.NewKeyboardBuilder(a.Config.Codewars.KataURL)
}

// NewBot builds the bot with every route.
func (a *App) NewBot(client *tgclient.Client) (*telegram.Bot, error) {
	cfg := a.Config
	uc := a.UseCases
	log := a.Logger
	keyboards := a.Keyboards()

	botConfig := telegram.DefaultBotConfig()
	botConfig.Debug = cfg.App.Debug
	botConfig.Logger = log
	botConfig.MaxConcurrentUpdates = cfg.Telegram.MaxConcurrentUpdates
	botConfig.AdminIDs = cfg.Telegram.AdminIDs
	botConfig.RateLimit = middleware.DefaultRateLimitConfig()
	botConfig.RateLimit.RequestsPerMinute = cfg.Telegram.UserRateLimit
	botConfig.RateLimit.BurstSize = cfg.Telegram.UserRateBurst
	botConfig.RateLimit.BanDuration = cfg.Telegram.UserRateLimitBan

	bot, err := telegram.NewBot(botConfig, telegram.BotDependencies{
		Poller:  client,
		Sender:  client,
		Metrics: a.Metrics,

		Start:     handler.NewStartHandler(uc.Register, uc.Mentor, keyboards, log),
		Authorize: handler.NewAuthorizeHandler(uc.Authorize, log),
		Rotation:  handler.NewRotationHandler(uc.Engine, uc.LatestRotation, uc.MentorLoad, log),
		Feedback: handler.NewFeedbackHandler(
			uc.Feedback, uc.CurrentMentor, uc.MentorRatings, a.Scale, keyboards, log,
		),
		Katas: handler.NewKatasHandler(handler.KatasHandlerDeps{
			SyncCmd:      uc.Sync,
			AddKataCmd:   uc.AddKata,
			StatsQuery:   uc.DailyStats,
			MissingQuery: uc.MissingKatas,
			TotalQuery:   uc.CompletedTotal,
			Keyboards:    keyboards,
			Logger:       log,
		}),
		Chat: handler.NewChatHandler(uc.SetChat, log),
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: create bot: %w", err)
	}
	return bot, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// NewScheduler registers the daily stats, rate reminder and solved sync jobs.
func (a *App) NewScheduler(notifier jobs.Notifier) (*scheduler.Scheduler, error) {
	cfg := a.Config
	loc := cfg.App.Location
	uc := a.UseCases
	keyboards := a.Keyboards()

	s := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Logger:     a.Logger,
		Timezone:   loc,
		JobTimeout: cfg.Scheduler.JobTimeout,
		Recorder:   a.Metrics,
	})

	entries := []struct {
		expr string
		job  scheduler.Job
	}{
		{cfg.Scheduler.DailyStatsCron, jobs.NewDailyStatsJob(a.Chats, uc.DailyStats, keyboards, notifier)},
		{cfg.Scheduler.RateReminderCron, jobs.NewRateReminderJob(a.Users, uc.CurrentMentor, keyboards, a.Scale, notifier)},
		{cfg.Scheduler.SolvedSyncCron, jobs.NewSyncSolvedJob(uc.Sync, a.Metrics)},
	}

	for _, e := range entries {
		schedule, err := scheduler.ParseCron(e.expr, loc)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: job %s: %w", e.job.Name(), err)
		}
		if err := s.Register(e.job, schedule); err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
	}
	return s, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP
// ══════════════════════════════════════════════════════════════════════════════

// NewHTTPServer builds the ops server with health checks and metrics.
func (a *App) NewHTTPServer() *httpserver.Server {
	cfg := a.Config.Observability

	httpConfig := httpserver.DefaultConfig()
	httpConfig.Host = cfg.HTTPHost
	httpConfig.Port = cfg.HTTPPort

	deps := httpserver.Dependencies{
		Readiness: a.Readiness(),
		Logger:    a.Logger,
	}
	if cfg.MetricsEnabled {
		deps.Gatherer = a.Registry
	}
	return httpserver.NewServer(httpConfig, deps)
}
