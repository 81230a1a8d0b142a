// Package main - точка входа фонового процесса (Worker).
//
// Worker выполняет периодические задачи по расписанию в APP_TIMEZONE:
// - ежедневная статистика в групповой чат (SCHEDULER_DAILY_STATS_CRON)
// - еженедельная просьба оценить ментора (SCHEDULER_RATE_REMINDER_CRON)
// - синхронизация решённых задач Codewars (SCHEDULER_SOLVED_SYNC_CRON)
//
// Worker работает только с PostgreSQL: хранилище в памяти не разделяется
// между процессами, в этом режиме задачи выполняет сам бот.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/kata-mentor-bot/config"
	"github.com/alem-hub/kata-mentor-bot/internal/bootstrap"
	"github.com/alem-hub/kata-mentor-bot/internal/interface/telegram"
	"github.com/alem-hub/kata-mentor-bot/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.Setup(cfg.App.Name+"-worker", string(cfg.App.Environment), cfg.Observability.LogLevel, cfg.App.Debug)

	if cfg.UseMemoryStore() {
		return errors.New("worker needs DATABASE_URL; without it the bot runs the jobs in process")
	}
	if !cfg.Scheduler.Enabled {
		log.Warn("scheduler is disabled, nothing to do")
		return nil
	}

	app, err := bootstrap.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Migrate(ctx); err != nil {
		return err
	}

	sched, err := app.NewScheduler(telegram.NewNotifier(app.TelegramClient()))
	if err != nil {
		return err
	}

	log.Info("worker ready", "jobs", len(sched.ListJobs()))

	httpServer := app.NewHTTPServer()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpServer.Run(gctx)
	})
	g.Go(func() error {
		return sched.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		log.Error("worker stopped with error", logger.Err(err))
		return err
	}

	log.Info("worker stopped")
	return nil
}
