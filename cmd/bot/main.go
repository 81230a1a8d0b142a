// Package main - точка входа Telegram-бота программы менторства Codewars.
//
// Процесс поднимает хранилище (PostgreSQL или память), опционально Redis,
// long polling Telegram и HTTP-сервер с health-check и метриками.
// Периодические задачи обычно выполняет cmd/worker; без базы данных
// или с SCHEDULER_IN_PROCESS=true бот запускает их сам.
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

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. КОНФИГУРАЦИЯ И ЛОГИРОВАНИЕ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.Setup(cfg.App.Name, string(cfg.App.Environment), cfg.Observability.LogLevel, cfg.App.Debug)
	log.Info("starting kata mentor bot",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"timezone", cfg.App.Timezone,
		"memory_store", cfg.UseMemoryStore(),
		"redis", cfg.UseRedis(),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. ХРАНИЛИЩЕ, МИГРАЦИИ, USE CASES
	// ─────────────────────────────────────────────────────────────────────────
	app, err := bootstrap.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Migrate(ctx); err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. TELEGRAM BOT, HTTP, ПЛАНИРОВЩИК
	// ─────────────────────────────────────────────────────────────────────────
	client := app.TelegramClient()

	bot, err := app.NewBot(client)
	if err != nil {
		return err
	}

	httpServer := app.NewHTTPServer()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return httpServer.Run(gctx) })

	g.Go(func() error {
		if err := bot.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("telegram bot: %w", err)
		}
		return nil
	})

	if cfg.Scheduler.Enabled && (cfg.Scheduler.InProcess || cfg.UseMemoryStore()) {
		sched, err := app.NewScheduler(telegram.NewNotifier(client))
		if err != nil {
			return err
		}
		g.Go(func() error {
			return sched.Run(gctx)
		})
		log.Info("scheduler runs in process", "jobs", len(sched.ListJobs()))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	err = g.Wait()
	if err != nil {
		log.Error("service error", logger.Err(err))
		return err
	}

	log.Info("shutdown completed successfully")
	return nil
}
