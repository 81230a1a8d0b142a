// Package main - административная утилита программы менторства.
//
// mentorctl выполняет операции бота из командной строки: миграции,
// ротации, отчёты, каталог задач и ручной запуск фоновых задач.
// Конфигурация читается из тех же переменных окружения, что и бот.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alem-hub/kata-mentor-bot/config"
	"github.com/alem-hub/kata-mentor-bot/internal/bootstrap"
	"github.com/alem-hub/kata-mentor-bot/pkg/logger"
)

const programName = "mentorctl"

var globalFlags = struct {
	debug bool
}{}

// openApp загружает конфигурацию и собирает зависимости.
func openApp(ctx context.Context) (*bootstrap.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.Observability.LogLevel
	if globalFlags.debug {
		level = "debug"
	}
	log := logger.New(logger.Options{
		Output:  os.Stderr,
		Level:   logger.ParseLevel(level),
		Format:  logger.FormatText,
		Service: programName,
	})
	slog.SetDefault(log)

	return bootstrap.New(ctx, cfg, log)
}

// withApp оборачивает команду, которой нужны зависимости приложения.
func withApp(fn func(cmd *cobra.Command, args []string, app *bootstrap.App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()
		return fn(cmd, args, app)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Administer the Codewars mentorship bot",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().
		BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")

	rootCmd.AddCommand(
		migrateCommand(),
		rotateCommand(),
		reshuffleCommand(),
		deleteRotationCommand(),
		pairsCommand(),
		loadCommand(),
		availableCommand(),
		ratingsCommand(),
		kataCommand(),
		syncCommand(),
		jobsCommand(),
	)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		os.Exit(1)
	}
}
