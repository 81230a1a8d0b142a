package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/kata-mentor-bot/config"
	"github.com/alem-hub/kata-mentor-bot/internal/application/command"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/member"
	"github.com/alem-hub/kata-mentor-bot/internal/infrastructure/messaging"
	"github.com/alem-hub/kata-mentor-bot/internal/infrastructure/metrics"
	"github.com/alem-hub/kata-mentor-bot/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/kata-mentor-bot/internal/interface/telegram/presenter"
	"github.com/alem-hub/kata-mentor-bot/pkg/logger"
)

type nopNotifier struct{}

func (nopNotifier) SendHTML(context.Context, int64, string, *presenter.InlineKeyboard) error {
	return nil
}

func memoryConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Version: "test", Location: time.UTC},
		Telegram: config.TelegramConfig{
			Token:                "123:abc",
			MaxConcurrentUpdates: 4,
			UserRateLimit:        20,
			UserRateBurst:        5,
		},
		Codewars:   config.CodewarsConfig{SyncConcurrency: 2},
		Mentorship: config.MentorshipConfig{MinRate: 1, MaxRate: 5},
		Scheduler: config.SchedulerConfig{
			Enabled:          true,
			DailyStatsCron:   "0 11 * * *",
			RateReminderCron: "0 23 * * 1",
			SolvedSyncCron:   "@every 6h",
		},
		Observability: config.ObservabilityConfig{MetricsEnabled: true},
	}
}

func newMemoryApp(t *testing.T) *App {
	t.Helper()
	a, err := New(context.Background(), memoryConfig(), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestNew_MemoryMode(t *testing.T) {
	a := newMemoryApp(t)

	assert.Nil(t, a.DB)
	assert.Nil(t, a.Redis)
	assert.IsType(t, &command.MutexLocker{}, a.Locker)
	require.NoError(t, a.Migrate(context.Background()))

	_, err := a.Migrator()
	assert.Error(t, err)
}

func TestLocalLocker_SharedDatabaseUsesAdvisoryLock(t *testing.T) {
	a := &App{Logger: logger.Discard(), DB: &postgres.Connection{}}
	assert.IsType(t, &postgres.RotationLock{}, a.localLocker())

	a.DB = nil
	assert.IsType(t, &command.MutexLocker{}, a.localLocker())
}

func TestSubscribe_WithoutReportCache(t *testing.T) {
	a := &App{
		Logger:  logger.Discard(),
		Metrics: metrics.New(prometheus.NewRegistry()),
		Bus:     messaging.NewBus(messaging.Options{Logger: logger.Discard()}),
	}
	t.Cleanup(func() { _ = a.Bus.Close() })

	require.NoError(t, a.subscribe())
}

func TestNew_InvalidScale(t *testing.T) {
	cfg := memoryConfig()
	cfg.Mentorship = config.MentorshipConfig{MinRate: 5, MaxRate: 1}

	_, err := New(context.Background(), cfg, logger.Discard())
	assert.ErrorContains(t, err, "rating scale")
}

func TestUseCases_RotationInvalidatesCachedReport(t *testing.T) {
	ctx := context.Background()
	a := newMemoryApp(t)
	uc := a.UseCases

	_, err := uc.Mentor.Handle(ctx, command.MakeMentorCommand{TelegramID: 1, Username: "morpheus"})
	require.NoError(t, err)
	_, err = uc.Register.Handle(ctx, command.RegisterUserCommand{TelegramID: 2, Username: "neo"})
	require.NoError(t, err)

	empty, err := uc.LatestRotation.Handle(ctx)
	require.NoError(t, err)
	assert.True(t, empty.IsEmpty())

	_, err = uc.Engine.RunRotation(ctx)
	require.NoError(t, err)

	latest, err := uc.LatestRotation.Handle(ctx)
	require.NoError(t, err)
	require.Len(t, latest.Rows, 1)
	assert.Equal(t, "morpheus", latest.Rows[0].MentorName)

	mentees, err := a.Users.List(ctx, member.Mentees())
	require.NoError(t, err)
	assert.Len(t, mentees, 1)
}

func TestNewScheduler_RegistersJobs(t *testing.T) {
	a := newMemoryApp(t)

	s, err := a.NewScheduler(nopNotifier{})
	require.NoError(t, err)

	var names []string
	for _, info := range s.ListJobs() {
		names = append(names, info.Name)
	}
	assert.Equal(t, []string{"daily_stats", "rate_reminder", "sync_solved"}, names)
}

func TestNewScheduler_InvalidCron(t *testing.T) {
	cfg := memoryConfig()
	cfg.Scheduler.DailyStatsCron = "not a cron"
	a, err := New(context.Background(), cfg, logger.Discard())
	require.NoError(t, err)
	defer a.Close()

	_, err = a.NewScheduler(nopNotifier{})
	assert.ErrorContains(t, err, "daily_stats")
}

func TestNewBot(t *testing.T) {
	a := newMemoryApp(t)

	bot, err := a.NewBot(a.TelegramClient())
	require.NoError(t, err)
	assert.Contains(t, bot.Router().Commands(), "shuffle")
}

func TestNewHTTPServer(t *testing.T) {
	a := newMemoryApp(t)

	ts := httptest.NewServer(a.NewHTTPServer().Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
