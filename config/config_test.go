package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.App.Environment)
	assert.True(t, cfg.App.Debug)
	assert.Equal(t, "Asia/Almaty", cfg.App.Timezone)
	require.NotNil(t, cfg.App.Location)
	assert.Equal(t, 30*time.Second, cfg.App.ShutdownTimeout)

	assert.Equal(t, 1, cfg.Mentorship.MinRate)
	assert.Equal(t, 5, cfg.Mentorship.MaxRate)
	assert.Equal(t, "0 11 * * *", cfg.Scheduler.DailyStatsCron)
	assert.Equal(t, "0 23 * * 1", cfg.Scheduler.RateReminderCron)
	assert.Equal(t, "https://www.codewars.com/kata", cfg.Codewars.KataURL)
	assert.Equal(t, 8080, cfg.Observability.HTTPPort)

	assert.True(t, cfg.UseMemoryStore())
	assert.False(t, cfg.UseRedis())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_ADMIN_IDS", "1,2")
	t.Setenv("APP_ENV", "production")
	t.Setenv("APP_TIMEZONE", "UTC")
	t.Setenv("DATABASE_URL", "postgres://localhost/kata")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("MENTORSHIP_MAX_RATE", "10")
	t.Setenv("SCHEDULER_SOLVED_SYNC_CRON", "@hourly")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("CODEWARS_REQUEST_TIMEOUT", "2m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.False(t, cfg.App.Debug)
	assert.Equal(t, time.UTC, cfg.App.Location)
	assert.Equal(t, []int64{1, 2}, cfg.Telegram.AdminIDs)
	assert.Equal(t, 10, cfg.Mentorship.MaxRate)
	assert.Equal(t, "@hourly", cfg.Scheduler.SolvedSyncCron)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
	assert.Equal(t, 9090, cfg.Observability.HTTPPort)
	assert.Equal(t, 2*time.Minute, cfg.Codewars.RequestTimeout)
	assert.False(t, cfg.UseMemoryStore())
	assert.True(t, cfg.UseRedis())
}

func TestLoad_InvalidTimezone(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("APP_TIMEZONE", "Mars/Olympus")

	_, err := Load()
	assert.ErrorContains(t, err, "APP_TIMEZONE")
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := &Config{
		App:        AppConfig{Environment: EnvProduction},
		Mentorship: MentorshipConfig{MinRate: 5, MaxRate: 1},
		Scheduler:  SchedulerConfig{Enabled: true, DailyStatsCron: "0 11 * * *"},
	}

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"TELEGRAM_BOT_TOKEN is required",
		"DATABASE_URL is required in production",
		"MENTORSHIP_MIN_RATE must not exceed MENTORSHIP_MAX_RATE",
		"CODEWARS_SYNC_CONCURRENCY must be positive",
		"SCHEDULER_RATE_REMINDER_CRON is required",
		"SCHEDULER_SOLVED_SYNC_CRON is required",
	} {
		assert.Contains(t, err.Error(), want)
	}
	assert.NotContains(t, err.Error(), "SCHEDULER_DAILY_STATS_CRON")
}
