// Package jobs contains the scheduled jobs of the kata mentor bot.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alem-hub/kata-mentor-bot/internal/application/command"
	"github.com/alem-hub/kata-mentor-bot/internal/application/query"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/chat"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/member"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/mentorship"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/shared"
	"github.com/alem-hub/kata-mentor-bot/internal/infrastructure/external/telegram"
	"github.com/alem-hub/kata-mentor-bot/internal/interface/telegram/presenter"
	"github.com/alem-hub/kata-mentor-bot/pkg/logger"
)

// Job names, also used as metric labels.
const (
	NameDailyStats   = "daily_stats"
	NameRateReminder = "rate_reminder"
	NameSyncSolved   = "sync_solved"
)

// Notifier sends a message outside of a conversation.
// The Telegram interface's Notifier implements it.
type Notifier interface {
	SendHTML(ctx context.Context, chatID int64, text string, keyboard *presenter.InlineKeyboard) error
}

// ══════════════════════════════════════════════════════════════════════════════
// DAILY STATS JOB
// Posts the solved-kata ranking to the configured group chat.
// ══════════════════════════════════════════════════════════════════════════════

// DailyStatsJob posts the daily stats.
type DailyStatsJob struct {
	chats     chat.Repository
	stats     *query.GetDailyStatsHandler
	keyboards *presenter.KeyboardBuilder
	notifier  Notifier
}

// NewDailyStatsJob creates the job.
func NewDailyStatsJob(
	chats chat.Repository,
	stats *query.GetDailyStatsHandler,
	keyboards *presenter.KeyboardBuilder,
	notifier Notifier,
) *DailyStatsJob {
	return &DailyStatsJob{chats: chats, stats: stats, keyboards: keyboards, notifier: notifier}
}

// Name implements scheduler.Job.
func (j *DailyStatsJob) Name() string { return NameDailyStats }

// Description implements scheduler.Job.
func (j *DailyStatsJob) Description() string {
	return "post the solved-kata ranking to the group chat"
}

// Run implements scheduler.Job. Without a configured chat it does nothing.
func (j *DailyStatsJob) Run(ctx context.Context) error {
	log := logger.FromContext(ctx)

	c, err := j.chats.Get(ctx)
	if errors.Is(err, shared.ErrChatNotConfigured) {
		log.Warn("daily stats skipped: group chat is not set")
		return nil
	}
	if err != nil {
		return fmt.Errorf("daily_stats: get chat: %w", err)
	}

	stats, err := j.stats.Handle(ctx)
	if err != nil {
		return fmt.Errorf("daily_stats: %w", err)
	}

	if err := j.notifier.SendHTML(ctx, c.ID, presenter.DailyStats(stats), j.keyboards.StatsKeyboard(stats)); err != nil {
		return fmt.Errorf("daily_stats: %w", err)
	}

	log.Info("daily stats posted", "chat_id", c.ID, "rows", len(stats.Rows))
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RATE REMINDER JOB
// Asks every mentee of the latest rotation to rate their mentor.
// ══════════════════════════════════════════════════════════════════════════════

// RateReminderJob sends the rating keyboard to mentees.
type RateReminderJob struct {
	users     member.Repository
	mentors   *query.GetCurrentMentorHandler
	keyboards *presenter.KeyboardBuilder
	scale     mentorship.RatingScale
	notifier  Notifier
}

// NewRateReminderJob creates the job.
func NewRateReminderJob(
	users member.Repository,
	mentors *query.GetCurrentMentorHandler,
	keyboards *presenter.KeyboardBuilder,
	scale mentorship.RatingScale,
	notifier Notifier,
) *RateReminderJob {
	return &RateReminderJob{
		users:     users,
		mentors:   mentors,
		keyboards: keyboards,
		scale:     scale,
		notifier:  notifier,
	}
}

// Name implements scheduler.Job.
func (j *RateReminderJob) Name() string { return NameRateReminder }

// Description implements scheduler.Job.
func (j *RateReminderJob) Description() string {
	return "ask mentees of the latest rotation to rate their mentor"
}

// ReminderStats is the outcome of one reminder run.
type ReminderStats struct {
	Mentees int
	Sent    int
	Skipped int
	Failed  int
}

// Run implements scheduler.Job.
func (j *RateReminderJob) Run(ctx context.Context) error {
	_, err := j.Remind(ctx)
	return err
}

// Remind sends the reminders. Mentees without a mentor and mentees who
// blocked the bot are skipped; other send failures are collected.
func (j *RateReminderJob) Remind(ctx context.Context) (*ReminderStats, error) {
	log := logger.FromContext(ctx)

	mentees, err := j.users.List(ctx, member.Mentees())
	if err != nil {
		return nil, fmt.Errorf("rate_reminder: list mentees: %w", err)
	}

	stats := &ReminderStats{Mentees: len(mentees)}
	keyboard := j.keyboards.RatingKeyboard(j.scale)
	var errs []error

	for _, mentee := range mentees {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		current, err := j.mentors.Handle(ctx, mentee.TelegramID)
		switch {
		case errors.Is(err, shared.ErrNoActiveRotation):
			log.Info("rate reminder skipped: no rotation yet")
			stats.Skipped = len(mentees)
			return stats, nil
		case errors.Is(err, shared.ErrMentorNotAssigned), errors.Is(err, shared.ErrUserNotFound):
			stats.Skipped++
			continue
		case err != nil:
			return stats, fmt.Errorf("rate_reminder: %w", err)
		}

		text := presenter.RateReminder(current.Mentor)
		err = j.notifier.SendHTML(ctx, mentee.TelegramID.Int64(), text, keyboard)
		switch {
		case err == nil:
			stats.Sent++
		case telegram.IsUserBlocked(err):
			stats.Skipped++
		default:
			stats.Failed++
			errs = append(errs, err)
			log.Warn("rate reminder failed", logger.TelegramID(mentee.TelegramID.Int64()), logger.Err(err))
		}
	}

	log.Info("rate reminders sent",
		"mentees", stats.Mentees,
		"sent", stats.Sent,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
	)

	if len(errs) > 0 {
		return stats, fmt.Errorf("rate_reminder: %d of %d reminders failed: %w", stats.Failed, stats.Mentees, errors.Join(errs...))
	}
	return stats, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SYNC SOLVED JOB
// Pulls the solved katas of every authorized member.
// ══════════════════════════════════════════════════════════════════════════════

// SyncRecorder receives bulk sync metrics. *metrics.Metrics implements it.
type SyncRecorder interface {
	ObserveSync(succeeded, failed int, d time.Duration)
}

// SyncSolvedJob runs the bulk solved-kata sync.
type SyncSolvedJob struct {
	sync     *command.SyncSolvedHandler
	recorder SyncRecorder
}

// NewSyncSolvedJob creates the job. recorder may be nil.
func NewSyncSolvedJob(sync *command.SyncSolvedHandler, recorder SyncRecorder) *SyncSolvedJob {
	return &SyncSolvedJob{sync: sync, recorder: recorder}
}

// Name implements scheduler.Job.
func (j *SyncSolvedJob) Name() string { return NameSyncSolved }

// Description implements scheduler.Job.
func (j *SyncSolvedJob) Description() string {
	return "sync solved katas of every authorized member"
}

// Run implements scheduler.Job. Individual user failures never fail the job.
func (j *SyncSolvedJob) Run(ctx context.Context) error {
	result, err := j.sync.SyncAll(ctx)
	if err != nil {
		return fmt.Errorf("sync_solved: %w", err)
	}

	if j.recorder != nil {
		j.recorder.ObserveSync(result.Succeeded, result.Failed, result.Duration)
	}
	return nil
}
