// Package command contains write operations (CQRS - Commands).
// Commands are responsible for changing the state of the system.
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/alem-hub/kata-mentor-bot/internal/domain/member"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/mentorship"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROTATION ENGINE
// Builds a new rotation for today, deletes the latest rotation, or does both
// in one step. All three operations share one critical section, so two
// rotations are never built at the same time.
// ══════════════════════════════════════════════════════════════════════════════

// RunRotationResult contains the outcome of a rotation run.
type RunRotationResult struct {
	// Day is the rotation day.
	Day shared.Day

	// Pairs are the pairs written by this run, in mentee roster order.
	Pairs []*mentorship.Pair

	// Fallbacks is the number of assignments made by the weighted draw.
	Fallbacks int

	// Skipped lists mentees that already had a pair on Day.
	Skipped []shared.TelegramID
}

// DeleteLatestRotationResult contains the outcome of a rotation deletion.
type DeleteLatestRotationResult struct {
	// Day is the deleted rotation day. Zero when the ledger was empty.
	Day shared.Day

	// Deleted is the number of removed pairs.
	Deleted int
}

// ReshuffleResult contains the outcome of a reshuffle.
type ReshuffleResult struct {
	Deleted  DeleteLatestRotationResult
	Rotation RunRotationResult
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES (Interfaces)
// ══════════════════════════════════════════════════════════════════════════════

// Locker guards the rotation critical section.
type Locker interface {
	// Lock blocks until the lock is held or ctx is done.
	// The returned function releases the lock.
	Lock(ctx context.Context) (unlock func(), err error)
}

// Transactor runs fn inside one storage transaction. Repository calls made
// with the context passed to fn take part in that transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// MutexLocker is an in-process Locker.
type MutexLocker struct {
	ch chan struct{}
}

// NewMutexLocker creates a new MutexLocker.
func NewMutexLocker() *MutexLocker {
	return &MutexLocker{ch: make(chan struct{}, 1)}
}

// Lock implements Locker.
func (l *MutexLocker) Lock(ctx context.Context) (func(), error) {
	select {
	case l.ch <- struct{}{}:
		return func() { <-l.ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RotationEngineConfig contains configuration for the engine.
type RotationEngineConfig struct {
	// Location defines the calendar day of a rotation.
	Location *time.Location

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// NewSource returns the random source for one run.
	// Defaults to a time-seeded PCG source.
	NewSource func() rand.Source

	// Locker guards the critical section. Defaults to an in-process mutex.
	Locker Locker

	Logger *slog.Logger
}

// RotationEngine runs, deletes and reshuffles rotations.
type RotationEngine struct {
	users          member.Repository
	pairs          mentorship.Repository
	tx             Transactor
	eventPublisher shared.EventPublisher

	loc       *time.Location
	now       func() time.Time
	newSource func() rand.Source
	locker    Locker
	logger    *slog.Logger
}

// NewRotationEngine creates a new RotationEngine.
func NewRotationEngine(
	users member.Repository,
	pairs mentorship.Repository,
	tx Transactor,
	eventPublisher shared.EventPublisher,
	config RotationEngineConfig,
) *RotationEngine {
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.NewSource == nil {
		config.NewSource = func() rand.Source {
			seed := uint64(time.Now().UnixNano())
			return rand.NewPCG(seed, seed>>1|1)
		}
	}
	if config.Locker == nil {
		config.Locker = NewMutexLocker()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if eventPublisher == nil {
		eventPublisher = shared.NopPublisher{}
	}

	return &RotationEngine{
		users:          users,
		pairs:          pairs,
		tx:             tx,
		eventPublisher: eventPublisher,
		loc:            config.Location,
		now:            config.Now,
		newSource:      config.NewSource,
		locker:         config.Locker,
		logger:         config.Logger,
	}
}

// RunRotation builds a rotation for today and writes it to the ledger.
// Returns shared.ErrNoMentorsAvailable without writing anything when there
// are no mentors.
func (e *RotationEngine) RunRotation(ctx context.Context) (*RunRotationResult, error) {
	unlock, err := e.locker.Lock(ctx)
	if err != nil {
		return nil, fmt.Errorf("run_rotation: acquire lock: %w", err)
	}
	defer unlock()

	var result *RunRotationResult
	err = e.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		result, err = e.runRotation(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("run_rotation: %w", err)
	}

	e.publishCreated(result)
	return result, nil
}

// DeleteLatestRotation removes every pair of the most recent rotation day.
// On an empty ledger it does nothing.
func (e *RotationEngine) DeleteLatestRotation(ctx context.Context) (*DeleteLatestRotationResult, error) {
	unlock, err := e.locker.Lock(ctx)
	if err != nil {
		return nil, fmt.Errorf("delete_latest_rotation: acquire lock: %w", err)
	}
	defer unlock()

	var result *DeleteLatestRotationResult
	err = e.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		result, err = e.deleteLatestRotation(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("delete_latest_rotation: %w", err)
	}

	e.publishDeleted(result)
	return result, nil
}

// Reshuffle deletes the latest rotation and builds a new one atomically.
// If the new rotation cannot be built the deletion is rolled back.
func (e *RotationEngine) Reshuffle(ctx context.Context) (*ReshuffleResult, error) {
	unlock, err := e.locker.Lock(ctx)
	if err != nil {
		return nil, fmt.Errorf("reshuffle: acquire lock: %w", err)
	}
	defer unlock()

	result := &ReshuffleResult{}
	err = e.tx.WithinTx(ctx, func(ctx context.Context) error {
		deleted, err := e.deleteLatestRotation(ctx)
		if err != nil {
			return err
		}
		rotation, err := e.runRotation(ctx)
		if err != nil {
			return err
		}
		result.Deleted = *deleted
		result.Rotation = *rotation
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reshuffle: %w", err)
	}

	e.publishDeleted(&result.Deleted)
	e.publishCreated(&result.Rotation)
	return result, nil
}

func (e *RotationEngine) runRotation(ctx context.Context) (*RunRotationResult, error) {
	now := e.now()
	day := shared.DayOf(now, e.loc)

	mentors, err := e.users.List(ctx, member.Mentors())
	if err != nil {
		return nil, fmt.Errorf("list mentors: %w", err)
	}
	if len(mentors) == 0 {
		return nil, shared.ErrNoMentorsAvailable
	}

	mentees, err := e.users.List(ctx, member.Mentees())
	if err != nil {
		return nil, fmt.Errorf("list mentees: %w", err)
	}

	history, err := e.pairs.PairHistory(ctx)
	if err != nil {
		return nil, fmt.Errorf("load pair history: %w", err)
	}

	existing, err := e.pairs.PairsForRotation(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("load today's pairs: %w", err)
	}
	assigned := make(map[shared.TelegramID]bool, len(existing))
	busy := make([]shared.TelegramID, 0, len(existing))
	for _, p := range existing {
		assigned[p.MenteeID] = true
		busy = append(busy, p.MentorID)
	}

	load, err := e.loadTable(ctx, day, len(mentees))
	if err != nil {
		return nil, err
	}

	plan, err := mentorship.PlanRotation(mentorship.RotationInput{
		Day:          day,
		Mentors:      ids(mentors),
		Mentees:      ids(mentees),
		History:      history,
		Assigned:     assigned,
		Availability: mentorship.NewAvailabilityTracker(day, busy),
		Load:         load,
	}, e.newSource())
	if err != nil {
		return nil, err
	}

	pairs := make([]*mentorship.Pair, 0, len(plan.Assignments))
	for _, a := range plan.Assignments {
		p, err := mentorship.NewPair(a.MentorID, a.MenteeID, now)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}

	if err := e.pairs.CreatePairs(ctx, pairs); err != nil {
		return nil, fmt.Errorf("create pairs: %w", err)
	}

	e.logger.Info("rotation created",
		"day", day.String(),
		"pairs", len(pairs),
		"fallbacks", plan.FallbackCount(),
		"skipped", len(plan.Skipped),
	)

	return &RunRotationResult{
		Day:       day,
		Pairs:     pairs,
		Fallbacks: plan.FallbackCount(),
		Skipped:   plan.Skipped,
	}, nil
}

// loadTable reads mentee counts of the latest rotation in the ledger.
func (e *RotationEngine) loadTable(ctx context.Context, day shared.Day, totalMentees int) (*mentorship.LoadTable, error) {
	latest, ok, err := e.pairs.LatestRotationDate(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest rotation date: %w", err)
	}

	var counts map[shared.TelegramID]int
	if ok {
		counts, err = e.pairs.MenteeCountsForRotation(ctx, latest)
		if err != nil {
			return nil, fmt.Errorf("mentee counts: %w", err)
		}
	}

	return mentorship.NewLoadTable(totalMentees, day, latest, ok, counts), nil
}

func (e *RotationEngine) deleteLatestRotation(ctx context.Context) (*DeleteLatestRotationResult, error) {
	latest, ok, err := e.pairs.LatestRotationDate(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest rotation date: %w", err)
	}
	if !ok {
		return &DeleteLatestRotationResult{}, nil
	}

	deleted, err := e.pairs.DeletePairsForRotation(ctx, latest)
	if err != nil {
		return nil, fmt.Errorf("delete pairs: %w", err)
	}

	e.logger.Info("rotation deleted", "day", latest.String(), "pairs", deleted)
	return &DeleteLatestRotationResult{Day: latest, Deleted: deleted}, nil
}

func (e *RotationEngine) publishCreated(r *RunRotationResult) {
	event := shared.NewRotationCreatedEvent(r.Day, len(r.Pairs), r.Fallbacks, len(r.Skipped), e.now())
	if err := e.eventPublisher.Publish(event); err != nil {
		e.logger.Warn("publish event failed", "event_type", event.EventType(), "error", err)
	}
}

func (e *RotationEngine) publishDeleted(r *DeleteLatestRotationResult) {
	if r.Day.IsZero() {
		return
	}
	event := shared.NewRotationDeletedEvent(r.Day, r.Deleted, e.now())
	if err := e.eventPublisher.Publish(event); err != nil {
		e.logger.Warn("publish event failed", "event_type", event.EventType(), "error", err)
	}
}

func ids(users []*member.User) []shared.TelegramID {
	out := make([]shared.TelegramID, 0, len(users))
	for _, u := range users {
		out = append(out, u.TelegramID)
	}
	return out
}

// IsNoMentors reports whether err means the rotation could not run for lack of mentors.
func IsNoMentors(err error) bool {
	return errors.Is(err, shared.ErrNoMentorsAvailable)
}
