package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/alem-hub/kata-mentor-bot/internal/domain/kata"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/member"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SYNC SOLVED COMMAND
// Pulls the completed-kata list of a user from the exercise source and records
// new solutions of catalog katas. Recording is skip-if-exists per (user, kata),
// so a rerun after a partial failure is safe.
// ══════════════════════════════════════════════════════════════════════════════

// SyncSolvedCommand contains the user to sync.
type SyncSolvedCommand struct {
	TelegramID shared.TelegramID
}

// Validate validates the command.
func (c SyncSolvedCommand) Validate() error {
	if !c.TelegramID.IsValid() {
		return shared.ErrInvalidTelegramID
	}
	return nil
}

// SyncSolvedResult contains the result of one user's sync.
type SyncSolvedResult struct {
	TelegramID shared.TelegramID
	Handle     shared.CodewarsHandle

	// NewlySolved is the number of new solved-kata facts.
	NewlySolved int

	// PagesFetched is the number of pages read from the source.
	PagesFetched int
}

// SyncAllResult contains statistics of a bulk sync.
type SyncAllResult struct {
	Users       int
	Succeeded   int
	Failed      int
	NewlySolved int
	Duration    time.Duration

	// Errors maps users to their sync failure.
	Errors map[shared.TelegramID]error
}

// SyncSolvedHandlerConfig contains configuration for the handler.
type SyncSolvedHandlerConfig struct {
	// Concurrency bounds parallel user syncs in SyncAll.
	Concurrency int64

	// MaxPages bounds the pages read per user.
	MaxPages int

	Logger *slog.Logger
}

// DefaultSyncSolvedHandlerConfig returns default configuration.
func DefaultSyncSolvedHandlerConfig() SyncSolvedHandlerConfig {
	return SyncSolvedHandlerConfig{
		Concurrency: 4,
		MaxPages:    100,
	}
}

// SyncSolvedHandler handles SyncSolvedCommand.
type SyncSolvedHandler struct {
	users          member.Repository
	katas          kata.Repository
	source         kata.Source
	eventPublisher shared.EventPublisher
	config         SyncSolvedHandlerConfig
	logger         *slog.Logger
	now            func() time.Time
}

// NewSyncSolvedHandler creates a new SyncSolvedHandler.
func NewSyncSolvedHandler(
	users member.Repository,
	katas kata.Repository,
	source kata.Source,
	eventPublisher shared.EventPublisher,
	config SyncSolvedHandlerConfig,
) *SyncSolvedHandler {
	defaults := DefaultSyncSolvedHandlerConfig()
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.MaxPages <= 0 {
		config.MaxPages = defaults.MaxPages
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if eventPublisher == nil {
		eventPublisher = shared.NopPublisher{}
	}

	return &SyncSolvedHandler{
		users:          users,
		katas:          katas,
		source:         source,
		eventPublisher: eventPublisher,
		config:         config,
		logger:         config.Logger,
		now:            time.Now,
	}
}

// Handle syncs one user.
// Returns shared.ErrUserNotAuthorized when no Codewars username is bound and
// shared.ErrExternalSourceUnavailable when the source fails. Rows recorded
// before a failure stay in place.
func (h *SyncSolvedHandler) Handle(ctx context.Context, cmd SyncSolvedCommand) (*SyncSolvedResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("sync_solved: validation failed: %w", err)
	}

	user, err := h.users.GetByTelegramID(ctx, cmd.TelegramID)
	if err != nil {
		return nil, fmt.Errorf("sync_solved: %w", err)
	}

	result, err := h.syncUser(ctx, user)
	if err != nil {
		return result, fmt.Errorf("sync_solved: %w", err)
	}
	return result, nil
}

// SyncAll syncs every authorized user with bounded concurrency.
// A failing user is recorded in the result and never stops the others.
func (h *SyncSolvedHandler) SyncAll(ctx context.Context) (*SyncAllResult, error) {
	start := h.now()

	users, err := h.users.List(ctx, member.Filter{AuthorizedOnly: true})
	if err != nil {
		return nil, fmt.Errorf("sync_all_solved: list users: %w", err)
	}

	result := &SyncAllResult{
		Users:  len(users),
		Errors: make(map[shared.TelegramID]error),
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = semaphore.NewWeighted(h.config.Concurrency)
	)

	for _, u := range users {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context cancelled: remaining users are not started.
			break
		}

		wg.Add(1)
		go func(u *member.User) {
			defer wg.Done()
			defer sem.Release(1)

			res, err := h.syncUser(ctx, u)

			mu.Lock()
			defer mu.Unlock()
			if res != nil {
				result.NewlySolved += res.NewlySolved
			}
			if err != nil {
				result.Failed++
				result.Errors[u.TelegramID] = err
				h.logger.Warn("solved sync failed",
					"telegram_id", u.TelegramID.Int64(),
					"handle", u.CodewarsUsername.String(),
					"error", err,
				)
				return
			}
			result.Succeeded++
		}(u)
	}

	wg.Wait()
	result.Duration = h.now().Sub(start)

	h.logger.Info("solved sync finished",
		"users", result.Users,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"newly_solved", result.NewlySolved,
		"duration", result.Duration,
	)

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("sync_all_solved: %w", err)
	}
	return result, nil
}

// syncUser reads pages 0..totalPages-1 and records catalog katas.
func (h *SyncSolvedHandler) syncUser(ctx context.Context, user *member.User) (*SyncSolvedResult, error) {
	if !user.IsAuthorized() {
		return nil, shared.ErrUserNotAuthorized
	}

	result := &SyncSolvedResult{TelegramID: user.TelegramID, Handle: user.CodewarsUsername}

	totalPages := 1
	for page := 0; page < totalPages && page < h.config.MaxPages; page++ {
		completed, err := h.source.FetchCompletedPage(ctx, user.CodewarsUsername, page)
		if err != nil {
			h.publishSolved(result)
			return result, wrapSourceError(err)
		}
		result.PagesFetched++
		totalPages = completed.TotalPages

		for _, item := range completed.Items {
			inserted, err := h.katas.MarkSolved(ctx, user.TelegramID, item.ID)
			if err != nil {
				h.publishSolved(result)
				return result, fmt.Errorf("mark solved %s: %w", item.ID, err)
			}
			if inserted {
				result.NewlySolved++
			}
		}
	}

	h.publishSolved(result)
	return result, nil
}

func (h *SyncSolvedHandler) publishSolved(r *SyncSolvedResult) {
	if r.NewlySolved == 0 {
		return
	}
	_ = h.eventPublisher.Publish(shared.NewKatasSolvedEvent(r.TelegramID, r.NewlySolved, h.now().UTC()))
}

// wrapSourceError marks an exercise source failure with the domain kind.
func wrapSourceError(err error) error {
	if errors.Is(err, shared.ErrExternalSourceUnavailable) {
		return err
	}
	return shared.Wrap(shared.ErrExternalSourceUnavailable, err)
}
