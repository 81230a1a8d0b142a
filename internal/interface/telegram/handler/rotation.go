package handler

import (
	"context"
	"log/slog"

	"github.com/alem-hub/kata-mentor-bot/internal/application/command"
	"github.com/alem-hub/kata-mentor-bot/internal/application/query"
	"github.com/alem-hub/kata-mentor-bot/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROTATION HANDLER
// Handles /shuffle, /reshuffle, /pairs and /load.
// Rotation events are published synchronously, so the report read after a
// shuffle already reflects the new pairs.
// ══════════════════════════════════════════════════════════════════════════════

// RotationHandler runs rotations and shows the pairs report.
type RotationHandler struct {
	engine      *command.RotationEngine
	latestQuery *query.GetLatestRotationHandler
	loadQuery   *query.GetMentorLoadHandler
	logger      *slog.Logger
}

// NewRotationHandler creates a new RotationHandler.
func NewRotationHandler(
	engine *command.RotationEngine,
	latestQuery *query.GetLatestRotationHandler,
	loadQuery *query.GetMentorLoadHandler,
	logger *slog.Logger,
) *RotationHandler {
	return &RotationHandler{
		engine:      engine,
		latestQuery: latestQuery,
		loadQuery:   loadQuery,
		logger:      loggerOrDefault(logger, "rotation"),
	}
}

// Shuffle builds today's rotation and replies with the pairs table.
func (h *RotationHandler) Shuffle(ctx context.Context, _ Request) (*Response, error) {
	result, err := h.engine.RunRotation(ctx)
	if err != nil {
		return errorResponse(h.logger, "shuffle", err), nil
	}

	h.logger.Info("rotation created",
		"day", result.Day.String(),
		"pairs", len(result.Pairs),
		"fallbacks", result.Fallbacks,
		"skipped", len(result.Skipped),
	)
	return h.Pairs(ctx, Request{})
}

// Reshuffle replaces the latest rotation with a fresh one.
func (h *RotationHandler) Reshuffle(ctx context.Context, _ Request) (*Response, error) {
	result, err := h.engine.Reshuffle(ctx)
	if err != nil {
		return errorResponse(h.logger, "reshuffle", err), nil
	}

	h.logger.Info("rotation reshuffled",
		"deleted_day", result.Deleted.Day.String(),
		"deleted", result.Deleted.Deleted,
		"pairs", len(result.Rotation.Pairs),
	)
	return h.Pairs(ctx, Request{})
}

// Pairs replies with the latest rotation.
func (h *RotationHandler) Pairs(ctx context.Context, _ Request) (*Response, error) {
	report, err := h.latestQuery.Handle(ctx)
	if err != nil {
		return errorResponse(h.logger, "pairs", err), nil
	}
	if report.IsEmpty() {
		return Text(presenter.TextNoRotation), nil
	}
	return HTML(presenter.PairsTable(report)), nil
}

// Load replies with the mentee count of every mentor.
func (h *RotationHandler) Load(ctx context.Context, _ Request) (*Response, error) {
	report, err := h.loadQuery.Handle(ctx)
	if err != nil {
		return errorResponse(h.logger, "load", err), nil
	}
	if len(report.Mentors) == 0 {
		return Text(presenter.TextNoMentors), nil
	}
	return HTML(presenter.MentorLoad(report)), nil
}
