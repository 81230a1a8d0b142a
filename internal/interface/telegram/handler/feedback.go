package handler

import (
	"context"
	"log/slog"

	"github.com/alem-hub/kata-mentor-bot/internal/application/command"
	"github.com/alem-hub/kata-mentor-bot/internal/application/query"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/mentorship"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/shared"
	"github.com/alem-hub/kata-mentor-bot/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// FEEDBACK HANDLER
// /rate asks the mentee to rate the current mentor; the rate_<n> callback
// records the rating and replaces the question with a thank-you.
// ══════════════════════════════════════════════════════════════════════════════

// FeedbackHandler collects mentor ratings.
type FeedbackHandler struct {
	feedbackCmd  *command.RecordFeedbackHandler
	mentorQuery  *query.GetCurrentMentorHandler
	ratingsQuery *query.GetMentorRatingsHandler
	scale        mentorship.RatingScale
	keyboards    *presenter.KeyboardBuilder
	logger       *slog.Logger
}

// NewFeedbackHandler creates a new FeedbackHandler.
func NewFeedbackHandler(
	feedbackCmd *command.RecordFeedbackHandler,
	mentorQuery *query.GetCurrentMentorHandler,
	ratingsQuery *query.GetMentorRatingsHandler,
	scale mentorship.RatingScale,
	keyboards *presenter.KeyboardBuilder,
	logger *slog.Logger,
) *FeedbackHandler {
	return &FeedbackHandler{
		feedbackCmd:  feedbackCmd,
		mentorQuery:  mentorQuery,
		ratingsQuery: ratingsQuery,
		scale:        scale,
		keyboards:    keyboards,
		logger:       loggerOrDefault(logger, "feedback"),
	}
}

// Rate asks the sender to rate their mentor in the latest rotation.
func (h *FeedbackHandler) Rate(ctx context.Context, req Request) (*Response, error) {
	current, err := h.mentorQuery.Handle(ctx, shared.TelegramID(req.TelegramID))
	if err != nil {
		return errorResponse(h.logger, "rate", err), nil
	}

	resp := HTML(presenter.RateReminder(current.Mentor))
	resp.Keyboard = h.keyboards.RatingKeyboard(h.scale)
	return resp, nil
}

// RateCallback handles rate_<n>. The callback sender is the mentee.
func (h *FeedbackHandler) RateCallback(ctx context.Context, req Request) (*Response, error) {
	rate, ok := presenter.ParseCallbackInt(req.Data, presenter.CallbackRate)
	if !ok {
		return errorResponse(h.logger, "rate_callback", shared.ErrInvalidRating), nil
	}

	result, err := h.feedbackCmd.Handle(ctx, command.RecordFeedbackCommand{
		MenteeID: shared.TelegramID(req.TelegramID),
		Rate:     rate,
	})
	if err != nil {
		return errorResponse(h.logger, "rate_callback", err), nil
	}

	h.logger.Info("feedback recorded",
		"mentor_id", result.Mentor.TelegramID.Int64(),
		"rating", rate,
	)
	return &Response{Text: presenter.TextFeedbackThanks, Edit: true}, nil
}

// Ratings replies with the average rating of every mentor.
func (h *FeedbackHandler) Ratings(ctx context.Context, _ Request) (*Response, error) {
	ratings, err := h.ratingsQuery.Handle(ctx)
	if err != nil {
		return errorResponse(h.logger, "ratings", err), nil
	}
	if len(ratings) == 0 {
		return Text(presenter.TextNoRatings), nil
	}
	return HTML(presenter.MentorRatings(ratings)), nil
}
