package command

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/kata-mentor-bot/internal/domain/member"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/mentorship"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD FEEDBACK COMMAND
// A mentee rates the mentor assigned in the latest rotation.
// ══════════════════════════════════════════════════════════════════════════════

// RecordFeedbackCommand contains the rating data.
type RecordFeedbackCommand struct {
	MenteeID shared.TelegramID

	// MentorID is the rated mentor. When zero, the mentee's mentor in the
	// latest rotation is used.
	MentorID shared.TelegramID

	Rate int
}

// Validate validates the command.
func (c RecordFeedbackCommand) Validate() error {
	if !c.MenteeID.IsValid() {
		return shared.ErrInvalidTelegramID
	}
	if c.MentorID != 0 && !c.MentorID.IsValid() {
		return shared.ErrInvalidTelegramID
	}
	return nil
}

// RecordFeedbackResult contains the stored feedback and the rated mentor.
type RecordFeedbackResult struct {
	Feedback *mentorship.Feedback
	Mentor   *member.User
}

// RecordFeedbackHandler handles RecordFeedbackCommand.
type RecordFeedbackHandler struct {
	users          member.Repository
	pairs          mentorship.Repository
	scale          mentorship.RatingScale
	eventPublisher shared.EventPublisher
	now            func() time.Time
}

// NewRecordFeedbackHandler creates a new RecordFeedbackHandler.
func NewRecordFeedbackHandler(
	users member.Repository,
	pairs mentorship.Repository,
	scale mentorship.RatingScale,
	eventPublisher shared.EventPublisher,
) *RecordFeedbackHandler {
	if eventPublisher == nil {
		eventPublisher = shared.NopPublisher{}
	}
	return &RecordFeedbackHandler{
		users:          users,
		pairs:          pairs,
		scale:          scale,
		eventPublisher: eventPublisher,
		now:            time.Now,
	}
}

// Handle executes the command.
// Returns shared.ErrInvalidRating when the rate is outside the scale.
func (h *RecordFeedbackHandler) Handle(ctx context.Context, cmd RecordFeedbackCommand) (*RecordFeedbackResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("record_feedback: validation failed: %w", err)
	}

	rating, err := h.scale.NewRating(cmd.Rate)
	if err != nil {
		return nil, fmt.Errorf("record_feedback: %w", err)
	}

	if _, err := h.users.GetByTelegramID(ctx, cmd.MenteeID); err != nil {
		return nil, fmt.Errorf("record_feedback: mentee: %w", err)
	}

	mentorID := cmd.MentorID
	if mentorID == 0 {
		mentorID, err = h.currentMentorID(ctx, cmd.MenteeID)
		if err != nil {
			return nil, fmt.Errorf("record_feedback: %w", err)
		}
	}

	mentor, err := h.users.GetByTelegramID(ctx, mentorID)
	if err != nil {
		return nil, fmt.Errorf("record_feedback: mentor: %w", err)
	}

	now := h.now().UTC()
	feedback, err := mentorship.NewFeedback(cmd.MenteeID, mentorID, rating, now)
	if err != nil {
		return nil, fmt.Errorf("record_feedback: %w", err)
	}

	if err := h.pairs.CreateFeedback(ctx, feedback); err != nil {
		return nil, fmt.Errorf("record_feedback: save: %w", err)
	}

	_ = h.eventPublisher.Publish(shared.NewFeedbackRecordedEvent(cmd.MenteeID, mentorID, rating.Int(), now))
	return &RecordFeedbackResult{Feedback: feedback, Mentor: mentor}, nil
}

func (h *RecordFeedbackHandler) currentMentorID(ctx context.Context, menteeID shared.TelegramID) (shared.TelegramID, error) {
	latest, ok, err := h.pairs.LatestRotationDate(ctx)
	if err != nil {
		return 0, fmt.Errorf("latest rotation date: %w", err)
	}
	if !ok {
		return 0, shared.ErrNoActiveRotation
	}

	pair, err := h.pairs.PairForMentee(ctx, menteeID, latest)
	if err != nil {
		return 0, err
	}
	return pair.MentorID, nil
}
