package query

import (
	"context"
	"fmt"

	"github.com/alem-hub/kata-mentor-bot/internal/domain/kata"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/member"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/mentorship"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET MENTOR RATINGS QUERY
// Средние оценки менторов по всем отзывам.
// ══════════════════════════════════════════════════════════════════════════════

// MentorRatingDTO - средняя оценка ментора.
type MentorRatingDTO struct {
	MentorID   shared.TelegramID
	MentorName string
	Count      int
	Average    float64
}

// GetMentorRatingsHandler обрабатывает запрос оценок.
type GetMentorRatingsHandler struct {
	users member.Repository
	pairs mentorship.Repository
}

// NewGetMentorRatingsHandler создаёт обработчик.
func NewGetMentorRatingsHandler(users member.Repository, pairs mentorship.Repository) *GetMentorRatingsHandler {
	return &GetMentorRatingsHandler{users: users, pairs: pairs}
}

// Handle возвращает оценки, лучшие первыми.
func (h *GetMentorRatingsHandler) Handle(ctx context.Context) ([]MentorRatingDTO, error) {
	summaries, err := h.pairs.MentorRatings(ctx)
	if err != nil {
		return nil, fmt.Errorf("get_mentor_ratings: %w", err)
	}

	names, err := displayNames(ctx, h.users)
	if err != nil {
		return nil, fmt.Errorf("get_mentor_ratings: %w", err)
	}

	out := make([]MentorRatingDTO, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, MentorRatingDTO{
			MentorID:   s.MentorID,
			MentorName: nameOf(names, s.MentorID),
			Count:      s.Count,
			Average:    s.Average,
		})
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GET COMPLETED TOTAL QUERY
// Общее число решённых задач пользователя во внешнем источнике.
// ══════════════════════════════════════════════════════════════════════════════

// GetCompletedTotalHandler обрабатывает запрос.
type GetCompletedTotalHandler struct {
	source kata.Source
}

// NewGetCompletedTotalHandler создаёт обработчик.
func NewGetCompletedTotalHandler(source kata.Source) *GetCompletedTotalHandler {
	return &GetCompletedTotalHandler{source: source}
}

// Handle возвращает totalItems первой страницы.
func (h *GetCompletedTotalHandler) Handle(ctx context.Context, raw string) (int, error) {
	handle, err := shared.NewCodewarsHandle(raw)
	if err != nil {
		return 0, fmt.Errorf("get_completed_total: %w", err)
	}

	page, err := h.source.FetchCompletedPage(ctx, handle, 0)
	if err != nil {
		return 0, fmt.Errorf("get_completed_total: %w", shared.Wrap(shared.ErrExternalSourceUnavailable, err))
	}
	return page.TotalItems, nil
}
