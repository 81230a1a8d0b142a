package query

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/kata-mentor-bot/internal/domain/member"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/mentorship"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET CURRENT MENTOR QUERY
// Находит ментора менти в последней ротации.
// ══════════════════════════════════════════════════════════════════════════════

// CurrentMentorResult - текущий ментор менти.
type CurrentMentorResult struct {
	Mentor *member.User
	Day    shared.Day
}

// GetCurrentMentorHandler обрабатывает запрос текущего ментора.
type GetCurrentMentorHandler struct {
	users member.Repository
	pairs mentorship.Repository
}

// NewGetCurrentMentorHandler создаёт обработчик.
func NewGetCurrentMentorHandler(users member.Repository, pairs mentorship.Repository) *GetCurrentMentorHandler {
	return &GetCurrentMentorHandler{users: users, pairs: pairs}
}

// Handle возвращает ментора менти.
// Ошибки: shared.ErrNoActiveRotation - журнал пуст;
// shared.ErrMentorNotAssigned - у менти нет пары в последней ротации;
// shared.ErrUserNotFound - ментор не найден.
func (h *GetCurrentMentorHandler) Handle(ctx context.Context, menteeID shared.TelegramID) (*CurrentMentorResult, error) {
	day, ok, err := h.pairs.LatestRotationDate(ctx)
	if err != nil {
		return nil, fmt.Errorf("get_current_mentor: latest rotation date: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("get_current_mentor: %w", shared.ErrNoActiveRotation)
	}

	pair, err := h.pairs.PairForMentee(ctx, menteeID, day)
	if err != nil {
		return nil, fmt.Errorf("get_current_mentor: %w", err)
	}

	mentor, err := h.users.GetByTelegramID(ctx, pair.MentorID)
	if err != nil {
		return nil, fmt.Errorf("get_current_mentor: %w", err)
	}

	return &CurrentMentorResult{Mentor: mentor, Day: day}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// IS MENTOR AVAILABLE QUERY
// ══════════════════════════════════════════════════════════════════════════════

// IsMentorAvailableHandler отвечает, свободен ли ментор в указанный день.
type IsMentorAvailableHandler struct {
	pairs mentorship.Repository
	loc   *time.Location
}

// NewIsMentorAvailableHandler создаёт обработчик.
func NewIsMentorAvailableHandler(pairs mentorship.Repository, loc *time.Location) *IsMentorAvailableHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &IsMentorAvailableHandler{pairs: pairs, loc: loc}
}

// Handle возвращает true, если у ментора нет пары в день asOf.
func (h *IsMentorAvailableHandler) Handle(ctx context.Context, mentorID shared.TelegramID, asOf time.Time) (bool, error) {
	busy, err := h.pairs.HasPairOnDate(ctx, mentorID, shared.DayOf(asOf, h.loc))
	if err != nil {
		return false, fmt.Errorf("is_mentor_available: %w", err)
	}
	return !busy, nil
}
