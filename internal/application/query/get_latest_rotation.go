package query

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/alem-hub/kata-mentor-bot/internal/domain/member"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/mentorship"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LATEST ROTATION QUERY
// Возвращает пары последней ротации в порядке вставки, пронумерованные с 1.
// ══════════════════════════════════════════════════════════════════════════════

// RotationRowDTO - строка таблицы ротации.
type RotationRowDTO struct {
	// Number - номер строки, начиная с 1.
	Number     int               `json:"number"`
	MentorID   shared.TelegramID `json:"mentor_id"`
	MentorName string            `json:"mentor_name"`
	MenteeID   shared.TelegramID `json:"mentee_id"`
	MenteeName string            `json:"mentee_name"`
}

// LatestRotationResult - последняя ротация.
type LatestRotationResult struct {
	// Day - день ротации. Пустой, если ротаций ещё не было.
	Day  shared.Day       `json:"day"`
	Rows []RotationRowDTO `json:"rows"`
}

// IsEmpty возвращает true, если журнал пуст.
func (r *LatestRotationResult) IsEmpty() bool {
	return len(r.Rows) == 0
}

// GetLatestRotationHandler обрабатывает запрос последней ротации.
type GetLatestRotationHandler struct {
	users member.Repository
	pairs mentorship.Repository
	cache ReportCache
	ttl   time.Duration
}

// NewGetLatestRotationHandler создаёт обработчик. cache может быть nil.
func NewGetLatestRotationHandler(users member.Repository, pairs mentorship.Repository, cache ReportCache) *GetLatestRotationHandler {
	return &GetLatestRotationHandler{users: users, pairs: pairs, cache: cache, ttl: DefaultReportTTL}
}

// Handle возвращает последнюю ротацию.
func (h *GetLatestRotationHandler) Handle(ctx context.Context) (*LatestRotationResult, error) {
	result, err := cached(ctx, h.cache, CacheKeyLatestRotation, h.ttl, func() (*LatestRotationResult, error) {
		return h.build(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("get_latest_rotation: %w", err)
	}
	return result, nil
}

func (h *GetLatestRotationHandler) build(ctx context.Context) (*LatestRotationResult, error) {
	day, ok, err := h.pairs.LatestRotationDate(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest rotation date: %w", err)
	}
	if !ok {
		return &LatestRotationResult{Rows: []RotationRowDTO{}}, nil
	}

	pairs, err := h.pairs.PairsForRotation(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("pairs for rotation: %w", err)
	}

	names, err := displayNames(ctx, h.users)
	if err != nil {
		return nil, err
	}

	rows := make([]RotationRowDTO, 0, len(pairs))
	for i, p := range pairs {
		rows = append(rows, RotationRowDTO{
			Number:     i + 1,
			MentorID:   p.MentorID,
			MentorName: nameOf(names, p.MentorID),
			MenteeID:   p.MenteeID,
			MenteeName: nameOf(names, p.MenteeID),
		})
	}

	return &LatestRotationResult{Day: day, Rows: rows}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GET MENTOR LOAD QUERY
// Нагрузка менторов: число менти у каждого ментора в последней ротации.
// ══════════════════════════════════════════════════════════════════════════════

// MentorLoadDTO - нагрузка одного ментора.
type MentorLoadDTO struct {
	MentorID   shared.TelegramID `json:"mentor_id"`
	MentorName string            `json:"mentor_name"`
	Mentees    int               `json:"mentees"`
}

// MentorLoadResult - нагрузка всех менторов.
type MentorLoadResult struct {
	Day          shared.Day      `json:"day"`
	TotalMentees int             `json:"total_mentees"`
	Mentors      []MentorLoadDTO `json:"mentors"`
}

// GetMentorLoadHandler обрабатывает запрос нагрузки.
type GetMentorLoadHandler struct {
	users member.Repository
	pairs mentorship.Repository
	cache ReportCache
	ttl   time.Duration
}

// NewGetMentorLoadHandler создаёт обработчик. cache может быть nil.
func NewGetMentorLoadHandler(users member.Repository, pairs mentorship.Repository, cache ReportCache) *GetMentorLoadHandler {
	return &GetMentorLoadHandler{users: users, pairs: pairs, cache: cache, ttl: DefaultReportTTL}
}

// Handle возвращает менторов в порядке убывания нагрузки.
// Менторы без менти в последней ротации включаются с нулём.
func (h *GetMentorLoadHandler) Handle(ctx context.Context) (*MentorLoadResult, error) {
	result, err := cached(ctx, h.cache, CacheKeyMentorLoad, h.ttl, func() (*MentorLoadResult, error) {
		return h.build(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("get_mentor_load: %w", err)
	}
	return result, nil
}

func (h *GetMentorLoadHandler) build(ctx context.Context) (*MentorLoadResult, error) {
	mentors, err := h.users.List(ctx, member.Mentors())
	if err != nil {
		return nil, fmt.Errorf("list mentors: %w", err)
	}
	totalMentees, err := h.users.Count(ctx, member.Mentees())
	if err != nil {
		return nil, fmt.Errorf("count mentees: %w", err)
	}

	day, ok, err := h.pairs.LatestRotationDate(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest rotation date: %w", err)
	}

	result := &MentorLoadResult{
		Day:          day,
		TotalMentees: totalMentees,
		Mentors:      make([]MentorLoadDTO, 0, len(mentors)),
	}
	for _, m := range mentors {
		count := 0
		if ok {
			count, err = h.pairs.CountMenteesForMentorInRotation(ctx, m.TelegramID, day)
			if err != nil {
				return nil, fmt.Errorf("count mentees of %s: %w", m.TelegramID, err)
			}
		}
		result.Mentors = append(result.Mentors, MentorLoadDTO{
			MentorID:   m.TelegramID,
			MentorName: m.DisplayName(),
			Mentees:    count,
		})
	}

	sort.SliceStable(result.Mentors, func(i, j int) bool {
		return result.Mentors[i].Mentees > result.Mentors[j].Mentees
	})

	return result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func displayNames(ctx context.Context, users member.Repository) (map[shared.TelegramID]string, error) {
	all, err := users.List(ctx, member.Filter{})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	names := make(map[shared.TelegramID]string, len(all))
	for _, u := range all {
		names[u.TelegramID] = u.DisplayName()
	}
	return names, nil
}

func nameOf(names map[shared.TelegramID]string, id shared.TelegramID) string {
	if n, ok := names[id]; ok {
		return n
	}
	return id.String()
}
