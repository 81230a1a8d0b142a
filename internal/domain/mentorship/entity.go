// Package mentorship содержит доменную модель программы менторства:
// пары ментор-менти, ротации, отзывы и алгоритм подбора.
package mentorship

import (
	"time"

	"github.com/alem-hub/kata-mentor-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PAIR
// ══════════════════════════════════════════════════════════════════════════════

// Pair - назначение ментора менти в одной ротации.
// Пара неизменяема после создания, удаляется только вместе со всей ротацией.
type Pair struct {
	// ID - суррогатный ключ, монотонно растёт в порядке вставки.
	ID int64

	MentorID shared.TelegramID
	MenteeID shared.TelegramID

	// CreatedAt определяет принадлежность к ротации: все пары одного
	// календарного дня образуют одну ротацию.
	CreatedAt time.Time
}

// NewPair создаёт пару. Ментор и менти должны различаться.
func NewPair(mentorID, menteeID shared.TelegramID, at time.Time) (*Pair, error) {
	if !mentorID.IsValid() || !menteeID.IsValid() {
		return nil, shared.ErrInvalidTelegramID
	}
	if mentorID == menteeID {
		return nil, shared.ErrSelfPairing
	}
	return &Pair{MentorID: mentorID, MenteeID: menteeID, CreatedAt: at}, nil
}

// Day возвращает день ротации пары в часовом поясе loc.
func (p *Pair) Day(loc *time.Location) shared.Day {
	return shared.DayOf(p.CreatedAt, loc)
}

// ══════════════════════════════════════════════════════════════════════════════
// RATING
// ══════════════════════════════════════════════════════════════════════════════

// Rating - оценка ментора, уже проверенная по шкале.
type Rating int

// Int возвращает значение оценки.
func (r Rating) Int() int { return int(r) }

// RatingScale - допустимый диапазон оценок [Min, Max].
type RatingScale struct {
	Min int
	Max int
}

// DefaultRatingScale возвращает шкалу 1..5.
func DefaultRatingScale() RatingScale {
	return RatingScale{Min: 1, Max: 5}
}

// Validate проверяет саму шкалу.
func (s RatingScale) Validate() error {
	if s.Min > s.Max {
		return shared.ErrInvalidRatingRange
	}
	return nil
}

// NewRating проверяет значение и возвращает Rating.
// Возвращает shared.ErrInvalidRating, если значение вне шкалы.
func (s RatingScale) NewRating(value int) (Rating, error) {
	if value < s.Min || value > s.Max {
		return 0, shared.ErrInvalidRating
	}
	return Rating(value), nil
}

// Values возвращает все допустимые оценки по возрастанию.
func (s RatingScale) Values() []int {
	if s.Min > s.Max {
		return nil
	}
	values := make([]int, 0, s.Max-s.Min+1)
	for v := s.Min; v <= s.Max; v++ {
		values = append(values, v)
	}
	return values
}

// ══════════════════════════════════════════════════════════════════════════════
// FEEDBACK
// ══════════════════════════════════════════════════════════════════════════════

// Feedback - оценка ментора от менти. Только добавляется.
type Feedback struct {
	ID        int64
	MenteeID  shared.TelegramID
	MentorID  shared.TelegramID
	Rating    Rating
	CreatedAt time.Time
}

// NewFeedback создаёт отзыв с уже проверенной оценкой.
func NewFeedback(menteeID, mentorID shared.TelegramID, rating Rating, at time.Time) (*Feedback, error) {
	if !menteeID.IsValid() || !mentorID.IsValid() {
		return nil, shared.ErrInvalidTelegramID
	}
	return &Feedback{
		MenteeID:  menteeID,
		MentorID:  mentorID,
		Rating:    rating,
		CreatedAt: at,
	}, nil
}

// RatingSummary - агрегат оценок одного ментора.
type RatingSummary struct {
	MentorID shared.TelegramID
	Count    int
	Average  float64
}

// ══════════════════════════════════════════════════════════════════════════════
// PAIR HISTORY
// ══════════════════════════════════════════════════════════════════════════════

type pairKey struct {
	mentor shared.TelegramID
	mentee shared.TelegramID
}

// PairHistory - все когда-либо созданные сочетания (ментор, менти).
// Используется для избегания повторов по всей истории, а не только последней ротации.
type PairHistory struct {
	pairs map[pairKey]*Pair
}

// NewPairHistory строит историю из списка пар. При повторах сохраняется самая ранняя пара.
func NewPairHistory(pairs []*Pair) *PairHistory {
	h := &PairHistory{pairs: make(map[pairKey]*Pair, len(pairs))}
	for _, p := range pairs {
		h.Add(p)
	}
	return h
}

// Add добавляет пару в историю.
func (h *PairHistory) Add(p *Pair) {
	if h.pairs == nil {
		h.pairs = make(map[pairKey]*Pair)
	}
	key := pairKey{mentor: p.MentorID, mentee: p.MenteeID}
	if _, ok := h.pairs[key]; !ok {
		h.pairs[key] = p
	}
}

// Find ищет пару именно с этим ментором и этим менти.
func (h *PairHistory) Find(mentorID, menteeID shared.TelegramID) (*Pair, bool) {
	if h == nil {
		return nil, false
	}
	p, ok := h.pairs[pairKey{mentor: mentorID, mentee: menteeID}]
	return p, ok
}

// Len возвращает количество различных сочетаний.
func (h *PairHistory) Len() int {
	if h == nil {
		return 0
	}
	return len(h.pairs)
}
