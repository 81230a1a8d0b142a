package mentorship

import (
	"fmt"
	"math/rand/v2"

	"github.com/alem-hub/kata-mentor-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MATCHING
//
// Порядок предпочтений при подборе ментора для менти:
// 1. Ментор, с которым менти ещё ни разу не был в паре (по всей истории)
// 2. Среди них - первый, у кого ещё нет менти в строящейся ротации
// 3. Если такого нет - взвешенный случайный выбор среди всех менторов,
//    вес = |всего менти - менти у ментора в последней ротации|
//
// Избегание повторов - мягкое предпочтение: менти всегда получает ментора.
// ══════════════════════════════════════════════════════════════════════════════

// AssignmentReason объясняет, каким шагом алгоритма выбран ментор.
type AssignmentReason string

const (
	// ReasonFresh - новый для менти ментор, свободный в этой ротации.
	ReasonFresh AssignmentReason = "fresh"

	// ReasonWeightedFallback - взвешенный случайный выбор по нагрузке.
	ReasonWeightedFallback AssignmentReason = "weighted_fallback"
)

// Assignment - одно назначение в плане ротации.
type Assignment struct {
	MentorID shared.TelegramID
	MenteeID shared.TelegramID
	Reason   AssignmentReason
}

// RotationPlan - результат подбора, ещё не записанный в журнал.
type RotationPlan struct {
	Day         shared.Day
	Assignments []Assignment

	// Skipped - менти, у которых уже есть пара в этот день.
	Skipped []shared.TelegramID
}

// FallbackCount возвращает количество назначений через взвешенный выбор.
func (p *RotationPlan) FallbackCount() int {
	n := 0
	for _, a := range p.Assignments {
		if a.Reason == ReasonWeightedFallback {
			n++
		}
	}
	return n
}

// ══════════════════════════════════════════════════════════════════════════════
// WEIGHTED SELECTION
// ══════════════════════════════════════════════════════════════════════════════

// LoadWeight возвращает вес ментора: |totalMentees - currentMentees|.
// Чем меньше у ментора менти, тем выше вес.
func LoadWeight(totalMentees, currentMentees int) int {
	w := totalMentees - currentMentees
	if w < 0 {
		return -w
	}
	return w
}

// PickWeighted выбирает кандидата с вероятностью, пропорциональной весу.
// Кандидат с нулевым весом не выбирается, пока есть кандидат с положительным весом.
// Если все веса нулевые, выбор равномерный. Функция чистая: вся случайность
// берётся из src, поэтому детерминированный источник даёт воспроизводимый результат.
func PickWeighted[T any](candidates []T, weights []int, src rand.Source) (T, error) {
	var zero T
	if len(candidates) == 0 {
		return zero, shared.ErrNoMentorsAvailable
	}
	if len(weights) != len(candidates) {
		return zero, shared.Wrap(shared.ErrInvalidWeights,
			fmt.Errorf("%d weights for %d candidates", len(weights), len(candidates)))
	}

	total := 0
	for _, w := range weights {
		if w < 0 {
			return zero, shared.Wrap(shared.ErrInvalidWeights, fmt.Errorf("weight %d", w))
		}
		total += w
	}

	rnd := rand.New(src)
	if total == 0 {
		return candidates[rnd.IntN(len(candidates))], nil
	}

	r := rnd.IntN(total)
	for i, w := range weights {
		if r < w {
			return candidates[i], nil
		}
		r -= w
	}
	// unreachable: r < total
	return candidates[len(candidates)-1], nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LOAD TABLE
// ══════════════════════════════════════════════════════════════════════════════

// LoadTable отслеживает число менти у каждого ментора в последней ротации.
//
// Пока новая ротация пуста, последней считается предыдущая ротация из журнала.
// Как только в строящейся ротации появилось первое назначение, последней
// становится она сама.
type LoadTable struct {
	totalMentees int

	building  shared.Day
	latest    shared.Day
	hasLatest bool
	counts    map[shared.TelegramID]int

	inflight      map[shared.TelegramID]int
	inflightTotal int
}

// NewLoadTable создаёт таблицу нагрузки.
// counts - число менти по менторам в дню latest (если hasLatest).
func NewLoadTable(totalMentees int, building, latest shared.Day, hasLatest bool, counts map[shared.TelegramID]int) *LoadTable {
	if counts == nil {
		counts = make(map[shared.TelegramID]int)
	}
	return &LoadTable{
		totalMentees: totalMentees,
		building:     building,
		latest:       latest,
		hasLatest:    hasLatest,
		counts:       counts,
		inflight:     make(map[shared.TelegramID]int),
	}
}

// Current возвращает число менти ментора в последней ротации.
func (l *LoadTable) Current(mentorID shared.TelegramID) int {
	switch {
	case l.hasLatest && l.latest == l.building:
		return l.counts[mentorID] + l.inflight[mentorID]
	case l.inflightTotal > 0:
		return l.inflight[mentorID]
	default:
		return l.counts[mentorID]
	}
}

// Weight возвращает вес ментора для взвешенного выбора.
func (l *LoadTable) Weight(mentorID shared.TelegramID) int {
	return LoadWeight(l.totalMentees, l.Current(mentorID))
}

// Record учитывает новое назначение в строящейся ротации.
func (l *LoadTable) Record(mentorID shared.TelegramID) {
	l.inflight[mentorID]++
	l.inflightTotal++
}

// ══════════════════════════════════════════════════════════════════════════════
// AVAILABILITY TRACKER
// ══════════════════════════════════════════════════════════════════════════════

// AvailabilityTracker отвечает, свободен ли ментор в строящейся ротации:
// ментор доступен, если у него нет ни одной пары в этот день.
type AvailabilityTracker struct {
	day  shared.Day
	busy map[shared.TelegramID]bool
}

// NewAvailabilityTracker создаёт трекер. busy - менторы, у которых уже есть
// пары в этот день в журнале.
func NewAvailabilityTracker(day shared.Day, busy []shared.TelegramID) *AvailabilityTracker {
	t := &AvailabilityTracker{day: day, busy: make(map[shared.TelegramID]bool, len(busy))}
	for _, id := range busy {
		t.busy[id] = true
	}
	return t
}

// Day возвращает день ротации.
func (t *AvailabilityTracker) Day() shared.Day { return t.day }

// IsAvailable возвращает true, если у ментора нет пары в этот день.
func (t *AvailabilityTracker) IsAvailable(mentorID shared.TelegramID) bool {
	return !t.busy[mentorID]
}

// MarkAssigned отмечает ментора занятым.
func (t *AvailabilityTracker) MarkAssigned(mentorID shared.TelegramID) {
	t.busy[mentorID] = true
}

// ══════════════════════════════════════════════════════════════════════════════
// PLANNER
// ══════════════════════════════════════════════════════════════════════════════

// RotationInput - снимок состояния, по которому строится ротация.
type RotationInput struct {
	// Day - день строящейся ротации.
	Day shared.Day

	// Mentors и Mentees в порядке реестра.
	Mentors []shared.TelegramID
	Mentees []shared.TelegramID

	// History - все прошлые пары.
	History *PairHistory

	// Assigned - менти, у которых уже есть пара в Day. Они пропускаются.
	Assigned map[shared.TelegramID]bool

	Availability *AvailabilityTracker
	Load         *LoadTable
}

// PlanRotation строит план ротации. Функция не выполняет ввода-вывода.
// Возвращает shared.ErrNoMentorsAvailable, если менторов нет.
func PlanRotation(in RotationInput, src rand.Source) (*RotationPlan, error) {
	if len(in.Mentors) == 0 {
		return nil, shared.ErrNoMentorsAvailable
	}
	if in.Availability == nil {
		in.Availability = NewAvailabilityTracker(in.Day, nil)
	}
	if in.Load == nil {
		in.Load = NewLoadTable(len(in.Mentees), in.Day, shared.Day{}, false, nil)
	}

	rnd := rand.New(src)
	shuffled := make([]shared.TelegramID, len(in.Mentors))
	copy(shuffled, in.Mentors)
	rnd.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	plan := &RotationPlan{Day: in.Day}
	for _, mentee := range in.Mentees {
		if in.Assigned[mentee] {
			plan.Skipped = append(plan.Skipped, mentee)
			continue
		}

		mentor, reason, err := pickMentor(in, shuffled, mentee, src)
		if err != nil {
			return nil, err
		}

		in.Availability.MarkAssigned(mentor)
		in.Load.Record(mentor)
		plan.Assignments = append(plan.Assignments, Assignment{
			MentorID: mentor,
			MenteeID: mentee,
			Reason:   reason,
		})
	}

	return plan, nil
}

func pickMentor(in RotationInput, shuffled []shared.TelegramID, mentee shared.TelegramID, src rand.Source) (shared.TelegramID, AssignmentReason, error) {
	for _, mentor := range shuffled {
		if mentor == mentee {
			continue
		}
		if _, paired := in.History.Find(mentor, mentee); paired {
			continue
		}
		if in.Availability.IsAvailable(mentor) {
			return mentor, ReasonFresh, nil
		}
	}

	candidates := make([]shared.TelegramID, 0, len(in.Mentors))
	weights := make([]int, 0, len(in.Mentors))
	for _, mentor := range in.Mentors {
		if mentor == mentee {
			continue
		}
		candidates = append(candidates, mentor)
		weights = append(weights, in.Load.Weight(mentor))
	}

	mentor, err := PickWeighted(candidates, weights, src)
	if err != nil {
		return 0, "", err
	}
	return mentor, ReasonWeightedFallback, nil
}
