package mentorship

import (
	"context"

	"github.com/alem-hub/kata-mentor-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Журнал пар и отзывов. Дни ротаций вычисляются в часовом поясе,
// с которым сконфигурирована реализация.
// ══════════════════════════════════════════════════════════════════════════════

// Repository - журнал ротаций и отзывов.
type Repository interface {
	// ─────────────────────────────────────────────────────────────────────────
	// Pairs
	// ─────────────────────────────────────────────────────────────────────────

	// CreatePair записывает одну пару и заполняет её ID.
	CreatePair(ctx context.Context, pair *Pair) error

	// CreatePairs атомарно записывает пары одной ротации: либо все, либо ни одной.
	CreatePairs(ctx context.Context, pairs []*Pair) error

	// DeletePairsForRotation удаляет пары, созданные в указанный день,
	// и возвращает количество удалённых строк. Более ранние дни не затрагиваются.
	DeletePairsForRotation(ctx context.Context, day shared.Day) (int, error)

	// PairsForRotation возвращает пары дня в порядке вставки.
	PairsForRotation(ctx context.Context, day shared.Day) ([]*Pair, error)

	// LatestRotationDate возвращает максимальный день среди всех пар.
	// ok == false, если журнал пуст.
	LatestRotationDate(ctx context.Context) (day shared.Day, ok bool, err error)

	// PairHistory возвращает все сочетания ментор-менти за всю историю.
	PairHistory(ctx context.Context) (*PairHistory, error)

	// PairForMentee возвращает пару менти в указанный день.
	// Возвращает shared.ErrMentorNotAssigned, если пары нет.
	PairForMentee(ctx context.Context, menteeID shared.TelegramID, day shared.Day) (*Pair, error)

	// HasPairOnDate проверяет, есть ли у ментора пара в указанный день.
	HasPairOnDate(ctx context.Context, mentorID shared.TelegramID, day shared.Day) (bool, error)

	// ─────────────────────────────────────────────────────────────────────────
	// Aggregates
	// ─────────────────────────────────────────────────────────────────────────

	// CountMenteesForMentorInRotation возвращает число менти ментора в указанный день.
	CountMenteesForMentorInRotation(ctx context.Context, mentorID shared.TelegramID, day shared.Day) (int, error)

	// MenteeCountsForRotation возвращает число менти каждого ментора в указанный день.
	// Менторы без пар в этот день отсутствуют в результате.
	MenteeCountsForRotation(ctx context.Context, day shared.Day) (map[shared.TelegramID]int, error)

	// ─────────────────────────────────────────────────────────────────────────
	// Feedback
	// ─────────────────────────────────────────────────────────────────────────

	// CreateFeedback добавляет отзыв и заполняет его ID.
	CreateFeedback(ctx context.Context, feedback *Feedback) error

	// MentorRatings возвращает средние оценки менторов, лучшие первыми.
	MentorRatings(ctx context.Context) ([]RatingSummary, error)
}
