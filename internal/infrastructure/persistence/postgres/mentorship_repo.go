package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/kata-mentor-bot/internal/domain/mentorship"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MENTORSHIP REPOSITORY IMPLEMENTATION
// Дни ротаций считаются как (created_at AT TIME ZONE tz)::date, где tz -
// часовой пояс сообщества.
// ══════════════════════════════════════════════════════════════════════════════

// MentorshipRepository implements mentorship.Repository for PostgreSQL.
type MentorshipRepository struct {
	conn *Connection
	tz   string
}

// NewMentorshipRepository creates a new MentorshipRepository.
// loc must be an IANA zone known to the database server.
func NewMentorshipRepository(conn *Connection, loc *time.Location) *MentorshipRepository {
	if loc == nil {
		loc = time.UTC
	}
	return &MentorshipRepository{conn: conn, tz: loc.String()}
}

// ─────────────────────────────────────────────────────────────────────────────
// Pairs
// ─────────────────────────────────────────────────────────────────────────────

const insertPairQuery = `
	INSERT INTO pairs (mentor_id, mentee_id, created_at, updated_at)
	VALUES ($1, $2, $3, $3)
	RETURNING id
`

// CreatePair inserts one pair and fills its ID.
func (r *MentorshipRepository) CreatePair(ctx context.Context, p *mentorship.Pair) error {
	err := r.conn.q(ctx).QueryRow(ctx, insertPairQuery,
		p.MentorID.Int64(),
		p.MenteeID.Int64(),
		p.CreatedAt,
	).Scan(&p.ID)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return shared.Wrap(shared.ErrUserNotFound, err)
		}
		return fmt.Errorf("failed to create pair: %w", err)
	}
	return nil
}

// CreatePairs inserts all pairs of a rotation in one transaction.
func (r *MentorshipRepository) CreatePairs(ctx context.Context, pairs []*mentorship.Pair) error {
	if len(pairs) == 0 {
		return nil
	}

	return r.conn.WithinTx(ctx, func(ctx context.Context) error {
		batch := &pgx.Batch{}
		for _, p := range pairs {
			batch.Queue(insertPairQuery, p.MentorID.Int64(), p.MenteeID.Int64(), p.CreatedAt)
		}

		results := r.conn.q(ctx).(pgx.Tx).SendBatch(ctx, batch)
		for _, p := range pairs {
			if err := results.QueryRow().Scan(&p.ID); err != nil {
				_ = results.Close()
				if IsForeignKeyViolation(err) {
					return shared.Wrap(shared.ErrUserNotFound, err)
				}
				return fmt.Errorf("failed to create pair: %w", err)
			}
		}
		return results.Close()
	})
}

// DeletePairsForRotation removes the pairs created on day.
func (r *MentorshipRepository) DeletePairsForRotation(ctx context.Context, day shared.Day) (int, error) {
	query := `DELETE FROM pairs WHERE (created_at AT TIME ZONE $1)::date = $2::date`

	result, err := r.conn.q(ctx).Exec(ctx, query, r.tz, day.String())
	if err != nil {
		return 0, fmt.Errorf("failed to delete rotation %s: %w", day, err)
	}
	return int(result.RowsAffected()), nil
}

// PairsForRotation returns the pairs of day in insertion order.
func (r *MentorshipRepository) PairsForRotation(ctx context.Context, day shared.Day) ([]*mentorship.Pair, error) {
	query := `
		SELECT id, mentor_id, mentee_id, created_at
		FROM pairs
		WHERE (created_at AT TIME ZONE $1)::date = $2::date
		ORDER BY id
	`

	rows, err := r.conn.q(ctx).Query(ctx, query, r.tz, day.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query rotation %s: %w", day, err)
	}
	return collectPairs(rows)
}

// LatestRotationDate returns the most recent rotation day.
func (r *MentorshipRepository) LatestRotationDate(ctx context.Context) (shared.Day, bool, error) {
	query := `SELECT MAX((created_at AT TIME ZONE $1)::date) FROM pairs`

	var latest *time.Time
	if err := r.conn.q(ctx).QueryRow(ctx, query, r.tz).Scan(&latest); err != nil {
		return shared.Day{}, false, fmt.Errorf("failed to get latest rotation date: %w", err)
	}
	if latest == nil {
		return shared.Day{}, false, nil
	}
	return shared.DayOf(*latest, time.UTC), true, nil
}

// PairHistory returns every mentor/mentee combination ever recorded.
func (r *MentorshipRepository) PairHistory(ctx context.Context) (*mentorship.PairHistory, error) {
	query := `
		SELECT DISTINCT ON (mentor_id, mentee_id) id, mentor_id, mentee_id, created_at
		FROM pairs
		ORDER BY mentor_id, mentee_id, id
	`

	rows, err := r.conn.q(ctx).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query pair history: %w", err)
	}

	pairs, err := collectPairs(rows)
	if err != nil {
		return nil, err
	}
	return mentorship.NewPairHistory(pairs), nil
}

// PairForMentee returns the mentee's pair on day.
func (r *MentorshipRepository) PairForMentee(ctx context.Context, menteeID shared.TelegramID, day shared.Day) (*mentorship.Pair, error) {
	query := `
		SELECT id, mentor_id, mentee_id, created_at
		FROM pairs
		WHERE mentee_id = $1 AND (created_at AT TIME ZONE $2)::date = $3::date
		ORDER BY id
		LIMIT 1
	`

	p, err := scanPair(r.conn.q(ctx).QueryRow(ctx, query, menteeID.Int64(), r.tz, day.String()))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrMentorNotAssigned
		}
		return nil, fmt.Errorf("failed to get pair for mentee: %w", err)
	}
	return p, nil
}

// HasPairOnDate reports whether the mentor has a pair on day.
func (r *MentorshipRepository) HasPairOnDate(ctx context.Context, mentorID shared.TelegramID, day shared.Day) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM pairs
			WHERE mentor_id = $1 AND (created_at AT TIME ZONE $2)::date = $3::date
		)
	`

	var exists bool
	if err := r.conn.q(ctx).QueryRow(ctx, query, mentorID.Int64(), r.tz, day.String()).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check mentor availability: %w", err)
	}
	return exists, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Aggregates
// ─────────────────────────────────────────────────────────────────────────────

// CountMenteesForMentorInRotation returns how many mentees the mentor has on day.
func (r *MentorshipRepository) CountMenteesForMentorInRotation(ctx context.Context, mentorID shared.TelegramID, day shared.Day) (int, error) {
	query := `
		SELECT COUNT(*) FROM pairs
		WHERE mentor_id = $1 AND (created_at AT TIME ZONE $2)::date = $3::date
	`

	var count int
	if err := r.conn.q(ctx).QueryRow(ctx, query, mentorID.Int64(), r.tz, day.String()).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count mentees: %w", err)
	}
	return count, nil
}

// MenteeCountsForRotation returns mentee counts per mentor on day.
func (r *MentorshipRepository) MenteeCountsForRotation(ctx context.Context, day shared.Day) (map[shared.TelegramID]int, error) {
	query := `
		SELECT mentor_id, COUNT(*) FROM pairs
		WHERE (created_at AT TIME ZONE $1)::date = $2::date
		GROUP BY mentor_id
	`

	rows, err := r.conn.q(ctx).Query(ctx, query, r.tz, day.String())
	if err != nil {
		return nil, fmt.Errorf("failed to count mentees per mentor: %w", err)
	}
	defer rows.Close()

	counts := make(map[shared.TelegramID]int)
	for rows.Next() {
		var (
			mentorID int64
			count    int
		)
		if err := rows.Scan(&mentorID, &count); err != nil {
			return nil, fmt.Errorf("failed to scan mentee count: %w", err)
		}
		counts[shared.TelegramID(mentorID)] = count
	}

	return counts, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Feedback
// ─────────────────────────────────────────────────────────────────────────────

// CreateFeedback appends a feedback row and fills its ID.
func (r *MentorshipRepository) CreateFeedback(ctx context.Context, f *mentorship.Feedback) error {
	query := `
		INSERT INTO feedbacks (mentor_id, mentee_id, rate, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING id
	`

	err := r.conn.q(ctx).QueryRow(ctx, query,
		f.MentorID.Int64(),
		f.MenteeID.Int64(),
		f.Rating.Int(),
		f.CreatedAt,
	).Scan(&f.ID)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return shared.Wrap(shared.ErrUserNotFound, err)
		}
		return fmt.Errorf("failed to create feedback: %w", err)
	}
	return nil
}

// MentorRatings returns average ratings per mentor, best first.
func (r *MentorshipRepository) MentorRatings(ctx context.Context) ([]mentorship.RatingSummary, error) {
	query := `
		SELECT mentor_id, COUNT(*), AVG(rate)::float8
		FROM feedbacks
		GROUP BY mentor_id
		ORDER BY AVG(rate) DESC, mentor_id
	`

	rows, err := r.conn.q(ctx).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query mentor ratings: %w", err)
	}
	defer rows.Close()

	var out []mentorship.RatingSummary
	for rows.Next() {
		var (
			s        mentorship.RatingSummary
			mentorID int64
		)
		if err := rows.Scan(&mentorID, &s.Count, &s.Average); err != nil {
			return nil, fmt.Errorf("failed to scan mentor rating: %w", err)
		}
		s.MentorID = shared.TelegramID(mentorID)
		out = append(out, s)
	}

	return out, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func scanPair(row pgx.Row) (*mentorship.Pair, error) {
	var (
		p                  mentorship.Pair
		mentorID, menteeID int64
	)
	if err := row.Scan(&p.ID, &mentorID, &menteeID, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.MentorID = shared.TelegramID(mentorID)
	p.MenteeID = shared.TelegramID(menteeID)
	return &p, nil
}

func collectPairs(rows pgx.Rows) ([]*mentorship.Pair, error) {
	defer rows.Close()

	var pairs []*mentorship.Pair
	for rows.Next() {
		p, err := scanPair(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pair: %w", err)
		}
		pairs = append(pairs, p)
	}

	return pairs, rows.Err()
}
