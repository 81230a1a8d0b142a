package postgres

import (
	"context"
	"fmt"

	"github.com/alem-hub/kata-mentor-bot/internal/domain/kata"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// KATA REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// KataRepository implements kata.Repository for PostgreSQL.
type KataRepository struct {
	conn *Connection
}

// NewKataRepository creates a new KataRepository.
func NewKataRepository(conn *Connection) *KataRepository {
	return &KataRepository{conn: conn}
}

// UpsertKata inserts a catalog kata or refreshes its name and slug.
func (r *KataRepository) UpsertKata(ctx context.Context, k *kata.Kata) error {
	query := `
		INSERT INTO katas (id, name, slug)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			slug = EXCLUDED.slug
	`

	if _, err := r.conn.q(ctx).Exec(ctx, query, k.ID, k.Name, k.Slug); err != nil {
		return fmt.Errorf("failed to upsert kata: %w", err)
	}
	return nil
}

// GetKata returns a catalog kata.
func (r *KataRepository) GetKata(ctx context.Context, id string) (*kata.Kata, error) {
	var k kata.Kata
	err := r.conn.q(ctx).QueryRow(ctx, `SELECT id, name, slug FROM katas WHERE id = $1`, id).
		Scan(&k.ID, &k.Name, &k.Slug)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrKataNotFound
		}
		return nil, fmt.Errorf("failed to get kata: %w", err)
	}
	return &k, nil
}

// MarkSolved records the fact only for catalog katas; duplicates are skipped.
func (r *KataRepository) MarkSolved(ctx context.Context, userID shared.TelegramID, kataID string) (bool, error) {
	query := `
		INSERT INTO solved_katas (kata_id, user_id)
		SELECT id, $2 FROM katas WHERE id = $1
		ON CONFLICT (user_id, kata_id) DO NOTHING
	`

	result, err := r.conn.q(ctx).Exec(ctx, query, kataID, userID.Int64())
	if err != nil {
		return false, fmt.Errorf("failed to mark kata solved: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// CountSolved returns how many catalog katas the user has solved.
func (r *KataRepository) CountSolved(ctx context.Context, userID shared.TelegramID) (int, error) {
	var count int
	err := r.conn.q(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM solved_katas WHERE user_id = $1`, userID.Int64()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count solved katas: %w", err)
	}
	return count, nil
}

// Stats returns solved counts for users with at least one solved kata, most first.
func (r *KataRepository) Stats(ctx context.Context) ([]kata.UserStats, error) {
	query := `
		SELECT u.cw_username, COUNT(s.id) AS solved
		FROM users u
		JOIN solved_katas s ON s.user_id = u.tg_id
		WHERE u.cw_username <> ''
		GROUP BY u.tg_id, u.cw_username
		ORDER BY solved DESC, u.cw_username
	`

	rows, err := r.conn.q(ctx).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	defer rows.Close()

	var stats []kata.UserStats
	for rows.Next() {
		var (
			s      kata.UserStats
			handle string
		)
		if err := rows.Scan(&handle, &s.Solved); err != nil {
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}
		s.CodewarsUsername = shared.CodewarsHandle(handle)
		stats = append(stats, s)
	}

	return stats, rows.Err()
}

// Missing returns a page of catalog katas the user has not solved and their total.
func (r *KataRepository) Missing(ctx context.Context, userID shared.TelegramID, offset, limit int) ([]*kata.Kata, int, error) {
	query := `
		SELECT k.id, k.name, k.slug, COUNT(*) OVER () AS total
		FROM katas k
		WHERE NOT EXISTS (
			SELECT 1 FROM solved_katas s
			WHERE s.kata_id = k.id AND s.user_id = $1
		)
		ORDER BY k.name, k.id
		OFFSET $2 LIMIT $3
	`

	rows, err := r.conn.q(ctx).Query(ctx, query, userID.Int64(), offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query missing katas: %w", err)
	}
	defer rows.Close()

	var (
		katas []*kata.Kata
		total int
	)
	for rows.Next() {
		var k kata.Kata
		if err := rows.Scan(&k.ID, &k.Name, &k.Slug, &total); err != nil {
			return nil, 0, fmt.Errorf("failed to scan kata: %w", err)
		}
		katas = append(katas, &k)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	// An offset past the end yields no rows and no window total.
	if len(katas) == 0 && offset > 0 {
		countQuery := `
			SELECT COUNT(*) FROM katas k
			WHERE NOT EXISTS (
				SELECT 1 FROM solved_katas s
				WHERE s.kata_id = k.id AND s.user_id = $1
			)
		`
		if err := r.conn.q(ctx).QueryRow(ctx, countQuery, userID.Int64()).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("failed to count missing katas: %w", err)
		}
	}

	return katas, total, nil
}
