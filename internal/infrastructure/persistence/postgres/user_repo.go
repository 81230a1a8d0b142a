package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/kata-mentor-bot/internal/domain/member"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// USER REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// UserRepository implements member.Repository for PostgreSQL.
type UserRepository struct {
	conn *Connection
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(conn *Connection) *UserRepository {
	return &UserRepository{conn: conn}
}

const userColumns = `tg_id, tg_username, cw_username, is_mentor, created_at, updated_at`

// Create creates a new user.
func (r *UserRepository) Create(ctx context.Context, u *member.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.conn.q(ctx).Exec(ctx, query,
		u.TelegramID.Int64(),
		u.TelegramUsername,
		u.CodewarsUsername.String(),
		u.IsMentor,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.Wrap(shared.ErrUserExists, err)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// Update saves username, handle and mentor flag.
func (r *UserRepository) Update(ctx context.Context, u *member.User) error {
	query := `
		UPDATE users SET
			tg_username = $1,
			cw_username = $2,
			is_mentor = $3,
			updated_at = $4
		WHERE tg_id = $5
	`

	result, err := r.conn.q(ctx).Exec(ctx, query,
		u.TelegramUsername,
		u.CodewarsUsername.String(),
		u.IsMentor,
		u.UpdatedAt,
		u.TelegramID.Int64(),
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	if result.RowsAffected() == 0 {
		return shared.ErrUserNotFound
	}

	return nil
}

// GetByTelegramID returns a user by Telegram ID.
func (r *UserRepository) GetByTelegramID(ctx context.Context, id shared.TelegramID) (*member.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE tg_id = $1`

	u, err := scanUser(r.conn.q(ctx).QueryRow(ctx, query, id.Int64()))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// List returns users in registration order.
func (r *UserRepository) List(ctx context.Context, filter member.Filter) ([]*member.User, error) {
	query := `SELECT ` + userColumns + ` FROM users` + filterClause(filter) + ` ORDER BY created_at, tg_id`

	rows, err := r.conn.q(ctx).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*member.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

// Count returns the number of users matching the filter.
func (r *UserRepository) Count(ctx context.Context, filter member.Filter) (int, error) {
	var count int
	if err := r.conn.q(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM users`+filterClause(filter)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

// filterClause builds a WHERE clause from constant conditions only.
func filterClause(f member.Filter) string {
	var conds []string

	switch f.Role {
	case member.RoleMentor:
		conds = append(conds, "is_mentor")
	case member.RoleMentee:
		conds = append(conds, "NOT is_mentor")
	}
	if f.AuthorizedOnly {
		conds = append(conds, "cw_username <> ''")
	}

	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func scanUser(row pgx.Row) (*member.User, error) {
	var (
		u        member.User
		id       int64
		cwHandle string
	)

	err := row.Scan(&id, &u.TelegramUsername, &cwHandle, &u.IsMentor, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}

	u.TelegramID = shared.TelegramID(id)
	u.CodewarsUsername = shared.CodewarsHandle(cwHandle)
	return &u, nil
}
