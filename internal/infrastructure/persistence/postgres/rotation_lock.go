package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/alem-hub/kata-mentor-bot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROTATION LOCK
// ══════════════════════════════════════════════════════════════════════════════

// rotationLockKey is the session advisory lock taken around rotation
// changes when Redis is not configured.
const rotationLockKey = 0x6b6d72 // "kmr"

// lockSession is a pooled connection held for the lifetime of the lock.
type lockSession interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Release()
}

// RotationLock implements command.Locker with pg_advisory_lock, so the bot,
// the worker and mentorctl serialize rotations through the shared database.
type RotationLock struct {
	acquire func(ctx context.Context) (lockSession, error)
	key     int64
	logger  *slog.Logger
}

// NewRotationLock creates a lock on conn. A nil logger falls back to
// slog.Default.
func NewRotationLock(conn *Connection, log *slog.Logger) *RotationLock {
	if log == nil {
		log = slog.Default()
	}
	return &RotationLock{
		acquire: func(ctx context.Context) (lockSession, error) {
			if conn.closed.Load() {
				return nil, ErrConnectionClosed
			}
			pc, err := conn.pool.Acquire(ctx)
			if err != nil {
				return nil, err
			}
			return pc, nil
		},
		key:    rotationLockKey,
		logger: log.With(logger.Component("rotation_lock")),
	}
}

// Lock blocks until the advisory lock is held or ctx is done. The lock
// belongs to one pooled session, which stays checked out until unlock.
func (l *RotationLock) Lock(ctx context.Context) (func(), error) {
	sess, err := l.acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: acquire lock session: %w", err)
	}
	if _, err := sess.Exec(ctx, `SELECT pg_advisory_lock($1)`, l.key); err != nil {
		sess.Release()
		return nil, fmt.Errorf("postgres: advisory lock %d: %w", l.key, err)
	}
	l.logger.Debug("lock acquired", "key", l.key)
	return func() { l.release(sess) }, nil
}

func (l *RotationLock) release(sess lockSession) {
	// The caller's context may already be cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	// An unlock fails on a broken connection, which the pool drops on
	// Release. Closing the session frees its locks.
	if _, err := sess.Exec(ctx, `SELECT pg_advisory_unlock($1)`, l.key); err != nil {
		l.logger.Warn("lock release failed", "key", l.key, logger.Err(err))
	}
	sess.Release()
}
