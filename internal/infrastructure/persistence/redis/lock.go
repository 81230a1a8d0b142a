package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROTATION LOCK
// Распределённая блокировка: бот и worker не строят ротацию одновременно.
// Владелец определяется случайным токеном, снять блокировку может только он.
// ══════════════════════════════════════════════════════════════════════════════

// ErrLockNotAcquired is returned when the wait for the lock is cancelled.
var ErrLockNotAcquired = errors.New("lock: not acquired")

// DefaultLockTTL bounds how long a crashed owner keeps the lock.
const DefaultLockTTL = 2 * time.Minute

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RotationLockConfig contains lock settings.
type RotationLockConfig struct {
	// Resource is the locked resource name.
	Resource string

	// TTL bounds how long a crashed owner can hold the lock.
	TTL time.Duration

	// RetryInterval is the pause between acquisition attempts.
	RetryInterval time.Duration

	Logger *slog.Logger
}

// RotationLock implements command.Locker on top of SET NX.
type RotationLock struct {
	c      *Client
	key    string
	config RotationLockConfig
	logger *slog.Logger
}

// NewRotationLock creates a lock.
func NewRotationLock(c *Client, config RotationLockConfig) *RotationLock {
	if config.Resource == "" {
		config.Resource = "rotation"
	}
	if config.TTL <= 0 {
		config.TTL = DefaultLockTTL
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = 100 * time.Millisecond
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &RotationLock{
		c:      c,
		key:    c.key("lock", config.Resource),
		config: config,
		logger: config.Logger.With("component", "rotation_lock"),
	}
}

// Lock blocks until the lock is acquired or ctx is done.
func (l *RotationLock) Lock(ctx context.Context) (func(), error) {
	token := uuid.NewString()

	ticker := time.NewTicker(l.config.RetryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.c.rdb.SetNX(ctx, l.key, token, l.config.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", l.key, err)
		}
		if ok {
			l.logger.Debug("lock acquired", "key", l.key, "token", token)
			return func() { l.release(token) }, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrLockNotAcquired, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *RotationLock) release(token string) {
	// The caller's context may already be cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	n, err := releaseScript.Run(ctx, l.c.rdb, []string{l.key}, token).Int()
	if err != nil {
		l.logger.Warn("lock release failed", "key", l.key, "error", err)
		return
	}
	if n == 0 {
		l.logger.Warn("lock expired before release", "key", l.key, "ttl", l.config.TTL)
	}
}
