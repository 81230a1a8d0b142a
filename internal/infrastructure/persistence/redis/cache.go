// Package redis implements the Redis-backed infrastructure of the mentor bot.
//
// Key components:
//   - Client: the shared connection and key namespace
//   - ReportCache: JSON report cache with TTL
//   - RotationLock: distributed lock serializing rotation runs across processes
//   - ConversationStore: pending /authorize conversations with expiry
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss is returned by ReportCache.Get for an absent or expired report.
	ErrCacheMiss = errors.New("redis: cache miss")

	// ErrUnavailable wraps a failed initial ping.
	ErrUnavailable = errors.New("redis: unavailable")
)

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Options configures the connection. Zero values keep the go-redis defaults.
type Options struct {
	// URL is redis://[:password@]host:port/db.
	URL string

	// Namespace prefixes every key, so several bots can share one database.
	Namespace string

	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
}

func (o Options) redisOptions() (*redis.Options, error) {
	ro, err := redis.ParseURL(o.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if o.PoolSize > 0 {
		ro.PoolSize = o.PoolSize
	}
	if o.MinIdleConns > 0 {
		ro.MinIdleConns = o.MinIdleConns
	}
	if o.DialTimeout > 0 {
		ro.DialTimeout = o.DialTimeout
	}
	if o.ReadTimeout > 0 {
		ro.ReadTimeout = o.ReadTimeout
		ro.WriteTimeout = o.ReadTimeout
	}
	return ro, nil
}

// Client is the connection shared by the cache, the lock and conversations.
type Client struct {
	rdb *redis.Client
	ns  string
}

// Dial connects and pings.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	ro, err := opts.redisOptions()
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(ro)

	pingCtx, cancel := context.WithTimeout(ctx, ro.DialTimeout)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, ro.Addr, err)
	}
	return newClient(rdb, opts.Namespace), nil
}

func newClient(rdb *redis.Client, namespace string) *Client {
	if namespace != "" && !strings.HasSuffix(namespace, ":") {
		namespace += ":"
	}
	return &Client{rdb: rdb, ns: namespace}
}

// Close closes the pool.
func (c *Client) Close() error { return c.rdb.Close() }

// Ping is the readiness check.
func (c *Client) Ping(ctx context.Context) error { return c.rdb.Ping(ctx).Err() }

// key joins parts with ":" under the namespace.
func (c *Client) key(parts ...string) string {
	return c.ns + strings.Join(parts, ":")
}

// ══════════════════════════════════════════════════════════════════════════════
// REPORT CACHE
// ══════════════════════════════════════════════════════════════════════════════

// ReportCache implements query.ReportCache and the report invalidator.
// Reports are stored as JSON.
type ReportCache struct {
	c *Client
}

// NewReportCache creates a cache on c.
func NewReportCache(c *Client) *ReportCache {
	return &ReportCache{c: c}
}

// Get decodes the report stored under key into dest.
func (r *ReportCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := r.c.rdb.Get(ctx, r.c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return fmt.Errorf("get report %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decode report %s: %w", key, err)
	}
	return nil
}

// Set stores value for ttl. A zero ttl keeps the report until it is deleted.
func (r *ReportCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl < 0 {
		return fmt.Errorf("set report %s: negative ttl %s", key, ttl)
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode report %s: %w", key, err)
	}
	return r.c.rdb.Set(ctx, r.c.key(key), data, ttl).Err()
}

// Delete drops reports. Missing keys are ignored.
func (r *ReportCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.c.key(k)
	}
	return r.c.rdb.Unlink(ctx, full...).Err()
}
