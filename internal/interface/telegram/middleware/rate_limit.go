package middleware

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER MIDDLEWARE
// Per-user token buckets. A user who keeps hitting the limit is banned for a
// while; a legitimate double tap is absorbed by the burst.
// ══════════════════════════════════════════════════════════════════════════════

// RateLimitConfig holds configuration for the rate limiter.
type RateLimitConfig struct {
	// RequestsPerMinute is the sustained number of requests per user.
	RequestsPerMinute int

	// BurstSize is the bucket capacity.
	BurstSize int

	// CleanupInterval is how often idle entries are dropped.
	CleanupInterval time.Duration

	// BanDuration is how long a repeat offender is ignored.
	BanDuration time.Duration

	// BanThreshold is the number of violations within BanDuration that
	// triggers a ban. Zero disables bans.
	BanThreshold int

	// Whitelist holds users exempt from rate limiting.
	Whitelist map[int64]bool
}

// DefaultRateLimitConfig returns sensible defaults for rate limiting.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 20,
		BurstSize:         5,
		CleanupInterval:   5 * time.Minute,
		BanDuration:       10 * time.Minute,
		BanThreshold:      3,
	}
}

// RateLimiter implements per-user rate limiting.
type RateLimiter struct {
	config  RateLimitConfig
	limit   rate.Limit
	entries sync.Map // map[int64]*limiterEntry
	now     func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
}

type limiterEntry struct {
	mu            sync.Mutex
	limiter       *rate.Limiter
	lastSeen      time.Time
	violations    int
	lastViolation time.Time
	bannedUntil   time.Time
}

// NewRateLimiter creates a new rate limiter and starts its cleanup loop.
// Call Stop to release the loop.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	defaults := DefaultRateLimitConfig()
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = defaults.RequestsPerMinute
	}
	if config.BurstSize <= 0 {
		config.BurstSize = defaults.BurstSize
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = defaults.CleanupInterval
	}

	rl := &RateLimiter{
		config: config,
		limit:  rate.Limit(float64(config.RequestsPerMinute) / 60),
		now:    time.Now,
		stopCh: make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// RateLimitResult represents the result of a rate limit check.
type RateLimitResult struct {
	// Allowed indicates if the request is allowed.
	Allowed bool

	// RetryAfter is how long the user should wait before retrying.
	RetryAfter time.Duration

	// IsBanned indicates if the user is temporarily banned.
	IsBanned bool
}

// Check consumes one token of telegramID's bucket.
func (rl *RateLimiter) Check(telegramID int64) RateLimitResult {
	if rl.config.Whitelist[telegramID] {
		return RateLimitResult{Allowed: true}
	}

	now := rl.now()
	e := rl.entry(telegramID, now)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.lastSeen = now
	if now.Before(e.bannedUntil) {
		return RateLimitResult{IsBanned: true, RetryAfter: e.bannedUntil.Sub(now)}
	}

	r := e.limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	if delay == 0 {
		return RateLimitResult{Allowed: true}
	}
	r.CancelAt(now)
	return rl.violate(e, now, delay)
}

func (rl *RateLimiter) violate(e *limiterEntry, now time.Time, delay time.Duration) RateLimitResult {
	if rl.config.BanThreshold <= 0 {
		return RateLimitResult{RetryAfter: delay}
	}

	if now.Sub(e.lastViolation) > rl.config.BanDuration {
		e.violations = 0
	}
	e.violations++
	e.lastViolation = now

	if e.violations >= rl.config.BanThreshold {
		e.violations = 0
		e.bannedUntil = now.Add(rl.config.BanDuration)
		return RateLimitResult{IsBanned: true, RetryAfter: rl.config.BanDuration}
	}
	return RateLimitResult{RetryAfter: delay}
}

func (rl *RateLimiter) entry(telegramID int64, now time.Time) *limiterEntry {
	if v, ok := rl.entries.Load(telegramID); ok {
		return v.(*limiterEntry)
	}
	fresh := &limiterEntry{
		limiter:  rate.NewLimiter(rl.limit, rl.config.BurstSize),
		lastSeen: now,
	}
	v, _ := rl.entries.LoadOrStore(telegramID, fresh)
	return v.(*limiterEntry)
}

// Reset forgets the state of telegramID.
func (rl *RateLimiter) Reset(telegramID int64) {
	rl.entries.Delete(telegramID)
}

// Stop stops the cleanup loop.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup drops entries idle for longer than the cleanup interval and not banned.
func (rl *RateLimiter) cleanup() {
	now := rl.now()
	rl.entries.Range(func(key, value interface{}) bool {
		e := value.(*limiterEntry)
		e.mu.Lock()
		idle := now.Sub(e.lastSeen) > rl.config.CleanupInterval && now.After(e.bannedUntil)
		e.mu.Unlock()
		if idle {
			rl.entries.Delete(key)
		}
		return true
	})
}
