package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/alem-hub/kata-mentor-bot/pkg/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestLimiter(t *testing.T, config RateLimitConfig) (*RateLimiter, *time.Time) {
	t.Helper()
	rl := NewRateLimiter(config)
	t.Cleanup(rl.Stop)

	now := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestRateLimiter_BurstThenLimited(t *testing.T) {
	rl, _ := newTestLimiter(t, RateLimitConfig{RequestsPerMinute: 60, BurstSize: 2})

	assert.True(t, rl.Check(1).Allowed)
	assert.True(t, rl.Check(1).Allowed)

	res := rl.Check(1)
	assert.False(t, res.Allowed)
	assert.False(t, res.IsBanned)
	assert.Equal(t, time.Second, res.RetryAfter)

	// Other users have their own bucket.
	assert.True(t, rl.Check(2).Allowed)
}

func TestRateLimiter_Refills(t *testing.T) {
	rl, now := newTestLimiter(t, RateLimitConfig{RequestsPerMinute: 60, BurstSize: 1})

	require.True(t, rl.Check(1).Allowed)
	require.False(t, rl.Check(1).Allowed)

	*now = now.Add(time.Second)
	assert.True(t, rl.Check(1).Allowed)
}

func TestRateLimiter_BansRepeatOffenders(t *testing.T) {
	rl, now := newTestLimiter(t, RateLimitConfig{
		RequestsPerMinute: 60,
		BurstSize:         1,
		BanThreshold:      2,
		BanDuration:       time.Minute,
	})

	require.True(t, rl.Check(1).Allowed)
	require.False(t, rl.Check(1).IsBanned)

	res := rl.Check(1)
	assert.True(t, res.IsBanned)
	assert.Equal(t, time.Minute, res.RetryAfter)

	*now = now.Add(30 * time.Second)
	assert.True(t, rl.Check(1).IsBanned)

	*now = now.Add(31 * time.Second)
	assert.True(t, rl.Check(1).Allowed)
}

func TestRateLimiter_Whitelist(t *testing.T) {
	rl, _ := newTestLimiter(t, RateLimitConfig{
		RequestsPerMinute: 60,
		BurstSize:         1,
		Whitelist:         map[int64]bool{7: true},
	})

	for i := 0; i < 10; i++ {
		assert.True(t, rl.Check(7).Allowed)
	}
}

func TestRateLimiter_CleanupDropsIdle(t *testing.T) {
	rl, now := newTestLimiter(t, RateLimitConfig{RequestsPerMinute: 60, BurstSize: 1, CleanupInterval: time.Minute})

	rl.Check(1)
	*now = now.Add(2 * time.Minute)
	rl.cleanup()

	_, ok := rl.entries.Load(int64(1))
	assert.False(t, ok)
}

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name    string
		admins  []int64
		user    int64
		command string
		want    bool
	}{
		{name: "no admins configured", user: 5, command: "shuffle", want: true},
		{name: "admin", admins: []int64{1}, user: 1, command: "shuffle", want: true},
		{name: "non admin", admins: []int64{1}, user: 5, command: "reshuffle", want: false},
		{name: "public command", admins: []int64{1}, user: 5, command: "pairs", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewAuthMiddleware(AuthConfig{AdminIDs: tt.admins})
			assert.Equal(t, tt.want, m.Allowed(tt.user, tt.command))
		})
	}
}

type fakeRecorder struct {
	mu       sync.Mutex
	active   float64
	statuses []string
	panics   int
}

func (r *fakeRecorder) ObserveCommand(_, status string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func (r *fakeRecorder) AddActive(delta float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active += delta
}

func (r *fakeRecorder) PanicRecovered() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.panics++
}

func TestMetricsMiddleware(t *testing.T) {
	rec := &fakeRecorder{}
	m := NewMetricsMiddleware(rec)

	rc := m.Start("pairs")
	assert.Equal(t, float64(1), rec.active)

	rc.EndWithError(errors.New("boom"))
	rc.End(StatusOK)

	assert.Equal(t, float64(0), rec.active)
	assert.Equal(t, []string{StatusError}, rec.statuses)

	// A nil recorder is a no-op.
	NewMetricsMiddleware(nil).Start("pairs").End(StatusOK)
}

func TestRecoverer_Guard(t *testing.T) {
	rec := &fakeRecorder{}
	var seen *PanicError
	r := NewRecoverer(RecovererConfig{
		Counter: rec,
		Logger:  logger.Discard(),
		OnPanic: func(_ context.Context, p *PanicError) { seen = p },
	})

	ctx := ContextWithTelegramID(context.Background(), 42)
	err := r.Guard(ctx, "shuffle", func() error {
		panic("nil map")
	})
	var p *PanicError
	require.ErrorAs(t, err, &p)
	assert.Equal(t, 1, rec.panics)
	require.NotNil(t, seen)
	assert.Equal(t, int64(42), seen.TelegramID)
	assert.Equal(t, "shuffle", seen.Route)
	assert.Equal(t, "nil map", seen.Value)
	assert.NotEmpty(t, seen.Stack)

	wantErr := errors.New("handler failed")
	err = r.Guard(ctx, "pairs", func() error { return wantErr })
	assert.Same(t, wantErr, err)
}

func TestRecoverer_PanicErrorUnwraps(t *testing.T) {
	cause := errors.New("index out of range")
	r := NewRecoverer(RecovererConfig{Logger: logger.Discard()})

	err := r.Guard(context.Background(), "stats", func() error { panic(cause) })
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "panic in stats")
}

func TestRecoverer_LogLimitStillCounts(t *testing.T) {
	rec := &fakeRecorder{}
	logged := 0
	r := NewRecoverer(RecovererConfig{
		LogsPerMinute: 1,
		Counter:       rec,
		Logger:        logger.Discard(),
		OnPanic:       func(context.Context, *PanicError) { logged++ },
	})

	for range 3 {
		_ = r.Guard(context.Background(), "pairs", func() error { panic("boom") })
	}
	assert.Equal(t, 3, rec.panics)
	assert.Equal(t, 1, logged)
}
