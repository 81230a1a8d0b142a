package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errFlaky = errors.New("503 from codewars")

// recording returns a Retrier that records waits instead of sleeping.
func recording(p Policy) (*Retrier, *[]time.Duration) {
	var waits []time.Duration
	r := New(p)
	r.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return ctx.Err()
	}
	return r, &waits
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	r, waits := recording(Policy{Attempts: 3, BaseDelay: 10 * time.Millisecond, Factor: 2})

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(errFlaky)
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, *waits)
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	r, waits := recording(Policy{Attempts: 5})

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return errFlaky
	})

	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *waits)
}

func TestDo_ExhaustedReturnsUnwrapped(t *testing.T) {
	var retried []int
	r, _ := recording(Policy{
		Attempts: 2,
		OnRetry:  func(attempt int, _ error, _ time.Duration) { retried = append(retried, attempt) },
	})

	err := r.Do(context.Background(), func(context.Context) error {
		return Retryable(errFlaky)
	})

	assert.Same(t, errFlaky, err)
	assert.Equal(t, []int{1}, retried)
}

func TestDo_WrappedMarkerIsKept(t *testing.T) {
	r, _ := recording(Policy{Attempts: 1})

	err := r.Do(context.Background(), func(context.Context) error {
		return fmt.Errorf("fetch page: %w", Retryable(errFlaky))
	})

	assert.True(t, IsRetryable(err))
	assert.ErrorIs(t, err, errFlaky)
}

func TestDo_RetryAfterIsCapped(t *testing.T) {
	r, waits := recording(Policy{Attempts: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Second})

	_ = r.Do(context.Background(), func(context.Context) error {
		return RetryableAfter(errFlaky, time.Hour)
	})

	assert.Equal(t, []time.Duration{5 * time.Second}, *waits)
}

func TestDo_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := New(CodewarsPolicy()).Do(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestDo_CancelledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := New(Policy{Attempts: 5, BaseDelay: time.Hour})

	calls := 0
	err := r.Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return Retryable(errFlaky)
	})

	assert.Same(t, errFlaky, err)
	assert.Equal(t, 1, calls)
}

func TestPolicy_Backoff(t *testing.T) {
	p := CodewarsPolicy()

	assert.Equal(t, 500*time.Millisecond, p.Backoff(1))
	assert.Equal(t, time.Second, p.Backoff(2))
	assert.Equal(t, 2*time.Second, p.Backoff(3))
	assert.Equal(t, 10*time.Second, p.Backoff(20))
}

func TestPolicy_BackoffUncapped(t *testing.T) {
	p := Policy{BaseDelay: 10 * time.Millisecond, Factor: 2}

	assert.Equal(t, 10*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 20*time.Millisecond, p.Backoff(2))
	assert.Equal(t, 40*time.Millisecond, p.Backoff(3))
	assert.Equal(t, 80*time.Millisecond, p.Backoff(4))
}

func TestWait_JitterStaysInRange(t *testing.T) {
	r := New(Policy{Attempts: 2, BaseDelay: time.Second, Jitter: 0.5})

	r.jitter = func() float64 { return 0 }
	assert.Equal(t, 500*time.Millisecond, r.wait(1, Retryable(errFlaky)))

	r.jitter = func() float64 { return 1 }
	assert.Equal(t, 1500*time.Millisecond, r.wait(1, Retryable(errFlaky)))
}
