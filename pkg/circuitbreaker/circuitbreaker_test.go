package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("codewars is down")

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func fail(context.Context) error    { return errDown }
func succeed(context.Context) error { return nil }

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)}
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	var transitions []State
	cb := New(Config{
		Name:             "codewars",
		FailureThreshold: 2,
		OnStateChange:    func(_ string, _, to State) { transitions = append(transitions, to) },
	})
	ctx := context.Background()

	assert.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	assert.NoError(t, cb.Execute(ctx, succeed))
	assert.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	assert.Equal(t, StateClosed, cb.State(), "a success resets the streak")

	assert.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
	assert.Equal(t, []State{StateOpen}, transitions)

	snap := cb.Snapshot()
	assert.Equal(t, "codewars", snap.Name)
	assert.Equal(t, 1, snap.Counts.Rejected)
	assert.Equal(t, 3, snap.Counts.Failures)
	assert.False(t, snap.RetryAt.IsZero())
}

func TestBreaker_HalfOpenRecovers(t *testing.T) {
	clock := newClock()
	cb := New(Config{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		OpenTimeout:      time.Minute,
		Now:              clock.Now,
	})
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	require.Equal(t, StateOpen, cb.State())
	assert.Equal(t, clock.now.Add(time.Minute), cb.Snapshot().RetryAt)

	clock.now = clock.now.Add(time.Minute)
	assert.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateHalfOpen, cb.State())
	assert.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := newClock()
	cb := New(Config{FailureThreshold: 1, OpenTimeout: time.Second, Now: clock.Now})
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	clock.now = clock.now.Add(time.Second)
	_ = cb.Execute(ctx, fail)

	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(ctx, succeed), ErrOpen)
}

func TestBreaker_ProbeLimit(t *testing.T) {
	clock := newClock()
	cb := New(Config{FailureThreshold: 1, OpenTimeout: time.Second, HalfOpenProbes: 1, Now: clock.Now})
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	clock.now = clock.now.Add(time.Second)

	inside := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(ctx, func(context.Context) error {
			close(inside)
			time.Sleep(20 * time.Millisecond)
			return nil
		})
	}()
	<-inside

	assert.ErrorIs(t, cb.Execute(ctx, succeed), ErrProbeLimit)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreaker_IsFailureFilter(t *testing.T) {
	notFound := errors.New("user not found")
	cb := New(Config{
		FailureThreshold: 1,
		IsFailure:        func(err error) bool { return !errors.Is(err, notFound) },
	})

	_ = cb.Execute(context.Background(), func(context.Context) error { return notFound })
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 1, cb.Snapshot().Counts.Successes)
}

func TestBreaker_CancelledContextIsNotAFailure(t *testing.T) {
	cb := New(Config{FailureThreshold: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := cb.Execute(ctx, func(ctx context.Context) error { return ctx.Err() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}
