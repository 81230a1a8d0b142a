// Package retry repeats calls to the Codewars and Telegram APIs with
// exponential backoff. Only errors marked with Retryable are repeated.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// RETRYABLE ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// RetryableError marks a transient failure: network errors, 429 and 5xx.
type RetryableError struct {
	Err error

	// After is the delay the server asked for (Retry-After). Zero means
	// the backoff decides.
	After time.Duration
}

func (e *RetryableError) Error() string { return e.Err.Error() }

func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable marks err as transient. Nil stays nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// RetryableAfter marks err as transient with a server-requested delay.
func RetryableAfter(err error, after time.Duration) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err, After: after}
}

// IsRetryable reports whether err or anything it wraps is a RetryableError.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// ══════════════════════════════════════════════════════════════════════════════
// POLICY
// ══════════════════════════════════════════════════════════════════════════════

// Policy describes how one API is retried.
type Policy struct {
	// Attempts counts the first call. Values below 1 mean 1.
	Attempts int

	// BaseDelay is the wait before the second attempt. Each further wait
	// is Factor times longer, capped at MaxDelay.
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Factor    float64

	// Jitter spreads each wait by up to ±Jitter of its length.
	Jitter float64

	// OnRetry is called before every wait.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// CodewarsPolicy is used for the public Codewars API. It is rate limited,
// so waits are long and few.
func CodewarsPolicy() Policy {
	return Policy{
		Attempts:  3,
		BaseDelay: 500 * time.Millisecond,
		MaxDelay:  10 * time.Second,
		Factor:    2,
		Jitter:    0.2,
	}
}

// TelegramPolicy is used for Bot API calls other than getUpdates.
func TelegramPolicy() Policy {
	return Policy{
		Attempts:  4,
		BaseDelay: 200 * time.Millisecond,
		MaxDelay:  5 * time.Second,
		Factor:    1.5,
		Jitter:    0.1,
	}
}

// Backoff returns the wait before attempt+1, without jitter. Zero MaxDelay
// leaves the growth uncapped.
func (p Policy) Backoff(attempt int) time.Duration {
	wait := p.BaseDelay
	for i := 1; i < attempt && (p.MaxDelay <= 0 || wait < p.MaxDelay); i++ {
		wait = time.Duration(float64(wait) * p.Factor)
	}
	if p.MaxDelay > 0 && wait > p.MaxDelay {
		wait = p.MaxDelay
	}
	return wait
}

// ══════════════════════════════════════════════════════════════════════════════
// RETRIER
// ══════════════════════════════════════════════════════════════════════════════

// Retrier runs calls under a Policy.
type Retrier struct {
	policy Policy
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() float64
}

// New creates a Retrier. Factor below 1 is treated as 1.
func New(policy Policy) *Retrier {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	if policy.Factor < 1 {
		policy.Factor = 1
	}
	return &Retrier{policy: policy, sleep: sleepContext, jitter: rand.Float64}
}

// Policy returns the policy in use.
func (r *Retrier) Policy() Policy { return r.policy }

// Do calls fn until it succeeds, returns an error not marked Retryable,
// runs out of attempts or ctx ends. The returned error is the last error
// from fn with the Retryable marker removed.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) || attempt >= r.policy.Attempts {
			return strip(err)
		}

		wait := r.wait(attempt, err)
		if r.policy.OnRetry != nil {
			r.policy.OnRetry(attempt, err, wait)
		}
		if r.sleep(ctx, wait) != nil {
			return strip(err)
		}
	}
}

func (r *Retrier) wait(attempt int, err error) time.Duration {
	var re *RetryableError
	if errors.As(err, &re) && re.After > 0 {
		if r.policy.MaxDelay > 0 && re.After > r.policy.MaxDelay {
			return r.policy.MaxDelay
		}
		return re.After
	}

	wait := r.policy.Backoff(attempt)
	if r.policy.Jitter > 0 {
		spread := float64(wait) * r.policy.Jitter * (2*r.jitter() - 1)
		wait += time.Duration(spread)
	}
	return max(wait, 0)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// strip removes a top-level Retryable marker.
func strip(err error) error {
	if re, ok := err.(*RetryableError); ok {
		return re.Err
	}
	return err
}
