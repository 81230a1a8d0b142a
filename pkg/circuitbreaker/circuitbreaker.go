// Package circuitbreaker stops calls to an external API (Codewars, Telegram)
// after repeated failures and lets a few probes through once the API has had
// time to recover.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the breaker position.
type State int

const (
	// StateClosed lets every call through.
	StateClosed State = iota
	// StateOpen rejects calls until OpenTimeout has passed.
	StateOpen
	// StateHalfOpen lets HalfOpenProbes calls through to test the API.
	StateHalfOpen
)

// String returns the state name used in logs and metrics labels.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	// ErrOpen is returned without calling the API while the breaker is open.
	ErrOpen = errors.New("circuit breaker is open")
	// ErrProbeLimit is returned when every half-open probe slot is taken.
	ErrProbeLimit = errors.New("circuit breaker probe limit reached")
)

// Config describes one breaker. Zero fields take the defaults below.
type Config struct {
	// Name labels the breaker in logs and metrics.
	Name string

	// FailureThreshold is the number of consecutive failures that opens
	// the breaker. Default 5.
	FailureThreshold int

	// SuccessThreshold is the number of successful probes that closes it
	// again. Default 1.
	SuccessThreshold int

	// OpenTimeout is how long the breaker stays open. Default 30s.
	OpenTimeout time.Duration

	// HalfOpenProbes is the number of concurrent probes. Default 1.
	HalfOpenProbes int

	// IsFailure filters errors that say nothing about API health, such as
	// a 404 for an unknown user. Nil counts every error.
	IsFailure func(error) bool

	// OnStateChange is called with the lock held; it must not call back
	// into the breaker.
	OnStateChange func(name string, from, to State)

	// Now is the clock. Default time.Now.
	Now func() time.Time
}

func (c *Config) applyDefaults() {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 1
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 30 * time.Second
	}
	if c.HalfOpenProbes <= 0 {
		c.HalfOpenProbes = 1
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Counts are the call statistics since the breaker was created.
type Counts struct {
	Requests    int
	Successes   int
	Failures    int
	Rejected    int
	Consecutive int // failures while closed, successes while half-open
}

// Snapshot is a point-in-time view of the breaker.
type Snapshot struct {
	Name   string
	State  State
	Counts Counts

	// RetryAt is when an open breaker starts probing. Zero otherwise.
	RetryAt time.Time
}

// CircuitBreaker guards calls to one external API.
type CircuitBreaker struct {
	config Config

	mu       sync.Mutex
	state    State
	counts   Counts
	openedAt time.Time
	probes   int
}

// New creates a closed breaker.
func New(config Config) *CircuitBreaker {
	config.applyDefaults()
	return &CircuitBreaker{config: config}
}

// Execute calls fn unless the breaker rejects the call, and records the result.
// A cancelled context is not counted against the API.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.acquire(); err != nil {
		return err
	}

	err := fn(ctx)
	cb.release(ctx, err)
	return err
}

func (cb *CircuitBreaker) acquire() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.config.Now().Sub(cb.openedAt) < cb.config.OpenTimeout {
			cb.counts.Rejected++
			return ErrOpen
		}
		cb.transition(StateHalfOpen)
	}

	if cb.state == StateHalfOpen {
		if cb.probes >= cb.config.HalfOpenProbes {
			cb.counts.Rejected++
			return ErrProbeLimit
		}
		cb.probes++
	}
	return nil
}

func (cb *CircuitBreaker) release(ctx context.Context, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.counts.Requests++
	if cb.state == StateHalfOpen && cb.probes > 0 {
		cb.probes--
	}

	failed := err != nil && ctx.Err() == nil
	if failed && cb.config.IsFailure != nil {
		failed = cb.config.IsFailure(err)
	}

	if !failed {
		cb.counts.Successes++
		switch cb.state {
		case StateClosed:
			cb.counts.Consecutive = 0
		case StateHalfOpen:
			cb.counts.Consecutive++
			if cb.counts.Consecutive >= cb.config.SuccessThreshold {
				cb.transition(StateClosed)
			}
		}
		return
	}

	cb.counts.Failures++
	switch cb.state {
	case StateClosed:
		cb.counts.Consecutive++
		if cb.counts.Consecutive >= cb.config.FailureThreshold {
			cb.transition(StateOpen)
		}
	case StateHalfOpen:
		cb.transition(StateOpen)
	}
}

// transition must be called with the lock held.
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}

	cb.state = to
	cb.counts.Consecutive = 0
	cb.probes = 0
	if to == StateOpen {
		cb.openedAt = cb.config.Now()
	}

	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.config.Name, from, to)
	}
}

// State returns the current position.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Snapshot returns the state, counters and next probe time.
func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s := Snapshot{Name: cb.config.Name, State: cb.state, Counts: cb.counts}
	if cb.state == StateOpen {
		s.RetryAt = cb.openedAt.Add(cb.config.OpenTimeout)
	}
	return s
}

// Name returns the breaker label.
func (cb *CircuitBreaker) Name() string {
	return cb.config.Name
}
