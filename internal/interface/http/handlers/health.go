// Package handlers contains the readiness probe and HTTP middleware of the
// ops server.
package handlers

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// CheckFunc probes one dependency. nil means healthy.
type CheckFunc func(ctx context.Context) error

// Pinger is implemented by the Postgres connection and the Redis client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck probes p.Ping.
func PingCheck(p Pinger) CheckFunc { return p.Ping }

// CheckResult is one dependency in HealthStatus.
type CheckResult struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency"`
}

// HealthStatus is the /health/ready body.
type HealthStatus struct {
	Ready     bool                   `json:"ready"`
	Message   string                 `json:"message,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Uptime    string                 `json:"uptime"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// READINESS
// ══════════════════════════════════════════════════════════════════════════════

// ReadinessChecker runs dependency checks concurrently. Probes arriving
// while a check round is in flight share its result.
type ReadinessChecker struct {
	version string
	started time.Time
	timeout time.Duration

	mu     sync.RWMutex
	checks map[string]CheckFunc

	round singleflight.Group
}

// NewReadinessChecker creates a checker without checks, which is always
// ready. The in-memory deployment runs like that.
func NewReadinessChecker(version string) *ReadinessChecker {
	return &ReadinessChecker{
		version: version,
		started: time.Now(),
		timeout: 3 * time.Second,
		checks:  make(map[string]CheckFunc),
	}
}

// SetTimeout bounds each check. Non-positive values are ignored.
func (c *ReadinessChecker) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

// AddCheck registers check under name, replacing an earlier one.
func (c *ReadinessChecker) AddCheck(name string, check CheckFunc) {
	c.mu.Lock()
	c.checks[name] = check
	c.mu.Unlock()
}

// Uptime is the time since the checker was created.
func (c *ReadinessChecker) Uptime() time.Duration {
	return time.Since(c.started)
}

// Check runs every check and aggregates the results.
func (c *ReadinessChecker) Check(ctx context.Context) HealthStatus {
	v, _, _ := c.round.Do("ready", func() (any, error) {
		return c.run(context.WithoutCancel(ctx)), nil
	})
	return v.(HealthStatus)
}

func (c *ReadinessChecker) run(ctx context.Context) HealthStatus {
	c.mu.RLock()
	checks := maps.Clone(c.checks)
	c.mu.RUnlock()

	var (
		mu      sync.Mutex
		results = make(map[string]CheckResult, len(checks))
		g       errgroup.Group
	)
	for name, check := range checks {
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			start := time.Now()
			err := check(checkCtx)
			res := CheckResult{Healthy: err == nil, Latency: time.Since(start).Round(time.Millisecond).String()}
			if err != nil {
				res.Error = err.Error()
			}

			mu.Lock()
			results[name] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	status := HealthStatus{
		Ready:     true,
		Checks:    results,
		Uptime:    c.Uptime().Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
		Version:   c.version,
	}

	var failed []string
	for name, res := range results {
		if !res.Healthy {
			failed = append(failed, name)
		}
	}
	if len(failed) > 0 {
		slices.Sort(failed)
		status.Ready = false
		status.Message = "failed checks: " + strings.Join(failed, ", ")
	}
	return status
}
