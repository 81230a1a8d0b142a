package middleware

import (
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// METRICS MIDDLEWARE
// Times every routed update and reports it to the metrics registry.
// ══════════════════════════════════════════════════════════════════════════════

// Route statuses.
const (
	StatusOK          = "ok"
	StatusError       = "error"
	StatusPanic       = "panic"
	StatusRateLimited = "rate_limited"
	StatusForbidden   = "forbidden"
)

// CommandRecorder receives per-route observations.
type CommandRecorder interface {
	ObserveCommand(command, status string, d time.Duration)
	AddActive(delta float64)
}

// MetricsMiddleware tracks in-flight and finished routes.
type MetricsMiddleware struct {
	recorder CommandRecorder
	now      func() time.Time
}

// NewMetricsMiddleware creates a new metrics middleware. A nil recorder
// makes every call a no-op.
func NewMetricsMiddleware(recorder CommandRecorder) *MetricsMiddleware {
	return &MetricsMiddleware{recorder: recorder, now: time.Now}
}

// RequestContext is one tracked route.
type RequestContext struct {
	// Command is the command name or callback prefix.
	Command string

	// StartTime is when the request started.
	StartTime time.Time

	middleware *MetricsMiddleware
	ended      bool
}

// Start begins tracking a route.
func (m *MetricsMiddleware) Start(command string) *RequestContext {
	if m.recorder != nil {
		m.recorder.AddActive(1)
	}
	return &RequestContext{Command: command, StartTime: m.now(), middleware: m}
}

// End records the route with status. Only the first call counts.
func (rc *RequestContext) End(status string) {
	if rc.ended {
		return
	}
	rc.ended = true

	m := rc.middleware
	if m.recorder == nil {
		return
	}
	m.recorder.AddActive(-1)
	m.recorder.ObserveCommand(rc.Command, status, m.now().Sub(rc.StartTime))
}

// EndWithError records StatusError for a non-nil err and StatusOK otherwise.
func (rc *RequestContext) EndWithError(err error) {
	if err != nil {
		rc.End(StatusError)
		return
	}
	rc.End(StatusOK)
}
