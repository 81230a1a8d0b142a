package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/kata-mentor-bot/internal/infrastructure/metrics"
	"github.com/alem-hub/kata-mentor-bot/internal/interface/http/handlers"
	"github.com/alem-hub/kata-mentor-bot/pkg/logger"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func newTestServer(t *testing.T, readiness *handlers.ReadinessChecker, gatherer prometheus.Gatherer) *httptest.Server {
	t.Helper()
	s := NewServer(Config{}, Dependencies{Readiness: readiness, Gatherer: gatherer, Logger: logger.Discard()})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestLive(t *testing.T) {
	readiness := handlers.NewReadinessChecker("test")
	readiness.AddCheck("postgres", handlers.PingCheck(pinger{err: errors.New("down")}))
	ts := newTestServer(t, readiness, nil)

	resp, _ := get(t, ts.URL+"/health/live")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	assert.NotEmpty(t, resp.Header.Get(handlers.RequestIDHeader))
}

func TestReady(t *testing.T) {
	readiness := handlers.NewReadinessChecker("test")
	readiness.AddCheck("postgres", handlers.PingCheck(pinger{}))
	readiness.AddCheck("redis", handlers.PingCheck(pinger{}))
	ts := newTestServer(t, readiness, nil)

	resp, body := get(t, ts.URL+"/health/ready")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var status handlers.HealthStatus
	require.NoError(t, json.Unmarshal(body, &status))
	assert.True(t, status.Ready)
	assert.Len(t, status.Checks, 2)
	assert.Equal(t, "test", status.Version)
}

func TestReady_FailedDependency(t *testing.T) {
	readiness := handlers.NewReadinessChecker("test")
	readiness.AddCheck("postgres", handlers.PingCheck(pinger{}))
	readiness.AddCheck("redis", handlers.PingCheck(pinger{err: errors.New("connection refused")}))
	ts := newTestServer(t, readiness, nil)

	resp, body := get(t, ts.URL+"/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var status handlers.HealthStatus
	require.NoError(t, json.Unmarshal(body, &status))
	assert.False(t, status.Ready)
	assert.Equal(t, "failed checks: redis", status.Message)
	assert.Equal(t, "connection refused", status.Checks["redis"].Error)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.ObserveCommand("pairs", "ok", 0)
	ts := newTestServer(t, nil, reg)

	resp, body := get(t, ts.URL+"/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "kata_mentor_bot_commands_total")
}

func TestMetricsDisabled(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	resp, _ := get(t, ts.URL+"/metrics")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRequestIDEchoed(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/health/live", nil)
	require.NoError(t, err)
	req.Header.Set(handlers.RequestIDHeader, "abc")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "abc", resp.Header.Get(handlers.RequestIDHeader))
}

func TestRunServesUntilCancelled(t *testing.T) {
	s := NewServer(Config{Host: "127.0.0.1", Port: 0}, Dependencies{Logger: logger.Discard()})
	s.srv.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, s.running.Load, time.Second, time.Millisecond)
	assert.ErrorIs(t, s.Run(ctx), ErrAlreadyRunning)

	cancel()
	require.NoError(t, <-done)
}
