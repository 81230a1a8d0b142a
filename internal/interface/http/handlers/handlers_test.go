package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/kata-mentor-bot/pkg/logger"
)

func TestWrap_FirstIsOutermost(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Wrap(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { order = append(order, "handler") }),
		mark("a"), mark("b"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"a", "b", "handler"}, order)
}

func TestObserve_RecoversPanic(t *testing.T) {
	h := Wrap(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }),
		WithRequestID, Observe(logger.Discard()))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestObserve_KeepsWrittenStatus(t *testing.T) {
	h := Observe(logger.Discard())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		panic("after write")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestReadinessChecker_Check(t *testing.T) {
	c := NewReadinessChecker("v1")
	assert.True(t, c.Check(context.Background()).Ready)

	c.AddCheck("postgres", func(context.Context) error { return nil })
	c.AddCheck("redis", func(context.Context) error { return errors.New("refused") })
	c.AddCheck("codewars", func(context.Context) error { return errors.New("timeout") })

	status := c.Check(context.Background())
	assert.False(t, status.Ready)
	assert.Equal(t, "failed checks: codewars, redis", status.Message)
	assert.True(t, status.Checks["postgres"].Healthy)
	assert.Equal(t, "refused", status.Checks["redis"].Error)
	assert.Equal(t, "v1", status.Version)
}

func TestReadinessChecker_TimesOutSlowChecks(t *testing.T) {
	c := NewReadinessChecker("")
	c.SetTimeout(10 * time.Millisecond)
	c.AddCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	status := c.Check(context.Background())
	require.Contains(t, status.Checks, "slow")
	assert.False(t, status.Checks["slow"].Healthy)
	assert.Equal(t, context.DeadlineExceeded.Error(), status.Checks["slow"].Error)
}

func TestReadinessChecker_CoalescesConcurrentProbes(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	c := NewReadinessChecker("")
	c.AddCheck("db", func(context.Context) error {
		calls.Add(1)
		<-release
		return nil
	})

	results := make(chan HealthStatus, 2)
	go func() { results <- c.Check(context.Background()) }()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	go func() { results <- c.Check(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	close(release)

	assert.True(t, (<-results).Ready)
	assert.True(t, (<-results).Ready)
	assert.Equal(t, int32(1), calls.Load())
}
