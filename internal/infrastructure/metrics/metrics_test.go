package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/kata-mentor-bot/internal/domain/shared"
	"github.com/alem-hub/kata-mentor-bot/pkg/circuitbreaker"
)

func TestMetrics_DomainCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RotationCreated(3, 1, 2)
	m.RotationCreated(2, 0, 0)
	m.RotationDeleted(5)
	m.FeedbackRecorded(4)
	m.FeedbackRecorded(4)
	m.KatasSolved(7)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.rotationsCreated))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.pairsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fallbackPicks))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.skippedMentees))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.pairsDeleted))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.feedbackRatings.WithLabelValues("4")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.katasSolved))
}

func TestMetrics_CommandsAndJobs(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveCommand("pairs", "ok", 20*time.Millisecond)
	m.ObserveCommand("pairs", "error", time.Second)
	m.ObserveJob("daily_stats", time.Second, nil)
	m.ObserveJob("daily_stats", time.Second, errors.New("boom"))
	m.ObserveEventHandler(shared.EventRotationCreated, time.Millisecond, errors.New("boom"))
	m.ObserveSync(3, 1, time.Minute)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.commandsTotal.WithLabelValues("pairs", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("daily_stats", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventHandlerErrors.WithLabelValues(string(shared.EventRotationCreated))))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.syncRuns.WithLabelValues("ok")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNew_NilRegistererIsIsolated(t *testing.T) {
	assert.NotPanics(t, func() {
		New(nil)
		New(nil)
	})
}

func TestMetrics_ObserveCircuit(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveCircuit("codewars", circuitbreaker.StateClosed, circuitbreaker.StateOpen)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.circuitState.WithLabelValues("codewars")))

	m.ObserveCircuit("codewars", circuitbreaker.StateOpen, circuitbreaker.StateHalfOpen)
	m.ObserveCircuit("codewars", circuitbreaker.StateHalfOpen, circuitbreaker.StateClosed)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.circuitState.WithLabelValues("codewars")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.circuitTransitions.WithLabelValues("codewars", "open")))
}
