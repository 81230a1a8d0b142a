// Package metrics exposes the bot's Prometheus collectors: bot commands,
// rotations, feedback, solved-kata sync, scheduled jobs and event handlers.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/alem-hub/kata-mentor-bot/internal/domain/shared"
	"github.com/alem-hub/kata-mentor-bot/pkg/circuitbreaker"
)

const namespace = "kata_mentor_bot"

// Metrics holds every collector of the process.
type Metrics struct {
	commandsTotal   *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	activeUpdates   prometheus.Gauge
	rateLimited     prometheus.Counter
	panicsTotal     prometheus.Counter

	rotationsCreated prometheus.Counter
	rotationsDeleted prometheus.Counter
	pairsCreated     prometheus.Counter
	pairsDeleted     prometheus.Counter
	fallbackPicks    prometheus.Counter
	skippedMentees   prometheus.Counter
	feedbackRatings  *prometheus.CounterVec
	katasSolved      prometheus.Counter
	domainEvents     *prometheus.CounterVec

	syncRuns     *prometheus.CounterVec
	syncDuration prometheus.Histogram

	jobRuns     *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec

	eventHandlerDuration *prometheus.HistogramVec
	eventHandlerErrors   *prometheus.CounterVec

	circuitState       *prometheus.GaugeVec
	circuitTransitions *prometheus.CounterVec
}

// New registers the collectors with reg. A nil reg uses a fresh registry,
// which keeps tests independent of the global default.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		commandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "number of handled bot commands and callbacks",
		}, []string{"command", "status"}),
		commandDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "bot command handling latency",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"command"}),
		activeUpdates: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_updates",
			Help:      "updates being handled right now",
		}),
		rateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "updates rejected by the per-user throttle",
		}),
		panicsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_panics_total",
			Help:      "panics recovered in bot handlers",
		}),
		rotationsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rotations_created_total",
			Help:      "rotations written to the ledger",
		}),
		rotationsDeleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rotations_deleted_total",
			Help:      "rotations removed from the ledger",
		}),
		pairsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pairs_created_total",
			Help:      "mentor-mentee pairs written",
		}),
		pairsDeleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pairs_deleted_total",
			Help:      "mentor-mentee pairs removed",
		}),
		fallbackPicks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rotation_fallback_picks_total",
			Help:      "assignments made by the weighted draw",
		}),
		skippedMentees: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rotation_skipped_mentees_total",
			Help:      "mentees skipped because they were already paired that day",
		}),
		feedbackRatings: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feedback_total",
			Help:      "recorded mentor ratings",
		}, []string{"rating"}),
		katasSolved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "katas_solved_total",
			Help:      "new solved-kata facts recorded by sync",
		}),
		domainEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "domain_events_total",
			Help:      "published domain events",
		}, []string{"type"}),
		syncRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_users_total",
			Help:      "per-user results of bulk solved-kata sync",
		}, []string{"status"}),
		syncDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "bulk solved-kata sync duration",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		jobRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "scheduled job executions",
		}, []string{"job", "status"}),
		jobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "scheduled job duration",
			Buckets:   prometheus.ExponentialBuckets(.1, 2, 12),
		}, []string{"job"}),
		eventHandlerDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_handler_duration_seconds",
			Help:      "domain event handler latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
		eventHandlerErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_handler_errors_total",
			Help:      "failed domain event handler executions",
		}, []string{"type"}),
		circuitState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_state",
			Help:      "external API breaker state: 0 closed, 1 open, 2 half-open",
		}, []string{"api"}),
		circuitTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_transitions_total",
			Help:      "external API breaker state changes",
		}, []string{"api", "to"}),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// BOT COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

// ObserveCommand records one handled command.
func (m *Metrics) ObserveCommand(command, status string, d time.Duration) {
	m.commandsTotal.WithLabelValues(command, status).Inc()
	m.commandDuration.WithLabelValues(command).Observe(d.Seconds())
}

// AddActive moves the in-flight updates gauge.
func (m *Metrics) AddActive(delta float64) {
	m.activeUpdates.Add(delta)
}

// RateLimited counts a throttled update.
func (m *Metrics) RateLimited() {
	m.rateLimited.Inc()
}

// PanicRecovered counts a recovered handler panic.
func (m *Metrics) PanicRecovered() {
	m.panicsTotal.Inc()
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN EVENTS (eventhandler.MetricsRecorder)
// ══════════════════════════════════════════════════════════════════════════════

// RotationCreated records a written rotation.
func (m *Metrics) RotationCreated(pairs, fallbacks, skipped int) {
	m.rotationsCreated.Inc()
	m.pairsCreated.Add(float64(pairs))
	m.fallbackPicks.Add(float64(fallbacks))
	m.skippedMentees.Add(float64(skipped))
}

// RotationDeleted records a removed rotation.
func (m *Metrics) RotationDeleted(pairs int) {
	m.rotationsDeleted.Inc()
	m.pairsDeleted.Add(float64(pairs))
}

// FeedbackRecorded records one rating.
func (m *Metrics) FeedbackRecorded(rating int) {
	m.feedbackRatings.WithLabelValues(strconv.Itoa(rating)).Inc()
}

// KatasSolved records newly solved katas.
func (m *Metrics) KatasSolved(count int) {
	m.katasSolved.Add(float64(count))
}

// DomainEvent counts a published event.
func (m *Metrics) DomainEvent(eventType string) {
	m.domainEvents.WithLabelValues(eventType).Inc()
}

// ObserveEventHandler matches messaging.HandlerObserver.
func (m *Metrics) ObserveEventHandler(eventType shared.EventType, d time.Duration, err error) {
	m.eventHandlerDuration.WithLabelValues(string(eventType)).Observe(d.Seconds())
	if err != nil {
		m.eventHandlerErrors.WithLabelValues(string(eventType)).Inc()
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SYNC AND JOBS
// ══════════════════════════════════════════════════════════════════════════════

// ObserveSync records the outcome of a bulk sync.
func (m *Metrics) ObserveSync(succeeded, failed int, d time.Duration) {
	m.syncRuns.WithLabelValues("ok").Add(float64(succeeded))
	m.syncRuns.WithLabelValues("error").Add(float64(failed))
	m.syncDuration.Observe(d.Seconds())
}

// ObserveJob records one scheduled job run.
func (m *Metrics) ObserveJob(job string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.jobRuns.WithLabelValues(job, status).Inc()
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

// ══════════════════════════════════════════════════════════════════════════════
// EXTERNAL APIS
// ══════════════════════════════════════════════════════════════════════════════

// ObserveCircuit matches the OnCircuitChange hook of the API clients.
func (m *Metrics) ObserveCircuit(api string, _, to circuitbreaker.State) {
	m.circuitState.WithLabelValues(api).Set(float64(to))
	m.circuitTransitions.WithLabelValues(api, to.String()).Inc()
}
