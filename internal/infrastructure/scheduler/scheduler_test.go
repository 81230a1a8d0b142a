package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/alem-hub/kata-mentor-bot/pkg/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type countingJob struct {
	name  string
	runs  atomic.Int32
	err   error
	block chan struct{}
}

func (j *countingJob) Name() string        { return j.name }
func (j *countingJob) Description() string { return "test job" }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.block != nil {
		select {
		case <-j.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return j.err
}

type panickingJob struct{}

func (panickingJob) Name() string                { return "panics" }
func (panickingJob) Description() string         { return "" }
func (panickingJob) Run(ctx context.Context) error { panic("boom") }

type jobRecorder struct {
	mu   sync.Mutex
	runs map[string]int
	errs int
}

func (r *jobRecorder) ObserveJob(job string, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.runs == nil {
		r.runs = make(map[string]int)
	}
	r.runs[job]++
	if err != nil {
		r.errs++
	}
}

func newTestScheduler(rec JobRecorder) *Scheduler {
	return NewScheduler(SchedulerConfig{
		Logger:     logger.Discard(),
		JobTimeout: time.Second,
		Recorder:   rec,
	})
}

// everySchedule fires at a fixed sub-second interval, which cron specs
// cannot express.
type everySchedule time.Duration

func (s everySchedule) Next(t time.Time) time.Time { return t.Add(time.Duration(s)) }
func (s everySchedule) String() string             { return "@every " + time.Duration(s).String() }

func every(d time.Duration) Schedule { return everySchedule(d) }

func TestScheduler_RunsDueJobs(t *testing.T) {
	rec := &jobRecorder{}
	s := newTestScheduler(rec)
	job := &countingJob{name: "tick"}
	require.NoError(t, s.Register(job, every(10*time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return job.runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop())

	rec.mu.Lock()
	assert.GreaterOrEqual(t, rec.runs["tick"], 2)
	rec.mu.Unlock()

	infos := s.ListJobs()
	require.Len(t, infos, 1)
	assert.GreaterOrEqual(t, infos[0].RunCount, int64(2))
	assert.Equal(t, "@every 10ms", infos[0].Schedule)
}

func TestScheduler_SkipsOverlappingRuns(t *testing.T) {
	s := newTestScheduler(nil)
	job := &countingJob{name: "slow", block: make(chan struct{})}
	require.NoError(t, s.Register(job, every(time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), job.runs.Load())

	close(job.block)
	require.NoError(t, s.Stop())
}

func TestScheduler_StopCancelsRunningJobs(t *testing.T) {
	s := newTestScheduler(nil)
	job := &countingJob{name: "stuck", block: make(chan struct{})}
	require.NoError(t, s.Register(job, every(time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())

	history := s.GetHistory(0)
	require.Len(t, history, 1)
	assert.ErrorIs(t, history[0].Error, context.Canceled)
}

func TestScheduler_RunNow(t *testing.T) {
	rec := &jobRecorder{}
	s := newTestScheduler(rec)
	failing := &countingJob{name: "failing", err: errors.New("boom")}
	require.NoError(t, s.Register(failing, every(time.Hour)))
	require.NoError(t, s.Register(panickingJob{}, every(time.Hour)))

	res, err := s.RunNow(context.Background(), "failing")
	require.Error(t, err)
	assert.True(t, res.Manual)
	assert.False(t, res.Success())
	assert.NotEmpty(t, res.RunID)

	_, err = s.RunNow(context.Background(), "panics")
	assert.ErrorContains(t, err, "panicked")

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	assert.Equal(t, 2, rec.errs)
}

func TestScheduler_Registration(t *testing.T) {
	s := newTestScheduler(nil)
	job := &countingJob{name: "dup"}

	require.NoError(t, s.Register(job, every(time.Hour)))
	assert.ErrorIs(t, s.Register(job, every(time.Hour)), ErrJobAlreadyExists)
	assert.ErrorIs(t, s.Register(nil, every(time.Hour)), ErrNilJob)
	assert.ErrorIs(t, s.Register(&countingJob{name: "x"}, nil), ErrNilSchedule)
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
}

func TestScheduler_RunBlocksUntilCancelled(t *testing.T) {
	s := newTestScheduler(nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, s.IsRunning, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestCronSchedule(t *testing.T) {
	almaty := time.FixedZone("Asia/Almaty", 5*60*60)

	daily := MustParseCron("0 11 * * *", almaty)
	from := time.Date(2026, 3, 2, 12, 0, 0, 0, almaty)
	assert.Equal(t, time.Date(2026, 3, 3, 11, 0, 0, 0, almaty), daily.Next(from))

	// Mondays at 23:00. 2026-03-02 is a Monday.
	weekly := MustParseCron("0 23 * * 1", almaty)
	assert.Equal(t, time.Date(2026, 3, 2, 23, 0, 0, 0, almaty), weekly.Next(from))

	// Evaluation happens in the schedule's location.
	utc := from.UTC()
	assert.True(t, daily.Next(utc).Equal(time.Date(2026, 3, 3, 11, 0, 0, 0, almaty)))

	_, err := ParseCron("61 * * * *", almaty)
	assert.Error(t, err)
}

func TestScheduler_ListJobsReportsNextRun(t *testing.T) {
	s := newTestScheduler(nil)
	fixed := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	require.NoError(t, s.Register(&countingJob{name: "b"}, every(time.Hour)))
	require.NoError(t, s.Register(&countingJob{name: "a"}, MustParseCron("0 11 * * *", time.UTC)))

	infos := s.ListJobs()
	require.Len(t, infos, 2)
	assert.Equal(t, "a", infos[0].Name)
	assert.True(t, infos[0].NextRun.Equal(fixed.Add(time.Hour)))
	assert.True(t, infos[1].NextRun.Equal(fixed.Add(time.Hour)))
	assert.Zero(t, infos[1].RunCount)
}

func TestScheduler_HistoryIsBounded(t *testing.T) {
	s := NewScheduler(SchedulerConfig{Logger: logger.Discard(), MaxHistorySize: 2})
	job := &countingJob{name: "j"}
	require.NoError(t, s.Register(job, every(time.Hour)))

	for range 3 {
		_, err := s.RunNow(context.Background(), "j")
		require.NoError(t, err)
	}
	assert.Len(t, s.GetHistory(0), 2)
	assert.Len(t, s.GetHistory(1), 1)
	assert.Equal(t, int32(3), job.runs.Load())
}
