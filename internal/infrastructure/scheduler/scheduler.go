// Package scheduler runs the bot's periodic jobs: the daily stats post,
// the weekly rating reminder and the bulk solved-kata sync.
//
// Timing is delegated to robfig/cron; this package adds what the bot needs
// on top: per-run timeouts, overlap skipping, panic capture, run history and
// a Stop that waits for jobs in flight.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron"

	"github.com/alem-hub/kata-mentor-bot/pkg/logger"
)

var (
	ErrNilJob                  = errors.New("scheduler: nil job")
	ErrNilSchedule             = errors.New("scheduler: nil schedule")
	ErrJobAlreadyExists        = errors.New("scheduler: job already registered")
	ErrJobNotFound             = errors.New("scheduler: job not found")
	ErrSchedulerAlreadyRunning = errors.New("scheduler: already running")
	ErrSchedulerNotRunning     = errors.New("scheduler: not running")
)

// Job is a named unit of periodic work. Run's context is cancelled on
// Stop and when the run exceeds JobTimeout.
type Job interface {
	Name() string
	Description() string
	Run(ctx context.Context) error
}

// Schedule yields activation times. *CronSchedule implements it.
type Schedule interface {
	Next(t time.Time) time.Time
	String() string
}

// JobRecorder receives job metrics. *metrics.Metrics implements it.
type JobRecorder interface {
	ObserveJob(job string, d time.Duration, err error)
}

// JobResult describes one run.
type JobResult struct {
	JobName     string
	RunID       string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Manual      bool
	Error       error
}

// Success reports a run without error.
func (r JobResult) Success() bool { return r.Error == nil }

// JobInfo is the ListJobs row.
type JobInfo struct {
	Name        string
	Description string
	Schedule    string
	LastRun     time.Time
	NextRun     time.Time
	RunCount    int64
	FailCount   int64
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	Logger *slog.Logger

	// Timezone is where schedules are evaluated. Default UTC.
	Timezone *time.Location

	// JobTimeout bounds one run. Default 15m.
	JobTimeout time.Duration

	// MaxHistorySize bounds GetHistory. Default 100.
	MaxHistorySize int

	Recorder JobRecorder
}

type entry struct {
	job      Job
	schedule Schedule
	inFlight atomic.Bool

	// guarded by Scheduler.mu
	lastRun   time.Time
	runCount  int64
	failCount int64
}

// Scheduler runs registered jobs on their schedules.
type Scheduler struct {
	config SchedulerConfig
	logger *slog.Logger
	now    func() time.Time
	cron   *cron.Cron

	mu      sync.Mutex
	entries map[string]*entry
	history []JobResult
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	runs    sync.WaitGroup
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(config SchedulerConfig) *Scheduler {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Timezone == nil {
		config.Timezone = time.UTC
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = 15 * time.Minute
	}
	if config.MaxHistorySize <= 0 {
		config.MaxHistorySize = 100
	}

	return &Scheduler{
		config:  config,
		logger:  config.Logger.With(logger.Component("scheduler")),
		now:     time.Now,
		cron:    cron.NewWithLocation(config.Timezone),
		entries: make(map[string]*entry),
	}
}

// Register adds job. Names are unique.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	if job == nil {
		return ErrNilJob
	}
	if schedule == nil {
		return ErrNilSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, ok := s.entries[name]; ok {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}
	e := &entry{job: job, schedule: schedule}
	s.entries[name] = e
	s.cron.Schedule(schedule, cron.FuncJob(func() { s.fire(e) }))

	s.logger.Info("job registered",
		"job", name,
		"schedule", schedule.String(),
		"next_run", schedule.Next(s.now().In(s.config.Timezone)).Format(time.RFC3339),
	)
	return nil
}

// Start begins firing jobs and returns. Jobs run under ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrSchedulerAlreadyRunning
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.cron.Start()

	s.logger.Info("scheduler started", "jobs", len(s.entries), "timezone", s.config.Timezone.String())
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.cron.Stop()
	s.runs.Wait()
	s.logger.Info("scheduler stopped")
	return nil
}

// Run starts the scheduler and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return s.Stop()
}

// IsRunning reports whether Start was called without a matching Stop.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// fire is called by cron. A job still running from its previous
// activation is skipped.
func (s *Scheduler) fire(e *entry) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	ctx := s.ctx
	s.runs.Add(1)
	s.mu.Unlock()
	defer s.runs.Done()

	if !e.inFlight.CompareAndSwap(false, true) {
		s.logger.Warn("skipping overlapping run", "job", e.job.Name())
		return
	}
	defer e.inFlight.Store(false)

	s.execute(ctx, e, false)
}

// RunNow runs a job immediately, outside its schedule. It may overlap a
// scheduled run.
func (s *Scheduler) RunNow(ctx context.Context, name string) (*JobResult, error) {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	res := s.execute(ctx, e, true)
	return &res, res.Error
}

func (s *Scheduler) execute(ctx context.Context, e *entry, manual bool) JobResult {
	name := e.job.Name()
	res := JobResult{JobName: name, RunID: uuid.NewString(), StartedAt: s.now(), Manual: manual}

	log := s.logger.With("job", name, "run_id", res.RunID)
	log.Info("job started", "manual", manual)

	runCtx, cancel := context.WithTimeout(logger.WithContext(ctx, log), s.config.JobTimeout)
	res.Error = runJob(runCtx, e.job)
	cancel()

	res.CompletedAt = s.now()
	res.Duration = res.CompletedAt.Sub(res.StartedAt)

	if s.config.Recorder != nil {
		s.config.Recorder.ObserveJob(name, res.Duration, res.Error)
	}
	if res.Error != nil {
		log.Error("job failed", logger.Latency(res.Duration), logger.Err(res.Error))
	} else {
		log.Info("job completed", logger.Latency(res.Duration))
	}

	s.mu.Lock()
	e.lastRun = res.StartedAt
	e.runCount++
	if res.Error != nil {
		e.failCount++
	}
	s.history = append(s.history, res)
	if over := len(s.history) - s.config.MaxHistorySize; over > 0 {
		s.history = slices.Delete(s.history, 0, over)
	}
	s.mu.Unlock()

	return res
}

func runJob(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name(), r)
		}
	}()
	return job.Run(ctx)
}

// ListJobs returns every job sorted by name.
func (s *Scheduler) ListJobs() []JobInfo {
	now := s.now().In(s.config.Timezone)

	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]JobInfo, 0, len(s.entries))
	for name, e := range s.entries {
		infos = append(infos, JobInfo{
			Name:        name,
			Description: e.job.Description(),
			Schedule:    e.schedule.String(),
			LastRun:     e.lastRun,
			NextRun:     e.schedule.Next(now),
			RunCount:    e.runCount,
			FailCount:   e.failCount,
		})
	}
	slices.SortFunc(infos, func(a, b JobInfo) int { return strings.Compare(a.Name, b.Name) })
	return infos
}

// GetHistory returns up to limit most recent results, oldest first.
// limit <= 0 returns everything kept.
func (s *Scheduler) GetHistory(limit int) []JobResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	return slices.Clone(s.history[len(s.history)-limit:])
}
