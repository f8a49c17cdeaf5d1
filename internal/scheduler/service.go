package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/offersplus/backend/internal/logger"
	"github.com/offersplus/backend/internal/metrics"
)

// Job is a named unit of periodic work.
type Job struct {
	Name     string
	Schedule string
	// Timeout bounds a single run; zero means no bound beyond Stop.
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Service runs registered jobs on their cron schedules. A run still in
// progress when the next activation fires is skipped.
type Service struct {
	cron *cron.Cron
	log  *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	entries map[string]cron.EntryID
	started bool
}

// NewService creates a new scheduler service
func NewService() *Service {
	log := logger.WithComponent("scheduler")
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithChain(cron.Recover(cronLogger{log}), cron.SkipIfStillRunning(cronLogger{log})),
		),
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]cron.EntryID),
	}
}

// Add registers job. Names must be unique.
func (s *Service) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return errors.New("scheduler: job needs a name and a run func")
	}
	sched, err := ParseSchedule(job.Schedule)
	if err != nil {
		return fmt.Errorf("scheduler: job %s: %w", job.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.entries[job.Name]; dup {
		return fmt.Errorf("scheduler: job %s already registered", job.Name)
	}
	s.entries[job.Name] = s.cron.Schedule(sched, cron.FuncJob(func() { s.execute(job) }))
	return nil
}

// RunNow executes the named job synchronously, outside its schedule.
func (s *Service) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	id, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("scheduler: unknown job %s", name)
	}
	entry := s.cron.Entry(id)
	if entry.Job == nil {
		return fmt.Errorf("scheduler: job %s has no entry", name)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		entry.WrappedJob.Run()
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next returns the next activation of the named job, or zero before Start.
func (s *Service) Next(name string) time.Time {
	s.mu.Lock()
	id, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}

func (s *Service) execute(job Job) {
	ctx := s.ctx
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := job.Run(ctx)
	elapsed := time.Since(start)
	metrics.SchedulerJobDuration.WithLabelValues(job.Name).Observe(elapsed.Seconds())
	if err != nil {
		metrics.SchedulerJobRuns.WithLabelValues(job.Name, "failed").Inc()
		s.log.Error("scheduled job failed", "job", job.Name, "duration", elapsed, "error", err)
		return
	}
	metrics.SchedulerJobRuns.WithLabelValues(job.Name, "success").Inc()
	s.log.Debug("scheduled job finished", "job", job.Name, "duration", elapsed)
}

// Start begins running jobs in the background. It returns immediately.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
	s.log.Info("scheduler started", "jobs", len(s.entries))
}

// Stop cancels running jobs and waits for them to return or ctx to end.
func (s *Service) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop().Done()
	select {
	case <-done:
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, kv ...any) { c.l.Debug(msg, kv...) }

func (c cronLogger) Error(err error, msg string, kv ...any) {
	c.l.Error(msg, append(kv, "error", err)...)
}
