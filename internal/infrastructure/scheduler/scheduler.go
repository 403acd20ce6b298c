// Package scheduler runs the worker's periodic jobs on cron specs. Exclusive
// jobs take a distributed lock so only one worker instance runs them.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"boigordo/pkg/logger"
)

// Job is one scheduled unit of work.
type Job struct {
	Name string
	// Spec is a five-field cron expression or a descriptor such as "@every 2s".
	Spec string
	// Exclusive jobs run on at most one worker at a time.
	Exclusive bool
	Timeout   time.Duration
	Run       func(ctx context.Context) error
}

// Observer records job outcomes.
type Observer interface {
	ObserveJob(job string, err error, elapsed time.Duration)
}

// Scheduler wraps a cron instance. Overlapping runs of a job are skipped.
type Scheduler struct {
	cron     *cron.Cron
	lock     JobLock
	lockTTL  time.Duration
	observer Observer
	ctx      context.Context
	cancel   context.CancelFunc
}

// New creates a scheduler. lock may be nil when no job is exclusive.
func New(lock JobLock, lockTTL time.Duration, observer Observer) *Scheduler {
	if lockTTL <= 0 {
		lockTTL = 10 * time.Minute
	}
	cl := cronLogger{}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:     cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)), cron.WithLogger(cl)),
		lock:     lock,
		lockTTL:  lockTTL,
		observer: observer,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Add registers j.
func (s *Scheduler) Add(j Job) error {
	if j.Exclusive && s.lock == nil {
		return fmt.Errorf("job %s is exclusive but no lock is configured", j.Name)
	}
	if _, err := s.cron.AddFunc(j.Spec, func() { _ = s.RunOnce(s.ctx, j) }); err != nil {
		return fmt.Errorf("schedule %s (%q): %w", j.Name, j.Spec, err)
	}
	logger.Info(s.ctx, "job scheduled", "job", j.Name, "spec", j.Spec, "exclusive", j.Exclusive)
	return nil
}

// WithLogger makes job contexts carry l, tagged with the scheduler component.
func (s *Scheduler) WithLogger(l *logger.Logger) *Scheduler {
	s.ctx = logger.WithLogger(s.ctx, l.WithComponent("scheduler"))
	return s
}

// Start runs the scheduler in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop stops scheduling, cancels running jobs and waits for them or for ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
	case <-ctx.Done():
		logger.Warn(ctx, "scheduler stop timed out")
	}
}

// RunOnce runs j now, honoring its lock and timeout.
func (s *Scheduler) RunOnce(ctx context.Context, j Job) error {
	if j.Exclusive {
		release, ok, err := s.lock.TryLock(ctx, j.Name, s.lockTTL)
		if err != nil {
			logger.Error(ctx, "job lock failed", "job", j.Name, "error", err)
			return err
		}
		if !ok {
			logger.Debug(ctx, "job held by another worker", "job", j.Name)
			return nil
		}
		defer func() {
			if err := release(context.Background()); err != nil {
				logger.Warn(ctx, "job lock release failed", "job", j.Name, "error", err)
			}
		}()
	}

	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := j.Run(ctx)
	elapsed := time.Since(start)
	if s.observer != nil {
		s.observer.ObserveJob(j.Name, err, elapsed)
	}
	if err != nil {
		logger.Error(ctx, "job failed", "job", j.Name, "elapsed", elapsed, "error", err)
		return err
	}
	logger.Debug(ctx, "job finished", "job", j.Name, "elapsed", elapsed)
	return nil
}

// cronLogger routes cron's own messages to the application logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	logger.Debug(context.Background(), "cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	logger.Error(context.Background(), "cron: "+msg, append(keysAndValues, "error", err)...)
}
