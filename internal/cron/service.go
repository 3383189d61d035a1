package cron

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

const (
	defaultInterval = time.Minute
	// cycleMargin keeps a cycle's deadline inside the lock lease.
	cycleMargin = 10 * time.Second
)

// ServiceParams configure the cron service. CycleTimeout caps one full pass
// over the registry and is normally the lock TTL.
type ServiceParams struct {
	Logger       *logger.Logger
	Registry     *Registry
	Lock         Lock
	Metrics      *metrics.CronJobMetrics
	Interval     time.Duration
	CycleTimeout time.Duration
}

// Service runs the registered jobs on a fixed cadence. A cycle runs only on
// the instance holding the lock.
type Service struct {
	logg     *logger.Logger
	jobs     *Registry
	lock     Lock
	metrics  *metrics.CronJobMetrics
	interval time.Duration
	budget   time.Duration
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("cron service: logger required")
	}
	if params.Lock == nil {
		return nil, errors.New("cron service: lock required")
	}
	s := &Service{
		logg:     params.Logger,
		jobs:     params.Registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: params.Interval,
		budget:   params.CycleTimeout,
		now:      time.Now,
	}
	if s.jobs == nil {
		s.jobs = NewRegistry()
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	if s.budget <= 0 {
		s.budget = defaultLockTTL
	}
	if s.budget > 2*cycleMargin {
		s.budget -= cycleMargin
	}
	return s, nil
}

// Run executes a cycle immediately, then once per interval until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"jobs":     s.jobs.Names(),
		"interval": s.interval.String(),
	})
	s.logg.Info(ctx, "cron.started")

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron.stopped")
			return ctx.Err()
		case <-timer.C:
		}
		started := s.now()
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.logg.Error(ctx, "cron.cycle_failed", err)
		}
		timer.Reset(nextDelay(s.interval, s.now().Sub(started)))
	}
}

// nextDelay keeps cycles aligned to the interval when a cycle ran long.
func nextDelay(interval, took time.Duration) time.Duration {
	if took >= interval {
		return 0
	}
	return interval - took
}

// RunOnce executes every job once under the lock. It reports false when
// another instance owns the cycle. Job failures do not stop later jobs; they
// are combined into the returned error.
func (s *Service) RunOnce(ctx context.Context) (ran bool, err error) {
	acquired, err := s.lock.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire cron lock: %w", err)
	}
	if !acquired {
		s.metrics.IncSkipped()
		s.logg.Debug(ctx, "cron.cycle_skipped")
		return false, nil
	}
	defer func() {
		// release even when the cycle was canceled so the next owner is not
		// left waiting for the TTL
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if relErr := s.lock.Release(releaseCtx); relErr != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", relErr.Error()), "cron.lock_release_failed")
		}
	}()

	cycleCtx, cancel := context.WithTimeout(ctx, s.budget)
	defer cancel()

	var failures error
	for _, job := range s.jobs.Jobs() {
		if cycleCtx.Err() != nil {
			break
		}
		if jobErr := s.runJob(cycleCtx, job); jobErr != nil {
			failures = multierr.Append(failures, fmt.Errorf("%s: %w", job.Name(), jobErr))
		}
	}
	return true, failures
}

func (s *Service) runJob(ctx context.Context, job Job) (err error) {
	name := job.Name()
	ctx = s.logg.WithField(ctx, "job", name)
	started := s.now()
	defer func() {
		if rec := recover(); rec != nil {
			err = jobPanic{value: rec}
			s.logg.Error(s.logg.WithField(ctx, "stack", string(debug.Stack())), "cron.job_panicked", err)
		}
		finished := s.now()
		took := finished.Sub(started)
		outcome := jobOutcome(ctx, err)
		s.metrics.RecordRun(name, outcome, took, finished)
		ctx = s.logg.WithFields(ctx, map[string]any{
			"outcome":     outcome,
			"duration_ms": took.Milliseconds(),
		})
		if err != nil {
			s.logg.Error(ctx, "cron.job_failed", err)
			return
		}
		s.logg.Debug(ctx, "cron.job_completed")
	}()
	return job.Run(ctx)
}

func jobOutcome(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return metrics.CronOutcomeSuccess
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return metrics.CronOutcomeTimeout
	case errors.Is(err, context.Canceled):
		return metrics.CronOutcomeCanceled
	case errors.As(err, new(jobPanic)):
		return metrics.CronOutcomePanic
	default:
		return metrics.CronOutcomeFailure
	}
}

type jobPanic struct {
	value any
}

func (p jobPanic) Error() string {
	return fmt.Sprintf("job panicked: %v", p.value)
}
