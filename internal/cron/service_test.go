package cron

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

type fakeLock struct {
	held     bool
	releases int
	// releaseCtxErr records whether Release saw a canceled context
	releaseCtxErr error
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(ctx context.Context) error {
	f.held = false
	f.releases++
	f.releaseCtxErr = ctx.Err()
	return nil
}

type testJob struct {
	name string
	run  func(ctx context.Context) error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(ctx context.Context) error {
	t.runs++
	if t.run == nil {
		return nil
	}
	return t.run(ctx)
}

func failingJob(name string, err error) *testJob {
	return &testJob{name: name, run: func(context.Context) error { return err }}
}

func TestServiceRunOnceRunsAllJobsAndCombinesFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	success := &testJob{name: "order-expiry"}
	failure := failingJob("outbox-retention", errors.New("boom"))
	panicky := &testJob{name: "exploder", run: func(context.Context) error { panic("kaboom") }}
	lock := &fakeLock{}
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: NewRegistry(failure, panicky, success),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(reg),
	})
	require.NoError(t, err)

	ran, err := service.RunOnce(context.Background())
	require.True(t, ran)
	require.ErrorContains(t, err, "outbox-retention: boom")
	require.ErrorContains(t, err, "exploder: job panicked: kaboom")
	require.Equal(t, 1, success.runs)
	require.Equal(t, 1, failure.runs)
	require.Equal(t, 1, panicky.runs)
	require.Equal(t, 1, lock.releases)
	require.False(t, lock.held)

	expected := `
# HELP cron_job_runs_total Cron job runs by outcome.
# TYPE cron_job_runs_total counter
cron_job_runs_total{job="exploder",outcome="panic"} 1
cron_job_runs_total{job="order-expiry",outcome="success"} 1
cron_job_runs_total{job="outbox-retention",outcome="failure"} 1
`
	require.NoError(t, promtestutil.GatherAndCompare(reg, strings.NewReader(expected), "cron_job_runs_total"))
}

func TestServiceRunOnceSkipsWhenLockHeld(t *testing.T) {
	reg := prometheus.NewRegistry()
	job := &testJob{name: "order-expiry"}
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: NewRegistry(job),
		Lock:     &fakeLock{held: true},
		Metrics:  metrics.NewCronJobMetrics(reg),
	})
	require.NoError(t, err)

	ran, err := service.RunOnce(context.Background())
	require.NoError(t, err)
	require.False(t, ran)
	require.Zero(t, job.runs)

	expected := `
# HELP cron_cycle_skipped_total Cron cycles skipped because another instance held the lock.
# TYPE cron_cycle_skipped_total counter
cron_cycle_skipped_total 1
`
	require.NoError(t, promtestutil.GatherAndCompare(reg, strings.NewReader(expected), "cron_cycle_skipped_total"))
}

func TestServiceCycleDeadlineStopsRemainingJobs(t *testing.T) {
	reg := prometheus.NewRegistry()
	slow := &testJob{name: "order-expiry", run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	after := &testJob{name: "outbox-retention"}
	service, err := NewService(ServiceParams{
		Logger:       logger.Nop(),
		Registry:     NewRegistry(slow, after),
		Lock:         &fakeLock{},
		Metrics:      metrics.NewCronJobMetrics(reg),
		CycleTimeout: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	ran, err := service.RunOnce(context.Background())
	require.True(t, ran)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Zero(t, after.runs, "jobs after the deadline are left for the next cycle")

	expected := `
# HELP cron_job_runs_total Cron job runs by outcome.
# TYPE cron_job_runs_total counter
cron_job_runs_total{job="order-expiry",outcome="timeout"} 1
`
	require.NoError(t, promtestutil.GatherAndCompare(reg, strings.NewReader(expected), "cron_job_runs_total"))
}

func TestServiceReleasesLockAfterCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	job := &testJob{name: "order-expiry", run: func(context.Context) error {
		cancel()
		return nil
	}}
	lock := &fakeLock{}
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: NewRegistry(job),
		Lock:     lock,
	})
	require.NoError(t, err)

	ran, err := service.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, ran)
	require.Equal(t, 1, lock.releases)
	require.NoError(t, lock.releaseCtxErr)
}

func TestServiceRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	job := &testJob{name: "order-expiry"}
	job.run = func(context.Context) error {
		if job.runs == 2 {
			cancel()
		}
		return nil
	}
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: NewRegistry(job),
		Lock:     &fakeLock{},
		Interval: time.Millisecond,
	})
	require.NoError(t, err)

	require.ErrorIs(t, service.Run(ctx), context.Canceled)
	require.Equal(t, 2, job.runs)
}

func TestNextDelay(t *testing.T) {
	require.Equal(t, 40*time.Second, nextDelay(time.Minute, 20*time.Second))
	require.Zero(t, nextDelay(time.Minute, 90*time.Second))
}

func TestNewServiceRequiresLoggerAndLock(t *testing.T) {
	_, err := NewService(ServiceParams{Lock: &fakeLock{}})
	require.Error(t, err)
	_, err = NewService(ServiceParams{Logger: logger.Nop()})
	require.Error(t, err)

	service, err := NewService(ServiceParams{Logger: logger.Nop(), Lock: &fakeLock{}, CycleTimeout: time.Minute})
	require.NoError(t, err)
	require.Equal(t, 50*time.Second, service.budget)
	require.Equal(t, defaultInterval, service.interval)
}
