package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

func TestOutboxRetentionJobUsesRetentionCutoff(t *testing.T) {
	now := time.Date(2026, 10, 10, 4, 0, 0, 0, time.UTC)
	pruner := &fakePruner{batches: []int64{3}}
	job := newRetentionJob(t, pruner, 7)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	require.Equal(t, now.Add(-7*24*time.Hour), pruner.cutoffs[0])
	require.Equal(t, []int{retentionChunk}, pruner.limits)
}

func TestOutboxRetentionJobDrainsInChunks(t *testing.T) {
	pruner := &fakePruner{batches: []int64{2, 2, 1}}
	job := newRetentionJob(t, pruner, 0)
	job.chunk = 2

	require.NoError(t, job.Run(context.Background()))
	require.Len(t, pruner.cutoffs, 3, "a short chunk ends the run")
	require.Equal(t, defaultOutboxRetentionDays*24*time.Hour, job.retention)
}

func TestOutboxRetentionJobStopsAtChunkCap(t *testing.T) {
	pruner := &fakePruner{always: 1}
	job := newRetentionJob(t, pruner, 0)
	job.chunk = 1

	require.NoError(t, job.Run(context.Background()))
	require.Len(t, pruner.cutoffs, maxRetentionChunks)
}

func TestOutboxRetentionJobPropagatesError(t *testing.T) {
	job := newRetentionJob(t, &fakePruner{err: errors.New("boom")}, 0)
	require.Error(t, job.Run(context.Background()))
}

func TestNewOutboxRetentionJobValidates(t *testing.T) {
	_, err := NewOutboxRetentionJob(OutboxRetentionJobParams{DB: passthroughTxRunner{}, Repository: &fakePruner{}})
	require.Error(t, err)
	_, err = NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: logger.Nop(), Repository: &fakePruner{}})
	require.Error(t, err)
	_, err = NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: logger.Nop(), DB: passthroughTxRunner{}})
	require.Error(t, err)
}

func newRetentionJob(t *testing.T, pruner *fakePruner, retentionDays int) *outboxRetentionJob {
	t.Helper()
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     logger.Nop(),
		DB:         passthroughTxRunner{},
		Repository: pruner,
		Retention:  retentionDays,
	})
	require.NoError(t, err)
	require.Equal(t, OutboxRetentionJobName, job.Name())
	return job.(*outboxRetentionJob)
}

type fakePruner struct {
	batches []int64
	always  int64
	err     error
	cutoffs []time.Time
	limits  []int
}

func (f *fakePruner) DeletePublishedBefore(_ context.Context, _ *gorm.DB, cutoff time.Time, limit int) (int64, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	f.limits = append(f.limits, limit)
	if f.err != nil {
		return 0, f.err
	}
	if f.always > 0 {
		return f.always, nil
	}
	if len(f.batches) == 0 {
		return 0, nil
	}
	n := f.batches[0]
	f.batches = f.batches[1:]
	return n, nil
}

type passthroughTxRunner struct{}

func (passthroughTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}
