package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/forkfleet/forkfleet-backend/pkg/logger"
)

func TestOutboxRetentionJobUsesDefaultWindows(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	published := &fakeRetention{}
	letters := &fakeRetention{}
	job := newOutboxRetentionJob(t, published, letters, 0)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := now.Add(-defaultOutboxRetention); !published.cutoff.Equal(want) {
		t.Fatalf("expected published cutoff %s, got %s", want, published.cutoff)
	}
	if want := now.Add(-defaultDeadLetterRetention); !letters.cutoff.Equal(want) {
		t.Fatalf("expected dlq cutoff %s, got %s", want, letters.cutoff)
	}
}

func TestOutboxRetentionJobHonoursConfiguredRetention(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	published := &fakeRetention{}
	job := newOutboxRetentionJob(t, published, nil, 48*time.Hour)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !published.cutoff.Equal(time.Date(2026, 2, 8, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected cutoff %s", published.cutoff)
	}
}

func TestOutboxRetentionJobPropagatesError(t *testing.T) {
	letters := &fakeRetention{err: errors.New("boom")}
	job := newOutboxRetentionJob(t, &fakeRetention{}, letters, 0)

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewOutboxRetentionJobRequiresRepository(t *testing.T) {
	_, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		DB:     stubTxRunner{},
	})
	if err == nil {
		t.Fatal("expected error without outbox repository")
	}
}

func newOutboxRetentionJob(t *testing.T, published *fakeRetention, letters *fakeRetention, retention time.Duration) *outboxRetentionJob {
	t.Helper()
	params := OutboxRetentionJobParams{
		Logger:    logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		DB:        stubTxRunner{},
		Published: published,
		Retention: retention,
	}
	if letters != nil {
		params.DeadLetters = letters
	}
	jobIface, err := NewOutboxRetentionJob(params)
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	job, ok := jobIface.(*outboxRetentionJob)
	if !ok {
		t.Fatalf("expected outboxRetentionJob, got %T", jobIface)
	}
	return job
}

type fakeRetention struct {
	cutoff time.Time
	err    error
}

func (f *fakeRetention) DeletePublishedBefore(_ *gorm.DB, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return 7, f.err
}

func (f *fakeRetention) DeleteBefore(_ *gorm.DB, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return 2, f.err
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}
