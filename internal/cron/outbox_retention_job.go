package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/forkfleet/forkfleet-backend/pkg/logger"
)

const (
	defaultOutboxRetention     = 30 * 24 * time.Hour
	defaultDeadLetterRetention = 90 * 24 * time.Hour
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type publishedEvents interface {
	DeletePublishedBefore(tx *gorm.DB, cutoff time.Time) (int64, error)
}

type deadLetters interface {
	DeleteBefore(tx *gorm.DB, cutoff time.Time) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger      *logger.Logger
	DB          txRunner
	Published   publishedEvents
	DeadLetters deadLetters
	// Retention applies to published events, DeadLetterRetention to
	// outbox_dlq. Dead letters stay longer so they can still be replayed.
	Retention           time.Duration
	DeadLetterRetention time.Duration
}

// NewOutboxRetentionJob prunes published order events and old dead letters.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.DB == nil:
		return nil, fmt.Errorf("db runner required")
	case params.Published == nil:
		return nil, fmt.Errorf("outbox repository required")
	}
	job := &outboxRetentionJob{
		logg:         params.Logger,
		db:           params.DB,
		published:    params.Published,
		deadLetters:  params.DeadLetters,
		retention:    params.Retention,
		dlqRetention: params.DeadLetterRetention,
		now:          time.Now,
	}
	if job.retention <= 0 {
		job.retention = defaultOutboxRetention
	}
	if job.dlqRetention <= 0 {
		job.dlqRetention = defaultDeadLetterRetention
	}
	return job, nil
}

type outboxRetentionJob struct {
	logg         *logger.Logger
	db           txRunner
	published    publishedEvents
	deadLetters  deadLetters
	retention    time.Duration
	dlqRetention time.Duration
	now          func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	var events, letters int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		if events, err = j.published.DeletePublishedBefore(tx, now.Add(-j.retention)); err != nil {
			return err
		}
		if j.deadLetters == nil {
			return nil
		}
		letters, err = j.deadLetters.DeleteBefore(tx, now.Add(-j.dlqRetention))
		return err
	})
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"events_deleted":       events,
		"dead_letters_deleted": letters,
		"retention":            j.retention.String(),
		"dlq_retention":        j.dlqRetention.String(),
	}), "outbox retention cleanup complete")
	return nil
}
