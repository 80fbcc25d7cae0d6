package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/forkfleet/forkfleet-backend/pkg/db/models"
	"github.com/forkfleet/forkfleet-backend/pkg/enums"
	pkgerrors "github.com/forkfleet/forkfleet-backend/pkg/errors"
	"github.com/forkfleet/forkfleet-backend/pkg/outbox/registry"
)

type verdict int

const (
	verdictRetry verdict = iota
	verdictDeadLetter
)

// judge decides what a failed publish means for the row. attempts is the
// count before this try.
func judge(err error, attempts, maxAttempts int) (verdict, enums.OutboxDLQErrorReason) {
	if !pkgerrors.Retryable(err) {
		return verdictDeadLetter, enums.OutboxDLQReasonNonRetryable
	}
	if attempts+1 >= maxAttempts {
		return verdictDeadLetter, enums.OutboxDLQReasonMaxAttempts
	}
	return verdictRetry, ""
}

// relay publishes one row. held collects the ordering keys that already
// failed in this batch; later rows for those keys are left for the next pass.
func (r *Relay) relay(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, held map[string]bool) error {
	ctx = r.logg.WithFields(ctx, map[string]any{
		"outbox_id":     event.ID.String(),
		"event_type":    event.EventType,
		"aggregate_id":  event.AggregateID.String(),
		"attempt_count": event.AttemptCount,
	})

	resolved, err := r.routes.Resolve(event)
	if err != nil {
		return r.park(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err)
	}
	key := resolved.OrderingKey
	ctx = r.logg.WithFields(ctx, map[string]any{"topic": resolved.Route.Topic, "ordering_key": key})

	if held[key] {
		r.logg.Info(ctx, "outbox event held behind an earlier failure for the same order")
		return nil
	}

	pubErr := r.publish(ctx, event, resolved)
	if pubErr == nil {
		if err := r.events.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		r.metrics.IncPublished(string(event.EventType))
		r.logg.Info(ctx, "outbox event published")
		return nil
	}

	switch v, reason := judge(pubErr, event.AttemptCount, r.maxAttempts); v {
	case verdictDeadLetter:
		if reason == enums.OutboxDLQReasonMaxAttempts {
			pubErr = fmt.Errorf("max publish attempts reached: %w", pubErr)
		}
		r.topics.resume(resolved.Route.Topic, key)
		return r.park(ctx, tx, event, reason, pubErr)
	default:
		held[key] = true
		r.topics.resume(resolved.Route.Topic, key)
		r.logg.Warn(r.logg.WithField(ctx, "error", pubErr.Error()), "outbox publish failed, will retry")
		r.metrics.IncFailed(string(event.EventType))
		if err := r.events.MarkFailedTx(tx, event.ID, pubErr); err != nil {
			return fmt.Errorf("mark failure %s: %w", event.ID, err)
		}
		return nil
	}
}

func (r *Relay) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	pub := r.topics.get(resolved.Route.Topic)
	if pub == nil {
		return pkgerrors.Newf(pkgerrors.CodeNotFound, "no publisher for topic %s", resolved.Route.Topic)
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	result := pub.Publish(publishCtx, &gcppubsub.Message{
		Data:        event.Payload,
		OrderingKey: resolved.OrderingKey,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"event_version":  strconv.Itoa(resolved.Envelope.Version),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"order_id":       resolved.OrderingKey,
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		},
	})
	if result == nil {
		return pkgerrors.Newf(pkgerrors.CodeDependency, "publisher returned no result for topic %s", resolved.Route.Topic)
	}
	_, err := result.Get(publishCtx)
	return err
}

// park copies the row into outbox_dlq and stops further attempts.
func (r *Relay) park(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	ctx = r.logg.WithFields(ctx, map[string]any{"error_reason": reason, "error": cause.Error()})
	r.logg.Warn(ctx, "outbox event dead-lettered")

	msg := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	if err := r.deadLetters.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := r.events.MarkTerminalTx(tx, event.ID, cause, r.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	r.metrics.IncDeadLetter(string(event.EventType), string(reason))
	return nil
}
