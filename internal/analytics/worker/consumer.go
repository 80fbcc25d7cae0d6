package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/forkfleet/forkfleet-backend/internal/analytics/router"
	"github.com/forkfleet/forkfleet-backend/internal/analytics/types"
	"github.com/forkfleet/forkfleet-backend/pkg/enums"
	pkgerrors "github.com/forkfleet/forkfleet-backend/pkg/errors"
	"github.com/forkfleet/forkfleet-backend/pkg/logger"
	"github.com/forkfleet/forkfleet-backend/pkg/outbox"
)

// Handler turns one decoded envelope into analytics rows.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope) error
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

type claimer interface {
	Claim(ctx context.Context, eventID uuid.UUID) (bool, error)
	Release(ctx context.Context, eventID uuid.UUID) error
}

type outcome int

const (
	outcomeHandled outcome = iota
	outcomeDuplicate
	outcomeDropped
	outcomeRetry
)

// Consumer reads relayed outbox events off the analytics subscription.
// Malformed and unsupported messages are acked and logged since redelivery
// cannot fix them. Handler and Redis failures are nacked for Pub/Sub to retry.
type Consumer struct {
	sub     receiver
	handler Handler
	claims  claimer
	logg    *logger.Logger
}

func NewConsumer(sub *gcppubsub.Subscriber, handler Handler, claims claimer, logg *logger.Logger) (*Consumer, error) {
	if sub == nil {
		return nil, errors.New("analytics subscription is required")
	}
	return newConsumer(sub, handler, claims, logg)
}

func newConsumer(sub receiver, handler Handler, claims claimer, logg *logger.Logger) (*Consumer, error) {
	switch {
	case handler == nil:
		return nil, errors.New("analytics handler is required")
	case claims == nil:
		return nil, errors.New("idempotency marker is required")
	case logg == nil:
		return nil, errors.New("logger is required")
	}
	return &Consumer{sub: sub, handler: handler, claims: claims, logg: logg}, nil
}

// Run blocks until ctx is cancelled or the subscription fails.
func (c *Consumer) Run(ctx context.Context) error {
	return c.sub.Receive(ctx, func(ctx context.Context, msg *gcppubsub.Message) {
		if c.consume(ctx, msg) == outcomeRetry {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (c *Consumer) consume(ctx context.Context, msg *gcppubsub.Message) outcome {
	ctx = c.logg.WithField(ctx, "message_id", msg.ID)

	env, err := decode(msg)
	if err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "dropping malformed analytics message")
		return outcomeDropped
	}
	ctx = c.logg.WithFields(ctx, map[string]any{
		"event_id":     env.EventID,
		"event_type":   env.EventType,
		"aggregate_id": env.AggregateID,
	})
	if env.RequestID != "" {
		ctx = c.logg.WithRequestID(ctx, env.RequestID)
	}

	eventID, err := uuid.Parse(env.EventID)
	if err != nil {
		c.logg.Warn(ctx, "dropping analytics message with invalid event id")
		return outcomeDropped
	}

	first, err := c.claims.Claim(ctx, eventID)
	if err != nil {
		c.logg.Error(ctx, "claim analytics event", err)
		return outcomeRetry
	}
	if !first {
		c.logg.Debug(ctx, "analytics event already applied")
		return outcomeDuplicate
	}

	if err := c.handler.Handle(ctx, *env); err != nil {
		if errors.Is(err, router.ErrUnsupportedEventType) {
			c.logg.Warn(ctx, "no analytics handler for event type")
			return outcomeDropped
		}
		if !pkgerrors.Retryable(err) {
			c.logg.Error(ctx, "analytics event rejected", err)
			return outcomeDropped
		}
		c.logg.Error(ctx, "analytics handler failed", err)
		if relErr := c.claims.Release(ctx, eventID); relErr != nil {
			c.logg.Error(ctx, "release analytics claim", relErr)
		}
		return outcomeRetry
	}
	return outcomeHandled
}

// decode reads the outbox envelope from the body and the routing facts from
// the attributes the relay sets.
func decode(msg *gcppubsub.Message) (*types.Envelope, error) {
	var stored outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &stored); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	attr := func(name string) string { return strings.TrimSpace(msg.Attributes[name]) }

	eventType, err := enums.ParseOutboxEventType(attr("event_type"))
	if err != nil {
		return nil, err
	}
	aggregateType, err := enums.ParseOutboxAggregateType(attr("aggregate_type"))
	if err != nil {
		return nil, err
	}
	aggregateID := attr("aggregate_id")
	if aggregateID == "" {
		return nil, errors.New("aggregate_id attribute missing")
	}
	eventID := strings.TrimSpace(stored.EventID)
	if eventID == "" {
		eventID = attr("event_id")
	}
	if eventID == "" {
		return nil, errors.New("event id missing")
	}

	return &types.Envelope{
		EventID:       eventID,
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		OccurredAt:    stored.OccurredAt.UTC(),
		Version:       stored.Version,
		RequestID:     stored.RequestID,
		Payload:       stored.Data,
	}, nil
}
