package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/forkfleet/forkfleet-backend/internal/analytics/types"
	"github.com/forkfleet/forkfleet-backend/pkg/enums"
	pkgerrors "github.com/forkfleet/forkfleet-backend/pkg/errors"
	"github.com/forkfleet/forkfleet-backend/pkg/logger"
	"github.com/forkfleet/forkfleet-backend/pkg/outbox/registry"
)

var ErrUnsupportedEventType = errors.New("unsupported analytics event type")

// Writer delivers BigQuery rows produced by analytics handlers.
type Writer interface {
	InsertOrderEvent(ctx context.Context, row types.OrderEventRow) error
}

// Handler receives an envelope plus a decoded event payload.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope, payload any) error
}

// Router dispatches analytics envelopes to the configured handler per event type.
type Router struct {
	handlers map[enums.OutboxEventType]Handler
	decoders *registry.DecoderRegistry
	logg     *logger.Logger
}

// NewRouter wires the default handlers and allows overrides for specific events.
func NewRouter(writer Writer, logg *logger.Logger, overrides map[enums.OutboxEventType]Handler) (*Router, error) {
	if writer == nil {
		return nil, errors.New("writer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}

	paymentHandler := newPaymentStatusHandler(writer, logg)
	handlers := map[enums.OutboxEventType]Handler{
		enums.EventOrderCreated:       newOrderCreatedHandler(writer, logg),
		enums.EventOrderStatusChanged: newOrderStatusChangedHandler(writer, logg),
		enums.EventOrderCanceled:      newOrderCanceledHandler(writer, logg),
		enums.EventPaymentSettled:     paymentHandler,
		enums.EventPaymentFailed:      paymentHandler,
		enums.EventPaymentRefunded:    paymentHandler,
		enums.EventDeliveryBooked:     newDeliveryBookedHandler(writer, logg),
	}

	for event, custom := range overrides {
		if _, ok := handlers[event]; !ok || custom == nil {
			continue
		}
		handlers[event] = custom
	}

	return &Router{
		handlers: handlers,
		decoders: registry.DefaultDecoders(),
		logg:     logg,
	}, nil
}

// Handle dispatches the incoming envelope to the configured handler.
func (r *Router) Handle(ctx context.Context, envelope types.Envelope) error {
	handler, ok := r.handlers[envelope.EventType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedEventType, envelope.EventType)
	}
	if len(envelope.Payload) == 0 {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "empty payload for %s", envelope.EventType)
	}
	payload, err := r.decoders.Decode(envelope.EventType, envelope.Version, envelope.Payload)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode "+string(envelope.EventType)+" payload")
	}

	return handler.Handle(ctx, envelope, payload)
}
