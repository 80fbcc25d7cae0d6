package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/forkfleet/forkfleet-backend/pkg/config"
	"github.com/forkfleet/forkfleet-backend/pkg/db/models"
	"github.com/forkfleet/forkfleet-backend/pkg/enums"
	pkgerrors "github.com/forkfleet/forkfleet-backend/pkg/errors"
	"github.com/forkfleet/forkfleet-backend/pkg/outbox"
	"github.com/forkfleet/forkfleet-backend/pkg/outbox/payloads"
)

// Route says where an event type is published and which aggregate owns it.
type Route struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
}

// ResolvedEvent is an outbox row that passed validation and is ready to send.
type ResolvedEvent struct {
	Route    Route
	Envelope outbox.PayloadEnvelope
	Payload  any
	// OrderingKey groups every event of one order so subscribers see them
	// in commit order.
	OrderingKey string
}

// EventRegistry routes order lifecycle events to their Pub/Sub topics.
type EventRegistry struct {
	routes   map[enums.OutboxEventType]Route
	decoders *DecoderRegistry
}


// routingTable maps each event to its owning aggregate and the topic setting
// it publishes to. Order and delivery events share the orders topic so one
// ordering key covers an order's whole lifecycle.
var routingTable = []struct {
	event     enums.OutboxEventType
	aggregate enums.OutboxAggregateType
	topic     func(config.PubSubConfig) string
}{
	{enums.EventOrderCreated, enums.AggregateOrder, ordersTopic},
	{enums.EventOrderStatusChanged, enums.AggregateOrder, ordersTopic},
	{enums.EventOrderCanceled, enums.AggregateOrder, ordersTopic},
	{enums.EventDeliveryBooked, enums.AggregateDelivery, ordersTopic},
	{enums.EventPaymentSettled, enums.AggregatePaymentRecord, paymentsTopic},
	{enums.EventPaymentFailed, enums.AggregatePaymentRecord, paymentsTopic},
	{enums.EventPaymentRefunded, enums.AggregatePaymentRecord, paymentsTopic},
}

func ordersTopic(cfg config.PubSubConfig) string   { return cfg.OrdersTopic }
func paymentsTopic(cfg config.PubSubConfig) string { return cfg.PaymentsTopic }

func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	reg := &EventRegistry{
		routes:   make(map[enums.OutboxEventType]Route, len(routingTable)),
		decoders: DefaultDecoders(),
	}
	for _, entry := range routingTable {
		topic := strings.TrimSpace(entry.topic(cfg))
		if topic == "" {
			return nil, fmt.Errorf("no topic configured for %s events", entry.event)
		}
		reg.routes[entry.event] = Route{EventType: entry.event, AggregateType: entry.aggregate, Topic: topic}
	}
	return reg, nil
}

// Resolve checks the row against its route and decodes the payload. Every
// failure is a validation error: a malformed row stays malformed, so the relay
// parks it rather than retrying.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	route, ok := r.routes[event.EventType]
	switch {
	case !ok:
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "no route for event type %q", event.EventType)
	case route.AggregateType != event.AggregateType:
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "%s rows belong to %s, got %s", event.EventType, route.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "%s row has no aggregate id", event.EventType)
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable outbox envelope")
	}
	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "%s envelope carries no data", event.EventType)
	}
	payload, err := r.decoders.Decode(event.EventType, envelope.Version, data)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode "+string(event.EventType)+" payload")
	}

	return &ResolvedEvent{
		Route:       route,
		Envelope:    envelope,
		Payload:     payload,
		OrderingKey: orderingKey(payload, event.AggregateID),
	}, nil
}

// orderingKey prefers the order id carried by the payload and falls back to
// the aggregate id for events that predate it.
func orderingKey(payload any, aggregateID uuid.UUID) string {
	if scoped, ok := payload.(payloads.OrderScoped); ok {
		if id := scoped.OrderRef(); id != uuid.Nil {
			return id.String()
		}
	}
	return aggregateID.String()
}
