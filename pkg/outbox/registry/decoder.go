package registry

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/forkfleet/forkfleet-backend/pkg/enums"
	"github.com/forkfleet/forkfleet-backend/pkg/outbox/payloads"
)

// Decoder turns a stored event payload into its typed form.
type Decoder func(payload json.RawMessage) (any, error)

type registryKey struct {
	eventType enums.OutboxEventType
	version   int
}

// DecoderRegistry stores versioned payload decoders for consumers.
type DecoderRegistry struct {
	mtx      sync.RWMutex
	registry map[registryKey]Decoder
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{registry: make(map[registryKey]Decoder)}
}

// Register stores a decoder for the given event type and version.
func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decoder Decoder) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.registry[registryKey{eventType: eventType, version: version}] = decoder
}

// Decode runs the decoder registered for the event type and version.
// Version 0 is read as 1, the version every producer writes today.
func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (any, error) {
	if version == 0 {
		version = 1
	}
	r.mtx.RLock()
	decoder, ok := r.registry[registryKey{eventType: eventType, version: version}]
	r.mtx.RUnlock()
	if !ok {
		return nil, fmt.Errorf("decoder not registered for %s@v%d", eventType, version)
	}
	return decoder(payload)
}

// JSON decodes into a fresh *T.
func JSON[T any]() Decoder {
	return func(payload json.RawMessage) (any, error) {
		out := new(T)
		if err := json.Unmarshal(payload, out); err != nil {
			return nil, err
		}
		return out, nil
	}
}

// DefaultDecoders registers the v1 decoder of every order lifecycle event.
func DefaultDecoders() *DecoderRegistry {
	r := NewDecoderRegistry()
	r.Register(enums.EventOrderCreated, 1, JSON[payloads.OrderCreatedEvent]())
	r.Register(enums.EventOrderStatusChanged, 1, JSON[payloads.OrderStatusChangedEvent]())
	r.Register(enums.EventOrderCanceled, 1, JSON[payloads.OrderCanceledEvent]())
	r.Register(enums.EventDeliveryBooked, 1, JSON[payloads.DeliveryBookedEvent]())
	for _, eventType := range []enums.OutboxEventType{
		enums.EventPaymentSettled,
		enums.EventPaymentFailed,
		enums.EventPaymentRefunded,
	} {
		r.Register(eventType, 1, JSON[payloads.PaymentStatusEvent]())
	}
	return r
}
