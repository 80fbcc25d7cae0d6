// Package idempotency records which outbox events a consumer has already
// applied. Pub/Sub delivers at least once, so every subscriber claims an
// event id before acting on it.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type markerStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Marker claims event ids per consumer under
// ff:idempotency:evt:<consumer>:<event_id>.
type Marker struct {
	store    markerStore
	consumer string
	ttl      time.Duration
}

func NewMarker(store markerStore, consumer string, ttl time.Duration) (*Marker, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency: store is required")
	case consumer == "":
		return nil, errors.New("idempotency: consumer name is required")
	case ttl <= 0:
		return nil, errors.New("idempotency: ttl must be positive")
	}
	return &Marker{store: store, consumer: consumer, ttl: ttl}, nil
}

// Claim reports true when the caller is the first to see eventID and must
// process it. A false result means another delivery already did.
func (m *Marker) Claim(ctx context.Context, eventID uuid.UUID) (bool, error) {
	if eventID == uuid.Nil {
		return false, errors.New("idempotency: event id is required")
	}
	return m.store.SetNX(ctx, m.key(eventID), time.Now().UTC().Format(time.RFC3339), m.ttl)
}

// Release drops a claim so a redelivery of a failed event is processed again.
func (m *Marker) Release(ctx context.Context, eventID uuid.UUID) error {
	return m.store.Del(ctx, m.key(eventID))
}

func (m *Marker) key(eventID uuid.UUID) string {
	return m.store.IdempotencyKey("evt:"+m.consumer, eventID.String())
}
