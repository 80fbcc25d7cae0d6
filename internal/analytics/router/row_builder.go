package router

import (
	"fmt"
	"time"

	"github.com/forkfleet/forkfleet-backend/internal/analytics/types"
	"github.com/google/uuid"
)

// baseRow fills the columns every order event carries. occurred falls back
// to the envelope timestamp when the payload has none.
func baseRow(envelope types.Envelope, orderID uuid.UUID, occurred time.Time, payload any) (types.OrderEventRow, error) {
	if occurred.IsZero() {
		occurred = envelope.OccurredAt
	}

	payloadJSON, err := types.JSONColumn(payload)
	if err != nil {
		return types.OrderEventRow{}, fmt.Errorf("encode payload json: %w", err)
	}

	return types.OrderEventRow{
		EventID:    envelope.EventID,
		EventType:  string(envelope.EventType),
		OccurredAt: occurred.UTC(),
		OrderID:    uuidPtr(orderID),
		Payload:    payloadJSON,
	}, nil
}
