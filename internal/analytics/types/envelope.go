package types

import (
	"encoding/json"
	"time"

	"github.com/forkfleet/forkfleet-backend/pkg/enums"
)

// Envelope is the decoded form of an outbox message delivered over Pub/Sub.
type Envelope struct {
	EventID       string                    `json:"event_id"`
	EventType     enums.OutboxEventType     `json:"event_type"`
	AggregateType enums.OutboxAggregateType `json:"aggregate_type"`
	AggregateID   string                    `json:"aggregate_id"`
	OccurredAt    time.Time                 `json:"occurred_at"`
	Version       int                       `json:"version"`
	RequestID     string                    `json:"request_id,omitempty"`
	Payload       json.RawMessage           `json:"payload"`
}
