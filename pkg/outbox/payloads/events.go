package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/forkfleet/forkfleet-backend/pkg/enums"
)

// OrderCreatedEvent is emitted in the checkout transaction.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	OrderNumber   string              `json:"order_number"`
	CustomerID    uuid.UUID           `json:"customer_id"`
	VendorID      uuid.UUID           `json:"vendor_id"`
	OrderType     enums.OrderType     `json:"order_type"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	Subtotal      int64               `json:"subtotal"`
	DeliveryFee   int64               `json:"delivery_fee"`
	TotalAmount   int64               `json:"total_amount"`
	Currency      enums.Currency      `json:"currency"`
	ItemCount     int                 `json:"item_count"`
	CreatedAt     time.Time           `json:"created_at"`
}

// OrderStatusChangedEvent records one accepted state machine transition.
type OrderStatusChangedEvent struct {
	OrderID    uuid.UUID         `json:"order_id"`
	CustomerID uuid.UUID         `json:"customer_id"`
	VendorID   uuid.UUID         `json:"vendor_id"`
	From       enums.OrderStatus `json:"from"`
	To         enums.OrderStatus `json:"to"`
	Actor      enums.ActorRole   `json:"actor"`
	Note       *string           `json:"note,omitempty"`
	ChangedAt  time.Time         `json:"changed_at"`
}

// OrderCanceledEvent carries the cancellation outcome, including money moved.
type OrderCanceledEvent struct {
	OrderID        uuid.UUID           `json:"order_id"`
	CustomerID     uuid.UUID           `json:"customer_id"`
	VendorID       uuid.UUID           `json:"vendor_id"`
	PreviousStatus enums.OrderStatus   `json:"previous_status"`
	CancelledBy    enums.ActorRole     `json:"cancelled_by"`
	Reason         string              `json:"reason"`
	PaymentStatus  enums.PaymentStatus `json:"payment_status"`
	RefundedAmount int64               `json:"refunded_amount"`
	VendorDebited  int64               `json:"vendor_debited"`
	Currency       enums.Currency      `json:"currency"`
	CancelledAt    time.Time           `json:"cancelled_at"`
}

// PaymentStatusEvent is shared by payment_settled, payment_failed and
// payment_refunded.
type PaymentStatusEvent struct {
	PaymentRecordID   uuid.UUID             `json:"payment_record_id"`
	OrderID           uuid.UUID             `json:"order_id"`
	Provider          enums.PaymentProvider `json:"provider"`
	Status            enums.PaymentStatus   `json:"status"`
	Amount            int64                 `json:"amount"`
	VendorShare       int64                 `json:"vendor_share,omitempty"`
	Currency          enums.Currency        `json:"currency"`
	ExternalReference *string               `json:"external_reference,omitempty"`
	Reason            *string               `json:"reason,omitempty"`
	OccurredAt        time.Time             `json:"occurred_at"`
}

// DeliveryBookedEvent is emitted once a courier accepted the delivery.
type DeliveryBookedEvent struct {
	OrderID            uuid.UUID `json:"order_id"`
	BookingID          uuid.UUID `json:"booking_id"`
	Provider           string    `json:"provider"`
	ExternalDeliveryID string    `json:"external_delivery_id"`
	TrackingRef        string    `json:"tracking_ref"`
	Attempts           int       `json:"attempts"`
	BookedAt           time.Time `json:"booked_at"`
}
