package payloads

import "github.com/google/uuid"

// OrderScoped is implemented by every payload that belongs to one order.
// Consumers rely on the order id to keep an order's events in sequence.
type OrderScoped interface {
	OrderRef() uuid.UUID
}

func (e *OrderCreatedEvent) OrderRef() uuid.UUID       { return e.OrderID }
func (e *OrderStatusChangedEvent) OrderRef() uuid.UUID { return e.OrderID }
func (e *OrderCanceledEvent) OrderRef() uuid.UUID      { return e.OrderID }
func (e *PaymentStatusEvent) OrderRef() uuid.UUID      { return e.OrderID }
func (e *DeliveryBookedEvent) OrderRef() uuid.UUID     { return e.OrderID }
