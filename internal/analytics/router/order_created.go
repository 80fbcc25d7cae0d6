package router

import (
	"context"

	"github.com/forkfleet/forkfleet-backend/internal/analytics/types"
	pkgerrors "github.com/forkfleet/forkfleet-backend/pkg/errors"
	"github.com/forkfleet/forkfleet-backend/pkg/logger"
	"github.com/forkfleet/forkfleet-backend/pkg/outbox/payloads"
)

type orderCreatedHandler struct {
	writer Writer
	logg   *logger.Logger
}

func newOrderCreatedHandler(writer Writer, logg *logger.Logger) Handler {
	return &orderCreatedHandler{writer: writer, logg: logg}
}

func (h *orderCreatedHandler) Handle(ctx context.Context, envelope types.Envelope, payload any) error {
	event, ok := payload.(*payloads.OrderCreatedEvent)
	if !ok {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid payload for order_created")
	}
	logCtx := h.logg.WithFields(ctx, map[string]any{
		"event_type":   envelope.EventType,
		"order_id":     event.OrderID,
		"order_number": event.OrderNumber,
	})

	row, err := baseRow(envelope, event.OrderID, event.CreatedAt, event)
	if err != nil {
		h.logg.Error(logCtx, "failed to build order_created row", err)
		return err
	}
	row.CustomerID = uuidPtr(event.CustomerID)
	row.VendorID = uuidPtr(event.VendorID)
	row.OrderType = stringPtr(string(event.OrderType))
	row.PaymentMethod = stringPtr(string(event.PaymentMethod))
	row.Currency = stringPtr(string(event.Currency))
	row.SubtotalCents = int64Ptr(event.Subtotal)
	row.DeliveryFeeCents = int64Ptr(event.DeliveryFee)
	row.TotalCents = int64Ptr(event.TotalAmount)

	if err := h.writer.InsertOrderEvent(logCtx, row); err != nil {
		h.logg.Error(logCtx, "failed to insert order event row", err)
		return err
	}

	h.logg.Info(logCtx, "order_created handler inserted row")
	return nil
}
