package router

import (
	"context"

	"github.com/forkfleet/forkfleet-backend/internal/analytics/types"
	"github.com/forkfleet/forkfleet-backend/pkg/enums"
	pkgerrors "github.com/forkfleet/forkfleet-backend/pkg/errors"
	"github.com/forkfleet/forkfleet-backend/pkg/logger"
	"github.com/forkfleet/forkfleet-backend/pkg/outbox/payloads"
)

type orderCanceledHandler struct {
	writer Writer
	logg   *logger.Logger
}

func newOrderCanceledHandler(writer Writer, logg *logger.Logger) Handler {
	return &orderCanceledHandler{writer: writer, logg: logg}
}

func (h *orderCanceledHandler) Handle(ctx context.Context, envelope types.Envelope, payload any) error {
	event, ok := payload.(*payloads.OrderCanceledEvent)
	if !ok {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid payload for order_canceled")
	}
	logCtx := h.logg.WithFields(ctx, map[string]any{
		"event_type":   envelope.EventType,
		"order_id":     event.OrderID,
		"cancelled_by": event.CancelledBy,
	})

	row, err := baseRow(envelope, event.OrderID, event.CancelledAt, event)
	if err != nil {
		h.logg.Error(logCtx, "failed to build cancellation row", err)
		return err
	}
	row.CustomerID = uuidPtr(event.CustomerID)
	row.VendorID = uuidPtr(event.VendorID)
	row.FromStatus = stringPtr(string(event.PreviousStatus))
	row.ToStatus = stringPtr(string(enums.OrderStatusCancelled))
	row.PaymentStatus = stringPtr(string(event.PaymentStatus))
	row.Actor = stringPtr(string(event.CancelledBy))
	row.Currency = stringPtr(string(event.Currency))
	row.RefundCents = int64Ptr(event.RefundedAmount)
	row.VendorShareCents = int64Ptr(-event.VendorDebited)

	if err := h.writer.InsertOrderEvent(logCtx, row); err != nil {
		h.logg.Error(logCtx, "failed to insert order event row", err)
		return err
	}

	h.logg.Info(logCtx, "order_canceled handler inserted row")
	return nil
}
