package router

import (
	"context"

	"github.com/forkfleet/forkfleet-backend/internal/analytics/types"
	pkgerrors "github.com/forkfleet/forkfleet-backend/pkg/errors"
	"github.com/forkfleet/forkfleet-backend/pkg/logger"
	"github.com/forkfleet/forkfleet-backend/pkg/outbox/payloads"
)

type deliveryBookedHandler struct {
	writer Writer
	logg   *logger.Logger
}

func newDeliveryBookedHandler(writer Writer, logg *logger.Logger) Handler {
	return &deliveryBookedHandler{writer: writer, logg: logg}
}

func (h *deliveryBookedHandler) Handle(ctx context.Context, envelope types.Envelope, payload any) error {
	event, ok := payload.(*payloads.DeliveryBookedEvent)
	if !ok {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid payload for delivery_booked")
	}
	logCtx := h.logg.WithFields(ctx, map[string]any{
		"event_type": envelope.EventType,
		"order_id":   event.OrderID,
		"provider":   event.Provider,
	})

	row, err := baseRow(envelope, event.OrderID, event.BookedAt, event)
	if err != nil {
		h.logg.Error(logCtx, "failed to build delivery row", err)
		return err
	}
	row.Provider = stringPtr(event.Provider)

	if err := h.writer.InsertOrderEvent(logCtx, row); err != nil {
		h.logg.Error(logCtx, "failed to insert order event row", err)
		return err
	}

	h.logg.Info(logCtx, "delivery_booked handler inserted row")
	return nil
}
