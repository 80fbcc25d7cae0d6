package router

import (
	"context"

	"github.com/forkfleet/forkfleet-backend/internal/analytics/types"
	"github.com/forkfleet/forkfleet-backend/pkg/enums"
	pkgerrors "github.com/forkfleet/forkfleet-backend/pkg/errors"
	"github.com/forkfleet/forkfleet-backend/pkg/logger"
	"github.com/forkfleet/forkfleet-backend/pkg/outbox/payloads"
)

// paymentStatusHandler serves payment_settled, payment_failed and payment_refunded.
type paymentStatusHandler struct {
	writer Writer
	logg   *logger.Logger
}

func newPaymentStatusHandler(writer Writer, logg *logger.Logger) Handler {
	return &paymentStatusHandler{writer: writer, logg: logg}
}

func (h *paymentStatusHandler) Handle(ctx context.Context, envelope types.Envelope, payload any) error {
	event, ok := payload.(*payloads.PaymentStatusEvent)
	if !ok {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid payload for %s", envelope.EventType)
	}
	logCtx := h.logg.WithFields(ctx, map[string]any{
		"event_type":        envelope.EventType,
		"order_id":          event.OrderID,
		"payment_record_id": event.PaymentRecordID,
		"provider":          event.Provider,
	})

	row, err := baseRow(envelope, event.OrderID, event.OccurredAt, event)
	if err != nil {
		h.logg.Error(logCtx, "failed to build payment row", err)
		return err
	}
	row.PaymentStatus = stringPtr(string(event.Status))
	row.Provider = stringPtr(string(event.Provider))
	row.Currency = stringPtr(string(event.Currency))
	if envelope.EventType == enums.EventPaymentRefunded {
		row.RefundCents = int64Ptr(event.Amount)
	} else {
		row.TotalCents = int64Ptr(event.Amount)
	}
	if event.VendorShare != 0 {
		row.VendorShareCents = int64Ptr(event.VendorShare)
	}

	if err := h.writer.InsertOrderEvent(logCtx, row); err != nil {
		h.logg.Error(logCtx, "failed to insert order event row", err)
		return err
	}

	h.logg.Info(logCtx, "payment handler inserted row")
	return nil
}
