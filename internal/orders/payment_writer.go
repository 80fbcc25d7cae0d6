package orders

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forkfleet/forkfleet-backend/pkg/enums"
	pkgerrors "github.com/forkfleet/forkfleet-backend/pkg/errors"
)

// PaymentStatusWriter is the only path through which payment code touches an
// order row.
type PaymentStatusWriter struct {
	repo Repository
}

func NewPaymentStatusWriter(repo Repository) *PaymentStatusWriter {
	return &PaymentStatusWriter{repo: repo}
}

// ApplyPaymentOutcome locks the order and writes payment_status only.
func (w *PaymentStatusWriter) ApplyPaymentOutcome(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, status enums.PaymentStatus) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "payment outcome requires a transaction")
	}
	if !status.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid payment status")
	}
	repo := w.repo.WithTx(tx)
	if _, err := repo.LockOrder(ctx, orderID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock order")
	}
	if err := repo.UpdateOrder(ctx, orderID, map[string]any{"payment_status": status}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update payment status")
	}
	return nil
}
