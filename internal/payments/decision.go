package payments

import (
	"fmt"

	"github.com/forkfleet/forkfleet-backend/pkg/db/models"
	"github.com/forkfleet/forkfleet-backend/pkg/enums"
	pkgerrors "github.com/forkfleet/forkfleet-backend/pkg/errors"
)

type webhookAction int

const (
	actionNone webhookAction = iota
	actionSettle
	actionRefundCancelled
	actionFail
)

func (a webhookAction) String() string {
	switch a {
	case actionSettle:
		return "settle"
	case actionRefundCancelled:
		return "refund_cancelled"
	case actionFail:
		return "fail"
	default:
		return "none"
	}
}

// decideWebhook is a pure function of the locked record, its order and the
// incoming event. Replaying an already-applied event always yields actionNone.
func decideWebhook(record *models.PaymentRecord, order *models.Order, event WebhookEvent) (webhookAction, string, error) {
	switch event.Status {
	case WebhookSucceeded:
		switch record.Status {
		case enums.PaymentStatusPaid, enums.PaymentStatusRefunded, enums.PaymentStatusPartiallyRefunded:
			return actionNone, "already settled", nil
		}
		if event.Amount != record.Amount || event.Currency != record.Currency {
			return actionNone, "", pkgerrors.New(pkgerrors.CodeValidation, "webhook amount does not match payment").
				WithDetails(map[string]any{
					"expected_amount":   record.Amount,
					"expected_currency": record.Currency,
					"received_amount":   event.Amount,
					"received_currency": event.Currency,
				})
		}
		if order.Status == enums.OrderStatusCancelled {
			return actionRefundCancelled, "order cancelled while payment was pending", nil
		}
		return actionSettle, "", nil
	case WebhookFailed:
		switch record.Status {
		case enums.PaymentStatusPending:
			return actionFail, "", nil
		case enums.PaymentStatusFailed:
			return actionNone, "already failed", nil
		default:
			return actionNone, fmt.Sprintf("failure ignored for %s payment", record.Status), nil
		}
	default:
		return actionNone, "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown webhook status %q", event.Status))
	}
}
