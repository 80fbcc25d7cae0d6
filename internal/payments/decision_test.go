package payments

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/forkfleet/forkfleet-backend/pkg/db/models"
	"github.com/forkfleet/forkfleet-backend/pkg/enums"
	pkgerrors "github.com/forkfleet/forkfleet-backend/pkg/errors"
)

func TestDecideWebhook(t *testing.T) {
	success := WebhookEvent{Status: WebhookSucceeded, Amount: 1800, Currency: enums.CurrencyUSD}
	failure := WebhookEvent{Status: WebhookFailed}

	cases := []struct {
		name        string
		record      enums.PaymentStatus
		order       enums.OrderStatus
		event       WebhookEvent
		want        webhookAction
		wantErrCode pkgerrors.Code
	}{
		{"fresh success", enums.PaymentStatusPending, enums.OrderStatusNew, success, actionSettle, ""},
		{"success after failure", enums.PaymentStatusFailed, enums.OrderStatusNew, success, actionSettle, ""},
		{"success replay", enums.PaymentStatusPaid, enums.OrderStatusNew, success, actionNone, ""},
		{"success on refunded", enums.PaymentStatusRefunded, enums.OrderStatusCancelled, success, actionNone, ""},
		{"success on cancelled order", enums.PaymentStatusPending, enums.OrderStatusCancelled, success, actionRefundCancelled, ""},
		{"amount mismatch", enums.PaymentStatusPending, enums.OrderStatusNew, WebhookEvent{Status: WebhookSucceeded, Amount: 1, Currency: enums.CurrencyUSD}, actionNone, pkgerrors.CodeValidation},
		{"currency mismatch", enums.PaymentStatusPending, enums.OrderStatusNew, WebhookEvent{Status: WebhookSucceeded, Amount: 1800, Currency: enums.CurrencyEUR}, actionNone, pkgerrors.CodeValidation},
		{"fresh failure", enums.PaymentStatusPending, enums.OrderStatusNew, failure, actionFail, ""},
		{"failure replay", enums.PaymentStatusFailed, enums.OrderStatusNew, failure, actionNone, ""},
		{"failure after paid", enums.PaymentStatusPaid, enums.OrderStatusConfirmed, failure, actionNone, ""},
		{"unknown status", enums.PaymentStatusPending, enums.OrderStatusNew, WebhookEvent{Status: "weird"}, actionNone, pkgerrors.CodeValidation},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			record := &models.PaymentRecord{Status: tc.record, Amount: 1800, Currency: enums.CurrencyUSD}
			order := &models.Order{Status: tc.order}
			got, _, err := decideWebhook(record, order, tc.event)
			if tc.wantErrCode != "" {
				assert.True(t, pkgerrors.IsCode(err, tc.wantErrCode), "err = %v", err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDecideWebhookIsDeterministic(t *testing.T) {
	record := &models.PaymentRecord{Status: enums.PaymentStatusPending, Amount: 500, Currency: enums.CurrencyUSD}
	order := &models.Order{Status: enums.OrderStatusNew}
	event := WebhookEvent{Status: WebhookSucceeded, Amount: 500, Currency: enums.CurrencyUSD}

	first, _, _ := decideWebhook(record, order, event)
	second, _, _ := decideWebhook(record, order, event)
	assert.Equal(t, first, second)
	assert.Equal(t, enums.PaymentStatusPending, record.Status, "decision must not mutate the record")
}
