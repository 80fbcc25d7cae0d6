package payments

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	stripego "github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/forkfleet/forkfleet-backend/pkg/enums"
	pkgerrors "github.com/forkfleet/forkfleet-backend/pkg/errors"
	"github.com/forkfleet/forkfleet-backend/pkg/square"
)

// WebhookStatus is the terminal outcome a gateway reports.
type WebhookStatus string

const (
	WebhookSucceeded WebhookStatus = "succeeded"
	WebhookFailed    WebhookStatus = "failed"
)

// WebhookEvent is the provider-neutral form of a payment notification.
type WebhookEvent struct {
	EventID           string
	ExternalReference string
	Status            WebhookStatus
	Amount            int64
	Currency          enums.Currency
	Reason            string
}

// WebhookVerifier authenticates a raw delivery and parses it. A nil event with
// a nil error means the delivery is authentic but irrelevant.
type WebhookVerifier interface {
	Provider() enums.PaymentProvider
	Verify(headers http.Header, payload []byte) (*WebhookEvent, error)
}

// StripeVerifier handles Checkout Session events.
type StripeVerifier struct {
	secret string
}

func NewStripeVerifier(signingSecret string) *StripeVerifier {
	return &StripeVerifier{secret: signingSecret}
}

func (v *StripeVerifier) Provider() enums.PaymentProvider { return enums.PaymentProviderStripe }

func (v *StripeVerifier) Verify(headers http.Header, payload []byte) (*WebhookEvent, error) {
	sig := headers.Get("Stripe-Signature")
	if sig == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "stripe signature missing")
	}
	event, err := webhook.ConstructEventWithOptions(payload, sig, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid stripe signature")
	}

	var status WebhookStatus
	switch event.Type {
	case stripego.EventTypeCheckoutSessionCompleted, stripego.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		status = WebhookSucceeded
	case stripego.EventTypeCheckoutSessionAsyncPaymentFailed, stripego.EventTypeCheckoutSessionExpired:
		status = WebhookFailed
	default:
		return nil, nil
	}
	if event.Data == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	var sess stripego.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
	}
	// A completed session for a delayed method is not paid yet; the async
	// succeeded event follows.
	if event.Type == stripego.EventTypeCheckoutSessionCompleted && sess.PaymentStatus != stripego.CheckoutSessionPaymentStatusPaid {
		return nil, nil
	}
	if sess.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout session id missing")
	}

	out := &WebhookEvent{
		EventID:           event.ID,
		ExternalReference: sess.ID,
		Status:            status,
		Amount:            sess.AmountTotal,
		Currency:          enums.Currency(strings.ToUpper(string(sess.Currency))),
	}
	if status == WebhookFailed {
		out.Reason = string(event.Type)
	}
	return out, nil
}

// SquareVerifier handles payment.created and payment.updated notifications.
type SquareVerifier struct {
	signatureKey    string
	notificationURL string
}

func NewSquareVerifier(signatureKey, notificationURL string) *SquareVerifier {
	return &SquareVerifier{signatureKey: signatureKey, notificationURL: notificationURL}
}

func (v *SquareVerifier) Provider() enums.PaymentProvider { return enums.PaymentProviderSquare }

type squareNotification struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Data    struct {
		Object struct {
			Payment *squarePayment `json:"payment"`
		} `json:"object"`
	} `json:"data"`
}

type squarePayment struct {
	ID          string `json:"id"`
	OrderID     string `json:"order_id"`
	Status      string `json:"status"`
	AmountMoney struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	} `json:"amount_money"`
}

func (v *SquareVerifier) Verify(headers http.Header, payload []byte) (*WebhookEvent, error) {
	sig := headers.Get(square.SignatureHeader)
	if sig == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "square signature missing")
	}
	if !square.ValidSignature(payload, v.notificationURL, v.signatureKey, sig) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid square signature")
	}

	var note squareNotification
	if err := json.Unmarshal(payload, &note); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode square notification")
	}
	if note.Type != "payment.created" && note.Type != "payment.updated" {
		return nil, nil
	}
	payment := note.Data.Object.Payment
	if payment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "square payment object missing")
	}

	var status WebhookStatus
	switch strings.ToUpper(payment.Status) {
	case "COMPLETED":
		status = WebhookSucceeded
	case "FAILED", "CANCELED":
		status = WebhookFailed
	default:
		return nil, nil
	}
	if payment.OrderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "square payment has no order reference")
	}

	out := &WebhookEvent{
		EventID:           note.EventID,
		ExternalReference: payment.OrderID,
		Status:            status,
		Amount:            payment.AmountMoney.Amount,
		Currency:          enums.Currency(strings.ToUpper(payment.AmountMoney.Currency)),
	}
	if status == WebhookFailed {
		out.Reason = fmt.Sprintf("square payment %s", strings.ToLower(payment.Status))
	}
	return out, nil
}
