package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"

	pkgerrors "github.com/forkfleet/forkfleet-backend/pkg/errors"
)

// Metadata keys stamped on every checkout session.
const (
	MetadataOrderID     = "order_id"
	MetadataOrderNumber = "order_number"
)

// CheckoutSessionParams describes a one-off hosted card payment for an order.
type CheckoutSessionParams struct {
	OrderID        string
	OrderNumber    string
	Amount         int64
	Currency       string
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
}

// CheckoutSession is the subset of the Stripe session the orchestrator keeps.
type CheckoutSession struct {
	ID  string
	URL string
}

// CreateCheckoutSession opens a payment-mode Checkout Session. The session id
// is the reference later webhook events carry.
func (c *Client) CreateCheckoutSession(ctx context.Context, p CheckoutSessionParams) (*CheckoutSession, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stripe client unavailable")
	}
	if p.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	params := p.toStripeParams()
	params.Context = ctx
	if strings.TrimSpace(p.IdempotencyKey) != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}

	sess, err := session.New(params)
	if err != nil {
		return nil, mapStripeError(err, "create checkout session")
	}
	if sess == nil || sess.ID == "" || sess.URL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stripe checkout session response incomplete")
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

func (p CheckoutSessionParams) toStripeParams() *stripe.CheckoutSessionParams {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(p.OrderID),
		SuccessURL:        stripe.String(p.SuccessURL),
		CancelURL:         stripe.String(p.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(p.Currency)),
					UnitAmount: stripe.Int64(p.Amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(fmt.Sprintf("Order %s", p.OrderNumber)),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.AddMetadata(MetadataOrderID, p.OrderID)
	params.AddMetadata(MetadataOrderNumber, p.OrderNumber)
	return params
}

func mapStripeError(err error, op string) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		code := pkgerrors.CodeDependency
		switch {
		case stripeErr.HTTPStatusCode == http.StatusUnauthorized:
			code = pkgerrors.CodeUnauthorized
		case stripeErr.Type == stripe.ErrorTypeInvalidRequest:
			code = pkgerrors.CodeValidation
		case stripeErr.Type == stripe.ErrorTypeIdempotency:
			code = pkgerrors.CodeIdempotency
		}
		return pkgerrors.Wrap(code, err, fmt.Sprintf("stripe %s failed", op))
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("stripe %s failed", op))
}
