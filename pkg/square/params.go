package square

import (
	"strings"

	sq "github.com/square/square-go-sdk"
	"github.com/square/square-go-sdk/checkout"

	pkgerrors "github.com/forkfleet/forkfleet-backend/pkg/errors"
)

// PaymentLinkParams describes a quick-pay link for one order.
type PaymentLinkParams struct {
	OrderNumber    string
	Amount         int64
	Currency       string
	LocationID     string
	RedirectURL    string
	IdempotencyKey string
}

// PaymentLink is what the bank-transfer strategy keeps from Square's answer.
type PaymentLink struct {
	ID      string
	URL     string
	OrderID string
}

func (p PaymentLinkParams) validate() error {
	switch {
	case strings.TrimSpace(p.OrderNumber) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "order number is required")
	case p.Amount <= 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	case strings.TrimSpace(p.Currency) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "currency is required")
	}
	return nil
}

func (p PaymentLinkParams) request(locationID, idempotencyKey string) *checkout.CreatePaymentLinkRequest {
	amount := p.Amount
	currency := sq.Currency(strings.ToUpper(strings.TrimSpace(p.Currency)))
	note := p.OrderNumber
	req := &checkout.CreatePaymentLinkRequest{
		IdempotencyKey: &idempotencyKey,
		QuickPay: &sq.QuickPay{
			Name:       "Order " + p.OrderNumber,
			PriceMoney: &sq.Money{Amount: &amount, Currency: &currency},
			LocationID: locationID,
		},
		PaymentNote: &note,
	}
	if redirect := strings.TrimSpace(p.RedirectURL); redirect != "" {
		req.CheckoutOptions = &sq.CheckoutOptions{RedirectURL: &redirect}
	}
	return req
}
