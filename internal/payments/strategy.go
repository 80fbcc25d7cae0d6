package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forkfleet/forkfleet-backend/internal/wallets"
	"github.com/forkfleet/forkfleet-backend/pkg/db/models"
	"github.com/forkfleet/forkfleet-backend/pkg/enums"
	pkgerrors "github.com/forkfleet/forkfleet-backend/pkg/errors"
	"github.com/forkfleet/forkfleet-backend/pkg/square"
	"github.com/forkfleet/forkfleet-backend/pkg/stripe"
)

const defaultGatewayTimeout = 10 * time.Second

// Strategy settles or initiates payment for one payment method.
type Strategy interface {
	Method() enums.PaymentMethod
	Process(ctx context.Context, tx *gorm.DB, req Request) (*Outcome, error)
}

// Request is what a strategy needs to know about the order being paid.
type Request struct {
	OrderID     uuid.UUID
	CustomerID  uuid.UUID
	OrderNumber string
	Amount      int64
	Currency    enums.Currency
}

func requestFor(order *models.Order) Request {
	return Request{
		OrderID:     order.ID,
		CustomerID:  order.CustomerID,
		OrderNumber: order.OrderNumber,
		Amount:      order.TotalAmount,
		Currency:    order.Currency,
	}
}

// Outcome is either immediate (money already captured) or pending on a
// gateway redirect, in which case Pending is set.
type Outcome struct {
	Provider enums.PaymentProvider
	Pending  *Pending
}

// Immediate reports whether the strategy captured the payment synchronously.
func (o *Outcome) Immediate() bool {
	return o != nil && o.Pending == nil
}

// Pending describes a gateway payment awaiting a webhook.
type Pending struct {
	RedirectURL       string
	ExternalReference string
}

type walletDebiter interface {
	Debit(ctx context.Context, tx *gorm.DB, m wallets.Movement) (*models.Wallet, error)
}

// WalletStrategy pays from the customer's stored balance.
type WalletStrategy struct {
	ledger walletDebiter
}

func NewWalletStrategy(ledger walletDebiter) (*WalletStrategy, error) {
	if ledger == nil {
		return nil, errors.New("wallet ledger required")
	}
	return &WalletStrategy{ledger: ledger}, nil
}

func (s *WalletStrategy) Method() enums.PaymentMethod { return enums.PaymentMethodWallet }

func (s *WalletStrategy) Process(ctx context.Context, tx *gorm.DB, req Request) (*Outcome, error) {
	orderID := req.OrderID
	if _, err := s.ledger.Debit(ctx, tx, wallets.Movement{
		UserID:   req.CustomerID,
		Amount:   req.Amount,
		Currency: req.Currency,
		Kind:     enums.BalanceKindCustomer,
		OrderID:  &orderID,
		Reason:   fmt.Sprintf("payment for order %s", req.OrderNumber),
	}); err != nil {
		return nil, err
	}
	return &Outcome{Provider: enums.PaymentProviderWallet}, nil
}

// CheckoutSessionCreator is satisfied by *stripe.Client.
type CheckoutSessionCreator interface {
	CreateCheckoutSession(ctx context.Context, p stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// CardStrategy sends the customer to a Stripe Checkout Session.
type CardStrategy struct {
	client     CheckoutSessionCreator
	successURL string
	cancelURL  string
	timeout    time.Duration
}

func NewCardStrategy(client CheckoutSessionCreator, successURL, cancelURL string, timeout time.Duration) (*CardStrategy, error) {
	if client == nil {
		return nil, errors.New("stripe client required")
	}
	if strings.TrimSpace(successURL) == "" || strings.TrimSpace(cancelURL) == "" {
		return nil, errors.New("stripe success and cancel urls required")
	}
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	return &CardStrategy{client: client, successURL: successURL, cancelURL: cancelURL, timeout: timeout}, nil
}

func (s *CardStrategy) Method() enums.PaymentMethod { return enums.PaymentMethodCard }

func (s *CardStrategy) Process(ctx context.Context, _ *gorm.DB, req Request) (*Outcome, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	sess, err := s.client.CreateCheckoutSession(callCtx, stripe.CheckoutSessionParams{
		OrderID:        req.OrderID.String(),
		OrderNumber:    req.OrderNumber,
		Amount:         req.Amount,
		Currency:       req.Currency.String(),
		SuccessURL:     s.successURL,
		CancelURL:      s.cancelURL,
		IdempotencyKey: "order-" + req.OrderID.String(),
	})
	if err != nil {
		return nil, gatewayError(callCtx, err, "stripe")
	}
	return &Outcome{
		Provider: enums.PaymentProviderStripe,
		Pending:  &Pending{RedirectURL: sess.URL, ExternalReference: sess.ID},
	}, nil
}

// PaymentLinkCreator is satisfied by *square.Client.
type PaymentLinkCreator interface {
	CreatePaymentLink(ctx context.Context, params square.PaymentLinkParams) (*square.PaymentLink, error)
}

// BankTransferStrategy sends the customer to a Square payment link that
// accepts bank transfers.
type BankTransferStrategy struct {
	client      PaymentLinkCreator
	redirectURL string
	timeout     time.Duration
}

func NewBankTransferStrategy(client PaymentLinkCreator, redirectURL string, timeout time.Duration) (*BankTransferStrategy, error) {
	if client == nil {
		return nil, errors.New("square client required")
	}
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	return &BankTransferStrategy{client: client, redirectURL: redirectURL, timeout: timeout}, nil
}

func (s *BankTransferStrategy) Method() enums.PaymentMethod { return enums.PaymentMethodBankTransfer }

func (s *BankTransferStrategy) Process(ctx context.Context, _ *gorm.DB, req Request) (*Outcome, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	link, err := s.client.CreatePaymentLink(callCtx, square.PaymentLinkParams{
		OrderNumber:    req.OrderNumber,
		Amount:         req.Amount,
		Currency:       req.Currency.String(),
		RedirectURL:    s.redirectURL,
		IdempotencyKey: "order-" + req.OrderID.String(),
	})
	if err != nil {
		return nil, gatewayError(callCtx, err, "square")
	}
	if link.OrderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "square payment link has no order reference")
	}
	return &Outcome{
		Provider: enums.PaymentProviderSquare,
		Pending:  &Pending{RedirectURL: link.URL, ExternalReference: link.OrderID},
	}, nil
}

// gatewayError maps every gateway failure to a dependency error. Gateway
// calls are never retried here; the checkout transaction rolls back.
func gatewayError(ctx context.Context, err error, gateway string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("%s gateway timed out", gateway))
	}
	if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeDependency {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("%s gateway request failed", gateway))
}
