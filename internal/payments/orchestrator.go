// Package payments runs the per-method payment strategies at checkout and
// applies gateway webhooks to payment records and orders.
package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forkfleet/forkfleet-backend/internal/wallets"
	"github.com/forkfleet/forkfleet-backend/pkg/db/models"
	"github.com/forkfleet/forkfleet-backend/pkg/enums"
	pkgerrors "github.com/forkfleet/forkfleet-backend/pkg/errors"
	"github.com/forkfleet/forkfleet-backend/pkg/logger"
	"github.com/forkfleet/forkfleet-backend/pkg/metrics"
	"github.com/forkfleet/forkfleet-backend/pkg/outbox"
	"github.com/forkfleet/forkfleet-backend/pkg/outbox/payloads"
)

// PaymentStatusWriter writes the order's payment_status column. The orders
// package owns that write.
type PaymentStatusWriter interface {
	ApplyPaymentOutcome(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, status enums.PaymentStatus) error
}

type walletCrediter interface {
	Credit(ctx context.Context, tx *gorm.DB, m wallets.Movement) (*models.Wallet, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type webhookGuard interface {
	CheckAndMark(ctx context.Context, provider, reference, status string) (bool, error)
	Release(ctx context.Context, provider, reference, status string) error
}

// OrchestratorParams wires the orchestrator. Strategies and Verifiers are
// keyed by their Method and Provider.
type OrchestratorParams struct {
	Strategies []Strategy
	Verifiers  []WebhookVerifier
	Repo       Repository
	Wallets    walletCrediter
	Orders     PaymentStatusWriter
	TxRunner   txRunner
	Outbox     outboxEmitter
	Guard      webhookGuard
	Metrics    *metrics.OrderMetrics
	Logger     *logger.Logger
	Clock      func() time.Time
}

type Orchestrator struct {
	strategies map[enums.PaymentMethod]Strategy
	verifiers  map[enums.PaymentProvider]WebhookVerifier
	repo       Repository
	wallets    walletCrediter
	orders     PaymentStatusWriter
	tx         txRunner
	outbox     outboxEmitter
	guard      webhookGuard
	metrics    *metrics.OrderMetrics
	logg       *logger.Logger
	now        func() time.Time
}

func NewOrchestrator(p OrchestratorParams) (*Orchestrator, error) {
	if len(p.Strategies) == 0 {
		return nil, errors.New("at least one payment strategy required")
	}
	if p.Repo == nil {
		return nil, errors.New("payment repository required")
	}
	if p.Wallets == nil {
		return nil, errors.New("wallet ledger required")
	}
	if p.Orders == nil {
		return nil, errors.New("payment status writer required")
	}
	if p.TxRunner == nil {
		return nil, errors.New("transaction runner required")
	}
	if p.Outbox == nil {
		return nil, errors.New("outbox emitter required")
	}
	if p.Guard == nil && len(p.Verifiers) > 0 {
		return nil, errors.New("webhook idempotency guard required")
	}
	o := &Orchestrator{
		strategies: make(map[enums.PaymentMethod]Strategy, len(p.Strategies)),
		verifiers:  make(map[enums.PaymentProvider]WebhookVerifier, len(p.Verifiers)),
		repo:       p.Repo,
		wallets:    p.Wallets,
		orders:     p.Orders,
		tx:         p.TxRunner,
		outbox:     p.Outbox,
		guard:      p.Guard,
		metrics:    p.Metrics,
		logg:       p.Logger,
		now:        p.Clock,
	}
	if o.now == nil {
		o.now = time.Now
	}
	for _, s := range p.Strategies {
		o.strategies[s.Method()] = s
	}
	for _, v := range p.Verifiers {
		o.verifiers[v.Provider()] = v
	}
	return o, nil
}

// Result is what checkout reports back about the payment.
type Result struct {
	Record  *models.PaymentRecord
	Pending *PendingPayment
}

// PendingPayment tells the client where to complete a gateway payment.
type PendingPayment struct {
	Provider          enums.PaymentProvider
	RedirectURL       string
	ExternalReference string
}

// Supports reports whether a strategy is registered for the method.
func (o *Orchestrator) Supports(method enums.PaymentMethod) bool {
	_, ok := o.strategies[method]
	return ok
}

// Process runs the order's payment strategy inside the checkout transaction.
// Any error must abort that transaction.
func (o *Orchestrator) Process(ctx context.Context, tx *gorm.DB, order *models.Order) (*Result, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment requires a transaction")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order is required")
	}
	strategy, ok := o.strategies[order.PaymentMethod]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("payment method %q is not available", order.PaymentMethod))
	}

	outcome, err := strategy.Process(ctx, tx, requestFor(order))
	if err != nil {
		return nil, err
	}

	now := o.now().UTC()
	record := &models.PaymentRecord{
		OrderID:  order.ID,
		Kind:     enums.PaymentRecordCharge,
		Provider: outcome.Provider,
		Amount:   order.TotalAmount,
		Currency: order.Currency,
		Status:   enums.PaymentStatusPending,
	}
	if outcome.Immediate() {
		record.Status = enums.PaymentStatusPaid
		record.SettledAt = &now
	} else {
		ref, url := outcome.Pending.ExternalReference, outcome.Pending.RedirectURL
		record.ExternalReference = &ref
		record.RedirectURL = &url
	}

	repo := o.repo.WithTx(tx)
	if err := repo.Create(ctx, record); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create payment record")
	}

	result := &Result{Record: record}
	if outcome.Immediate() {
		if err := o.settle(ctx, tx, order, record, now); err != nil {
			return nil, err
		}
		order.PaymentStatus = enums.PaymentStatusPaid
		return result, nil
	}
	result.Pending = &PendingPayment{
		Provider:          outcome.Provider,
		RedirectURL:       outcome.Pending.RedirectURL,
		ExternalReference: outcome.Pending.ExternalReference,
	}
	return result, nil
}

// settle credits the vendor share, marks the order paid and emits
// payment_settled. The record is already PAID.
func (o *Orchestrator) settle(ctx context.Context, tx *gorm.DB, order *models.Order, record *models.PaymentRecord, now time.Time) error {
	if order.VendorShare > 0 {
		orderID := order.ID
		if _, err := o.wallets.Credit(ctx, tx, wallets.Movement{
			UserID:   order.VendorID,
			Amount:   order.VendorShare,
			Currency: order.Currency,
			Kind:     enums.BalanceKindVendor,
			OrderID:  &orderID,
			Reason:   fmt.Sprintf("earnings for order %s", order.OrderNumber),
		}); err != nil {
			return err
		}
	}
	if err := o.orders.ApplyPaymentOutcome(ctx, tx, order.ID, enums.PaymentStatusPaid); err != nil {
		return err
	}
	return o.emitPayment(ctx, tx, enums.EventPaymentSettled, record, order.VendorShare, nil, now)
}

func (o *Orchestrator) emitPayment(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, record *models.PaymentRecord, vendorShare int64, reason *string, now time.Time) error {
	return o.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregatePaymentRecord,
		AggregateID:   record.ID,
		Data: payloads.PaymentStatusEvent{
			PaymentRecordID:   record.ID,
			OrderID:           record.OrderID,
			Provider:          record.Provider,
			Status:            record.Status,
			Amount:            record.Amount,
			VendorShare:       vendorShare,
			Currency:          record.Currency,
			ExternalReference: record.ExternalReference,
			Reason:            reason,
			OccurredAt:        now,
		},
		Version:    1,
		OccurredAt: now,
	})
}

// WebhookOutcome says what happened to an acknowledged delivery.
type WebhookOutcome string

const (
	WebhookApplied   WebhookOutcome = "applied"
	WebhookDuplicate WebhookOutcome = "duplicate"
	WebhookIgnored   WebhookOutcome = "ignored"
)

// HandleWebhook verifies, deduplicates and applies one gateway notification.
// A returned error means the provider should retry; the dedupe key has been
// released in that case.
func (o *Orchestrator) HandleWebhook(ctx context.Context, provider string, headers http.Header, payload []byte) (WebhookOutcome, error) {
	p, err := enums.ParsePaymentProvider(provider)
	if err != nil {
		return "", pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("unknown payment provider %q", provider))
	}
	verifier, ok := o.verifiers[p]
	if !ok {
		return "", pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("webhooks for %q are not enabled", provider))
	}

	event, err := verifier.Verify(headers, payload)
	if err != nil {
		o.metrics.IncWebhook(provider, "error")
		return "", err
	}
	if event == nil {
		o.metrics.IncWebhook(provider, string(WebhookIgnored))
		return WebhookIgnored, nil
	}

	logCtx := ctx
	if o.logg != nil {
		logCtx = o.logg.WithFields(ctx, map[string]any{
			"provider":           provider,
			"external_reference": event.ExternalReference,
			"webhook_status":     event.Status,
			"event_id":           event.EventID,
		})
	}

	seen, err := o.guard.CheckAndMark(ctx, provider, event.ExternalReference, string(event.Status))
	if err != nil {
		o.metrics.IncWebhook(provider, "error")
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check webhook idempotency")
	}
	if seen {
		o.metrics.IncWebhook(provider, string(WebhookDuplicate))
		if o.logg != nil {
			o.logg.Info(logCtx, "duplicate payment webhook skipped")
		}
		return WebhookDuplicate, nil
	}

	if err := o.applyWebhook(logCtx, p, *event); err != nil {
		if releaseErr := o.guard.Release(ctx, provider, event.ExternalReference, string(event.Status)); releaseErr != nil && o.logg != nil {
			o.logg.Error(logCtx, "release webhook key", releaseErr)
		}
		o.metrics.IncWebhook(provider, "error")
		if o.logg != nil {
			o.logg.Warn(o.logg.WithField(logCtx, "error", err.Error()), "payment webhook not applied")
		}
		return "", err
	}
	o.metrics.IncWebhook(provider, string(WebhookApplied))
	return WebhookApplied, nil
}

func (o *Orchestrator) applyWebhook(ctx context.Context, provider enums.PaymentProvider, event WebhookEvent) error {
	return o.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := o.repo.WithTx(tx)
		record, err := repo.LockByReference(ctx, provider, event.ExternalReference)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "payment record not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock payment record")
		}
		order, err := repo.LockOrder(ctx, record.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock order")
		}

		action, note, err := decideWebhook(record, order, event)
		if err != nil {
			return err
		}
		if o.logg != nil {
			o.logg.Info(o.logg.WithFields(ctx, map[string]any{
				"order_id": order.ID.String(),
				"action":   action.String(),
				"note":     note,
			}), "payment webhook decided")
		}

		now := o.now().UTC()
		switch action {
		case actionSettle:
			record.Status = enums.PaymentStatusPaid
			record.SettledAt = &now
			record.FailureReason = nil
			if err := repo.Update(ctx, record); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update payment record")
			}
			return o.settle(ctx, tx, order, record, now)
		case actionRefundCancelled:
			return o.refundCancelled(ctx, tx, repo, order, record, now)
		case actionFail:
			reason := event.Reason
			if reason == "" {
				reason = "payment failed"
			}
			record.Status = enums.PaymentStatusFailed
			record.FailureReason = &reason
			if err := repo.Update(ctx, record); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update payment record")
			}
			if err := o.orders.ApplyPaymentOutcome(ctx, tx, order.ID, enums.PaymentStatusFailed); err != nil {
				return err
			}
			return o.emitPayment(ctx, tx, enums.EventPaymentFailed, record, 0, &reason, now)
		default:
			return nil
		}
	})
}

// refundCancelled handles money captured for an order that was cancelled
// while its payment was pending: the charge is recorded and the whole amount
// goes back to the customer's wallet.
func (o *Orchestrator) refundCancelled(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order, record *models.PaymentRecord, now time.Time) error {
	record.Status = enums.PaymentStatusPaid
	record.SettledAt = &now
	if err := repo.Update(ctx, record); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update payment record")
	}

	orderID := order.ID
	if _, err := o.wallets.Credit(ctx, tx, wallets.Movement{
		UserID:   order.CustomerID,
		Amount:   record.Amount,
		Currency: record.Currency,
		Kind:     enums.BalanceKindCustomer,
		OrderID:  &orderID,
		Reason:   fmt.Sprintf("refund for cancelled order %s", order.OrderNumber),
	}); err != nil {
		return err
	}

	refund := &models.PaymentRecord{
		OrderID:   order.ID,
		Kind:      enums.PaymentRecordRefund,
		Provider:  enums.PaymentProviderWallet,
		Amount:    record.Amount,
		Currency:  record.Currency,
		Status:    enums.PaymentStatusRefunded,
		SettledAt: &now,
	}
	if err := repo.Create(ctx, refund); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create refund record")
	}
	if err := o.orders.ApplyPaymentOutcome(ctx, tx, order.ID, enums.PaymentStatusRefunded); err != nil {
		return err
	}
	reason := "order cancelled before payment completed"
	return o.emitPayment(ctx, tx, enums.EventPaymentRefunded, refund, 0, &reason, now)
}
