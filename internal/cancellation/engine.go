// Package cancellation cancels orders and reverses any money that already
// moved for them.
package cancellation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forkfleet/forkfleet-backend/internal/catalog"
	"github.com/forkfleet/forkfleet-backend/internal/notifications"
	"github.com/forkfleet/forkfleet-backend/internal/orders"
	"github.com/forkfleet/forkfleet-backend/internal/payments"
	"github.com/forkfleet/forkfleet-backend/internal/wallets"
	"github.com/forkfleet/forkfleet-backend/pkg/db/models"
	"github.com/forkfleet/forkfleet-backend/pkg/enums"
	pkgerrors "github.com/forkfleet/forkfleet-backend/pkg/errors"
	"github.com/forkfleet/forkfleet-backend/pkg/logger"
	"github.com/forkfleet/forkfleet-backend/pkg/metrics"
	"github.com/forkfleet/forkfleet-backend/pkg/outbox"
	"github.com/forkfleet/forkfleet-backend/pkg/outbox/payloads"
)

const maxReasonLength = 500

// CancelInput is the cancellation request shared with the order manager.
type CancelInput = orders.CancelRequest

type walletMover interface {
	Credit(ctx context.Context, tx *gorm.DB, m wallets.Movement) (*models.Wallet, error)
	Debit(ctx context.Context, tx *gorm.DB, m wallets.Movement) (*models.Wallet, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// EngineParams wires the engine.
type EngineParams struct {
	Orders   orders.Repository
	Payments payments.Repository
	Wallets  walletMover
	Vendors  catalog.VendorDirectory
	TxRunner txRunner
	Outbox   outboxEmitter
	Notifier *notifications.Dispatcher
	Metrics  *metrics.OrderMetrics
	Logger   *logger.Logger
	Clock    func() time.Time
}

// Engine is the cancellation and refund engine.
type Engine struct {
	orders   orders.Repository
	payments payments.Repository
	wallets  walletMover
	vendors  catalog.VendorDirectory
	tx       txRunner
	outbox   outboxEmitter
	notify   *notifications.Dispatcher
	metrics  *metrics.OrderMetrics
	logg     *logger.Logger
	now      func() time.Time
}

func NewEngine(p EngineParams) (*Engine, error) {
	switch {
	case p.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case p.Payments == nil:
		return nil, fmt.Errorf("payments repository required")
	case p.Wallets == nil:
		return nil, fmt.Errorf("wallet ledger required")
	case p.TxRunner == nil:
		return nil, fmt.Errorf("transaction runner required")
	case p.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	}
	e := &Engine{
		orders:   p.Orders,
		payments: p.Payments,
		wallets:  p.Wallets,
		vendors:  p.Vendors,
		tx:       p.TxRunner,
		outbox:   p.Outbox,
		notify:   p.Notifier,
		metrics:  p.Metrics,
		logg:     p.Logger,
		now:      p.Clock,
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

// cancellableBy lists the statuses each non-admin role may cancel from.
var cancellableBy = map[enums.ActorRole][]enums.OrderStatus{
	enums.ActorRoleCustomer: {enums.OrderStatusNew, enums.OrderStatusConfirmed},
	enums.ActorRoleVendor:   {enums.OrderStatusNew, enums.OrderStatusConfirmed, enums.OrderStatusPreparing},
}

// authorize applies the role rules on top of the state machine.
func authorize(actor orders.Actor, order *models.Order) error {
	if order.Status == enums.OrderStatusCancelled {
		return pkgerrors.New(pkgerrors.CodeInvalidTransition, "order is already cancelled").
			WithDetails(map[string]any{"from": order.Status, "to": enums.OrderStatusCancelled})
	}
	if !actor.Owns(order) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another account")
	}
	if actor.Role == enums.ActorRoleAdmin {
		return orders.ValidateTransition(order.Status, enums.OrderStatusCancelled)
	}
	for _, status := range cancellableBy[actor.Role] {
		if status == order.Status {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeForbidden,
		fmt.Sprintf("%s cannot cancel an order that is %s", strings.ToLower(string(actor.Role)), order.Status)).
		WithDetails(map[string]any{"role": actor.Role, "status": order.Status})
}

type outcome struct {
	order    *models.Order
	previous enums.OrderStatus
	refunded int64
	debited  int64
}

// Cancel cancels the order in one transaction. A PAID order is refunded to
// the customer's wallet and the vendor's share is taken back; if the vendor
// balance cannot cover it nothing changes.
func (e *Engine) Cancel(ctx context.Context, in CancelInput) (*models.Order, error) {
	if in.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if in.Actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !in.Actor.Role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "unknown actor role")
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		reason = "cancelled by " + strings.ToLower(string(in.Actor.Role))
	}
	if len(reason) > maxReasonLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cancellation reason is too long")
	}

	var res outcome
	err := e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := e.orders.WithTx(tx)
		order, err := repo.LockOrder(ctx, in.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock order")
		}
		if err := authorize(in.Actor, order); err != nil {
			return err
		}

		now := e.now().UTC()
		res = outcome{order: order, previous: order.Status}
		if order.PaymentStatus == enums.PaymentStatusPaid {
			if err := e.refund(ctx, tx, order, now); err != nil {
				return err
			}
			res.refunded = order.TotalAmount
			res.debited = order.VendorShare
			order.PaymentStatus = enums.PaymentStatusRefunded
		}

		role := in.Actor.Role
		updates := map[string]any{
			"order_status":   enums.OrderStatusCancelled,
			"payment_status": order.PaymentStatus,
			"cancelled_at":   now,
			"cancel_reason":  reason,
			"cancelled_by":   role,
			"version":        order.Version + 1,
			"updated_at":     now,
		}
		if err := repo.UpdateOrder(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel order")
		}
		order.Status = enums.OrderStatusCancelled
		order.CancelledAt = &now
		order.CancelReason = &reason
		order.CancelledBy = &role
		order.Version++
		order.UpdatedAt = now

		return e.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCanceled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         in.Actor.Ref(),
			Version:       1,
			OccurredAt:    now,
			Data: payloads.OrderCanceledEvent{
				OrderID:        order.ID,
				CustomerID:     order.CustomerID,
				VendorID:       order.VendorID,
				PreviousStatus: res.previous,
				CancelledBy:    role,
				Reason:         reason,
				PaymentStatus:  order.PaymentStatus,
				RefundedAmount: res.refunded,
				VendorDebited:  res.debited,
				Currency:       order.Currency,
				CancelledAt:    now,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	order := res.order
	e.metrics.IncCancellation(string(in.Actor.Role), res.refunded > 0)
	if e.logg != nil {
		logCtx := e.logg.WithOrderID(ctx, order.ID.String())
		logCtx = e.logg.WithActorRole(logCtx, string(in.Actor.Role))
		e.logg.Info(e.logg.WithFields(logCtx, map[string]any{
			"previous_status": res.previous,
			"refunded":        res.refunded,
			"vendor_debited":  res.debited,
		}), "order cancelled")
	}
	e.notifyCounterparty(ctx, in.Actor, order, reason)
	return order, nil
}

// refund moves money back: customer credited the total, vendor debited the
// share it was credited at settlement.
func (e *Engine) refund(ctx context.Context, tx *gorm.DB, order *models.Order, now time.Time) error {
	orderID := order.ID
	if _, err := e.wallets.Credit(ctx, tx, wallets.Movement{
		UserID:   order.CustomerID,
		Amount:   order.TotalAmount,
		Currency: order.Currency,
		Kind:     enums.BalanceKindCustomer,
		OrderID:  &orderID,
		Reason:   fmt.Sprintf("refund for cancelled order %s", order.OrderNumber),
	}); err != nil {
		return err
	}
	if order.VendorShare > 0 {
		if _, err := e.wallets.Debit(ctx, tx, wallets.Movement{
			UserID:   order.VendorID,
			Amount:   order.VendorShare,
			Currency: order.Currency,
			Kind:     enums.BalanceKindVendor,
			OrderID:  &orderID,
			Reason:   fmt.Sprintf("reversal for cancelled order %s", order.OrderNumber),
		}); err != nil {
			return err
		}
	}

	record := &models.PaymentRecord{
		OrderID:   order.ID,
		Kind:      enums.PaymentRecordRefund,
		Provider:  enums.PaymentProviderWallet,
		Amount:    order.TotalAmount,
		Currency:  order.Currency,
		Status:    enums.PaymentStatusRefunded,
		SettledAt: &now,
	}
	if err := e.payments.WithTx(tx).Create(ctx, record); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create refund record")
	}
	reason := "order cancelled"
	return e.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentRefunded,
		AggregateType: enums.AggregatePaymentRecord,
		AggregateID:   record.ID,
		Version:       1,
		OccurredAt:    now,
		Data: payloads.PaymentStatusEvent{
			PaymentRecordID: record.ID,
			OrderID:         order.ID,
			Provider:        record.Provider,
			Status:          record.Status,
			Amount:          record.Amount,
			Currency:        record.Currency,
			Reason:          &reason,
			OccurredAt:      now,
		},
	})
}

func (e *Engine) notifyCounterparty(ctx context.Context, actor orders.Actor, order *models.Order, reason string) {
	msg := fmt.Sprintf("Order %s was cancelled: %s", order.OrderNumber, reason)
	if actor.Role != enums.ActorRoleCustomer {
		e.notify.OrderUpdate(ctx, order.CustomerID, order.ID, order.Status, msg)
	}
	if actor.Role == enums.ActorRoleVendor || e.vendors == nil {
		return
	}
	vendor, err := e.vendors.FindVendor(ctx, order.VendorID)
	if err != nil {
		if e.logg != nil {
			e.logg.Warn(e.logg.WithField(e.logg.WithOrderID(ctx, order.ID.String()), "error", err.Error()), "vendor lookup for cancellation notice failed")
		}
		return
	}
	e.notify.Push(ctx, vendor.OwnerUserID, order.ID, "order_cancelled", "Order cancelled", msg)
}
