// Package orders owns the order state machine: checkout, status updates and
// the reads the API exposes.
package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/forkfleet/forkfleet-backend/internal/catalog"
	"github.com/forkfleet/forkfleet-backend/internal/delivery"
	"github.com/forkfleet/forkfleet-backend/internal/notifications"
	"github.com/forkfleet/forkfleet-backend/internal/payments"
	"github.com/forkfleet/forkfleet-backend/pkg/db"
	"github.com/forkfleet/forkfleet-backend/pkg/db/models"
	"github.com/forkfleet/forkfleet-backend/pkg/enums"
	pkgerrors "github.com/forkfleet/forkfleet-backend/pkg/errors"
	"github.com/forkfleet/forkfleet-backend/pkg/logger"
	"github.com/forkfleet/forkfleet-backend/pkg/metrics"
	"github.com/forkfleet/forkfleet-backend/pkg/outbox"
	"github.com/forkfleet/forkfleet-backend/pkg/outbox/payloads"
)

const (
	orderNumberAttempts     = 3
	orderNumberConstraint   = "ux_orders_order_number"
	defaultCommissionRate   = "0.15"
	maxDistinctItemsPerCart = 100
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type paymentProcessor interface {
	Supports(method enums.PaymentMethod) bool
	Process(ctx context.Context, tx *gorm.DB, order *models.Order) (*payments.Result, error)
}

type deliveryService interface {
	Preview(ctx context.Context, in delivery.QuoteInput) (*delivery.Offer, error)
	BookDelivery(ctx context.Context, order *models.Order) (*models.DeliveryBooking, error)
}

// CancelRequest asks the cancellation engine to cancel an order.
type CancelRequest struct {
	OrderID uuid.UUID
	Actor   Actor
	Reason  string
}

// Canceller performs cancellation with its money movements.
type Canceller interface {
	Cancel(ctx context.Context, in CancelRequest) (*models.Order, error)
}

// ManagerParams wires the manager's collaborators.
type ManagerParams struct {
	Repo           Repository
	Quotes         delivery.Repository
	Catalog        catalog.Reader
	Vendors        catalog.VendorDirectory
	Payments       paymentProcessor
	Delivery       deliveryService
	Canceller      Canceller
	TxRunner       txRunner
	Outbox         outboxEmitter
	Notifier       *notifications.Dispatcher
	Metrics        *metrics.OrderMetrics
	Logger         *logger.Logger
	// CommissionRate defaults to 0.15 when nil.
	CommissionRate *decimal.Decimal
	Clock          func() time.Time
}

// Manager is the order lifecycle manager.
type Manager struct {
	repo       Repository
	quotes     delivery.Repository
	catalog    catalog.Reader
	vendors    catalog.VendorDirectory
	payments   paymentProcessor
	delivery   deliveryService
	canceller  Canceller
	tx         txRunner
	outbox     outboxEmitter
	notify     *notifications.Dispatcher
	metrics    *metrics.OrderMetrics
	logg       *logger.Logger
	commission decimal.Decimal
	writer     *PaymentStatusWriter
	now        func() time.Time
}

func NewManager(p ManagerParams) (*Manager, error) {
	switch {
	case p.Repo == nil:
		return nil, fmt.Errorf("orders repository required")
	case p.Quotes == nil:
		return nil, fmt.Errorf("delivery quote repository required")
	case p.Catalog == nil:
		return nil, fmt.Errorf("catalog reader required")
	case p.Vendors == nil:
		return nil, fmt.Errorf("vendor directory required")
	case p.Payments == nil:
		return nil, fmt.Errorf("payment orchestrator required")
	case p.Delivery == nil:
		return nil, fmt.Errorf("delivery shopper required")
	case p.Canceller == nil:
		return nil, fmt.Errorf("cancellation engine required")
	case p.TxRunner == nil:
		return nil, fmt.Errorf("transaction runner required")
	case p.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	}

	rate := decimal.RequireFromString(defaultCommissionRate)
	if p.CommissionRate != nil {
		rate = *p.CommissionRate
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("commission rate must be in [0, 1), got %s", rate)
	}

	m := &Manager{
		repo:       p.Repo,
		quotes:     p.Quotes,
		catalog:    p.Catalog,
		vendors:    p.Vendors,
		payments:   p.Payments,
		delivery:   p.Delivery,
		canceller:  p.Canceller,
		tx:         p.TxRunner,
		outbox:     p.Outbox,
		notify:     p.Notifier,
		metrics:    p.Metrics,
		logg:       p.Logger,
		commission: rate,
		writer:     NewPaymentStatusWriter(p.Repo),
		now:        p.Clock,
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m, nil
}

// ItemInput is one cart line.
type ItemInput struct {
	MenuItemID uuid.UUID
	Quantity   int
}

// CreateOrderInput is a checkout request.
type CreateOrderInput struct {
	CustomerID        uuid.UUID
	VendorID          uuid.UUID
	Items             []ItemInput
	OrderType         enums.OrderType
	PaymentMethod     enums.PaymentMethod
	DeliveryQuoteID   *uuid.UUID
	DeliveryAddressID *uuid.UUID
}

func (in CreateOrderInput) validate() error {
	if in.CustomerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "customer identity missing")
	}
	if in.VendorID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "vendor_id is required")
	}
	if len(in.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	if len(in.Items) > maxDistinctItemsPerCart {
		return pkgerrors.New(pkgerrors.CodeValidation, "too many items")
	}
	for _, item := range in.Items {
		if item.MenuItemID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "menu_item_id is required")
		}
		if item.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
		}
	}
	if !in.OrderType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid order type %q", in.OrderType))
	}
	if !in.PaymentMethod.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment method %q", in.PaymentMethod))
	}
	switch in.OrderType {
	case enums.OrderTypeDelivery:
		if in.DeliveryQuoteID == nil || *in.DeliveryQuoteID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "delivery orders require a delivery quote")
		}
	case enums.OrderTypePickup:
		if in.DeliveryQuoteID != nil || in.DeliveryAddressID != nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "pickup orders cannot carry delivery details")
		}
	}
	return nil
}

// CheckoutResult is the committed order plus, for gateway methods, where the
// customer completes payment.
type CheckoutResult struct {
	Order   *models.Order
	Pending *payments.PendingPayment
}

// CreateOrder validates the cart, prices it from catalog snapshots and
// commits the order, its items, the quote binding and the payment in one
// transaction.
func (m *Manager) CreateOrder(ctx context.Context, in CreateOrderInput) (*CheckoutResult, error) {
	result, err := m.createOrder(ctx, in)
	if err != nil {
		code := pkgerrors.CodeInternal
		if typed := pkgerrors.As(err); typed != nil {
			code = typed.Code()
		}
		m.metrics.IncCheckoutFailure(string(code))
		return nil, err
	}
	m.metrics.IncOrderCreated(string(in.PaymentMethod), string(in.OrderType))
	return result, nil
}

func (m *Manager) createOrder(ctx context.Context, in CreateOrderInput) (*CheckoutResult, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if !m.payments.Supports(in.PaymentMethod) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("payment method %s is not available", in.PaymentMethod))
	}

	vendor, err := m.vendors.FindVendor(ctx, in.VendorID)
	if err != nil {
		return nil, err
	}
	if !vendor.AcceptingOrders {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor is not accepting orders")
	}

	lines, subtotal, err := m.priceItems(ctx, vendor, in.Items)
	if err != nil {
		return nil, err
	}

	var (
		order  *models.Order
		result *payments.Result
	)
	for attempt := 1; ; attempt++ {
		number, err := newOrderNumber()
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate order number")
		}
		order, result, err = m.commitOrder(ctx, in, vendor, lines, subtotal, number)
		if err == nil {
			break
		}
		if attempt < orderNumberAttempts && db.IsUniqueViolation(err, orderNumberConstraint) {
			continue
		}
		return nil, err
	}

	if m.logg != nil {
		logCtx := m.logg.WithOrderID(ctx, order.ID.String())
		logCtx = m.logg.WithFields(logCtx, map[string]any{
			"order_number":   order.OrderNumber,
			"payment_method": order.PaymentMethod,
			"total_amount":   order.TotalAmount,
		})
		m.logg.Info(logCtx, "order created")
	}

	m.notify.Push(ctx, vendor.OwnerUserID, order.ID, "order_created", "New order",
		fmt.Sprintf("Order %s is waiting for confirmation", order.OrderNumber))
	m.notify.OrderUpdate(ctx, order.CustomerID, order.ID, order.Status,
		fmt.Sprintf("Order %s placed", order.OrderNumber))

	out := &CheckoutResult{Order: order}
	if result != nil {
		out.Pending = result.Pending
	}
	return out, nil
}

type pricedLine struct {
	snapshot catalog.ItemSnapshot
	quantity int
}

// priceItems merges repeated menu items and checks every snapshot against
// the vendor.
func (m *Manager) priceItems(ctx context.Context, vendor *catalog.VendorInfo, items []ItemInput) ([]pricedLine, int64, error) {
	quantities := make(map[uuid.UUID]int, len(items))
	order := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		if _, seen := quantities[item.MenuItemID]; !seen {
			order = append(order, item.MenuItemID)
		}
		quantities[item.MenuItemID] += item.Quantity
	}

	snapshots, err := m.catalog.Snapshot(ctx, vendor.ID, order)
	if err != nil {
		return nil, 0, err
	}

	lines := make([]pricedLine, 0, len(order))
	var subtotal int64
	for _, id := range order {
		snap, ok := snapshots[id]
		if !ok || snap.VendorID != vendor.ID {
			return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("menu item %s is not sold by this vendor", id))
		}
		if !snap.Available {
			return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s is unavailable", snap.Name))
		}
		if snap.Currency != vendor.Currency {
			return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s is not priced in %s", snap.Name, vendor.Currency))
		}
		if snap.Price < 0 {
			return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s has an invalid price", snap.Name))
		}
		qty := quantities[id]
		subtotal += snap.Price * int64(qty)
		lines = append(lines, pricedLine{snapshot: snap, quantity: qty})
	}
	return lines, subtotal, nil
}

func (m *Manager) commitOrder(ctx context.Context, in CreateOrderInput, vendor *catalog.VendorInfo, lines []pricedLine, subtotal int64, number string) (*models.Order, *payments.Result, error) {
	var (
		order  *models.Order
		result *payments.Result
	)
	err := m.tx.WithTx(ctx, func(tx *gorm.DB) error {
		now := m.now().UTC()

		var (
			fee       int64
			quote     *models.DeliveryQuote
			addressID *uuid.UUID
		)
		if in.OrderType == enums.OrderTypeDelivery {
			var err error
			quote, err = m.lockQuote(ctx, tx, in, vendor, now)
			if err != nil {
				return err
			}
			fee = quote.Fee
			addr := quote.CustomerAddressID
			addressID = &addr
		}

		total := subtotal + fee
		order = &models.Order{
			ID:                uuid.New(),
			OrderNumber:       number,
			CustomerID:        in.CustomerID,
			VendorID:          vendor.ID,
			OrderType:         in.OrderType,
			Status:            enums.OrderStatusNew,
			PaymentMethod:     in.PaymentMethod,
			PaymentStatus:     enums.PaymentStatusPending,
			Currency:          vendor.Currency,
			Subtotal:          subtotal,
			DeliveryFee:       fee,
			TotalAmount:       total,
			VendorShare:       m.vendorShare(total),
			DeliveryAddressID: addressID,
			Version:           1,
		}
		if quote != nil {
			qid := quote.ID
			order.DeliveryQuoteID = &qid
		}
		for _, line := range lines {
			order.Items = append(order.Items, models.OrderItem{
				ID:         uuid.New(),
				OrderID:    order.ID,
				MenuItemID: line.snapshot.MenuItemID,
				Name:       line.snapshot.Name,
				UnitPrice:  line.snapshot.Price,
				Quantity:   line.quantity,
				TotalPrice: line.snapshot.Price * int64(line.quantity),
			})
		}

		repo := m.repo.WithTx(tx)
		if err := repo.CreateOrder(ctx, order); err != nil {
			if db.IsUniqueViolation(err, orderNumberConstraint) {
				return err
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
		}
		if quote != nil {
			if err := m.quotes.WithTx(tx).ConsumeQuote(ctx, quote.ID, order.ID, now); err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return pkgerrors.New(pkgerrors.CodeValidation, "delivery quote already used")
				}
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "bind delivery quote")
			}
		}

		if err := m.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: in.CustomerID, Role: string(enums.ActorRoleCustomer)},
			Version:       1,
			OccurredAt:    now,
			Data: payloads.OrderCreatedEvent{
				OrderID:       order.ID,
				OrderNumber:   order.OrderNumber,
				CustomerID:    order.CustomerID,
				VendorID:      order.VendorID,
				OrderType:     order.OrderType,
				PaymentMethod: order.PaymentMethod,
				Subtotal:      order.Subtotal,
				DeliveryFee:   order.DeliveryFee,
				TotalAmount:   order.TotalAmount,
				Currency:      order.Currency,
				ItemCount:     len(order.Items),
				CreatedAt:     now,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order created")
		}

		var err error
		result, err = m.payments.Process(ctx, tx, order)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return order, result, nil
}

func (m *Manager) lockQuote(ctx context.Context, tx *gorm.DB, in CreateOrderInput, vendor *catalog.VendorInfo, now time.Time) (*models.DeliveryQuote, error) {
	quote, err := m.quotes.WithTx(tx).LockQuote(ctx, *in.DeliveryQuoteID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "delivery quote not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock delivery quote")
	}
	if quote.VendorID != vendor.ID || quote.CustomerID != in.CustomerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "delivery quote belongs to another cart")
	}
	if in.DeliveryAddressID != nil && *in.DeliveryAddressID != quote.CustomerAddressID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery address differs from the quoted address")
	}
	if quote.ConsumedAt != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery quote already used")
	}
	if !quote.IsActive(now) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery quote expired")
	}
	if quote.Currency != vendor.Currency {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery quote currency does not match the vendor")
	}
	return quote, nil
}

// vendorShare is total * (1 - commission) rounded half-up to minor units.
func (m *Manager) vendorShare(total int64) int64 {
	share := decimal.NewFromInt(total).Mul(decimal.NewFromInt(1).Sub(m.commission))
	return share.Round(0).IntPart()
}

// UpdateStatusInput asks for one state machine step.
type UpdateStatusInput struct {
	OrderID uuid.UUID
	Status  enums.OrderStatus
	Actor   Actor
	Note    *string
}

// UpdateStatus applies a vendor or admin transition. Cancellation is handed
// to the cancellation engine so refunds always happen.
func (m *Manager) UpdateStatus(ctx context.Context, in UpdateStatusInput) (*models.Order, error) {
	if err := in.Actor.validate(); err != nil {
		return nil, err
	}
	if in.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if !in.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid order status %q", in.Status))
	}
	if in.Actor.Role == enums.ActorRoleCustomer {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "customers cannot change order status")
	}
	if in.Status == enums.OrderStatusCancelled {
		reason := "cancelled by " + string(in.Actor.Role)
		if in.Note != nil && strings.TrimSpace(*in.Note) != "" {
			reason = strings.TrimSpace(*in.Note)
		}
		return m.canceller.Cancel(ctx, CancelRequest{OrderID: in.OrderID, Actor: in.Actor, Reason: reason})
	}

	var (
		order *models.Order
		from  enums.OrderStatus
	)
	err := m.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := m.repo.WithTx(tx)
		var err error
		order, err = repo.LockOrder(ctx, in.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock order")
		}
		if !in.Actor.Owns(order) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another vendor")
		}
		if err := ValidateTransition(order.Status, in.Status); err != nil {
			return err
		}

		now := m.now().UTC()
		from = order.Status
		updates := map[string]any{
			"order_status": in.Status,
			"version":      order.Version + 1,
			"updated_at":   now,
		}
		switch in.Status {
		case enums.OrderStatusReady:
			updates["order_ready_at"] = now
			order.OrderReadyAt = &now
		case enums.OrderStatusDelivered:
			updates["delivered_at"] = now
			order.DeliveredAt = &now
		}
		if err := repo.UpdateOrder(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order status")
		}
		order.Status = in.Status
		order.Version++
		order.UpdatedAt = now

		return m.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         in.Actor.Ref(),
			Version:       1,
			OccurredAt:    now,
			Data: payloads.OrderStatusChangedEvent{
				OrderID:    order.ID,
				CustomerID: order.CustomerID,
				VendorID:   order.VendorID,
				From:       from,
				To:         in.Status,
				Actor:      in.Actor.Role,
				Note:       in.Note,
				ChangedAt:  now,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := ctx
	if m.logg != nil {
		logCtx = m.logg.WithOrderID(ctx, order.ID.String())
		logCtx = m.logg.WithActorRole(logCtx, string(in.Actor.Role))
		m.logg.Info(m.logg.WithFields(logCtx, map[string]any{"from": from, "to": order.Status}), "order status changed")
	}

	if order.Status == enums.OrderStatusReady && order.OrderType == enums.OrderTypeDelivery {
		if _, err := m.delivery.BookDelivery(ctx, order); err != nil && m.logg != nil {
			m.logg.Warn(m.logg.WithField(logCtx, "error", err.Error()), "courier booking deferred to retry")
		}
	}
	m.notify.OrderUpdate(ctx, order.CustomerID, order.ID, order.Status, statusMessage(order))
	return order, nil
}

func statusMessage(order *models.Order) string {
	switch order.Status {
	case enums.OrderStatusConfirmed:
		return fmt.Sprintf("Order %s was confirmed", order.OrderNumber)
	case enums.OrderStatusPreparing:
		return fmt.Sprintf("Order %s is being prepared", order.OrderNumber)
	case enums.OrderStatusReady:
		if order.OrderType == enums.OrderTypePickup {
			return fmt.Sprintf("Order %s is ready for pickup", order.OrderNumber)
		}
		return fmt.Sprintf("Order %s is ready and waiting for a courier", order.OrderNumber)
	case enums.OrderStatusOutForDelivery:
		return fmt.Sprintf("Order %s is on its way", order.OrderNumber)
	case enums.OrderStatusDelivered:
		return fmt.Sprintf("Order %s was delivered", order.OrderNumber)
	default:
		return fmt.Sprintf("Order %s is now %s", order.OrderNumber, order.Status)
	}
}

// ApplyPaymentOutcome writes payment_status inside the caller's transaction.
func (m *Manager) ApplyPaymentOutcome(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, status enums.PaymentStatus) error {
	return m.writer.ApplyPaymentOutcome(ctx, tx, orderID, status)
}
