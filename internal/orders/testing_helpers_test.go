package orders

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/forkfleet/forkfleet-backend/internal/catalog"
	"github.com/forkfleet/forkfleet-backend/internal/delivery"
	"github.com/forkfleet/forkfleet-backend/internal/payments"
	"github.com/forkfleet/forkfleet-backend/internal/wallets"
	"github.com/forkfleet/forkfleet-backend/pkg/db"
	"github.com/forkfleet/forkfleet-backend/pkg/db/dbtest"
	"github.com/forkfleet/forkfleet-backend/pkg/db/models"
	"github.com/forkfleet/forkfleet-backend/pkg/enums"
	"github.com/forkfleet/forkfleet-backend/pkg/outbox"
	"github.com/forkfleet/forkfleet-backend/pkg/stripe"
)

type fakeDelivery struct {
	mu       sync.Mutex
	offer    *delivery.Offer
	err      error
	bookErr  error
	booked   []uuid.UUID
	previews []delivery.QuoteInput
}

func (f *fakeDelivery) Preview(_ context.Context, in delivery.QuoteInput) (*delivery.Offer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.previews = append(f.previews, in)
	if f.err != nil {
		return nil, f.err
	}
	return f.offer, nil
}

func (f *fakeDelivery) BookDelivery(_ context.Context, order *models.Order) (*models.DeliveryBooking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.booked = append(f.booked, order.ID)
	if f.bookErr != nil {
		return nil, f.bookErr
	}
	return &models.DeliveryBooking{OrderID: order.ID, Status: enums.DeliveryBookingBooked}, nil
}

type fakeCanceller struct {
	calls []CancelRequest
	err   error
}

func (f *fakeCanceller) Cancel(_ context.Context, in CancelRequest) (*models.Order, error) {
	f.calls = append(f.calls, in)
	if f.err != nil {
		return nil, f.err
	}
	return &models.Order{ID: in.OrderID, Status: enums.OrderStatusCancelled}, nil
}

type fakeStripe struct {
	session *stripe.CheckoutSession
}

func (f *fakeStripe) CreateCheckoutSession(context.Context, stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return f.session, nil
}

type ordersFixture struct {
	manager   *Manager
	client    *db.Client
	conn      *gorm.DB
	ledger    *wallets.Ledger
	delivery  *fakeDelivery
	canceller *fakeCanceller
	now       time.Time

	customerID  uuid.UUID
	vendorID    uuid.UUID
	vendorOwner uuid.UUID
	vendorAddr  uuid.UUID
	burger      uuid.UUID
	fries       uuid.UUID
}

func newOrdersFixture(t *testing.T) *ordersFixture {
	t.Helper()
	client, conn := dbtest.Client(t)
	ledger, err := wallets.NewLedger(wallets.NewRepository(conn), nil)
	require.NoError(t, err)

	fx := &ordersFixture{
		client:      client,
		conn:        conn,
		ledger:      ledger,
		delivery:    &fakeDelivery{},
		canceller:   &fakeCanceller{},
		now:         time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		customerID:  uuid.New(),
		vendorID:    uuid.New(),
		vendorOwner: uuid.New(),
		vendorAddr:  uuid.New(),
		burger:      uuid.New(),
		fries:       uuid.New(),
	}
	clock := func() time.Time { return fx.now }

	require.NoError(t, conn.Create(&models.Vendor{
		ID: fx.vendorID, OwnerUserID: fx.vendorOwner, Name: "Burger Barn",
		AddressID: fx.vendorAddr, Currency: enums.CurrencyUSD, AcceptingOrders: true,
	}).Error)
	require.NoError(t, conn.Create(&[]models.MenuItem{
		{ID: fx.burger, VendorID: fx.vendorID, Name: "Burger", Price: 500, Currency: enums.CurrencyUSD, Available: true},
		{ID: fx.fries, VendorID: fx.vendorID, Name: "Fries", Price: 500, Currency: enums.CurrencyUSD, Available: true},
	}).Error)

	walletStrategy, err := payments.NewWalletStrategy(ledger)
	require.NoError(t, err)
	card, err := payments.NewCardStrategy(&fakeStripe{session: &stripe.CheckoutSession{ID: "cs_test_9", URL: "https://checkout.stripe.test/cs_test_9"}},
		"https://app.test/ok", "https://app.test/cancel", time.Second)
	require.NoError(t, err)

	repo := NewRepository(conn)
	emitter := outbox.NewEmitter(outbox.NewRepository(conn), nil)
	orch, err := payments.NewOrchestrator(payments.OrchestratorParams{
		Strategies: []payments.Strategy{walletStrategy, card},
		Repo:       payments.NewRepository(conn),
		Wallets:    ledger,
		Orders:     NewPaymentStatusWriter(repo),
		TxRunner:   client,
		Outbox:     emitter,
		Clock:      clock,
	})
	require.NoError(t, err)

	store := catalog.NewStore(conn)
	manager, err := NewManager(ManagerParams{
		Repo:           repo,
		Quotes:         delivery.NewRepository(conn),
		Catalog:        store,
		Vendors:        store,
		Payments:       orch,
		Delivery:       fx.delivery,
		Canceller:      fx.canceller,
		TxRunner:       client,
		Outbox:         emitter,
		CommissionRate: commissionRate("0.15"),
		Clock:          clock,
	})
	require.NoError(t, err)
	fx.manager = manager
	return fx
}

func (fx *ordersFixture) seedWallet(t *testing.T, userID uuid.UUID, balance int64) {
	t.Helper()
	require.NoError(t, fx.conn.Create(&models.Wallet{UserID: userID, Balance: balance, Currency: enums.CurrencyUSD}).Error)
}

func (fx *ordersFixture) wallet(t *testing.T, userID uuid.UUID) *models.Wallet {
	t.Helper()
	w, err := fx.ledger.GetWallet(context.Background(), userID)
	require.NoError(t, err)
	return w
}

func (fx *ordersFixture) seedQuote(t *testing.T, fee int64, expiresIn time.Duration) *models.DeliveryQuote {
	t.Helper()
	quote := &models.DeliveryQuote{
		ID:                uuid.New(),
		VendorID:          fx.vendorID,
		CustomerID:        fx.customerID,
		VendorAddressID:   fx.vendorAddr,
		CustomerAddressID: uuid.New(),
		Provider:          "swiftride",
		Fee:               fee,
		Currency:          enums.CurrencyUSD,
		RequestToken:      "sr-quote-1",
		PackageTier:       enums.PackageTierSmall,
		ExpiresAt:         fx.now.Add(expiresIn),
	}
	require.NoError(t, fx.conn.Create(quote).Error)
	return quote
}

// cart is burger x1 + fries x2, subtotal 1500.
func (fx *ordersFixture) cart() []ItemInput {
	return []ItemInput{
		{MenuItemID: fx.burger, Quantity: 1},
		{MenuItemID: fx.fries, Quantity: 2},
	}
}

func (fx *ordersFixture) deliveryInput(quoteID uuid.UUID, method enums.PaymentMethod) CreateOrderInput {
	return CreateOrderInput{
		CustomerID:      fx.customerID,
		VendorID:        fx.vendorID,
		Items:           fx.cart(),
		OrderType:       enums.OrderTypeDelivery,
		PaymentMethod:   method,
		DeliveryQuoteID: &quoteID,
	}
}

func (fx *ordersFixture) pickupInput(method enums.PaymentMethod) CreateOrderInput {
	return CreateOrderInput{
		CustomerID:    fx.customerID,
		VendorID:      fx.vendorID,
		Items:         fx.cart(),
		OrderType:     enums.OrderTypePickup,
		PaymentMethod: method,
	}
}

func (fx *ordersFixture) seedOrder(t *testing.T, status enums.OrderStatus, orderType enums.OrderType) *models.Order {
	t.Helper()
	order := &models.Order{
		ID:            uuid.New(),
		OrderNumber:   "FF-" + uuid.NewString()[:8],
		CustomerID:    fx.customerID,
		VendorID:      fx.vendorID,
		OrderType:     orderType,
		Status:        status,
		PaymentMethod: enums.PaymentMethodWallet,
		PaymentStatus: enums.PaymentStatusPaid,
		Currency:      enums.CurrencyUSD,
		Subtotal:      1500,
		TotalAmount:   1500,
		VendorShare:   1275,
		Version:       1,
		CreatedAt:     fx.now,
	}
	if orderType == enums.OrderTypeDelivery {
		quoteID := uuid.New()
		order.DeliveryQuoteID = &quoteID
	}
	require.NoError(t, fx.conn.Create(order).Error)
	return order
}

func (fx *ordersFixture) reload(t *testing.T, id uuid.UUID) models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, fx.conn.First(&order, "id = ?", id).Error)
	return order
}

func (fx *ordersFixture) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, fx.conn.Model(model).Count(&n).Error)
	return n
}

func (fx *ordersFixture) countEvents(t *testing.T, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var n int64
	require.NoError(t, fx.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&n).Error)
	return n
}

func (fx *ordersFixture) vendorActor() Actor {
	id := fx.vendorID
	return Actor{UserID: fx.vendorOwner, Role: enums.ActorRoleVendor, VendorID: &id}
}

func (fx *ordersFixture) customerActor() Actor {
	return Actor{UserID: fx.customerID, Role: enums.ActorRoleCustomer}
}

func adminActor() Actor {
	return Actor{UserID: uuid.New(), Role: enums.ActorRoleAdmin}
}

func commissionRate(v string) *decimal.Decimal {
	rate := decimal.RequireFromString(v)
	return &rate
}
