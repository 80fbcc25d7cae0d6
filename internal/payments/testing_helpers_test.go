package payments

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/forkfleet/forkfleet-backend/internal/wallets"
	"github.com/forkfleet/forkfleet-backend/pkg/db"
	"github.com/forkfleet/forkfleet-backend/pkg/db/dbtest"
	"github.com/forkfleet/forkfleet-backend/pkg/db/models"
	"github.com/forkfleet/forkfleet-backend/pkg/enums"
	"github.com/forkfleet/forkfleet-backend/pkg/outbox"
	"github.com/forkfleet/forkfleet-backend/pkg/square"
	"github.com/forkfleet/forkfleet-backend/pkg/stripe"
)

type memoryKeyStore struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newMemoryKeyStore() *memoryKeyStore {
	return &memoryKeyStore{keys: map[string]struct{}{}}
}

func (m *memoryKeyStore) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = struct{}{}
	return true, nil
}

func (m *memoryKeyStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.keys, k)
	}
	return nil
}

func (m *memoryKeyStore) WebhookKey(provider, ref, status string) string {
	return provider + ":" + ref + ":" + status
}

func (m *memoryKeyStore) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.keys[key]
	return ok
}

// statusWriter stands in for the orders package.
type statusWriter struct{}

func (statusWriter) ApplyPaymentOutcome(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, status enums.PaymentStatus) error {
	return tx.WithContext(ctx).Model(&models.Order{}).Where("id = ?", orderID).Update("payment_status", status).Error
}

type fakeStripe struct {
	session *stripe.CheckoutSession
	err     error
	delay   time.Duration
	params  stripe.CheckoutSessionParams
}

func (f *fakeStripe) CreateCheckoutSession(ctx context.Context, p stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.params = p
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

type fakeSquare struct {
	link   *square.PaymentLink
	err    error
	params square.PaymentLinkParams
}

func (f *fakeSquare) CreatePaymentLink(_ context.Context, p square.PaymentLinkParams) (*square.PaymentLink, error) {
	f.params = p
	if f.err != nil {
		return nil, f.err
	}
	return f.link, nil
}

const (
	testStripeSecret = "whsec_test"
	testSquareKey    = "sq-signature-key"
	testSquareURL    = "https://api.forkfleet.test/api/v1/webhooks/payments/square"
)

type paymentsFixture struct {
	orch   *Orchestrator
	client *db.Client
	conn   *gorm.DB
	ledger *wallets.Ledger
	keys   *memoryKeyStore
	stripe *fakeStripe
	square *fakeSquare
	now    time.Time
}

func newPaymentsFixture(t *testing.T) *paymentsFixture {
	t.Helper()
	client, conn := dbtest.Client(t)
	ledger, err := wallets.NewLedger(wallets.NewRepository(conn), nil)
	require.NoError(t, err)

	fx := &paymentsFixture{
		client: client,
		conn:   conn,
		ledger: ledger,
		keys:   newMemoryKeyStore(),
		stripe: &fakeStripe{session: &stripe.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.test/cs_test_1"}},
		square: &fakeSquare{link: &square.PaymentLink{ID: "pl_1", URL: "https://square.link/u/abc", OrderID: "sq_order_1"}},
		now:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	walletStrategy, err := NewWalletStrategy(ledger)
	require.NoError(t, err)
	card, err := NewCardStrategy(fx.stripe, "https://app.test/ok", "https://app.test/cancel", 50*time.Millisecond)
	require.NoError(t, err)
	bank, err := NewBankTransferStrategy(fx.square, "https://app.test/ok", time.Second)
	require.NoError(t, err)
	guard, err := NewIdempotencyGuard(fx.keys, time.Hour)
	require.NoError(t, err)

	orch, err := NewOrchestrator(OrchestratorParams{
		Strategies: []Strategy{walletStrategy, card, bank},
		Verifiers:  []WebhookVerifier{NewStripeVerifier(testStripeSecret), NewSquareVerifier(testSquareKey, testSquareURL)},
		Repo:       NewRepository(conn),
		Wallets:    ledger,
		Orders:     statusWriter{},
		TxRunner:   client,
		Outbox:     outbox.NewEmitter(outbox.NewRepository(conn), nil),
		Guard:      guard,
		Clock:      func() time.Time { return fx.now },
	})
	require.NoError(t, err)
	fx.orch = orch
	return fx
}

func (fx *paymentsFixture) seedWallet(t *testing.T, userID uuid.UUID, balance int64) {
	t.Helper()
	require.NoError(t, fx.conn.Create(&models.Wallet{UserID: userID, Balance: balance, Currency: enums.CurrencyUSD}).Error)
}

func (fx *paymentsFixture) wallet(t *testing.T, userID uuid.UUID) *models.Wallet {
	t.Helper()
	w, err := fx.ledger.GetWallet(context.Background(), userID)
	require.NoError(t, err)
	return w
}

func (fx *paymentsFixture) newOrder(t *testing.T, method enums.PaymentMethod, total int64) *models.Order {
	t.Helper()
	order := &models.Order{
		ID:            uuid.New(),
		OrderNumber:   "FF-" + uuid.NewString()[:8],
		CustomerID:    uuid.New(),
		VendorID:      uuid.New(),
		OrderType:     enums.OrderTypePickup,
		Status:        enums.OrderStatusNew,
		PaymentMethod: method,
		PaymentStatus: enums.PaymentStatusPending,
		Currency:      enums.CurrencyUSD,
		Subtotal:      total,
		TotalAmount:   total,
		VendorShare:   total * 85 / 100,
	}
	require.NoError(t, fx.conn.Create(order).Error)
	return order
}

func (fx *paymentsFixture) process(t *testing.T, order *models.Order) (*Result, error) {
	t.Helper()
	var result *Result
	err := fx.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		result, err = fx.orch.Process(context.Background(), tx, order)
		return err
	})
	return result, err
}

func (fx *paymentsFixture) reloadOrder(t *testing.T, id uuid.UUID) models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, fx.conn.First(&order, "id = ?", id).Error)
	return order
}

func (fx *paymentsFixture) records(t *testing.T, orderID uuid.UUID) []models.PaymentRecord {
	t.Helper()
	records, err := NewRepository(fx.conn).ListByOrder(context.Background(), orderID)
	require.NoError(t, err)
	return records
}

func (fx *paymentsFixture) countEvents(t *testing.T, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var n int64
	require.NoError(t, fx.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&n).Error)
	return n
}
