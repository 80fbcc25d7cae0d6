package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forkfleet/forkfleet-backend/api/controllers"
	"github.com/forkfleet/forkfleet-backend/internal/delivery"
	internalorders "github.com/forkfleet/forkfleet-backend/internal/orders"
	"github.com/forkfleet/forkfleet-backend/internal/payments"
	"github.com/forkfleet/forkfleet-backend/pkg/auth"
	"github.com/forkfleet/forkfleet-backend/pkg/config"
	"github.com/forkfleet/forkfleet-backend/pkg/db/models"
	"github.com/forkfleet/forkfleet-backend/pkg/enums"
	"github.com/forkfleet/forkfleet-backend/pkg/pagination"
)

type stubCheckout struct {
	calls int
}

func (s *stubCheckout) CreateOrder(ctx context.Context, in internalorders.CreateOrderInput) (*internalorders.CheckoutResult, error) {
	s.calls++
	return &internalorders.CheckoutResult{Order: &models.Order{
		ID:            uuid.New(),
		CustomerID:    in.CustomerID,
		VendorID:      in.VendorID,
		OrderType:     in.OrderType,
		PaymentMethod: in.PaymentMethod,
		Status:        enums.OrderStatusNew,
		PaymentStatus: enums.PaymentStatusPaid,
	}}, nil
}

func (s *stubCheckout) PreviewCost(ctx context.Context, in internalorders.PreviewInput) (*internalorders.CostPreview, error) {
	return &internalorders.CostPreview{}, nil
}

type stubOrders struct{}

func (stubOrders) GetOrder(ctx context.Context, orderID uuid.UUID, actor internalorders.Actor) (*models.Order, error) {
	return &models.Order{ID: orderID, CustomerID: actor.UserID}, nil
}

func (stubOrders) ListOrders(ctx context.Context, actor internalorders.Actor, status *enums.OrderStatus, params pagination.Params) (pagination.Page[models.Order], error) {
	return pagination.Page[models.Order]{}, nil
}

func (stubOrders) UpdateStatus(ctx context.Context, in internalorders.UpdateStatusInput) (*models.Order, error) {
	return &models.Order{ID: in.OrderID, Status: in.Status}, nil
}

type stubCanceller struct{}

func (stubCanceller) Cancel(ctx context.Context, req internalorders.CancelRequest) (*models.Order, error) {
	return &models.Order{ID: req.OrderID, Status: enums.OrderStatusCancelled}, nil
}

type stubWebhooks struct {
	provider string
}

func (s *stubWebhooks) HandleWebhook(ctx context.Context, provider string, headers http.Header, payload []byte) (payments.WebhookOutcome, error) {
	s.provider = provider
	return payments.WebhookApplied, nil
}

type stubQuotes struct{}

func (stubQuotes) GetQuote(ctx context.Context, in delivery.QuoteInput) (*models.DeliveryQuote, error) {
	return &models.DeliveryQuote{ID: uuid.New()}, nil
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return assert.AnError }

type testRouter struct {
	handler  http.Handler
	cfg      *config.Config
	checkout *stubCheckout
	webhooks *stubWebhooks
}

func newTestRouter(t *testing.T, readiness map[string]controllers.Pinger) testRouter {
	t.Helper()

	cfg := &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT: config.JWTConfig{Secret: "router-secret", Issuer: "forkfleet", ExpirationMinutes: 5},
		HTTP: config.HTTPConfig{
			CORSAllowedOrigins: []string{"http://localhost:3000"},
			RateLimitWindow:    time.Minute,
			CheckoutIPLimit:    60,
			CheckoutUserLimit:  10,
			QuotesUserLimit:    30,
		},
	}
	checkout := &stubCheckout{}
	webhooks := &stubWebhooks{}
	tokens, err := auth.NewVerifier(cfg.JWT)
	require.NoError(t, err)

	handler := NewRouter(RouterParams{
		Config:    cfg,
		Readiness: readiness,
		Gatherer:  prometheus.NewRegistry(),
		Tokens:    tokens,
		Checkout:  checkout,
		Orders:    stubOrders{},
		Canceller: stubCanceller{},
		Quotes:    stubQuotes{},
		Vendors:   nil,
		Wallets:   nil,
		Webhooks:  webhooks,
	})
	return testRouter{handler: handler, cfg: cfg, checkout: checkout, webhooks: webhooks}
}

func (tr testRouter) token(t *testing.T, role enums.ActorRole) string {
	t.Helper()
	var vendorID *uuid.UUID
	if role == enums.ActorRoleVendor {
		id := uuid.New()
		vendorID = &id
	}
	token, err := auth.MintAccessToken(tr.cfg.JWT, time.Now(), auth.AccessTokenPayload{
		UserID:   uuid.New(),
		Role:     role,
		VendorID: vendorID,
	})
	require.NoError(t, err)
	return token
}

func (tr testRouter) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	tr.handler.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload.Error.Code
}

func checkoutBody() map[string]any {
	return map[string]any{
		"vendor_id":      uuid.NewString(),
		"items":          []map[string]any{{"menu_item_id": uuid.NewString(), "quantity": 2}},
		"order_type":     "PICKUP",
		"payment_method": "WALLET",
	}
}

func TestHealthRoutes(t *testing.T) {
	tr := newTestRouter(t, nil)

	rec := tr.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", rec.Header().Get("X-ForkFleet-Env"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec = tr.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthReadyReportsFailedDependency(t *testing.T) {
	tr := newTestRouter(t, map[string]controllers.Pinger{"redis": failingPinger{}})

	rec := tr.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "DEPENDENCY_ERROR", errorCode(t, rec))
	assert.Contains(t, rec.Body.String(), "redis")
}

func TestMetricsRouteIsPublic(t *testing.T) {
	tr := newTestRouter(t, nil)

	rec := tr.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIRequiresBearerToken(t *testing.T) {
	tr := newTestRouter(t, nil)

	rec := tr.do(t, http.MethodGet, "/api/v1/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, rec))

	rec = tr.do(t, http.MethodGet, "/api/v1/orders", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCheckoutIsCustomerOnly(t *testing.T) {
	tr := newTestRouter(t, nil)

	rec := tr.do(t, http.MethodPost, "/api/v1/checkout", tr.token(t, enums.ActorRoleVendor), checkoutBody())
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, 0, tr.checkout.calls)

	rec = tr.do(t, http.MethodPost, "/api/v1/checkout", tr.token(t, enums.ActorRoleCustomer), checkoutBody())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 1, tr.checkout.calls)
	assert.Contains(t, rec.Body.String(), `"status":"NEW"`)
	assert.NotContains(t, rec.Body.String(), "vendor_share")
}

func TestStatusUpdateRejectsCustomers(t *testing.T) {
	tr := newTestRouter(t, nil)
	path := "/api/v1/orders/" + uuid.NewString() + "/status"
	body := map[string]any{"status": "CONFIRMED"}

	rec := tr.do(t, http.MethodPost, path, tr.token(t, enums.ActorRoleCustomer), body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = tr.do(t, http.MethodPost, path, tr.token(t, enums.ActorRoleVendor), body)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestAdminCancelRequiresAdmin(t *testing.T) {
	tr := newTestRouter(t, nil)
	path := "/api/v1/admin/orders/" + uuid.NewString() + "/cancel"
	body := map[string]any{"reason": "fraud review"}

	rec := tr.do(t, http.MethodPost, path, tr.token(t, enums.ActorRoleVendor), body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = tr.do(t, http.MethodPost, path, tr.token(t, enums.ActorRoleAdmin), body)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"status":"CANCELLED"`)
}

func TestCustomerCancelRoute(t *testing.T) {
	tr := newTestRouter(t, nil)

	rec := tr.do(t, http.MethodPost, "/api/v1/orders/"+uuid.NewString()+"/cancel", tr.token(t, enums.ActorRoleCustomer), nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestPaymentWebhookSkipsAuth(t *testing.T) {
	tr := newTestRouter(t, nil)

	rec := tr.do(t, http.MethodPost, "/api/v1/webhooks/payments/Stripe", "", map[string]any{"type": "checkout.session.completed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "stripe", tr.webhooks.provider)
	assert.Contains(t, rec.Body.String(), `"outcome":"applied"`)
}
