package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forkfleet/forkfleet-backend/api/middleware"
	internalorders "github.com/forkfleet/forkfleet-backend/internal/orders"
	"github.com/forkfleet/forkfleet-backend/internal/payments"
	"github.com/forkfleet/forkfleet-backend/pkg/db/models"
	"github.com/forkfleet/forkfleet-backend/pkg/enums"
	pkgerrors "github.com/forkfleet/forkfleet-backend/pkg/errors"
	"github.com/forkfleet/forkfleet-backend/pkg/logger"
	"github.com/forkfleet/forkfleet-backend/pkg/pagination"
)

type stubService struct {
	listActor  internalorders.Actor
	listStatus *enums.OrderStatus
	listParams pagination.Params
	page       pagination.Page[models.Order]

	order    *models.Order
	getErr   error
	update   internalorders.UpdateStatusInput
	checkout internalorders.CreateOrderInput
	preview  internalorders.PreviewInput
	pending  *payments.PendingPayment
}

func (s *stubService) GetOrder(ctx context.Context, orderID uuid.UUID, actor internalorders.Actor) (*models.Order, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.order, nil
}

func (s *stubService) ListOrders(ctx context.Context, actor internalorders.Actor, status *enums.OrderStatus, params pagination.Params) (pagination.Page[models.Order], error) {
	s.listActor = actor
	s.listStatus = status
	s.listParams = params
	return s.page, nil
}

func (s *stubService) UpdateStatus(ctx context.Context, in internalorders.UpdateStatusInput) (*models.Order, error) {
	s.update = in
	order := *s.order
	order.Status = in.Status
	return &order, nil
}

func (s *stubService) CreateOrder(ctx context.Context, in internalorders.CreateOrderInput) (*internalorders.CheckoutResult, error) {
	s.checkout = in
	if in.PaymentMethod == enums.PaymentMethodWallet {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientFunds, "insufficient wallet balance")
	}
	return &internalorders.CheckoutResult{Order: s.order, Pending: s.pending}, nil
}

func (s *stubService) PreviewCost(ctx context.Context, in internalorders.PreviewInput) (*internalorders.CostPreview, error) {
	s.preview = in
	return &internalorders.CostPreview{Subtotal: 1800, DeliveryFee: 499, TotalAmount: 2299, Currency: enums.CurrencyUSD, Provider: "swiftride"}, nil
}

type stubCanceller struct {
	req internalorders.CancelRequest
	err error
}

func (s *stubCanceller) Cancel(ctx context.Context, req internalorders.CancelRequest) (*models.Order, error) {
	s.req = req
	if s.err != nil {
		return nil, s.err
	}
	reason := req.Reason
	role := req.Actor.Role
	return &models.Order{ID: req.OrderID, Status: enums.OrderStatusCancelled, CancelReason: &reason, CancelledBy: &role}, nil
}

func sampleOrder() *models.Order {
	return &models.Order{
		ID:            uuid.New(),
		OrderNumber:   "FF-20261019-0001",
		CustomerID:    uuid.New(),
		VendorID:      uuid.New(),
		OrderType:     enums.OrderTypeDelivery,
		Status:        enums.OrderStatusNew,
		PaymentMethod: enums.PaymentMethodCard,
		PaymentStatus: enums.PaymentStatusPending,
		Currency:      enums.CurrencyUSD,
		Subtotal:      1800,
		DeliveryFee:   499,
		TotalAmount:   2299,
		VendorShare:   1530,
		Version:       1,
		Items: []models.OrderItem{{
			MenuItemID: uuid.New(),
			Name:       "Margherita",
			UnitPrice:  900,
			Quantity:   2,
			TotalPrice: 1800,
		}},
	}
}

type actorSpec struct {
	role     enums.ActorRole
	userID   uuid.UUID
	vendorID *uuid.UUID
}

func customer() actorSpec { return actorSpec{role: enums.ActorRoleCustomer, userID: uuid.New()} }

func vendor() actorSpec {
	id := uuid.New()
	return actorSpec{role: enums.ActorRoleVendor, userID: uuid.New(), vendorID: &id}
}

func admin() actorSpec { return actorSpec{role: enums.ActorRoleAdmin, userID: uuid.New()} }

func newRequest(t *testing.T, method, target string, who actorSpec, body any, params map[string]string) *http.Request {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")

	vendorID := ""
	if who.vendorID != nil {
		vendorID = who.vendorID.String()
	}
	ctx := middleware.WithIdentity(req.Context(), who.userID.String(), string(who.role), vendorID)

	routeCtx := chi.NewRouteContext()
	for k, v := range params {
		routeCtx.URLParams.Add(k, v)
	}
	ctx = context.WithValue(ctx, chi.RouteCtxKey, routeCtx)
	return req.WithContext(ctx)
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	envelope := struct {
		Data any `json:"data"`
	}{Data: dest}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test"})
}

func TestListPassesFiltersAndHidesVendorShare(t *testing.T) {
	svc := &stubService{page: pagination.Page[models.Order]{Items: []models.Order{*sampleOrder()}, NextCursor: "next"}}
	who := customer()
	req := newRequest(t, http.MethodGet, "/api/v1/orders?limit=10&cursor=abc&status=new", who, nil, nil)
	rec := httptest.NewRecorder()

	List(svc, testLogger())(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, who.userID, svc.listActor.UserID)
	assert.Equal(t, pagination.Params{Limit: 10, Cursor: "abc"}, svc.listParams)
	require.NotNil(t, svc.listStatus)
	assert.Equal(t, enums.OrderStatusNew, *svc.listStatus)

	assert.NotContains(t, rec.Body.String(), "vendor_share")
	var page pagination.Page[orderResponse]
	decodeData(t, rec, &page)
	assert.Len(t, page.Items, 1)
	assert.Equal(t, "next", page.NextCursor)
}

func TestListShowsVendorShareToVendors(t *testing.T) {
	svc := &stubService{page: pagination.Page[models.Order]{Items: []models.Order{*sampleOrder()}}}
	req := newRequest(t, http.MethodGet, "/api/v1/orders", vendor(), nil, nil)
	rec := httptest.NewRecorder()

	List(svc, testLogger())(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"vendor_share":1530`)
	assert.Equal(t, pagination.DefaultLimit, svc.listParams.Limit)
	assert.Nil(t, svc.listStatus)
}

func TestListRejectsUnknownStatus(t *testing.T) {
	req := newRequest(t, http.MethodGet, "/api/v1/orders?status=teleported", customer(), nil, nil)
	rec := httptest.NewRecorder()

	List(&stubService{}, testLogger())(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDetail(t *testing.T) {
	order := sampleOrder()
	svc := &stubService{order: order}
	req := newRequest(t, http.MethodGet, "/api/v1/orders/"+order.ID.String(), customer(), nil, map[string]string{"orderId": order.ID.String()})
	rec := httptest.NewRecorder()

	Detail(svc, testLogger())(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp orderResponse
	decodeData(t, rec, &resp)
	assert.Equal(t, order.ID, resp.ID)
	assert.Len(t, resp.Items, 1)
	assert.Equal(t, "Margherita", resp.Items[0].Name)
}

func TestDetailInvalidAndMissingOrders(t *testing.T) {
	req := newRequest(t, http.MethodGet, "/api/v1/orders/nope", customer(), nil, map[string]string{"orderId": "nope"})
	rec := httptest.NewRecorder()
	Detail(&stubService{}, testLogger())(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	id := uuid.NewString()
	svc := &stubService{getErr: pkgerrors.New(pkgerrors.CodeNotFound, "order not found")}
	req = newRequest(t, http.MethodGet, "/api/v1/orders/"+id, customer(), nil, map[string]string{"orderId": id})
	rec = httptest.NewRecorder()
	Detail(svc, testLogger())(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateStatus(t *testing.T) {
	order := sampleOrder()
	svc := &stubService{order: order}
	who := vendor()
	req := newRequest(t, http.MethodPost, "/status", who, map[string]any{"status": " confirmed ", "note": "  on it  "}, map[string]string{"orderId": order.ID.String()})
	rec := httptest.NewRecorder()

	UpdateStatus(svc, testLogger())(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, enums.OrderStatusConfirmed, svc.update.Status)
	assert.Equal(t, order.ID, svc.update.OrderID)
	assert.Equal(t, who.vendorID, svc.update.Actor.VendorID)
	require.NotNil(t, svc.update.Note)
	assert.Equal(t, "on it", *svc.update.Note)
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	order := sampleOrder()
	req := newRequest(t, http.MethodPost, "/status", admin(), map[string]any{"status": "LOST"}, map[string]string{"orderId": order.ID.String()})
	rec := httptest.NewRecorder()

	UpdateStatus(&stubService{order: order}, testLogger())(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelWithoutBodyUsesEmptyReason(t *testing.T) {
	canceller := &stubCanceller{}
	who := customer()
	id := uuid.New()
	req := newRequest(t, http.MethodPost, "/cancel", who, nil, map[string]string{"orderId": id.String()})
	rec := httptest.NewRecorder()

	Cancel(canceller, testLogger())(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, id, canceller.req.OrderID)
	assert.Equal(t, who.userID, canceller.req.Actor.UserID)
	assert.Empty(t, canceller.req.Reason)
	assert.Contains(t, rec.Body.String(), `"status":"CANCELLED"`)
}

func TestCancelSurfacesInvalidTransition(t *testing.T) {
	canceller := &stubCanceller{err: pkgerrors.New(pkgerrors.CodeInvalidTransition, "order can no longer be cancelled")}
	req := newRequest(t, http.MethodPost, "/cancel", customer(), map[string]any{"reason": "changed my mind"}, map[string]string{"orderId": uuid.NewString()})
	rec := httptest.NewRecorder()

	Cancel(canceller, testLogger())(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "changed my mind", canceller.req.Reason)
}

func TestAdminCancelRequiresReason(t *testing.T) {
	canceller := &stubCanceller{}
	req := newRequest(t, http.MethodPost, "/cancel", admin(), map[string]any{"reason": "   "}, map[string]string{"orderId": uuid.NewString()})
	rec := httptest.NewRecorder()

	AdminCancel(canceller, testLogger())(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, uuid.Nil, canceller.req.OrderID)

	req = newRequest(t, http.MethodPost, "/cancel", admin(), map[string]any{"reason": "chargeback"}, map[string]string{"orderId": uuid.NewString()})
	rec = httptest.NewRecorder()
	AdminCancel(canceller, testLogger())(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"cancelled_by":"admin"`)
}

func TestCheckoutReturnsPendingPayment(t *testing.T) {
	order := sampleOrder()
	svc := &stubService{order: order, pending: &payments.PendingPayment{
		Provider:          enums.PaymentProviderStripe,
		RedirectURL:       "https://checkout.stripe.test/cs_123",
		ExternalReference: "cs_123",
	}}
	who := customer()
	quoteID := uuid.New()
	addressID := uuid.New()
	body := map[string]any{
		"vendor_id":           order.VendorID,
		"items":               []map[string]any{{"menu_item_id": uuid.New(), "quantity": 2}},
		"order_type":          "DELIVERY",
		"payment_method":      "CARD",
		"delivery_quote_id":   quoteID,
		"delivery_address_id": addressID,
	}
	req := newRequest(t, http.MethodPost, "/api/v1/checkout", who, body, nil)
	rec := httptest.NewRecorder()

	Checkout(svc, testLogger())(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, who.userID, svc.checkout.CustomerID)
	assert.Equal(t, enums.PaymentMethodCard, svc.checkout.PaymentMethod)
	assert.Equal(t, enums.OrderTypeDelivery, svc.checkout.OrderType)
	require.NotNil(t, svc.checkout.DeliveryQuoteID)
	assert.Equal(t, quoteID, *svc.checkout.DeliveryQuoteID)

	var resp checkoutResponse
	decodeData(t, rec, &resp)
	require.NotNil(t, resp.Payment)
	assert.Equal(t, "cs_123", resp.Payment.ExternalReference)
	assert.Nil(t, resp.Order.VendorShare)
}

func TestCheckoutValidation(t *testing.T) {
	svc := &stubService{order: sampleOrder()}
	body := map[string]any{
		"vendor_id":      uuid.New(),
		"items":          []map[string]any{{"menu_item_id": uuid.New(), "quantity": 1}},
		"order_type":     "DRONE",
		"payment_method": "CARD",
	}
	req := newRequest(t, http.MethodPost, "/api/v1/checkout", customer(), body, nil)
	rec := httptest.NewRecorder()

	Checkout(svc, testLogger())(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "order_type")
}

func TestCheckoutInsufficientFunds(t *testing.T) {
	svc := &stubService{order: sampleOrder()}
	body := map[string]any{
		"vendor_id":      uuid.New(),
		"items":          []map[string]any{{"menu_item_id": uuid.New(), "quantity": 1}},
		"order_type":     "PICKUP",
		"payment_method": "WALLET",
	}
	req := newRequest(t, http.MethodPost, "/api/v1/checkout", customer(), body, nil)
	rec := httptest.NewRecorder()

	Checkout(svc, testLogger())(rec, req)

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
}

func TestCheckoutPreview(t *testing.T) {
	svc := &stubService{}
	addressID := uuid.New()
	body := map[string]any{
		"vendor_id":           uuid.New(),
		"items":               []map[string]any{{"menu_item_id": uuid.New(), "quantity": 2}},
		"order_type":          "DELIVERY",
		"customer_address_id": addressID,
	}
	req := newRequest(t, http.MethodPost, "/api/v1/checkout/preview", customer(), body, nil)
	rec := httptest.NewRecorder()

	CheckoutPreview(svc, testLogger())(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, svc.preview.CustomerAddressID)
	assert.Equal(t, addressID, *svc.preview.CustomerAddressID)

	var preview internalorders.CostPreview
	decodeData(t, rec, &preview)
	assert.Equal(t, int64(2299), preview.TotalAmount)
	assert.Equal(t, "swiftride", preview.Provider)
}
