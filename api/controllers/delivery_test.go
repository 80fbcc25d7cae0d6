package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/forkfleet/forkfleet-backend/api/middleware"
	"github.com/forkfleet/forkfleet-backend/internal/catalog"
	"github.com/forkfleet/forkfleet-backend/internal/delivery"
	"github.com/forkfleet/forkfleet-backend/pkg/db/models"
	"github.com/forkfleet/forkfleet-backend/pkg/enums"
	pkgerrors "github.com/forkfleet/forkfleet-backend/pkg/errors"
)

type stubQuoteShopper struct {
	input delivery.QuoteInput
	err   error
}

func (s *stubQuoteShopper) GetQuote(ctx context.Context, in delivery.QuoteInput) (*models.DeliveryQuote, error) {
	s.input = in
	if s.err != nil {
		return nil, s.err
	}
	return &models.DeliveryQuote{
		ID:          uuid.New(),
		Provider:    "swiftride",
		Fee:         499,
		Currency:    in.Currency,
		PackageTier: enums.PackageTierSmall,
		ExpiresAt:   time.Now().Add(15 * time.Minute),
	}, nil
}

type stubVendorDirectory struct {
	vendor *catalog.VendorInfo
}

func (s stubVendorDirectory) FindVendor(ctx context.Context, vendorID uuid.UUID) (*catalog.VendorInfo, error) {
	if s.vendor == nil || s.vendor.ID != vendorID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "vendor not found")
	}
	return s.vendor, nil
}

func quoteRequest(t *testing.T, customerID uuid.UUID, body any) *http.Request {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/delivery/quotes", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req.WithContext(middleware.WithIdentity(req.Context(), customerID.String(), string(enums.ActorRoleCustomer), ""))
}

func TestDeliveryQuoteCreatesQuote(t *testing.T) {
	vendor := &catalog.VendorInfo{ID: uuid.New(), AddressID: uuid.New(), Currency: enums.CurrencyEUR, AcceptingOrders: true}
	shopper := &stubQuoteShopper{}
	customerID := uuid.New()
	addressID := uuid.New()
	itemID := uuid.New()

	req := quoteRequest(t, customerID, map[string]any{
		"vendor_id":           vendor.ID,
		"customer_address_id": addressID,
		"items":               []map[string]any{{"menu_item_id": itemID, "quantity": 3}},
	})
	rec := httptest.NewRecorder()

	DeliveryQuote(shopper, stubVendorDirectory{vendor: vendor}, testLogger())(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	in := shopper.input
	if in.CustomerID != customerID || in.VendorAddressID != vendor.AddressID || in.CustomerAddressID != addressID {
		t.Fatalf("unexpected quote input %+v", in)
	}
	if in.Currency != enums.CurrencyEUR {
		t.Fatalf("expected vendor currency, got %s", in.Currency)
	}
	if len(in.Items) != 1 || in.Items[0].MenuItemID != itemID || in.Items[0].Quantity != 3 {
		t.Fatalf("unexpected items %+v", in.Items)
	}

	var envelope struct {
		Data deliveryQuoteResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Provider != "swiftride" || envelope.Data.Fee != 499 {
		t.Fatalf("unexpected quote payload %+v", envelope.Data)
	}
}

func TestDeliveryQuoteValidatesBody(t *testing.T) {
	shopper := &stubQuoteShopper{}
	req := quoteRequest(t, uuid.New(), map[string]any{
		"vendor_id": uuid.New(),
		"items":     []map[string]any{},
	})
	rec := httptest.NewRecorder()

	DeliveryQuote(shopper, stubVendorDirectory{}, testLogger())(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if shopper.input.CustomerID != uuid.Nil {
		t.Fatal("shopper should not be called for an invalid body")
	}
}

func TestDeliveryQuoteUnknownVendor(t *testing.T) {
	req := quoteRequest(t, uuid.New(), map[string]any{
		"vendor_id":           uuid.New(),
		"customer_address_id": uuid.New(),
		"items":               []map[string]any{{"menu_item_id": uuid.New(), "quantity": 1}},
	})
	rec := httptest.NewRecorder()

	DeliveryQuote(&stubQuoteShopper{}, stubVendorDirectory{}, testLogger())(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}

func TestDeliveryQuoteNoCourierAvailable(t *testing.T) {
	vendor := &catalog.VendorInfo{ID: uuid.New(), AddressID: uuid.New(), Currency: enums.CurrencyUSD}
	shopper := &stubQuoteShopper{err: pkgerrors.New(pkgerrors.CodeNoQuoteAvailable, "no courier could quote this delivery")}
	req := quoteRequest(t, uuid.New(), map[string]any{
		"vendor_id":           vendor.ID,
		"customer_address_id": uuid.New(),
		"items":               []map[string]any{{"menu_item_id": uuid.New(), "quantity": 1}},
	})
	rec := httptest.NewRecorder()

	DeliveryQuote(shopper, stubVendorDirectory{vendor: vendor}, testLogger())(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("NO_QUOTE_AVAILABLE")) {
		t.Fatalf("expected NO_QUOTE_AVAILABLE, got %s", rec.Body.String())
	}
}
