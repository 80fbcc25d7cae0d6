package square

import (
	"context"
	"errors"
	"net/http"
	"testing"

	sq "github.com/square/square-go-sdk"
	"github.com/square/square-go-sdk/checkout"
	sqcore "github.com/square/square-go-sdk/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/forkfleet/forkfleet-backend/pkg/errors"
	"github.com/forkfleet/forkfleet-backend/pkg/logger"
)

func strPtr(s string) *string { return &s }

func testClient(fn createLinkFunc) *Client {
	return &Client{
		createLink: fn,
		locationID: "LOC1",
		logg:       logger.New(logger.Options{ServiceName: "square-test"}),
	}
}

func TestCreatePaymentLinkBuildsQuickPay(t *testing.T) {
	var got *checkout.CreatePaymentLinkRequest
	c := testClient(func(_ context.Context, req *checkout.CreatePaymentLinkRequest) (*sq.CreatePaymentLinkResponse, error) {
		got = req
		return &sq.CreatePaymentLinkResponse{PaymentLink: &sq.PaymentLink{
			ID:      strPtr("pl_1"),
			URL:     strPtr("https://square.link/u/abc"),
			OrderID: strPtr("sq_order_1"),
		}}, nil
	})

	link, err := c.CreatePaymentLink(context.Background(), PaymentLinkParams{
		OrderNumber: "FF-7KQ2M9XD4A",
		Amount:      1800,
		Currency:    "usd",
		RedirectURL: "https://app.forkfleet.test/orders",
	})
	require.NoError(t, err)
	assert.Equal(t, &PaymentLink{ID: "pl_1", URL: "https://square.link/u/abc", OrderID: "sq_order_1"}, link)

	require.NotNil(t, got)
	assert.Equal(t, "LOC1", got.QuickPay.LocationID)
	assert.Equal(t, int64(1800), *got.QuickPay.PriceMoney.Amount)
	assert.Equal(t, sq.Currency("USD"), *got.QuickPay.PriceMoney.Currency)
	assert.Equal(t, "https://app.forkfleet.test/orders", *got.CheckoutOptions.RedirectURL)
	assert.Contains(t, *got.IdempotencyKey, "ff-link-")
}

func TestCreatePaymentLinkKeepsCallerKey(t *testing.T) {
	var key string
	c := testClient(func(_ context.Context, req *checkout.CreatePaymentLinkRequest) (*sq.CreatePaymentLinkResponse, error) {
		key = *req.IdempotencyKey
		return &sq.CreatePaymentLinkResponse{PaymentLink: &sq.PaymentLink{URL: strPtr("u"), OrderID: strPtr("o")}}, nil
	})
	_, err := c.CreatePaymentLink(context.Background(), PaymentLinkParams{OrderNumber: "FF-1", Amount: 5, Currency: "USD", IdempotencyKey: "order-123"})
	require.NoError(t, err)
	assert.Equal(t, "order-123", key)
}

func TestCreatePaymentLinkRejectsBadInput(t *testing.T) {
	called := false
	c := testClient(func(context.Context, *checkout.CreatePaymentLinkRequest) (*sq.CreatePaymentLinkResponse, error) {
		called = true
		return nil, nil
	})
	_, err := c.CreatePaymentLink(context.Background(), PaymentLinkParams{OrderNumber: "FF-1", Currency: "USD"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	c.locationID = ""
	_, err = c.CreatePaymentLink(context.Background(), PaymentLinkParams{OrderNumber: "FF-1", Amount: 5, Currency: "USD"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.False(t, called)
}

func TestCreatePaymentLinkIncompleteResponse(t *testing.T) {
	c := testClient(func(context.Context, *checkout.CreatePaymentLinkRequest) (*sq.CreatePaymentLinkResponse, error) {
		return &sq.CreatePaymentLinkResponse{PaymentLink: &sq.PaymentLink{ID: strPtr("pl_1")}}, nil
	})
	_, err := c.CreatePaymentLink(context.Background(), PaymentLinkParams{OrderNumber: "FF-1", Amount: 5, Currency: "USD"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want pkgerrors.Code
	}{
		{"transport", errors.New("connection reset"), pkgerrors.CodeDependency},
		{"server", sqcore.NewAPIError(http.StatusBadGateway, errors.New(`{}`)), pkgerrors.CodeDependency},
		{"not found", sqcore.NewAPIError(http.StatusNotFound, errors.New(`{}`)), pkgerrors.CodeNotFound},
		{"rate limited", sqcore.NewAPIError(http.StatusTooManyRequests, errors.New(`{}`)), pkgerrors.CodeRateLimit},
		{
			"auth category",
			sqcore.NewAPIError(http.StatusBadRequest, errors.New(`{"errors":[{"category":"AUTHENTICATION_ERROR","code":"UNAUTHORIZED"}]}`)),
			pkgerrors.CodeUnauthorized,
		},
		{
			"idempotency reuse",
			sqcore.NewAPIError(http.StatusBadRequest, errors.New(`{"errors":[{"category":"INVALID_REQUEST_ERROR","code":"IDEMPOTENCY_KEY_REUSED"}]}`)),
			pkgerrors.CodeIdempotency,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.True(t, pkgerrors.IsCode(classify(tc.err, "op"), tc.want))
		})
	}
}

func TestValidSignature(t *testing.T) {
	body := []byte(`{"type":"payment.updated"}`)
	url := "https://api.forkfleet.test/api/v1/webhooks/payments/square"
	sig := Sign(body, url, "sig-key")

	assert.True(t, ValidSignature(body, url, "sig-key", sig))
	assert.False(t, ValidSignature(body, "https://other.test/hook", "sig-key", sig), "bound to url")
	assert.False(t, ValidSignature([]byte(`{}`), url, "sig-key", sig), "bound to body")
	assert.False(t, ValidSignature(body, url, "", sig), "empty key")
}
