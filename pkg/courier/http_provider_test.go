package courier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forkfleet/forkfleet-backend/pkg/enums"
	pkgerrors "github.com/forkfleet/forkfleet-backend/pkg/errors"
)

func TestHTTPProviderQuoteRetriesTransientFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/quotes", r.URL.Path)
		assert.Equal(t, "Bearer k1", r.Header.Get("Authorization"))
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var req QuoteRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, enums.PackageTierMedium, req.Package.Tier)
		_ = json.NewEncoder(w).Encode(map[string]any{"quote_id": "q-1", "fee": 900, "currency": "usd"})
	}))
	defer srv.Close()

	p, err := NewHTTPProvider("swiftride", srv.URL, "k1", WithQuoteRetries(2, time.Millisecond))
	require.NoError(t, err)

	quote, err := p.Quote(context.Background(), QuoteRequest{Package: Package{Tier: enums.PackageTierMedium}, Currency: enums.CurrencyUSD})
	require.NoError(t, err)
	assert.Equal(t, int64(900), quote.Fee)
	assert.Equal(t, enums.CurrencyUSD, quote.Currency)
	assert.Equal(t, "q-1", quote.ProviderQuoteID)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestHTTPProviderQuoteDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "unsupported area", http.StatusBadRequest)
	}))
	defer srv.Close()

	p, err := NewHTTPProvider("swiftride", srv.URL, "", WithQuoteRetries(3, time.Millisecond))
	require.NoError(t, err)

	_, err = p.Quote(context.Background(), QuoteRequest{Currency: enums.CurrencyUSD})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestHTTPProviderRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_ = json.NewEncoder(w).Encode(map[string]any{"quote_id": "q-1", "fee": 700, "currency": "USD"})
	}))
	defer srv.Close()

	p, err := NewHTTPProvider("swiftride", srv.URL, "", WithRateLimit(0.5, 1))
	require.NoError(t, err)

	_, err = p.Quote(context.Background(), QuoteRequest{Currency: enums.CurrencyUSD})
	require.NoError(t, err)

	// the bucket is empty for two seconds; a short deadline cannot wait that long
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = p.Quote(ctx, QuoteRequest{Currency: enums.CurrencyUSD})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestHTTPProviderCreateDeliveryIsSingleShot(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "FF-7KQ2M9XD4A", r.Header.Get("Idempotency-Key"))
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p, err := NewHTTPProvider("swiftride", srv.URL, "", WithQuoteRetries(3, time.Millisecond))
	require.NoError(t, err)

	_, err = p.CreateDelivery(context.Background(), "q-1", "FF-7KQ2M9XD4A")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestHTTPProviderCreateDelivery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req deliveryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "q-1", req.QuoteID)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"delivery_id": "d-9", "tracking_ref": "TRK9"})
	}))
	defer srv.Close()

	p, err := NewHTTPProvider("swiftride", srv.URL, "")
	require.NoError(t, err)

	booking, err := p.CreateDelivery(context.Background(), "q-1", "FF-1")
	require.NoError(t, err)
	assert.Equal(t, "d-9", booking.DeliveryID)
	assert.Equal(t, "TRK9", booking.TrackingRef)
}

func TestNewHTTPProviderValidation(t *testing.T) {
	_, err := NewHTTPProvider("", "https://x.test", "")
	assert.Error(t, err)
	_, err = NewHTTPProvider("x", " ", "")
	assert.Error(t, err)
}
