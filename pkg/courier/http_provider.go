package courier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"

	"github.com/forkfleet/forkfleet-backend/pkg/enums"
	pkgerrors "github.com/forkfleet/forkfleet-backend/pkg/errors"
)

const (
	responseReadLimit  int64 = 1024
	defaultRetryBase         = 100 * time.Millisecond
	defaultHTTPTimeout       = 15 * time.Second
)

// HTTPProvider talks to a courier exposing the common JSON quote/delivery API:
// POST /v1/quotes and POST /v1/deliveries.
type HTTPProvider struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retries    uint64
	retryBase  time.Duration
	limiter    *rate.Limiter
}

// HTTPOption configures optional provider behavior.
type HTTPOption func(*HTTPProvider)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(p *HTTPProvider) {
		if client != nil {
			p.httpClient = client
		}
	}
}

// WithQuoteRetries sets how many times an idempotent quote read is retried.
func WithQuoteRetries(retries uint64, base time.Duration) HTTPOption {
	return func(p *HTTPProvider) {
		p.retries = retries
		if base > 0 {
			p.retryBase = base
		}
	}
}

// WithRateLimit caps outbound calls to the courier's published request rate.
// Callers wait for a token or give up when their context ends first.
func WithRateLimit(perSecond float64, burst int) HTTPOption {
	return func(p *HTTPProvider) {
		if perSecond <= 0 {
			return
		}
		p.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
	}
}

// NewHTTPProvider validates the provider settings.
func NewHTTPProvider(name, baseURL, apiKey string, opts ...HTTPOption) (*HTTPProvider, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("courier provider name is required")
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("courier %s base url is required", name)
	}
	p := &HTTPProvider{
		name:       name,
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		retryBase:  defaultRetryBase,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

func (p *HTTPProvider) Name() string { return p.name }

type quoteResponse struct {
	QuoteID  string `json:"quote_id"`
	Fee      int64  `json:"fee"`
	Currency string `json:"currency"`
}

// Quote prices a delivery. Network failures, 429 and 5xx responses are
// retried with exponential backoff.
func (p *HTTPProvider) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode quote request")
	}

	backoff := retry.WithMaxRetries(p.retries, retry.NewExponential(p.retryBase))
	var out quoteResponse
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		status, payload, err := p.post(ctx, "/v1/quotes", body, "")
		if err != nil {
			return retry.RetryableError(err)
		}
		if status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
			return retry.RetryableError(fmt.Errorf("courier %s quote status %d", p.name, status))
		}
		if status != http.StatusOK && status != http.StatusCreated {
			return fmt.Errorf("courier %s quote status %d: %s", p.name, status, strings.TrimSpace(string(payload)))
		}
		return json.Unmarshal(payload, &out)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("courier %s quote failed", p.name))
	}

	currency, err := enums.ParseCurrency(strings.ToUpper(out.Currency))
	if err != nil || out.QuoteID == "" || out.Fee < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("courier %s returned an invalid quote", p.name))
	}
	return &Quote{Fee: out.Fee, Currency: currency, ProviderQuoteID: out.QuoteID}, nil
}

type deliveryRequest struct {
	QuoteID        string `json:"quote_id"`
	OrderReference string `json:"order_reference"`
}

type deliveryResponse struct {
	DeliveryID  string `json:"delivery_id"`
	TrackingRef string `json:"tracking_ref"`
}

// CreateDelivery books the courier. It is never retried here: the order
// reference doubles as the provider idempotency key and the booking retry job
// owns re-attempts.
func (p *HTTPProvider) CreateDelivery(ctx context.Context, providerQuoteID, orderRef string) (*Booking, error) {
	if strings.TrimSpace(providerQuoteID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider quote id is required")
	}
	body, err := json.Marshal(deliveryRequest{QuoteID: providerQuoteID, OrderReference: orderRef})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode delivery request")
	}
	status, payload, err := p.post(ctx, "/v1/deliveries", body, orderRef)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("courier %s create delivery failed", p.name))
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency,
			fmt.Errorf("status %d: %s", status, strings.TrimSpace(string(payload))),
			fmt.Sprintf("courier %s create delivery failed", p.name))
	}
	var out deliveryResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode delivery response")
	}
	if out.DeliveryID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("courier %s returned no delivery id", p.name))
	}
	return &Booking{DeliveryID: out.DeliveryID, TrackingRef: out.TrackingRef}, nil
}

func (p *HTTPProvider) post(ctx context.Context, path string, body []byte, idempotencyKey string) (int, []byte, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return 0, nil, fmt.Errorf("courier %s rate limit: %w", p.name, err)
		}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	if idempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseReadLimit))
		return resp.StatusCode, msg, nil
	}
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, payload, nil
}
