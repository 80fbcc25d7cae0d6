package maps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	pkgerrors "github.com/forkfleet/forkfleet-backend/pkg/errors"
)

const (
	placesEndpoint        = "https://places.googleapis.com/v1"
	placeResolveFieldMask = "id,formattedAddress,location,addressComponents"
	errorSnippetBytes     = 1024
	defaultTimeout        = 10 * time.Second
	defaultRetries        = 2
	defaultRetryBase      = 200 * time.Millisecond
)

// Client geocodes stored addresses through the Places details API.
type Client struct {
	http      *http.Client
	endpoint  string
	key       string
	retries   uint64
	retryBase time.Duration
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithBaseURL points the client at another Places host, mostly for tests.
func WithBaseURL(endpoint string) Option {
	return func(c *Client) {
		if endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/"); endpoint != "" {
			c.endpoint = endpoint
		}
	}
}

// WithRetries bounds how often throttled or 5xx lookups are repeated.
func WithRetries(retries uint64, base time.Duration) Option {
	return func(c *Client) {
		c.retries = retries
		if base > 0 {
			c.retryBase = base
		}
	}
}

func NewClient(apiKey string, opts ...Option) (*Client, error) {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		return nil, errors.New("google maps api key is required")
	}
	c := &Client{
		http:      &http.Client{Timeout: defaultTimeout},
		endpoint:  placesEndpoint,
		key:       key,
		retries:   defaultRetries,
		retryBase: defaultRetryBase,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// ResolvePlace looks up a place id. Unknown ids map to NOT_FOUND; other
// upstream failures surface as DEPENDENCY after retries run out.
func (c *Client) ResolvePlace(ctx context.Context, placeID string) (*PlaceDetails, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "google maps client not configured")
	}
	placeID = strings.TrimSpace(placeID)
	if placeID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "place ID is required")
	}

	var place placeResponse
	backoff := retry.WithMaxRetries(c.retries, retry.NewExponential(c.retryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		return c.fetch(ctx, placeID, &place)
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "place lookup failed")
	}
	return place.details(), nil
}

func (c *Client) fetch(ctx context.Context, placeID string, out *placeResponse) error {
	target := c.endpoint + "/places/" + url.PathEscape(placeID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build place request")
	}
	req.Header.Set("X-Goog-Api-Key", c.key)
	req.Header.Set("X-Goog-FieldMask", placeResolveFieldMask)

	resp, err := c.http.Do(req)
	if err != nil {
		return retry.RetryableError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch status := resp.StatusCode; {
	case status == http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode place response")
		}
		return nil
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		return retry.RetryableError(statusError(resp))
	case status == http.StatusNotFound:
		return pkgerrors.New(pkgerrors.CodeNotFound, "place not found")
	case status == http.StatusBadRequest:
		return pkgerrors.Wrap(pkgerrors.CodeValidation, statusError(resp), "place id rejected")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, statusError(resp), "place lookup failed")
	}
}

func statusError(resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorSnippetBytes))
	return fmt.Errorf("places status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
}
