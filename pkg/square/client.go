package square

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"
	"github.com/square/square-go-sdk/checkout"
	sqclient "github.com/square/square-go-sdk/client"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/forkfleet/forkfleet-backend/pkg/config"
	pkgerrors "github.com/forkfleet/forkfleet-backend/pkg/errors"
	"github.com/forkfleet/forkfleet-backend/pkg/logger"
)

var hosts = map[string]string{
	"sandbox":    "https://connect.squareupsandbox.com",
	"production": "https://connect.squareup.com",
}

type createLinkFunc func(ctx context.Context, req *checkout.CreatePaymentLinkRequest) (*sq.CreatePaymentLinkResponse, error)

// Client opens Square payment links for bank-transfer orders and carries the
// webhook signing material.
type Client struct {
	createLink      createLinkFunc
	signatureKey    string
	notificationURL string
	locationID      string
	logg            *logger.Logger
}

func NewClient(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errors.New("square: logger is required")
	}
	env := strings.ToLower(strings.TrimSpace(cfg.Environment()))
	if env == "" {
		env = "sandbox"
	}
	host, ok := hosts[env]
	if !ok {
		return nil, fmt.Errorf("square: unknown environment %q", env)
	}
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return nil, errors.New("square: access token is required")
	}
	secret := strings.TrimSpace(cfg.WebhookSecret)
	if secret == "" {
		return nil, errors.New("square: webhook signature key is required")
	}

	sdk := sqclient.NewClient(sqoption.WithBaseURL(host), sqoption.WithToken(token))
	c := &Client{
		createLink: func(ctx context.Context, req *checkout.CreatePaymentLinkRequest) (*sq.CreatePaymentLinkResponse, error) {
			return sdk.Checkout.PaymentLinks.Create(ctx, req)
		},
		signatureKey:    secret,
		notificationURL: strings.TrimSpace(cfg.WebhookURL),
		locationID:      strings.TrimSpace(cfg.LocationID),
		logg:            logg,
	}
	logg.Info(logg.WithField(ctx, "square_env", env), "square client ready")
	return c, nil
}

func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signatureKey
}

// NotificationURL is signed by Square together with the webhook body.
func (c *Client) NotificationURL() string {
	if c == nil {
		return ""
	}
	return c.notificationURL
}

// CreatePaymentLink opens a quick-pay checkout for one order total. Square
// creates an order behind the link and its id comes back on payment webhooks.
func (c *Client) CreatePaymentLink(ctx context.Context, params PaymentLinkParams) (*PaymentLink, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	location := firstNonEmpty(params.LocationID, c.locationID)
	if location == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "square location id is required")
	}
	key := strings.TrimSpace(params.IdempotencyKey)
	if key == "" {
		key = "ff-link-" + uuid.NewString()
	}

	ctx = c.logg.WithFields(ctx, map[string]any{
		"order_number": params.OrderNumber,
		"amount":       params.Amount,
		"location_id":  location,
	})
	resp, err := c.createLink(ctx, params.request(location, key))
	if err != nil {
		mapped := classify(err, "create payment link")
		c.logg.Error(ctx, "square payment link failed", mapped)
		return nil, mapped
	}

	link := resp.GetPaymentLink()
	if link == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "square returned no payment link")
	}
	out := &PaymentLink{
		ID:      deref(link.GetID()),
		URL:     deref(link.GetURL()),
		OrderID: deref(link.GetOrderID()),
	}
	if out.URL == "" || out.OrderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "square payment link response incomplete")
	}
	c.logg.Info(c.logg.WithField(ctx, "square_order_id", out.OrderID), "square payment link created")
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
