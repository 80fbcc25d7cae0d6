// Package delivery shops courier rates and books deliveries for READY orders.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/forkfleet/forkfleet-backend/internal/address"
	"github.com/forkfleet/forkfleet-backend/pkg/courier"
	"github.com/forkfleet/forkfleet-backend/pkg/db/models"
	"github.com/forkfleet/forkfleet-backend/pkg/enums"
	pkgerrors "github.com/forkfleet/forkfleet-backend/pkg/errors"
	"github.com/forkfleet/forkfleet-backend/pkg/logger"
	"github.com/forkfleet/forkfleet-backend/pkg/metrics"
	"github.com/forkfleet/forkfleet-backend/pkg/outbox"
)

const (
	defaultQuoteTTL         = 15 * time.Minute
	defaultCourierTimeout   = 8 * time.Second
	defaultShoppingDeadline = 12 * time.Second
	defaultBookingTimeout   = 10 * time.Second
	defaultBookingBackoff   = 2 * time.Minute
	defaultBookingAttempts  = 12
)

// CourierProvider is the adapter contract every courier integration meets.
type CourierProvider interface {
	Name() string
	Quote(ctx context.Context, req courier.QuoteRequest) (*courier.Quote, error)
	CreateDelivery(ctx context.Context, providerQuoteID, orderRef string) (*courier.Booking, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Config holds the rate shopping and booking timings.
type Config struct {
	QuoteTTL            time.Duration
	CourierTimeout      time.Duration
	ShoppingDeadline    time.Duration
	BookingTimeout      time.Duration
	BookingRetryBackoff time.Duration
	BookingMaxAttempts  int
}

func (c Config) withDefaults() Config {
	if c.QuoteTTL <= 0 {
		c.QuoteTTL = defaultQuoteTTL
	}
	if c.CourierTimeout <= 0 {
		c.CourierTimeout = defaultCourierTimeout
	}
	if c.ShoppingDeadline <= 0 {
		c.ShoppingDeadline = defaultShoppingDeadline
	}
	if c.BookingTimeout <= 0 {
		c.BookingTimeout = defaultBookingTimeout
	}
	if c.BookingRetryBackoff <= 0 {
		c.BookingRetryBackoff = defaultBookingBackoff
	}
	if c.BookingMaxAttempts <= 0 {
		c.BookingMaxAttempts = defaultBookingAttempts
	}
	return c
}

// ShopperParams wires the shopper's collaborators.
type ShopperParams struct {
	Providers []CourierProvider
	Addresses address.Resolver
	Repo      Repository
	TxRunner  txRunner
	Outbox    outboxEmitter
	Metrics   *metrics.OrderMetrics
	Logger    *logger.Logger
	Config    Config
	Clock     func() time.Time
}

// Shopper is the delivery rate shopper.
type Shopper struct {
	providers map[string]CourierProvider
	order     []string
	addresses address.Resolver
	repo      Repository
	tx        txRunner
	outbox    outboxEmitter
	metrics   *metrics.OrderMetrics
	logg      *logger.Logger
	cfg       Config
	now       func() time.Time
}

// NewShopper validates the collaborators. Providers are fixed for the life of
// the shopper.
func NewShopper(p ShopperParams) (*Shopper, error) {
	if len(p.Providers) == 0 {
		return nil, fmt.Errorf("at least one courier provider required")
	}
	if p.Addresses == nil {
		return nil, fmt.Errorf("address resolver required")
	}
	if p.Repo == nil {
		return nil, fmt.Errorf("delivery repository required")
	}
	if p.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	s := &Shopper{
		providers: make(map[string]CourierProvider, len(p.Providers)),
		addresses: p.Addresses,
		repo:      p.Repo,
		tx:        p.TxRunner,
		outbox:    p.Outbox,
		metrics:   p.Metrics,
		logg:      p.Logger,
		cfg:       p.Config.withDefaults(),
		now:       p.Clock,
	}
	if s.now == nil {
		s.now = time.Now
	}
	for _, provider := range p.Providers {
		if provider == nil {
			return nil, fmt.Errorf("nil courier provider")
		}
		name := provider.Name()
		if _, dup := s.providers[name]; dup {
			return nil, fmt.Errorf("courier provider %q registered twice", name)
		}
		s.providers[name] = provider
		s.order = append(s.order, name)
	}
	return s, nil
}

// ItemQuantity is the part of a cart line rate shopping cares about.
type ItemQuantity struct {
	MenuItemID uuid.UUID
	Quantity   int
}

// QuoteInput identifies the delivery being priced.
type QuoteInput struct {
	VendorID          uuid.UUID
	CustomerID        uuid.UUID
	VendorAddressID   uuid.UUID
	CustomerAddressID uuid.UUID
	Items             []ItemQuantity
	Currency          enums.Currency
}

func (in QuoteInput) validate() error {
	if in.VendorID == uuid.Nil || in.CustomerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "vendor and customer are required")
	}
	if in.VendorAddressID == uuid.Nil || in.CustomerAddressID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "vendor and customer addresses are required")
	}
	if !in.Currency.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported currency %q", in.Currency))
	}
	if len(in.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	for _, item := range in.Items {
		if item.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "item quantities must be positive")
		}
	}
	return nil
}

func (in QuoteInput) totalQuantity() int {
	total := 0
	for _, item := range in.Items {
		total += item.Quantity
	}
	return total
}

// Offer is the winning price of a rate comparison.
type Offer struct {
	Provider        string
	Fee             int64
	Currency        enums.Currency
	ProviderQuoteID string
	Package         courier.Package
}

// GetQuote compares every provider and persists the cheapest offer as a
// single-use quote.
func (s *Shopper) GetQuote(ctx context.Context, in QuoteInput) (*models.DeliveryQuote, error) {
	offer, err := s.compare(ctx, in)
	if err != nil {
		return nil, err
	}
	quote := &models.DeliveryQuote{
		VendorID:          in.VendorID,
		CustomerID:        in.CustomerID,
		VendorAddressID:   in.VendorAddressID,
		CustomerAddressID: in.CustomerAddressID,
		Provider:          offer.Provider,
		Fee:               offer.Fee,
		Currency:          offer.Currency,
		RequestToken:      offer.ProviderQuoteID,
		PackageTier:       offer.Package.Tier,
		ExpiresAt:         s.now().UTC().Add(s.cfg.QuoteTTL),
	}
	if err := s.repo.CreateQuote(ctx, quote); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist delivery quote")
	}
	return quote, nil
}

// Preview runs the same comparison without persisting anything.
func (s *Shopper) Preview(ctx context.Context, in QuoteInput) (*Offer, error) {
	return s.compare(ctx, in)
}

type providerResult struct {
	name  string
	quote *courier.Quote
	err   error
}

func (s *Shopper) compare(ctx context.Context, in QuoteInput) (*Offer, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	origin, err := s.addresses.Resolve(ctx, in.VendorAddressID)
	if err != nil {
		return nil, err
	}
	destination, err := s.addresses.Resolve(ctx, in.CustomerAddressID)
	if err != nil {
		return nil, err
	}
	if destination.UserID != in.CustomerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "delivery address does not belong to the customer")
	}

	pkg := EstimatePackage(in.totalQuantity())
	req := courier.QuoteRequest{
		Origin:      origin.Location,
		Destination: destination.Location,
		Package:     pkg,
		Currency:    in.Currency,
	}

	started := s.now()
	results := s.fanOut(ctx, req)
	s.metrics.ObserveRateShopping(s.now().Sub(started))

	offer, err := selectCheapest(results, in.Currency)
	if err != nil {
		return nil, err
	}
	offer.Package = pkg
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"provider":  offer.Provider,
			"fee":       offer.Fee,
			"responded": len(results),
		})
		s.logg.Info(logCtx, "delivery rate selected")
	}
	return offer, nil
}

// fanOut queries every provider concurrently. Results are returned in arrival
// order; providers still running at the overall deadline are recorded as
// timed out.
func (s *Shopper) fanOut(ctx context.Context, req courier.QuoteRequest) []providerResult {
	deadlineCtx, cancel := context.WithTimeout(ctx, s.cfg.ShoppingDeadline)
	defer cancel()

	var (
		mu      sync.Mutex
		results = make([]providerResult, 0, len(s.order))
		g       errgroup.Group
	)
	for _, name := range s.order {
		provider := s.providers[name]
		g.Go(func() error {
			quote, err := s.quoteOne(deadlineCtx, provider, req)
			mu.Lock()
			results = append(results, providerResult{name: provider.Name(), quote: quote, err: err})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// quoteOne bounds a single provider call by the courier timeout even when the
// adapter ignores context cancellation.
func (s *Shopper) quoteOne(ctx context.Context, provider CourierProvider, req courier.QuoteRequest) (*courier.Quote, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CourierTimeout)
	defer cancel()

	type reply struct {
		quote *courier.Quote
		err   error
	}
	done := make(chan reply, 1)
	go func() {
		quote, err := provider.Quote(callCtx, req)
		done <- reply{quote: quote, err: err}
	}()

	select {
	case r := <-done:
		switch {
		case r.err != nil:
			s.metrics.IncProviderQuote(provider.Name(), "error")
		case r.quote == nil:
			r.err = errors.New("empty quote")
			s.metrics.IncProviderQuote(provider.Name(), "error")
		default:
			s.metrics.IncProviderQuote(provider.Name(), "ok")
		}
		return r.quote, r.err
	case <-callCtx.Done():
		s.metrics.IncProviderQuote(provider.Name(), "timeout")
		return nil, fmt.Errorf("timed out: %w", callCtx.Err())
	}
}

// selectCheapest returns the minimum fee among successful quotes in the
// requested currency. Ties go to the earliest responder.
func selectCheapest(results []providerResult, currency enums.Currency) (*Offer, error) {
	var (
		best    *Offer
		failure error
		reasons = map[string]string{}
	)
	for _, r := range results {
		if r.err != nil {
			failure = multierr.Append(failure, fmt.Errorf("%s: %w", r.name, r.err))
			reasons[r.name] = r.err.Error()
			continue
		}
		if r.quote.Currency != currency {
			err := fmt.Errorf("%s: quoted %s, want %s", r.name, r.quote.Currency, currency)
			failure = multierr.Append(failure, err)
			reasons[r.name] = "currency mismatch"
			continue
		}
		if r.quote.Fee < 0 {
			failure = multierr.Append(failure, fmt.Errorf("%s: negative fee %d", r.name, r.quote.Fee))
			reasons[r.name] = "negative fee"
			continue
		}
		if best == nil || r.quote.Fee < best.Fee {
			best = &Offer{
				Provider:        r.name,
				Fee:             r.quote.Fee,
				Currency:        r.quote.Currency,
				ProviderQuoteID: r.quote.ProviderQuoteID,
			}
		}
	}
	if best == nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNoQuoteAvailable, failure, "no courier provider returned a quote").
			WithDetails(map[string]any{"providers": reasons})
	}
	return best, nil
}

// ExpireQuotes deletes unconsumed quotes that expired before the cutoff.
func (s *Shopper) ExpireQuotes(ctx context.Context, before time.Time) (int64, error) {
	deleted, err := s.repo.DeleteExpiredQuotes(ctx, before)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete expired quotes")
	}
	return deleted, nil
}
