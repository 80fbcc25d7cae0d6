package delivery

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/forkfleet/forkfleet-backend/pkg/config"
	"github.com/forkfleet/forkfleet-backend/pkg/courier"
	"github.com/forkfleet/forkfleet-backend/pkg/enums"
)

const quoteRetryBase = 200 * time.Millisecond

// ProvidersFromConfig builds the courier adapters enabled in configuration:
// the in-house flat rate fleet first, then every REST integration.
func ProvidersFromConfig(cfg config.CouriersConfig) ([]CourierProvider, error) {
	var providers []CourierProvider

	if cfg.FlatRateEnabled {
		flat, err := courier.NewFlatRateProvider(courier.FlatRateConfig{
			BaseFee:  cfg.FlatRateBaseFee,
			PerKm:    cfg.FlatRatePerKm,
			Currency: enums.Currency(strings.ToUpper(strings.TrimSpace(cfg.FlatRateCurrency))),
			MaxKm:    float64(cfg.FlatRateMaxKm),
		})
		if err != nil {
			return nil, fmt.Errorf("flat rate courier: %w", err)
		}
		providers = append(providers, flat)
	}

	httpConfigs, err := cfg.HTTPProviders()
	if err != nil {
		return nil, err
	}
	for _, pc := range httpConfigs {
		if pc.Name == courier.FlatRateName {
			return nil, fmt.Errorf("courier name %q is reserved", pc.Name)
		}
		provider, err := courier.NewHTTPProvider(pc.Name, pc.BaseURL, pc.APIKey,
			courier.WithQuoteRetries(cfg.QuoteRetries, quoteRetryBase),
			courier.WithRateLimit(pc.RatePerSecond, pc.Burst))
		if err != nil {
			return nil, err
		}
		providers = append(providers, provider)
	}

	if len(providers) == 0 {
		return nil, errors.New("no courier providers configured")
	}
	return providers, nil
}

// ConfigFrom maps the environment settings onto shopper timings.
func ConfigFrom(cfg config.DeliveryConfig) Config {
	return Config{
		QuoteTTL:            cfg.QuoteTTL,
		CourierTimeout:      cfg.CourierTimeout,
		ShoppingDeadline:    cfg.ShoppingDeadline,
		BookingTimeout:      cfg.BookingTimeout,
		BookingRetryBackoff: cfg.BookingRetryBackoff,
		BookingMaxAttempts:  cfg.BookingMaxAttempts,
	}
}
