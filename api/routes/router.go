package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/forkfleet/forkfleet-backend/api/controllers"
	ordercontrollers "github.com/forkfleet/forkfleet-backend/api/controllers/orders"
	webhookcontrollers "github.com/forkfleet/forkfleet-backend/api/controllers/webhooks"
	"github.com/forkfleet/forkfleet-backend/api/middleware"
	"github.com/forkfleet/forkfleet-backend/internal/catalog"
	"github.com/forkfleet/forkfleet-backend/internal/orders"
	"github.com/forkfleet/forkfleet-backend/pkg/config"
	"github.com/forkfleet/forkfleet-backend/pkg/enums"
	"github.com/forkfleet/forkfleet-backend/pkg/logger"
)

// RedisStore is the redis surface the HTTP middleware needs. *redis.Client
// satisfies it.
type RedisStore interface {
	middleware.ReplayStore
	controllers.Pinger
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// RouterParams carries everything the API routes dispatch to.
type RouterParams struct {
	Config    *config.Config
	Logger    *logger.Logger
	Redis     RedisStore
	Readiness map[string]controllers.Pinger
	Gatherer  prometheus.Gatherer
	Tokens    middleware.TokenVerifier

	Checkout  ordercontrollers.CheckoutService
	Orders    ordercontrollers.Service
	Canceller orders.Canceller
	Quotes    controllers.QuoteShopper
	Vendors   catalog.VendorDirectory
	Wallets   controllers.WalletReader
	Webhooks  webhookcontrollers.PaymentWebhookHandler
}

func NewRouter(p RouterParams) http.Handler {
	cfg, logg := p.Config, p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.HTTP.CORSAllowedOrigins),
	)

	checkoutPolicy := middleware.NewRateLimitPolicy("checkout", cfg.HTTP.RateLimitWindow, cfg.HTTP.CheckoutIPLimit, cfg.HTTP.CheckoutUserLimit)
	quotesPolicy := middleware.NewRateLimitPolicy("delivery-quotes", cfg.HTTP.RateLimitWindow, 0, cfg.HTTP.QuotesUserLimit)

	gatherer := p.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.Readiness))
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// Gateways authenticate with signatures, not bearer tokens.
	r.Post("/api/v1/webhooks/payments/{provider}", webhookcontrollers.PaymentWebhook(p.Webhooks, logg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(p.Tokens, logg))
		r.Use(middleware.Idempotency(p.Redis, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleCustomer))
			r.With(middleware.RateLimit(checkoutPolicy, p.Redis, logg)).Post("/checkout", ordercontrollers.Checkout(p.Checkout, logg))
			r.Post("/checkout/preview", ordercontrollers.CheckoutPreview(p.Checkout, logg))
			r.With(middleware.RateLimit(quotesPolicy, p.Redis, logg)).Post("/delivery/quotes", controllers.DeliveryQuote(p.Quotes, p.Vendors, logg))
		})

		r.Get("/wallet", controllers.Wallet(p.Wallets, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(p.Orders, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(p.Orders, logg))
			r.Post("/{orderId}/cancel", ordercontrollers.Cancel(p.Canceller, logg))
			r.With(middleware.RequireRole(logg, enums.ActorRoleVendor, enums.ActorRoleAdmin)).
				Post("/{orderId}/status", ordercontrollers.UpdateStatus(p.Orders, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleAdmin))
			r.Post("/orders/{orderId}/cancel", ordercontrollers.AdminCancel(p.Canceller, logg))
		})
	})

	return r
}
