package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/forkfleet/forkfleet-backend/internal/address"
	"github.com/forkfleet/forkfleet-backend/internal/cancellation"
	"github.com/forkfleet/forkfleet-backend/internal/catalog"
	"github.com/forkfleet/forkfleet-backend/internal/delivery"
	"github.com/forkfleet/forkfleet-backend/internal/notifications"
	"github.com/forkfleet/forkfleet-backend/internal/orders"
	"github.com/forkfleet/forkfleet-backend/internal/payments"
	"github.com/forkfleet/forkfleet-backend/internal/wallets"
	"github.com/forkfleet/forkfleet-backend/pkg/config"
	"github.com/forkfleet/forkfleet-backend/pkg/db"
	"github.com/forkfleet/forkfleet-backend/pkg/logger"
	"github.com/forkfleet/forkfleet-backend/pkg/maps"
	"github.com/forkfleet/forkfleet-backend/pkg/metrics"
	"github.com/forkfleet/forkfleet-backend/pkg/outbox"
	"github.com/forkfleet/forkfleet-backend/pkg/redis"
	"github.com/forkfleet/forkfleet-backend/pkg/square"
	"github.com/forkfleet/forkfleet-backend/pkg/stripe"
)

type services struct {
	catalog      *catalog.Store
	ledger       *wallets.Ledger
	shopper      *delivery.Shopper
	payments     *payments.Orchestrator
	cancellation *cancellation.Engine
	orders       *orders.Manager
}

// buildServices wires the order lifecycle. The cancellation engine is built
// before the manager because the manager delegates CANCELLED to it.
func buildServices(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, notify *notifications.Dispatcher, reg prometheus.Registerer) (*services, error) {
	conn := dbClient.DB()
	orderMetrics := metrics.NewOrderMetrics(reg)
	emitter := outbox.NewEmitter(outbox.NewRepository(conn), logg)
	store := catalog.NewStore(conn)

	ledger, err := wallets.NewLedger(wallets.NewRepository(conn), logg)
	if err != nil {
		return nil, fmt.Errorf("wallet ledger: %w", err)
	}

	shopper, err := newShopper(cfg, dbClient, emitter, orderMetrics, logg)
	if err != nil {
		return nil, fmt.Errorf("delivery shopper: %w", err)
	}

	ordersRepo := orders.NewRepository(conn)
	paymentsRepo := payments.NewRepository(conn)

	orchestrator, err := newOrchestrator(ctx, cfg, logg, dbClient, redisClient, ledger, ordersRepo, paymentsRepo, emitter, orderMetrics)
	if err != nil {
		return nil, fmt.Errorf("payment orchestrator: %w", err)
	}

	engine, err := cancellation.NewEngine(cancellation.EngineParams{
		Orders:   ordersRepo,
		Payments: paymentsRepo,
		Wallets:  ledger,
		Vendors:  store,
		TxRunner: dbClient,
		Outbox:   emitter,
		Notifier: notify,
		Metrics:  orderMetrics,
		Logger:   logg,
	})
	if err != nil {
		return nil, fmt.Errorf("cancellation engine: %w", err)
	}

	commission, err := cfg.Payments.Commission()
	if err != nil {
		return nil, err
	}
	manager, err := orders.NewManager(orders.ManagerParams{
		Repo:           ordersRepo,
		Quotes:         delivery.NewRepository(conn),
		Catalog:        store,
		Vendors:        store,
		Payments:       orchestrator,
		Delivery:       shopper,
		Canceller:      engine,
		TxRunner:       dbClient,
		Outbox:         emitter,
		Notifier:       notify,
		Metrics:        orderMetrics,
		Logger:         logg,
		CommissionRate: commission,
	})
	if err != nil {
		return nil, fmt.Errorf("order manager: %w", err)
	}

	return &services{
		catalog:      store,
		ledger:       ledger,
		shopper:      shopper,
		payments:     orchestrator,
		cancellation: engine,
		orders:       manager,
	}, nil
}

func newShopper(cfg *config.Config, dbClient *db.Client, emitter *outbox.Emitter, orderMetrics *metrics.OrderMetrics, logg *logger.Logger) (*delivery.Shopper, error) {
	providers, err := delivery.ProvidersFromConfig(cfg.Couriers)
	if err != nil {
		return nil, err
	}
	var places address.PlaceResolver
	if cfg.GoogleMaps.APIKey != "" {
		mapsClient, err := maps.NewClient(cfg.GoogleMaps.APIKey)
		if err != nil {
			return nil, err
		}
		places = mapsClient
	}
	return delivery.NewShopper(delivery.ShopperParams{
		Providers: providers,
		Addresses: address.NewResolver(dbClient.DB(), places),
		Repo:      delivery.NewRepository(dbClient.DB()),
		TxRunner:  dbClient,
		Outbox:    emitter,
		Metrics:   orderMetrics,
		Logger:    logg,
		Config:    delivery.ConfigFrom(cfg.Delivery),
	})
}

// newOrchestrator registers the wallet strategy always, and the gateway
// strategies and verifiers only for gateways with credentials.
func newOrchestrator(
	ctx context.Context,
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	ledger *wallets.Ledger,
	ordersRepo orders.Repository,
	paymentsRepo payments.Repository,
	emitter *outbox.Emitter,
	orderMetrics *metrics.OrderMetrics,
) (*payments.Orchestrator, error) {
	walletStrategy, err := payments.NewWalletStrategy(ledger)
	if err != nil {
		return nil, err
	}
	strategies := []payments.Strategy{walletStrategy}
	var verifiers []payments.WebhookVerifier

	if cfg.Stripe.Enabled() {
		stripeClient, err := stripe.NewClient(ctx, cfg.Stripe, logg)
		if err != nil {
			return nil, fmt.Errorf("stripe client: %w", err)
		}
		card, err := payments.NewCardStrategy(stripeClient, cfg.Stripe.SuccessURL, cfg.Stripe.CancelURL, cfg.Payments.GatewayTimeout)
		if err != nil {
			return nil, err
		}
		strategies = append(strategies, card)
		verifiers = append(verifiers, payments.NewStripeVerifier(stripeClient.SigningSecret()))
	}

	if cfg.Square.Enabled() {
		squareClient, err := square.NewClient(ctx, cfg.Square, logg)
		if err != nil {
			return nil, fmt.Errorf("square client: %w", err)
		}
		if cfg.FeatureFlags.AllowBankTransfer {
			bank, err := payments.NewBankTransferStrategy(squareClient, cfg.Square.RedirectURL, cfg.Payments.GatewayTimeout)
			if err != nil {
				return nil, err
			}
			strategies = append(strategies, bank)
		}
		verifiers = append(verifiers, payments.NewSquareVerifier(squareClient.SigningSecret(), squareClient.NotificationURL()))
	}

	guard, err := payments.NewIdempotencyGuard(redisClient, cfg.Eventing.WebhookIdempotencyTTL)
	if err != nil {
		return nil, err
	}

	return payments.NewOrchestrator(payments.OrchestratorParams{
		Strategies: strategies,
		Verifiers:  verifiers,
		Repo:       paymentsRepo,
		Wallets:    ledger,
		Orders:     orders.NewPaymentStatusWriter(ordersRepo),
		TxRunner:   dbClient,
		Outbox:     emitter,
		Guard:      guard,
		Metrics:    orderMetrics,
		Logger:     logg,
	})
}
