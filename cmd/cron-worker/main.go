package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/forkfleet/forkfleet-backend/internal/address"
	"github.com/forkfleet/forkfleet-backend/internal/cron"
	"github.com/forkfleet/forkfleet-backend/internal/delivery"
	"github.com/forkfleet/forkfleet-backend/pkg/bootstrap"
	"github.com/forkfleet/forkfleet-backend/pkg/config"
	"github.com/forkfleet/forkfleet-backend/pkg/db"
	"github.com/forkfleet/forkfleet-backend/pkg/logger"
	"github.com/forkfleet/forkfleet-backend/pkg/maps"
	"github.com/forkfleet/forkfleet-backend/pkg/metrics"
	"github.com/forkfleet/forkfleet-backend/pkg/outbox"
)

const (
	quoteExpiryGrace = 5 * time.Minute
	bookingBatchSize = 50
)

func main() {
	bootstrap.Main("cron-worker", run)
}

func run(ctx context.Context, rt *bootstrap.Runtime) error {
	cfg, logg := rt.Config, rt.Logger

	dbClient, err := rt.Database(ctx)
	if err != nil {
		return err
	}
	redisClient, err := rt.Redis(ctx)
	if err != nil {
		return err
	}

	env := cfg.App.Env
	if env == "" {
		env = "local"
	}
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker:"+env), cfg.Cron.LockTTL)
	if err != nil {
		return err
	}

	jobs, err := registerJobs(cfg, dbClient, logg)
	if err != nil {
		return err
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   jobs,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	if err != nil {
		return err
	}

	logg.Info(ctx, "cron worker starting")
	return service.Run(ctx)
}

func registerJobs(cfg *config.Config, dbClient *db.Client, logg *logger.Logger) (*cron.Registry, error) {
	shopper, err := newShopper(cfg, dbClient, logg)
	if err != nil {
		return nil, err
	}
	quoteExpiry, err := cron.NewQuoteExpiryJob(cron.QuoteExpiryJobParams{
		Logger:  logg,
		Shopper: shopper,
		Grace:   quoteExpiryGrace,
	})
	if err != nil {
		return nil, err
	}
	bookingRetry, err := cron.NewBookingRetryJob(cron.BookingRetryJobParams{
		Logger:    logg,
		Shopper:   shopper,
		BatchSize: bookingBatchSize,
	})
	if err != nil {
		return nil, err
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:              logg,
		DB:                  dbClient,
		Published:           outbox.NewRepository(dbClient.DB()),
		DeadLetters:         outbox.NewDLQRepository(dbClient.DB()),
		Retention:           cfg.Outbox.Retention,
		DeadLetterRetention: cfg.Outbox.DeadLetterRetention,
	})
	if err != nil {
		return nil, err
	}
	return cron.NewRegistry(quoteExpiry, bookingRetry).Every(cfg.Cron.RetentionEvery, retention), nil
}

// newShopper builds the delivery shopper the booking and expiry jobs drive.
// It mirrors the API wiring minus payments.
func newShopper(cfg *config.Config, dbClient *db.Client, logg *logger.Logger) (*delivery.Shopper, error) {
	providers, err := delivery.ProvidersFromConfig(cfg.Couriers)
	if err != nil {
		return nil, err
	}
	var places address.PlaceResolver
	if cfg.GoogleMaps.APIKey != "" {
		if places, err = maps.NewClient(cfg.GoogleMaps.APIKey); err != nil {
			return nil, err
		}
	}
	return delivery.NewShopper(delivery.ShopperParams{
		Providers: providers,
		Addresses: address.NewResolver(dbClient.DB(), places),
		Repo:      delivery.NewRepository(dbClient.DB()),
		TxRunner:  dbClient,
		Outbox:    outbox.NewEmitter(outbox.NewRepository(dbClient.DB()), logg),
		Metrics:   metrics.NewOrderMetrics(prometheus.DefaultRegisterer),
		Logger:    logg,
		Config:    delivery.ConfigFrom(cfg.Delivery),
	})
}
