package main

import (
	"context"
	"errors"

	"github.com/forkfleet/forkfleet-backend/internal/analytics/router"
	"github.com/forkfleet/forkfleet-backend/internal/analytics/worker"
	"github.com/forkfleet/forkfleet-backend/internal/analytics/writer"
	"github.com/forkfleet/forkfleet-backend/pkg/bootstrap"
	"github.com/forkfleet/forkfleet-backend/pkg/outbox/idempotency"
)

func main() {
	bootstrap.Main("analytics-worker", run)
}

func run(ctx context.Context, rt *bootstrap.Runtime) error {
	cfg, logg := rt.Config, rt.Logger

	redisClient, err := rt.Redis(ctx)
	if err != nil {
		return err
	}
	pubsubClient, err := rt.PubSub(ctx)
	if err != nil {
		return err
	}
	bq, err := rt.BigQuery(ctx)
	if err != nil {
		return err
	}
	sub := pubsubClient.AnalyticsSubscription()
	if sub == nil {
		return errors.New("analytics subscription not configured")
	}

	rows, err := writer.New(ctx, bq, writer.Config{OrderEventsTable: cfg.BigQuery.OrderEventsTable})
	if err != nil {
		return err
	}
	// registered after bigquery so buffered rows flush before the client closes
	rt.OnClose("analytics writer", func() error {
		return rows.Flush(context.Background())
	})

	claims, err := idempotency.NewMarker(redisClient, "analytics", cfg.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		return err
	}
	handler, err := router.NewRouter(rows, logg, nil)
	if err != nil {
		return err
	}
	consumer, err := worker.NewConsumer(sub, handler, claims, logg)
	if err != nil {
		return err
	}

	logg.Info(ctx, "analytics consumer starting")
	return consumer.Run(ctx)
}
