package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/forkfleet/forkfleet-backend/pkg/bootstrap"
	"github.com/forkfleet/forkfleet-backend/pkg/metrics"
	"github.com/forkfleet/forkfleet-backend/pkg/outbox"
	"github.com/forkfleet/forkfleet-backend/pkg/outbox/registry"
)

func main() {
	bootstrap.Main("outbox-publisher", run)
}

func run(ctx context.Context, rt *bootstrap.Runtime) error {
	dbClient, err := rt.Database(ctx)
	if err != nil {
		return err
	}
	broker, err := rt.PubSub(ctx)
	if err != nil {
		return err
	}
	routes, err := registry.NewEventRegistry(rt.Config.PubSub)
	if err != nil {
		return err
	}

	relay, err := NewRelay(RelayParams{
		Config:      rt.Config.Outbox,
		Logger:      rt.Logger,
		DB:          dbClient,
		Broker:      broker,
		Events:      outbox.NewRepository(dbClient.DB()),
		DeadLetters: outbox.NewDLQRepository(dbClient.DB()),
		Routes:      routes,
		Metrics:     metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return err
	}
	rt.Logger.Info(ctx, "outbox relay starting")
	return relay.Run(ctx)
}
