package main

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/forkfleet/forkfleet-backend/api/controllers"
	"github.com/forkfleet/forkfleet-backend/api/routes"
	"github.com/forkfleet/forkfleet-backend/internal/notifications"
	"github.com/forkfleet/forkfleet-backend/pkg/auth"
	"github.com/forkfleet/forkfleet-backend/pkg/bootstrap"
)

func main() {
	bootstrap.Main("api", run)
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
	readiness := map[string]controllers.Pinger{
		"database": dbClient,
		"redis":    redisClient,
	}

	// Notifications are best effort; orders are served without them.
	var notifier notifications.Notifier
	if pubsubClient, err := rt.PubSub(ctx); err != nil {
		logg.Warn(logg.WithField(ctx, "error", err.Error()), "pubsub unavailable, notifications disabled")
	} else {
		readiness["pubsub"] = pubsubClient
		if notifier, err = notifications.NewPubSubNotifier(pubsubClient.NotificationPublisher()); err != nil {
			logg.Warn(logg.WithField(ctx, "error", err.Error()), "notification publisher unavailable")
			notifier = nil
		}
	}

	svc, err := buildServices(ctx, cfg, logg, dbClient, redisClient, notifications.NewDispatcher(notifier, logg), prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}

	tokens, err := auth.NewVerifier(cfg.JWT)
	if err != nil {
		return err
	}

	addr := ":" + firstSet(os.Getenv("PORT"), cfg.App.Port)
	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:    cfg,
			Logger:    logg,
			Redis:     redisClient,
			Readiness: readiness,
			Gatherer:  prometheus.DefaultGatherer,
			Tokens:    tokens,
			Checkout:  svc.orders,
			Orders:    svc.orders,
			Canceller: svc.cancellation,
			Quotes:    svc.shopper,
			Vendors:   svc.catalog,
			Wallets:   svc.ledger,
			Webhooks:  svc.payments,
		}),
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(logg.WithField(ctx, "addr", addr), "api listening")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	logg.Info(ctx, "draining http connections")
	return server.Shutdown(shutdownCtx)
}

func firstSet(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
