// Package bootstrap holds the startup sequence every forkfleet binary shares:
// .env loading, config, the leveled logger, and the infrastructure clients,
// each closed in reverse order on shutdown.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/forkfleet/forkfleet-backend/pkg/bigquery"
	"github.com/forkfleet/forkfleet-backend/pkg/config"
	"github.com/forkfleet/forkfleet-backend/pkg/db"
	"github.com/forkfleet/forkfleet-backend/pkg/instance"
	"github.com/forkfleet/forkfleet-backend/pkg/logger"
	"github.com/forkfleet/forkfleet-backend/pkg/migrate"
	"github.com/forkfleet/forkfleet-backend/pkg/pubsub"
	"github.com/forkfleet/forkfleet-backend/pkg/redis"
)

type Runtime struct {
	Service string
	Config  *config.Config
	Logger  *logger.Logger

	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

// Start loads .env (optional), the environment config and the service logger.
func Start(service string) (*Runtime, error) {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = service

	logg := logger.New(logger.Options{
		ServiceName: service,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	if envErr != nil {
		logg.Debug(context.Background(), ".env not loaded, using process environment")
	}
	return &Runtime{Service: service, Config: cfg, Logger: logg}, nil
}

func (r *Runtime) onClose(name string, fn func() error) {
	r.closers = append(r.closers, namedCloser{name: name, close: fn})
}

// Database opens Postgres and applies embedded migrations in dev.
func (r *Runtime) Database(ctx context.Context) (*db.Client, error) {
	client, err := db.New(ctx, r.Config.DB, r.Logger)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	r.onClose("database", client.Close)
	if err := migrate.MaybeRunDev(ctx, r.Config, r.Logger, client); err != nil {
		return nil, fmt.Errorf("dev migrations: %w", err)
	}
	return client, nil
}

func (r *Runtime) Redis(ctx context.Context) (*redis.Client, error) {
	client, err := redis.New(ctx, r.Config.Redis, r.Logger)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	r.onClose("redis", client.Close)
	return client, nil
}

func (r *Runtime) PubSub(ctx context.Context) (*pubsub.Client, error) {
	client, err := pubsub.NewClient(ctx, r.Config.GCP, r.Config.PubSub, r.Logger)
	if err != nil {
		return nil, fmt.Errorf("pubsub: %w", err)
	}
	r.onClose("pubsub", client.Close)
	return client, nil
}

func (r *Runtime) BigQuery(ctx context.Context) (*bigquery.Client, error) {
	client, err := bigquery.NewClient(ctx, r.Config.GCP, r.Config.BigQuery, r.Logger)
	if err != nil {
		return nil, fmt.Errorf("bigquery: %w", err)
	}
	r.onClose("bigquery", client.Close)
	return client, nil
}

// OnClose registers an extra shutdown hook, run before the clients it may use.
func (r *Runtime) OnClose(name string, fn func() error) {
	r.onClose(name, fn)
}

// Close runs shutdown hooks newest first and reports every failure.
func (r *Runtime) Close() error {
	var errs error
	for i := len(r.closers) - 1; i >= 0; i-- {
		c := r.closers[i]
		if err := c.close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	r.closers = nil
	return errs
}

// SignalContext is cancelled on SIGINT or SIGTERM and carries the fields every
// log line of the process should have.
func (r *Runtime) SignalContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx = r.Logger.WithFields(ctx, map[string]any{
		"env":      r.Config.App.Env,
		"service":  r.Service,
		"instance": instance.ID(),
	})
	return ctx, stop
}

// Main runs a binary's body and turns its error into exit status 1 after
// shutdown hooks have run.
func Main(service string, run func(ctx context.Context, rt *Runtime) error) {
	rt, err := Start(service)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", service, err)
		os.Exit(1)
	}
	ctx, stop := rt.SignalContext()
	runErr := run(ctx, rt)
	stop()
	if closeErr := rt.Close(); closeErr != nil {
		rt.Logger.Error(ctx, "shutdown incomplete", closeErr)
	}
	if runErr != nil && ctx.Err() == nil {
		rt.Logger.Error(ctx, service+" stopped", runErr)
		os.Exit(1)
	}
	rt.Logger.Info(ctx, service+" stopped")
}
