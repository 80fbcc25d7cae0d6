package writer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/sethvargo/go-retry"

	"github.com/forkfleet/forkfleet-backend/internal/analytics/types"
	pkgbigquery "github.com/forkfleet/forkfleet-backend/pkg/bigquery"
)

// Config tunes the order_events sink. BatchSize 1 writes every row before
// the event is acked, which keeps the idempotency claim honest; larger batches
// are only safe where losing a buffered tail on crash is acceptable.
type Config struct {
	OrderEventsTable string
	BatchSize        int
	MaxDelay         time.Duration
	Attempts         int
	Backoff          time.Duration
	MaxBackoff       time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 1
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.Backoff <= 0 {
		c.Backoff = 250 * time.Millisecond
	}
	if c.MaxBackoff < c.Backoff {
		c.MaxBackoff = max(2*time.Second, c.Backoff)
	}
	return c
}

type tableClient interface {
	EnsureTable(ctx context.Context, spec pkgbigquery.TableSpec) error
	Insert(ctx context.Context, table string, rows []cbigquery.ValueSaver) error
}

// Sink streams order event rows into BigQuery.
type Sink struct {
	client tableClient
	cfg    Config
	now    func() time.Time

	mu      sync.Mutex
	pending []types.OrderEventRow
	since   time.Time
}

// New makes sure the order_events table exists, creating it day-partitioned
// on occurred_at.
func New(ctx context.Context, client *pkgbigquery.Client, cfg Config) (*Sink, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	return newSink(ctx, client, cfg)
}

func newSink(ctx context.Context, client tableClient, cfg Config) (*Sink, error) {
	cfg.OrderEventsTable = strings.TrimSpace(cfg.OrderEventsTable)
	if cfg.OrderEventsTable == "" {
		return nil, errors.New("order events table is required")
	}
	err := client.EnsureTable(ctx, pkgbigquery.TableSpec{
		Name:           cfg.OrderEventsTable,
		Schema:         types.OrderEventSchema,
		PartitionField: "occurred_at",
	})
	if err != nil {
		return nil, err
	}
	return &Sink{client: client, cfg: cfg.withDefaults(), now: time.Now}, nil
}

// InsertOrderEvent buffers row and writes the buffer once it is full or its
// oldest row has waited MaxDelay.
func (s *Sink) InsertOrderEvent(ctx context.Context, row types.OrderEventRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		s.since = s.now()
	}
	s.pending = append(s.pending, row)
	if len(s.pending) < s.cfg.BatchSize && s.now().Sub(s.since) < s.cfg.MaxDelay {
		return nil
	}
	return s.flush(ctx)
}

// Flush writes whatever is buffered.
func (s *Sink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flush(ctx)
}

func (s *Sink) flush(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}
	savers := make([]cbigquery.ValueSaver, len(s.pending))
	for i := range s.pending {
		savers[i] = s.pending[i].Saver()
	}

	backoff := retry.WithMaxRetries(uint64(s.cfg.Attempts-1),
		retry.WithCappedDuration(s.cfg.MaxBackoff, retry.NewExponential(s.cfg.Backoff)))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := s.client.Insert(ctx, s.cfg.OrderEventsTable, savers)
		if err != nil && transient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		// rows stay pending for the next flush
		return fmt.Errorf("insert %d rows into %s: %w", len(savers), s.cfg.OrderEventsTable, err)
	}
	s.pending = s.pending[:0]
	return nil
}
