package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/forkfleet/forkfleet-backend/pkg/logger"
)

const (
	quoteExpiryGrace        = 5 * time.Minute
	defaultBookingBatchSize = 50
)

type quoteExpirer interface {
	ExpireQuotes(ctx context.Context, before time.Time) (int64, error)
}

type bookingRetrier interface {
	RetryPendingBookings(ctx context.Context, limit int) (int, error)
}

type QuoteExpiryJobParams struct {
	Logger  *logger.Logger
	Shopper quoteExpirer
	Grace   time.Duration
}

// NewQuoteExpiryJob deletes unconsumed delivery quotes that expired more
// than Grace ago.
func NewQuoteExpiryJob(params QuoteExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Shopper == nil {
		return nil, fmt.Errorf("delivery shopper required")
	}
	grace := params.Grace
	if grace <= 0 {
		grace = quoteExpiryGrace
	}
	return &quoteExpiryJob{logg: params.Logger, shopper: params.Shopper, grace: grace, now: time.Now}, nil
}

type quoteExpiryJob struct {
	logg    *logger.Logger
	shopper quoteExpirer
	grace   time.Duration
	now     func() time.Time
}

func (j *quoteExpiryJob) Name() string { return "delivery-quote-expiry" }

func (j *quoteExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.grace)
	deleted, err := j.shopper.ExpireQuotes(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("expire delivery quotes: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	}), "expired delivery quotes removed")
	return nil
}

type BookingRetryJobParams struct {
	Logger    *logger.Logger
	Shopper   bookingRetrier
	BatchSize int
}

// NewBookingRetryJob retries courier bookings left in PENDING_RETRY.
func NewBookingRetryJob(params BookingRetryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Shopper == nil {
		return nil, fmt.Errorf("delivery shopper required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBookingBatchSize
	}
	return &bookingRetryJob{logg: params.Logger, shopper: params.Shopper, batch: batch}, nil
}

type bookingRetryJob struct {
	logg    *logger.Logger
	shopper bookingRetrier
	batch   int
}

func (j *bookingRetryJob) Name() string { return "delivery-booking-retry" }

func (j *bookingRetryJob) Run(ctx context.Context) error {
	booked, err := j.shopper.RetryPendingBookings(ctx, j.batch)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"batch_size": j.batch,
		"booked":     booked,
	})
	if err != nil {
		return fmt.Errorf("retry courier bookings: %w", err)
	}
	j.logg.Info(logCtx, "pending courier bookings retried")
	return nil
}
