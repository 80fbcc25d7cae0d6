package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/forkfleet/forkfleet-backend/pkg/logger"
)

type fakeShopper struct {
	before    time.Time
	expired   int64
	expireErr error
	limit     int
	booked    int
	retryErr  error
}

func (f *fakeShopper) ExpireQuotes(_ context.Context, before time.Time) (int64, error) {
	f.before = before
	return f.expired, f.expireErr
}

func (f *fakeShopper) RetryPendingBookings(_ context.Context, limit int) (int, error) {
	f.limit = limit
	return f.booked, f.retryErr
}

func TestQuoteExpiryJobUsesGraceWindow(t *testing.T) {
	shopper := &fakeShopper{expired: 3}
	jobIface, err := NewQuoteExpiryJob(QuoteExpiryJobParams{
		Logger:  logger.New(logger.Options{ServiceName: "test"}),
		Shopper: shopper,
	})
	if err != nil {
		t.Fatalf("NewQuoteExpiryJob: %v", err)
	}
	job := jobIface.(*quoteExpiryJob)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !shopper.before.Equal(now.Add(-quoteExpiryGrace)) {
		t.Fatalf("unexpected cutoff %s", shopper.before)
	}
	if job.Name() != "delivery-quote-expiry" {
		t.Fatalf("unexpected job name %q", job.Name())
	}

	shopper.expireErr = errors.New("db down")
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error from shopper to propagate")
	}
}

func TestBookingRetryJobPassesBatchSize(t *testing.T) {
	shopper := &fakeShopper{booked: 2}
	job, err := NewBookingRetryJob(BookingRetryJobParams{
		Logger:    logger.New(logger.Options{ServiceName: "test"}),
		Shopper:   shopper,
		BatchSize: 10,
	})
	if err != nil {
		t.Fatalf("NewBookingRetryJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if shopper.limit != 10 {
		t.Fatalf("expected batch 10, got %d", shopper.limit)
	}

	shopper.retryErr = errors.New("courier api unavailable")
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected retry failure to surface")
	}
}

func TestDeliveryJobsRequireDependencies(t *testing.T) {
	if _, err := NewQuoteExpiryJob(QuoteExpiryJobParams{Shopper: &fakeShopper{}}); err == nil {
		t.Fatal("expected missing logger error")
	}
	if _, err := NewBookingRetryJob(BookingRetryJobParams{Logger: logger.New(logger.Options{})}); err == nil {
		t.Fatal("expected missing shopper error")
	}
}
