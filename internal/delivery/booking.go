package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/forkfleet/forkfleet-backend/pkg/db/models"
	"github.com/forkfleet/forkfleet-backend/pkg/enums"
	pkgerrors "github.com/forkfleet/forkfleet-backend/pkg/errors"
	"github.com/forkfleet/forkfleet-backend/pkg/outbox"
	"github.com/forkfleet/forkfleet-backend/pkg/outbox/payloads"
)

const maxErrorLength = 512

// BookDelivery creates the courier delivery for a READY delivery order using
// the provider and token of its bound quote. A failed call leaves the booking
// in PENDING_RETRY with a backoff; the order transition is never undone.
func (s *Shopper) BookDelivery(ctx context.Context, order *models.Order) (*models.DeliveryBooking, error) {
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order is required")
	}
	if order.OrderType != enums.OrderTypeDelivery || order.DeliveryQuoteID == nil {
		return nil, nil
	}

	booking, err := s.repo.FindBookingByOrder(ctx, order.ID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		booking = &models.DeliveryBooking{
			ID:      uuid.New(),
			OrderID: order.ID,
			QuoteID: *order.DeliveryQuoteID,
			Status:  enums.DeliveryBookingPendingRetry,
		}
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load delivery booking")
	case booking.Status != enums.DeliveryBookingPendingRetry:
		return booking, nil
	}
	return s.attempt(ctx, order, booking)
}

func (s *Shopper) attempt(ctx context.Context, order *models.Order, booking *models.DeliveryBooking) (*models.DeliveryBooking, error) {
	quote, err := s.repo.FindQuote(ctx, booking.QuoteID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load delivery quote")
	}
	booking.Provider = quote.Provider

	logCtx := ctx
	if s.logg != nil {
		logCtx = s.logg.WithOrderID(ctx, order.ID.String())
		logCtx = s.logg.WithField(logCtx, "provider", quote.Provider)
	}

	provider, ok := s.providers[quote.Provider]
	var result error
	var created *bookingResult
	if !ok {
		result = fmt.Errorf("courier provider %q is not configured", quote.Provider)
	} else {
		created, result = s.callProvider(ctx, provider, quote.RequestToken, order.OrderNumber)
	}

	now := s.now().UTC()
	booking.AttemptCount++

	if result != nil {
		msg := result.Error()
		if len(msg) > maxErrorLength {
			msg = msg[:maxErrorLength]
		}
		booking.LastError = &msg
		if booking.AttemptCount >= s.cfg.BookingMaxAttempts {
			booking.Status = enums.DeliveryBookingAbandoned
			booking.NextAttemptAt = nil
		} else {
			booking.Status = enums.DeliveryBookingPendingRetry
			next := now.Add(s.cfg.BookingRetryBackoff * time.Duration(booking.AttemptCount))
			booking.NextAttemptAt = &next
		}
		if err := s.repo.SaveBooking(ctx, booking); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, multierr.Append(result, err), "record booking failure")
		}
		if s.logg != nil {
			s.logg.Warn(s.logg.WithFields(logCtx, map[string]any{
				"attempt": booking.AttemptCount,
				"status":  booking.Status,
				"error":   msg,
			}), "delivery booking failed")
		}
		return booking, pkgerrors.Wrap(pkgerrors.CodeDependency, result, "courier booking failed")
	}

	booking.Status = enums.DeliveryBookingBooked
	booking.ExternalDeliveryID = &created.deliveryID
	booking.TrackingRef = &created.trackingRef
	booking.LastError = nil
	booking.NextAttemptAt = nil

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).SaveBooking(ctx, booking); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDeliveryBooked,
			AggregateType: enums.AggregateDelivery,
			AggregateID:   order.ID,
			Data: payloads.DeliveryBookedEvent{
				OrderID:            order.ID,
				BookingID:          booking.ID,
				Provider:           booking.Provider,
				ExternalDeliveryID: created.deliveryID,
				TrackingRef:        created.trackingRef,
				Attempts:           booking.AttemptCount,
				BookedAt:           now,
			},
			Version:    1,
			OccurredAt: now,
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record delivery booking")
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithField(logCtx, "external_delivery_id", created.deliveryID), "delivery booked")
	}
	return booking, nil
}

type bookingResult struct {
	deliveryID  string
	trackingRef string
}

func (s *Shopper) callProvider(ctx context.Context, provider CourierProvider, token, orderRef string) (*bookingResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.BookingTimeout)
	defer cancel()

	type reply struct {
		res *bookingResult
		err error
	}
	done := make(chan reply, 1)
	go func() {
		booked, err := provider.CreateDelivery(callCtx, token, orderRef)
		if err != nil {
			done <- reply{err: err}
			return
		}
		if booked == nil || booked.DeliveryID == "" {
			done <- reply{err: errors.New("courier returned no delivery id")}
			return
		}
		done <- reply{res: &bookingResult{deliveryID: booked.DeliveryID, trackingRef: booked.TrackingRef}}
	}()

	select {
	case r := <-done:
		return r.res, r.err
	case <-callCtx.Done():
		return nil, fmt.Errorf("booking timed out: %w", callCtx.Err())
	}
}

// RetryPendingBookings retries every booking whose backoff has elapsed. It
// returns the number of bookings that became BOOKED.
func (s *Shopper) RetryPendingBookings(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 50
	}
	due, err := s.repo.ListDueBookings(ctx, s.now().UTC(), limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list pending bookings")
	}

	var (
		booked int
		errs   error
	)
	for i := range due {
		booking := due[i]
		order, err := s.repo.FindOrder(ctx, booking.OrderID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", booking.OrderID, err))
			continue
		}
		if order.Status.IsTerminal() {
			booking.Status = enums.DeliveryBookingAbandoned
			booking.NextAttemptAt = nil
			if err := s.repo.SaveBooking(ctx, &booking); err != nil {
				errs = multierr.Append(errs, err)
			}
			continue
		}
		result, err := s.attempt(ctx, order, &booking)
		if err != nil {
			if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
				errs = multierr.Append(errs, err)
			}
			continue
		}
		if result.Status == enums.DeliveryBookingBooked {
			booked++
		}
	}
	return booked, errs
}
