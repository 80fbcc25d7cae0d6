package delivery

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/forkfleet/forkfleet-backend/pkg/db"
	"github.com/forkfleet/forkfleet-backend/pkg/db/models"
	"github.com/forkfleet/forkfleet-backend/pkg/enums"
)

// Repository persists delivery quotes and bookings.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateQuote(ctx context.Context, quote *models.DeliveryQuote) error
	FindQuote(ctx context.Context, id uuid.UUID) (*models.DeliveryQuote, error)
	LockQuote(ctx context.Context, id uuid.UUID) (*models.DeliveryQuote, error)
	ConsumeQuote(ctx context.Context, id, orderID uuid.UUID, at time.Time) error
	DeleteExpiredQuotes(ctx context.Context, before time.Time) (int64, error)
	FindBookingByOrder(ctx context.Context, orderID uuid.UUID) (*models.DeliveryBooking, error)
	SaveBooking(ctx context.Context, booking *models.DeliveryBooking) error
	ListDueBookings(ctx context.Context, now time.Time, limit int) ([]models.DeliveryBooking, error)
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a delivery repository bound to the provided database.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateQuote(ctx context.Context, quote *models.DeliveryQuote) error {
	return r.db.WithContext(ctx).Create(quote).Error
}

func (r *repository) FindQuote(ctx context.Context, id uuid.UUID) (*models.DeliveryQuote, error) {
	var quote models.DeliveryQuote
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&quote).Error; err != nil {
		return nil, err
	}
	return &quote, nil
}

func (r *repository) LockQuote(ctx context.Context, id uuid.UUID) (*models.DeliveryQuote, error) {
	var quote models.DeliveryQuote
	if err := db.ForUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&quote).Error; err != nil {
		return nil, err
	}
	return &quote, nil
}

// ConsumeQuote binds the quote to the order. Only an unconsumed quote matches.
func (r *repository) ConsumeQuote(ctx context.Context, id, orderID uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.DeliveryQuote{}).
		Where("id = ? AND consumed_at IS NULL", id).
		Updates(map[string]any{"consumed_at": at, "order_id": orderID})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) DeleteExpiredQuotes(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("consumed_at IS NULL AND expires_at < ?", before).
		Delete(&models.DeliveryQuote{})
	return res.RowsAffected, res.Error
}

func (r *repository) FindBookingByOrder(ctx context.Context, orderID uuid.UUID) (*models.DeliveryBooking, error) {
	var booking models.DeliveryBooking
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&booking).Error; err != nil {
		return nil, err
	}
	return &booking, nil
}

// SaveBooking upserts on order_id; there is at most one booking per order.
func (r *repository) SaveBooking(ctx context.Context, booking *models.DeliveryBooking) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "order_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"status", "external_delivery_id", "tracking_ref", "attempt_count",
				"last_error", "next_attempt_at", "updated_at",
			}),
		}).
		Create(booking).Error
}

func (r *repository) ListDueBookings(ctx context.Context, now time.Time, limit int) ([]models.DeliveryBooking, error) {
	var bookings []models.DeliveryBooking
	if err := r.db.WithContext(ctx).
		Where("status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)", enums.DeliveryBookingPendingRetry, now).
		Order("next_attempt_at ASC").
		Limit(limit).
		Find(&bookings).Error; err != nil {
		return nil, err
	}
	return bookings, nil
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", orderID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}
