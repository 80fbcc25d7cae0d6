package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forkfleet/forkfleet-backend/pkg/enums"
)

// DeliveryQuote is a single-use, time-bounded courier price offer.
type DeliveryQuote struct {
	ID                uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	VendorID          uuid.UUID         `gorm:"column:vendor_id;type:uuid;not null"`
	CustomerID        uuid.UUID         `gorm:"column:customer_id;type:uuid;not null"`
	VendorAddressID   uuid.UUID         `gorm:"column:vendor_address_id;type:uuid;not null"`
	CustomerAddressID uuid.UUID         `gorm:"column:customer_address_id;type:uuid;not null"`
	Provider          string            `gorm:"column:provider;not null"`
	Fee               int64             `gorm:"column:fee;not null"`
	Currency          enums.Currency    `gorm:"column:currency;type:text;not null"`
	RequestToken      string            `gorm:"column:request_token;not null"`
	PackageTier       enums.PackageTier `gorm:"column:package_tier;type:text;not null"`
	ExpiresAt         time.Time         `gorm:"column:expires_at;not null"`
	ConsumedAt        *time.Time        `gorm:"column:consumed_at"`
	OrderID           *uuid.UUID        `gorm:"column:order_id;type:uuid"`
	CreatedAt         time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (q *DeliveryQuote) BeforeCreate(*gorm.DB) error {
	ensureID(&q.ID)
	return nil
}

// IsActive reports whether the quote can still be bound to an order.
func (q DeliveryQuote) IsActive(now time.Time) bool {
	return q.ConsumedAt == nil && now.Before(q.ExpiresAt)
}

// DeliveryBooking tracks the courier delivery created once an order is READY.
type DeliveryBooking struct {
	ID                 uuid.UUID                   `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID            uuid.UUID                   `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	QuoteID            uuid.UUID                   `gorm:"column:quote_id;type:uuid;not null"`
	Provider           string                      `gorm:"column:provider;not null"`
	Status             enums.DeliveryBookingStatus `gorm:"column:status;type:text;not null"`
	ExternalDeliveryID *string                     `gorm:"column:external_delivery_id"`
	TrackingRef        *string                     `gorm:"column:tracking_ref"`
	AttemptCount       int                         `gorm:"column:attempt_count;not null;default:0"`
	LastError          *string                     `gorm:"column:last_error"`
	NextAttemptAt      *time.Time                  `gorm:"column:next_attempt_at"`
	CreatedAt          time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
}

func (b *DeliveryBooking) BeforeCreate(*gorm.DB) error {
	ensureID(&b.ID)
	return nil
}
