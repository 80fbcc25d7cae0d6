package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/forkfleet/forkfleet-backend/pkg/enums"
)

// Vendor is read from the profile subsystem's vendors table.
type Vendor struct {
	ID              uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	OwnerUserID     uuid.UUID      `gorm:"column:owner_user_id;type:uuid;not null"`
	Name            string         `gorm:"column:name;not null"`
	AddressID       uuid.UUID      `gorm:"column:address_id;type:uuid;not null"`
	Currency        enums.Currency `gorm:"column:currency;type:text;not null"`
	AcceptingOrders bool           `gorm:"column:accepting_orders;not null"`
	UpdatedAt       time.Time      `gorm:"column:updated_at"`
}

// MenuItem is read from the catalog subsystem's menu_items table.
type MenuItem struct {
	ID        uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	VendorID  uuid.UUID      `gorm:"column:vendor_id;type:uuid;not null"`
	Name      string         `gorm:"column:name;not null"`
	Price     int64          `gorm:"column:price;not null"`
	Currency  enums.Currency `gorm:"column:currency;type:text;not null"`
	Available bool           `gorm:"column:available;not null"`
	UpdatedAt time.Time      `gorm:"column:updated_at"`
}

// Address is read from the profile subsystem's addresses table.
type Address struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UserID     uuid.UUID `gorm:"column:user_id;type:uuid;not null"`
	Line1      string    `gorm:"column:line1;not null"`
	Line2      *string   `gorm:"column:line2"`
	City       string    `gorm:"column:city;not null"`
	Region     string    `gorm:"column:region;not null"`
	PostalCode string    `gorm:"column:postal_code;not null"`
	Country    string    `gorm:"column:country;not null"`
	Lat        *float64  `gorm:"column:lat"`
	Lng        *float64  `gorm:"column:lng"`
	PlaceID    *string   `gorm:"column:place_id"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}
