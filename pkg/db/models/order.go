package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forkfleet/forkfleet-backend/pkg/enums"
)

// Order is a customer's committed purchase from one vendor. Rows are only
// written by the orders and cancellation packages.
type Order struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber       string              `gorm:"column:order_number;not null;uniqueIndex:ux_orders_order_number"`
	CustomerID        uuid.UUID           `gorm:"column:customer_id;type:uuid;not null"`
	VendorID          uuid.UUID           `gorm:"column:vendor_id;type:uuid;not null"`
	OrderType         enums.OrderType     `gorm:"column:order_type;type:text;not null"`
	Status            enums.OrderStatus   `gorm:"column:order_status;type:text;not null;default:'NEW'"`
	PaymentMethod     enums.PaymentMethod `gorm:"column:payment_method;type:text;not null"`
	PaymentStatus     enums.PaymentStatus `gorm:"column:payment_status;type:text;not null;default:'PENDING'"`
	Currency          enums.Currency      `gorm:"column:currency;type:text;not null"`
	Subtotal          int64               `gorm:"column:subtotal;not null"`
	DeliveryFee       int64               `gorm:"column:delivery_fee;not null;default:0"`
	TotalAmount       int64               `gorm:"column:total_amount;not null"`
	VendorShare       int64               `gorm:"column:vendor_share;not null"`
	DeliveryQuoteID   *uuid.UUID          `gorm:"column:delivery_quote_id;type:uuid"`
	DeliveryAddressID *uuid.UUID          `gorm:"column:delivery_address_id;type:uuid"`
	OrderReadyAt      *time.Time          `gorm:"column:order_ready_at"`
	DeliveredAt       *time.Time          `gorm:"column:delivered_at"`
	CancelledAt       *time.Time          `gorm:"column:cancelled_at"`
	CancelReason      *string             `gorm:"column:cancel_reason"`
	CancelledBy       *enums.ActorRole    `gorm:"column:cancelled_by;type:text"`
	Version           int                 `gorm:"column:version;not null;default:1"`
	Items             []OrderItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// OrderItem snapshots a menu item at order time. Immutable once written.
type OrderItem struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID    uuid.UUID `gorm:"column:order_id;type:uuid;not null"`
	MenuItemID uuid.UUID `gorm:"column:menu_item_id;type:uuid;not null"`
	Name       string    `gorm:"column:name;not null"`
	UnitPrice  int64     `gorm:"column:unit_price;not null"`
	Quantity   int       `gorm:"column:quantity;not null"`
	TotalPrice int64     `gorm:"column:total_price;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
