package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forkfleet/forkfleet-backend/pkg/enums"
)

// PaymentRecord is one money movement attempt for an order: a charge through
// a payment strategy, or a refund back to the customer.
type PaymentRecord struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID           uuid.UUID               `gorm:"column:order_id;type:uuid;not null;index"`
	Kind              enums.PaymentRecordKind `gorm:"column:kind;type:text;not null"`
	Provider          enums.PaymentProvider   `gorm:"column:provider;type:text;not null"`
	Amount            int64                   `gorm:"column:amount;not null"`
	Currency          enums.Currency          `gorm:"column:currency;type:text;not null"`
	Status            enums.PaymentStatus     `gorm:"column:status;type:text;not null"`
	ExternalReference *string                 `gorm:"column:external_reference"`
	RedirectURL       *string                 `gorm:"column:redirect_url"`
	FailureReason     *string                 `gorm:"column:failure_reason"`
	SettledAt         *time.Time              `gorm:"column:settled_at"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *PaymentRecord) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// NetPaid sums records by effect: settled charges minus completed refunds.
func NetPaid(records []PaymentRecord) int64 {
	var total int64
	for _, r := range records {
		switch {
		case r.Kind == enums.PaymentRecordCharge && r.Status == enums.PaymentStatusPaid:
			total += r.Amount
		case r.Kind == enums.PaymentRecordRefund && r.Status == enums.PaymentStatusRefunded:
			total -= r.Amount
		}
	}
	return total
}
