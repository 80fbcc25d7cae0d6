package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forkfleet/forkfleet-backend/pkg/enums"
)

// Wallet holds a user's stored value. Balance is the customer side,
// VendorBalance accumulates earnings; both are never negative.
type Wallet struct {
	ID            uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID        uuid.UUID      `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`
	Balance       int64          `gorm:"column:balance;not null;default:0"`
	VendorBalance int64          `gorm:"column:vendor_balance;not null;default:0"`
	Currency      enums.Currency `gorm:"column:currency;type:text;not null"`
	CreatedAt     time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (w *Wallet) BeforeCreate(*gorm.DB) error {
	ensureID(&w.ID)
	return nil
}

// BalanceOf returns the sub-balance selected by kind.
func (w Wallet) BalanceOf(kind enums.BalanceKind) int64 {
	if kind == enums.BalanceKindVendor {
		return w.VendorBalance
	}
	return w.Balance
}

// WalletTransaction is the append-only record of one debit or credit.
type WalletTransaction struct {
	ID           uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	WalletID     uuid.UUID             `gorm:"column:wallet_id;type:uuid;not null"`
	UserID       uuid.UUID             `gorm:"column:user_id;type:uuid;not null"`
	OrderID      *uuid.UUID            `gorm:"column:order_id;type:uuid"`
	BalanceKind  enums.BalanceKind     `gorm:"column:balance_kind;type:text;not null"`
	Direction    enums.LedgerDirection `gorm:"column:direction;type:text;not null"`
	Amount       int64                 `gorm:"column:amount;not null"`
	Currency     enums.Currency        `gorm:"column:currency;type:text;not null"`
	Reason       string                `gorm:"column:reason;not null"`
	BalanceAfter int64                 `gorm:"column:balance_after;not null"`
	CreatedAt    time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (t *WalletTransaction) BeforeCreate(*gorm.DB) error {
	ensureID(&t.ID)
	return nil
}
