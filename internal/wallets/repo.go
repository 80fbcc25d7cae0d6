package wallets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/forkfleet/forkfleet-backend/pkg/db"
	"github.com/forkfleet/forkfleet-backend/pkg/db/models"
	"github.com/forkfleet/forkfleet-backend/pkg/enums"
)

// Repository persists wallets and their transaction log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	LockByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	CreateIfMissing(ctx context.Context, wallet *models.Wallet) error
	ApplyDelta(ctx context.Context, walletID uuid.UUID, kind enums.BalanceKind, delta int64) (bool, error)
	AppendTransaction(ctx context.Context, entry *models.WalletTransaction) error
	ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]models.WalletTransaction, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a wallet repository bound to the provided database.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) LockByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := db.ForUpdate(r.db.WithContext(ctx)).Where("user_id = ?", userID).First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

// CreateIfMissing inserts the wallet unless one already exists for the user.
func (r *repository) CreateIfMissing(ctx context.Context, wallet *models.Wallet) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(wallet).Error
}

// ApplyDelta adds delta to one sub-balance. The update only matches while the
// result stays non-negative; false means the guard rejected it.
func (r *repository) ApplyDelta(ctx context.Context, walletID uuid.UUID, kind enums.BalanceKind, delta int64) (bool, error) {
	column, err := balanceColumn(kind)
	if err != nil {
		return false, err
	}
	res := r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("id = ?", walletID).
		Where(fmt.Sprintf("%s + ? >= 0", column), delta).
		Updates(map[string]any{
			column:       gorm.Expr(fmt.Sprintf("%s + ?", column), delta),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) AppendTransaction(ctx context.Context, entry *models.WalletTransaction) error {
	if entry == nil {
		return errors.New("wallet transaction required")
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]models.WalletTransaction, error) {
	var entries []models.WalletTransaction
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func balanceColumn(kind enums.BalanceKind) (string, error) {
	switch kind {
	case enums.BalanceKindCustomer:
		return "balance", nil
	case enums.BalanceKindVendor:
		return "vendor_balance", nil
	default:
		return "", fmt.Errorf("invalid balance kind %q", kind)
	}
}
