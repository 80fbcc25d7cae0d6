// Package wallets owns every balance mutation. Debits and credits always run
// inside the caller's transaction so they commit or roll back together with
// the order or payment change they belong to.
package wallets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forkfleet/forkfleet-backend/pkg/db/models"
	"github.com/forkfleet/forkfleet-backend/pkg/enums"
	pkgerrors "github.com/forkfleet/forkfleet-backend/pkg/errors"
	"github.com/forkfleet/forkfleet-backend/pkg/logger"
)

const (
	defaultTransactionLimit = 20
	maxTransactionLimit     = 100
)

// Movement is one debit or credit against a sub-balance.
type Movement struct {
	UserID   uuid.UUID
	Amount   int64
	Currency enums.Currency
	Kind     enums.BalanceKind
	OrderID  *uuid.UUID
	Reason   string
}

func (m Movement) validate() error {
	if m.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "wallet user id is required")
	}
	if m.Amount <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than zero")
	}
	if !m.Currency.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported currency %q", m.Currency))
	}
	if !m.Kind.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid balance kind %q", m.Kind))
	}
	if strings.TrimSpace(m.Reason) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "movement reason is required")
	}
	return nil
}

// Ledger applies atomic debits and credits to wallets.
type Ledger struct {
	repo Repository
	logg *logger.Logger
}

// NewLedger wires a ledger over the wallet repository.
func NewLedger(repo Repository, logg *logger.Logger) (*Ledger, error) {
	if repo == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	return &Ledger{repo: repo, logg: logg}, nil
}

// Debit removes funds. A missing wallet or a balance that would go negative
// fails with InsufficientFunds.
func (l *Ledger) Debit(ctx context.Context, tx *gorm.DB, m Movement) (*models.Wallet, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "wallet debit requires a transaction")
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	repo := l.repo.WithTx(tx)

	wallet, err := repo.LockByUserID(ctx, m.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, insufficientFunds(m, 0)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock wallet")
	}
	if wallet.Currency != m.Currency {
		return nil, currencyMismatch(wallet, m)
	}
	current := wallet.BalanceOf(m.Kind)
	if current < m.Amount {
		return nil, insufficientFunds(m, current)
	}

	applied, err := repo.ApplyDelta(ctx, wallet.ID, m.Kind, -m.Amount)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "debit wallet")
	}
	if !applied {
		return nil, insufficientFunds(m, current)
	}
	return l.record(ctx, repo, wallet, m, enums.LedgerDirectionDebit, current-m.Amount)
}

// Credit adds funds, opening the wallet in the movement currency when the user
// has none yet.
func (l *Ledger) Credit(ctx context.Context, tx *gorm.DB, m Movement) (*models.Wallet, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "wallet credit requires a transaction")
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	repo := l.repo.WithTx(tx)

	wallet, err := repo.LockByUserID(ctx, m.UserID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := repo.CreateIfMissing(ctx, &models.Wallet{UserID: m.UserID, Currency: m.Currency}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "open wallet")
		}
		wallet, err = repo.LockByUserID(ctx, m.UserID)
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock wallet")
	}
	if wallet.Currency != m.Currency {
		return nil, currencyMismatch(wallet, m)
	}

	current := wallet.BalanceOf(m.Kind)
	applied, err := repo.ApplyDelta(ctx, wallet.ID, m.Kind, m.Amount)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "credit wallet")
	}
	if !applied {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "wallet credit not applied")
	}
	return l.record(ctx, repo, wallet, m, enums.LedgerDirectionCredit, current+m.Amount)
}

// GetWallet returns the caller's wallet.
func (l *Ledger) GetWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	wallet, err := l.repo.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load wallet")
	}
	return wallet, nil
}

// ListTransactions returns the newest movements first.
func (l *Ledger) ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]models.WalletTransaction, error) {
	if limit <= 0 {
		limit = defaultTransactionLimit
	}
	if limit > maxTransactionLimit {
		limit = maxTransactionLimit
	}
	entries, err := l.repo.ListTransactions(ctx, userID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list wallet transactions")
	}
	return entries, nil
}

func (l *Ledger) record(ctx context.Context, repo Repository, wallet *models.Wallet, m Movement, dir enums.LedgerDirection, after int64) (*models.Wallet, error) {
	entry := &models.WalletTransaction{
		WalletID:     wallet.ID,
		UserID:       wallet.UserID,
		OrderID:      m.OrderID,
		BalanceKind:  m.Kind,
		Direction:    dir,
		Amount:       m.Amount,
		Currency:     m.Currency,
		Reason:       m.Reason,
		BalanceAfter: after,
	}
	if err := repo.AppendTransaction(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "append wallet transaction")
	}

	if m.Kind == enums.BalanceKindVendor {
		wallet.VendorBalance = after
	} else {
		wallet.Balance = after
	}

	if l.logg != nil {
		logCtx := l.logg.WithFields(ctx, map[string]any{
			"wallet_id":    wallet.ID.String(),
			"direction":    dir,
			"balance_kind": m.Kind,
			"amount":       m.Amount,
			"reason":       m.Reason,
		})
		l.logg.Info(logCtx, "wallet movement applied")
	}
	return wallet, nil
}

func insufficientFunds(m Movement, available int64) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientFunds, "insufficient wallet balance").
		WithDetails(map[string]any{
			"balance_kind": m.Kind,
			"required":     m.Amount,
			"available":    available,
			"currency":     m.Currency,
		})
}

func currencyMismatch(wallet *models.Wallet, m Movement) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "currency does not match wallet currency").
		WithDetails(map[string]any{
			"wallet_currency":   wallet.Currency,
			"movement_currency": m.Currency,
		})
}
