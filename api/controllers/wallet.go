package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/forkfleet/forkfleet-backend/api/middleware"
	"github.com/forkfleet/forkfleet-backend/api/responses"
	"github.com/forkfleet/forkfleet-backend/api/validators"
	"github.com/forkfleet/forkfleet-backend/pkg/db/models"
	"github.com/forkfleet/forkfleet-backend/pkg/enums"
	pkgerrors "github.com/forkfleet/forkfleet-backend/pkg/errors"
	"github.com/forkfleet/forkfleet-backend/pkg/logger"
)

const (
	defaultWalletTransactions = 20
	maxWalletTransactions     = 100
)

// WalletReader is satisfied by *wallets.Ledger.
type WalletReader interface {
	GetWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]models.WalletTransaction, error)
}

// Wallet returns the caller's balances and most recent movements. Vendor
// staff see their vendor's wallet.
func Wallet(ledger WalletReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ledger == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "wallet ledger unavailable"))
			return
		}

		actor, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		owner := actor.UserID
		if actor.Role == enums.ActorRoleVendor && actor.VendorID != nil {
			owner = *actor.VendorID
		}

		limit, err := validators.ParseQueryInt(r, "limit", defaultWalletTransactions, 1, maxWalletTransactions)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		wallet, err := ledger.GetWallet(r.Context(), owner)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entries, err := ledger.ListTransactions(r.Context(), owner, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newWalletResponse(wallet, entries))
	}
}

type walletResponse struct {
	WalletID      uuid.UUID             `json:"wallet_id"`
	Balance       int64                 `json:"balance"`
	VendorBalance int64                 `json:"vendor_balance"`
	Currency      enums.Currency        `json:"currency"`
	Transactions  []walletEntryResponse `json:"transactions"`
}

type walletEntryResponse struct {
	ID           uuid.UUID             `json:"id"`
	OrderID      *uuid.UUID            `json:"order_id,omitempty"`
	BalanceKind  enums.BalanceKind     `json:"balance_kind"`
	Direction    enums.LedgerDirection `json:"direction"`
	Amount       int64                 `json:"amount"`
	Reason       string                `json:"reason"`
	BalanceAfter int64                 `json:"balance_after"`
	CreatedAt    time.Time             `json:"created_at"`
}

func newWalletResponse(wallet *models.Wallet, entries []models.WalletTransaction) walletResponse {
	resp := walletResponse{
		WalletID:      wallet.ID,
		Balance:       wallet.Balance,
		VendorBalance: wallet.VendorBalance,
		Currency:      wallet.Currency,
		Transactions:  make([]walletEntryResponse, 0, len(entries)),
	}
	for _, entry := range entries {
		resp.Transactions = append(resp.Transactions, walletEntryResponse{
			ID:           entry.ID,
			OrderID:      entry.OrderID,
			BalanceKind:  entry.BalanceKind,
			Direction:    entry.Direction,
			Amount:       entry.Amount,
			Reason:       entry.Reason,
			BalanceAfter: entry.BalanceAfter,
			CreatedAt:    entry.CreatedAt,
		})
	}
	return resp
}
