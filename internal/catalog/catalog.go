// Package catalog reads vendor and menu data owned by the catalog subsystem.
package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forkfleet/forkfleet-backend/pkg/db/models"
	"github.com/forkfleet/forkfleet-backend/pkg/enums"
	pkgerrors "github.com/forkfleet/forkfleet-backend/pkg/errors"
)

// ItemSnapshot is the price and availability of a menu item at read time.
type ItemSnapshot struct {
	MenuItemID uuid.UUID
	VendorID   uuid.UUID
	Name       string
	Price      int64
	Currency   enums.Currency
	Available  bool
}

// VendorInfo is what checkout needs to know about a vendor.
type VendorInfo struct {
	ID              uuid.UUID
	OwnerUserID     uuid.UUID
	AddressID       uuid.UUID
	Currency        enums.Currency
	AcceptingOrders bool
}

// Reader snapshots menu items.
type Reader interface {
	Snapshot(ctx context.Context, vendorID uuid.UUID, itemIDs []uuid.UUID) (map[uuid.UUID]ItemSnapshot, error)
}

// VendorDirectory looks vendors up.
type VendorDirectory interface {
	FindVendor(ctx context.Context, vendorID uuid.UUID) (*VendorInfo, error)
}

// Store implements both collaborators over the shared database.
type Store struct {
	db *gorm.DB
}

func NewStore(conn *gorm.DB) *Store {
	return &Store{db: conn}
}

// Snapshot returns the items found for the vendor keyed by id. Missing ids are
// simply absent from the map.
func (s *Store) Snapshot(ctx context.Context, vendorID uuid.UUID, itemIDs []uuid.UUID) (map[uuid.UUID]ItemSnapshot, error) {
	out := make(map[uuid.UUID]ItemSnapshot, len(itemIDs))
	if len(itemIDs) == 0 {
		return out, nil
	}
	var rows []models.MenuItem
	if err := s.db.WithContext(ctx).
		Where("vendor_id = ? AND id IN ?", vendorID, itemIDs).
		Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load menu items")
	}
	for _, row := range rows {
		out[row.ID] = ItemSnapshot{
			MenuItemID: row.ID,
			VendorID:   row.VendorID,
			Name:       row.Name,
			Price:      row.Price,
			Currency:   row.Currency,
			Available:  row.Available,
		}
	}
	return out, nil
}

func (s *Store) FindVendor(ctx context.Context, vendorID uuid.UUID) (*VendorInfo, error) {
	var row models.Vendor
	if err := s.db.WithContext(ctx).Where("id = ?", vendorID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "vendor not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load vendor")
	}
	return &VendorInfo{
		ID:              row.ID,
		OwnerUserID:     row.OwnerUserID,
		AddressID:       row.AddressID,
		Currency:        row.Currency,
		AcceptingOrders: row.AcceptingOrders,
	}, nil
}
