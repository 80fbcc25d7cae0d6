package orders

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forkfleet/forkfleet-backend/internal/delivery"
	"github.com/forkfleet/forkfleet-backend/pkg/db/models"
	"github.com/forkfleet/forkfleet-backend/pkg/enums"
	pkgerrors "github.com/forkfleet/forkfleet-backend/pkg/errors"
	"github.com/forkfleet/forkfleet-backend/pkg/pagination"
)

// GetOrder returns the order with its items when the actor may see it.
func (m *Manager) GetOrder(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	if err := actor.validate(); err != nil {
		return nil, err
	}
	order, err := m.repo.FindOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if !actor.Owns(order) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another account")
	}
	return order, nil
}

// ListOrders pages through the actor's orders, newest first. Customers see
// their own, vendor staff see their vendor's, admins see everything.
func (m *Manager) ListOrders(ctx context.Context, actor Actor, status *enums.OrderStatus, params pagination.Params) (pagination.Page[models.Order], error) {
	if err := actor.validate(); err != nil {
		return pagination.Page[models.Order]{}, err
	}
	if status != nil && !status.IsValid() {
		return pagination.Page[models.Order]{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}

	filter := ListFilter{Status: status}
	switch actor.Role {
	case enums.ActorRoleCustomer:
		id := actor.UserID
		filter.CustomerID = &id
	case enums.ActorRoleVendor:
		filter.VendorID = actor.VendorID
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return pagination.Page[models.Order]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	var keyset *ListCursor
	if cursor != nil {
		keyset = &ListCursor{CreatedAt: cursor.CreatedAt, ID: cursor.ID}
	}

	rows, err := m.repo.ListOrders(ctx, filter, keyset, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return pagination.Page[models.Order]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	return pagination.Trim(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	}), nil
}

// PreviewInput prices a cart without creating anything.
type PreviewInput struct {
	CustomerID        uuid.UUID
	VendorID          uuid.UUID
	Items             []ItemInput
	OrderType         enums.OrderType
	CustomerAddressID *uuid.UUID
}

// CostPreview is the would-be total of a cart.
type CostPreview struct {
	Subtotal    int64          `json:"subtotal"`
	DeliveryFee int64          `json:"delivery_fee"`
	TotalAmount int64          `json:"total_amount"`
	Currency    enums.Currency `json:"currency"`
	Provider    string         `json:"provider,omitempty"`
}

// PreviewCost prices the cart from live snapshots and, for delivery, the
// cheapest courier offer. Nothing is persisted.
func (m *Manager) PreviewCost(ctx context.Context, in PreviewInput) (*CostPreview, error) {
	if in.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "customer identity missing")
	}
	if in.VendorID == uuid.Nil || len(in.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor and items are required")
	}
	for _, item := range in.Items {
		if item.MenuItemID == uuid.Nil || item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "every item needs an id and a positive quantity")
		}
	}
	if !in.OrderType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order type")
	}
	if in.OrderType == enums.OrderTypeDelivery && (in.CustomerAddressID == nil || *in.CustomerAddressID == uuid.Nil) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery previews require an address")
	}

	vendor, err := m.vendors.FindVendor(ctx, in.VendorID)
	if err != nil {
		return nil, err
	}
	_, subtotal, err := m.priceItems(ctx, vendor, in.Items)
	if err != nil {
		return nil, err
	}

	preview := &CostPreview{Subtotal: subtotal, TotalAmount: subtotal, Currency: vendor.Currency}
	if in.OrderType != enums.OrderTypeDelivery {
		return preview, nil
	}

	items := make([]delivery.ItemQuantity, 0, len(in.Items))
	for _, item := range in.Items {
		items = append(items, delivery.ItemQuantity{MenuItemID: item.MenuItemID, Quantity: item.Quantity})
	}
	offer, err := m.delivery.Preview(ctx, delivery.QuoteInput{
		VendorID:          vendor.ID,
		CustomerID:        in.CustomerID,
		VendorAddressID:   vendor.AddressID,
		CustomerAddressID: *in.CustomerAddressID,
		Items:             items,
		Currency:          vendor.Currency,
	})
	if err != nil {
		return nil, err
	}
	preview.DeliveryFee = offer.Fee
	preview.TotalAmount = subtotal + offer.Fee
	preview.Provider = offer.Provider
	return preview, nil
}
