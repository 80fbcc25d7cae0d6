package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forkfleet/forkfleet-backend/pkg/db/models"
	"github.com/forkfleet/forkfleet-backend/pkg/enums"
)

// Repository defines persistence operations for orders and their items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	LockOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	UpdateOrder(ctx context.Context, orderID uuid.UUID, updates map[string]any) error
	ListOrders(ctx context.Context, filter ListFilter, cursor *ListCursor, limit int) ([]models.Order, error)
}

// ListFilter narrows a listing to one customer or vendor. Both nil lists all.
type ListFilter struct {
	CustomerID *uuid.UUID
	VendorID   *uuid.UUID
	Status     *enums.OrderStatus
}

// ListCursor is the keyset position of the last row of the previous page.
type ListCursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}
