package orders

import (
	"github.com/google/uuid"

	"github.com/forkfleet/forkfleet-backend/pkg/db/models"
	"github.com/forkfleet/forkfleet-backend/pkg/enums"
	pkgerrors "github.com/forkfleet/forkfleet-backend/pkg/errors"
	"github.com/forkfleet/forkfleet-backend/pkg/outbox"
)

// Actor is the authenticated caller. VendorID is set for vendor staff.
type Actor struct {
	UserID   uuid.UUID
	Role     enums.ActorRole
	VendorID *uuid.UUID
}

func (a Actor) validate() error {
	if a.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !a.Role.IsValid() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "unknown actor role")
	}
	if a.Role == enums.ActorRoleVendor && (a.VendorID == nil || *a.VendorID == uuid.Nil) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "vendor context missing")
	}
	return nil
}

// Owns reports whether the actor is the order's customer or works for its
// vendor. Admins own everything.
func (a Actor) Owns(order *models.Order) bool {
	switch a.Role {
	case enums.ActorRoleAdmin:
		return true
	case enums.ActorRoleCustomer:
		return order.CustomerID == a.UserID
	case enums.ActorRoleVendor:
		return a.VendorID != nil && order.VendorID == *a.VendorID
	default:
		return false
	}
}

// Ref converts the actor for outbox envelopes.
func (a Actor) Ref() *outbox.ActorRef {
	return &outbox.ActorRef{UserID: a.UserID, Role: string(a.Role)}
}
