package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/forkfleet/forkfleet-backend/internal/orders"
	"github.com/forkfleet/forkfleet-backend/pkg/enums"
	pkgerrors "github.com/forkfleet/forkfleet-backend/pkg/errors"
)

// ActorFromContext turns the identity Auth stored into an orders.Actor.
func ActorFromContext(ctx context.Context) (orders.Actor, error) {
	rawUser := UserIDFromContext(ctx)
	if rawUser == "" {
		return orders.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	userID, err := uuid.Parse(rawUser)
	if err != nil {
		return orders.Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	role, err := enums.ParseActorRole(RoleFromContext(ctx))
	if err != nil {
		return orders.Actor{}, pkgerrors.Wrap(pkgerrors.CodeForbidden, err, "unknown actor role")
	}

	actor := orders.Actor{UserID: userID, Role: role}
	if rawVendor := VendorIDFromContext(ctx); rawVendor != "" {
		vendorID, err := uuid.Parse(rawVendor)
		if err != nil {
			return orders.Actor{}, pkgerrors.Wrap(pkgerrors.CodeForbidden, err, "invalid vendor id")
		}
		actor.VendorID = &vendorID
	}
	return actor, nil
}
