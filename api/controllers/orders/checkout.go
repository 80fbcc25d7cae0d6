package orders

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/forkfleet/forkfleet-backend/api/middleware"
	"github.com/forkfleet/forkfleet-backend/api/responses"
	"github.com/forkfleet/forkfleet-backend/api/validators"
	internalorders "github.com/forkfleet/forkfleet-backend/internal/orders"
	"github.com/forkfleet/forkfleet-backend/pkg/enums"
	pkgerrors "github.com/forkfleet/forkfleet-backend/pkg/errors"
	"github.com/forkfleet/forkfleet-backend/pkg/logger"
)

// CheckoutService is the part of *orders.Manager checkout uses.
type CheckoutService interface {
	CreateOrder(ctx context.Context, in internalorders.CreateOrderInput) (*internalorders.CheckoutResult, error)
	PreviewCost(ctx context.Context, in internalorders.PreviewInput) (*internalorders.CostPreview, error)
}

// Checkout commits the customer's cart as an order. Wallet orders come back
// paid; card and bank transfer orders carry the redirect that completes
// payment.
func Checkout(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		actor, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CreateOrder(r.Context(), internalorders.CreateOrderInput{
			CustomerID:        actor.UserID,
			VendorID:          payload.VendorID,
			Items:             toItemInputs(payload.Items),
			OrderType:         enums.OrderType(payload.OrderType),
			PaymentMethod:     enums.PaymentMethod(payload.PaymentMethod),
			DeliveryQuoteID:   payload.DeliveryQuoteID,
			DeliveryAddressID: payload.DeliveryAddressID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newCheckoutResponse(result))
	}
}

// CheckoutPreview prices the cart the way checkout would without creating a
// quote or an order.
func CheckoutPreview(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		actor, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload previewRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		preview, err := svc.PreviewCost(r.Context(), internalorders.PreviewInput{
			CustomerID:        actor.UserID,
			VendorID:          payload.VendorID,
			Items:             toItemInputs(payload.Items),
			OrderType:         enums.OrderType(payload.OrderType),
			CustomerAddressID: payload.CustomerAddressID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, preview)
	}
}

type cartItem struct {
	MenuItemID uuid.UUID `json:"menu_item_id" validate:"required"`
	Quantity   int       `json:"quantity" validate:"required,min=1"`
}

type checkoutRequest struct {
	VendorID          uuid.UUID  `json:"vendor_id" validate:"required"`
	Items             []cartItem `json:"items" validate:"required,min=1,max=100,dive"`
	OrderType         string     `json:"order_type" validate:"required,oneof=DELIVERY PICKUP"`
	PaymentMethod     string     `json:"payment_method" validate:"required,oneof=WALLET CARD BANK_TRANSFER"`
	DeliveryQuoteID   *uuid.UUID `json:"delivery_quote_id,omitempty"`
	DeliveryAddressID *uuid.UUID `json:"delivery_address_id,omitempty"`
}

type previewRequest struct {
	VendorID          uuid.UUID  `json:"vendor_id" validate:"required"`
	Items             []cartItem `json:"items" validate:"required,min=1,max=100,dive"`
	OrderType         string     `json:"order_type" validate:"required,oneof=DELIVERY PICKUP"`
	CustomerAddressID *uuid.UUID `json:"customer_address_id,omitempty"`
}

func toItemInputs(items []cartItem) []internalorders.ItemInput {
	out := make([]internalorders.ItemInput, 0, len(items))
	for _, item := range items {
		out = append(out, internalorders.ItemInput{MenuItemID: item.MenuItemID, Quantity: item.Quantity})
	}
	return out
}
