package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/forkfleet/forkfleet-backend/api/middleware"
	"github.com/forkfleet/forkfleet-backend/api/responses"
	"github.com/forkfleet/forkfleet-backend/api/validators"
	"github.com/forkfleet/forkfleet-backend/internal/catalog"
	"github.com/forkfleet/forkfleet-backend/internal/delivery"
	"github.com/forkfleet/forkfleet-backend/pkg/db/models"
	"github.com/forkfleet/forkfleet-backend/pkg/enums"
	pkgerrors "github.com/forkfleet/forkfleet-backend/pkg/errors"
	"github.com/forkfleet/forkfleet-backend/pkg/logger"
)

// QuoteShopper is satisfied by *delivery.Shopper.
type QuoteShopper interface {
	GetQuote(ctx context.Context, in delivery.QuoteInput) (*models.DeliveryQuote, error)
}

// DeliveryQuote compares couriers for the cart and stores the cheapest offer
// as a single-use quote the customer can check out with.
func DeliveryQuote(shopper QuoteShopper, vendors catalog.VendorDirectory, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if shopper == nil || vendors == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "delivery shopper unavailable"))
			return
		}

		actor, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload deliveryQuoteRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		vendor, err := vendors.FindVendor(r.Context(), payload.VendorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]delivery.ItemQuantity, 0, len(payload.Items))
		for _, item := range payload.Items {
			items = append(items, delivery.ItemQuantity{MenuItemID: item.MenuItemID, Quantity: item.Quantity})
		}
		quote, err := shopper.GetQuote(r.Context(), delivery.QuoteInput{
			VendorID:          vendor.ID,
			CustomerID:        actor.UserID,
			VendorAddressID:   vendor.AddressID,
			CustomerAddressID: payload.CustomerAddressID,
			Items:             items,
			Currency:          vendor.Currency,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, deliveryQuoteResponse{
			QuoteID:     quote.ID,
			Provider:    quote.Provider,
			Fee:         quote.Fee,
			Currency:    quote.Currency,
			PackageTier: quote.PackageTier,
			ExpiresAt:   quote.ExpiresAt,
		})
	}
}

type quoteItem struct {
	MenuItemID uuid.UUID `json:"menu_item_id" validate:"required"`
	Quantity   int       `json:"quantity" validate:"required,min=1"`
}

type deliveryQuoteRequest struct {
	VendorID          uuid.UUID   `json:"vendor_id" validate:"required"`
	CustomerAddressID uuid.UUID   `json:"customer_address_id" validate:"required"`
	Items             []quoteItem `json:"items" validate:"required,min=1,max=100,dive"`
}

type deliveryQuoteResponse struct {
	QuoteID     uuid.UUID         `json:"quote_id"`
	Provider    string            `json:"provider"`
	Fee         int64             `json:"fee"`
	Currency    enums.Currency    `json:"currency"`
	PackageTier enums.PackageTier `json:"package_tier"`
	ExpiresAt   time.Time         `json:"expires_at"`
}
