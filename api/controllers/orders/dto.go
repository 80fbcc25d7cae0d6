package orders

import (
	"time"

	"github.com/google/uuid"

	internalorders "github.com/forkfleet/forkfleet-backend/internal/orders"
	"github.com/forkfleet/forkfleet-backend/pkg/db/models"
	"github.com/forkfleet/forkfleet-backend/pkg/enums"
	"github.com/forkfleet/forkfleet-backend/pkg/pagination"
)

type orderItemResponse struct {
	MenuItemID uuid.UUID `json:"menu_item_id"`
	Name       string    `json:"name"`
	UnitPrice  int64     `json:"unit_price"`
	Quantity   int       `json:"quantity"`
	TotalPrice int64     `json:"total_price"`
}

type orderResponse struct {
	ID                uuid.UUID           `json:"id"`
	OrderNumber       string              `json:"order_number"`
	CustomerID        uuid.UUID           `json:"customer_id"`
	VendorID          uuid.UUID           `json:"vendor_id"`
	OrderType         enums.OrderType     `json:"order_type"`
	Status            enums.OrderStatus   `json:"status"`
	PaymentMethod     enums.PaymentMethod `json:"payment_method"`
	PaymentStatus     enums.PaymentStatus `json:"payment_status"`
	Currency          enums.Currency      `json:"currency"`
	Subtotal          int64               `json:"subtotal"`
	DeliveryFee       int64               `json:"delivery_fee"`
	TotalAmount       int64               `json:"total_amount"`
	VendorShare       *int64              `json:"vendor_share,omitempty"`
	DeliveryQuoteID   *uuid.UUID          `json:"delivery_quote_id,omitempty"`
	DeliveryAddressID *uuid.UUID          `json:"delivery_address_id,omitempty"`
	OrderReadyAt      *time.Time          `json:"order_ready_at,omitempty"`
	DeliveredAt       *time.Time          `json:"delivered_at,omitempty"`
	CancelledAt       *time.Time          `json:"cancelled_at,omitempty"`
	CancelReason      *string             `json:"cancel_reason,omitempty"`
	CancelledBy       *enums.ActorRole    `json:"cancelled_by,omitempty"`
	Version           int                 `json:"version"`
	Items             []orderItemResponse `json:"items,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// newOrderResponse hides the vendor share from customers.
func newOrderResponse(order *models.Order, viewer enums.ActorRole) orderResponse {
	resp := orderResponse{
		ID:                order.ID,
		OrderNumber:       order.OrderNumber,
		CustomerID:        order.CustomerID,
		VendorID:          order.VendorID,
		OrderType:         order.OrderType,
		Status:            order.Status,
		PaymentMethod:     order.PaymentMethod,
		PaymentStatus:     order.PaymentStatus,
		Currency:          order.Currency,
		Subtotal:          order.Subtotal,
		DeliveryFee:       order.DeliveryFee,
		TotalAmount:       order.TotalAmount,
		DeliveryQuoteID:   order.DeliveryQuoteID,
		DeliveryAddressID: order.DeliveryAddressID,
		OrderReadyAt:      order.OrderReadyAt,
		DeliveredAt:       order.DeliveredAt,
		CancelledAt:       order.CancelledAt,
		CancelReason:      order.CancelReason,
		CancelledBy:       order.CancelledBy,
		Version:           order.Version,
		CreatedAt:         order.CreatedAt,
		UpdatedAt:         order.UpdatedAt,
	}
	if viewer != enums.ActorRoleCustomer {
		share := order.VendorShare
		resp.VendorShare = &share
	}
	for _, item := range order.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			MenuItemID: item.MenuItemID,
			Name:       item.Name,
			UnitPrice:  item.UnitPrice,
			Quantity:   item.Quantity,
			TotalPrice: item.TotalPrice,
		})
	}
	return resp
}

func newOrderPage(page pagination.Page[models.Order], viewer enums.ActorRole) pagination.Page[orderResponse] {
	out := pagination.Page[orderResponse]{
		Items:      make([]orderResponse, 0, len(page.Items)),
		NextCursor: page.NextCursor,
	}
	for i := range page.Items {
		out.Items = append(out.Items, newOrderResponse(&page.Items[i], viewer))
	}
	return out
}

type pendingPaymentResponse struct {
	Provider          enums.PaymentProvider `json:"provider"`
	RedirectURL       string                `json:"redirect_url"`
	ExternalReference string                `json:"external_reference"`
}

type checkoutResponse struct {
	Order   orderResponse           `json:"order"`
	Payment *pendingPaymentResponse `json:"payment,omitempty"`
}

func newCheckoutResponse(result *internalorders.CheckoutResult) checkoutResponse {
	resp := checkoutResponse{Order: newOrderResponse(result.Order, enums.ActorRoleCustomer)}
	if result.Pending != nil {
		resp.Payment = &pendingPaymentResponse{
			Provider:          result.Pending.Provider,
			RedirectURL:       result.Pending.RedirectURL,
			ExternalReference: result.Pending.ExternalReference,
		}
	}
	return resp
}
