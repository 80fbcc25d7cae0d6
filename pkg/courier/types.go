// Package courier holds the courier provider adapters used for rate shopping
// and delivery booking.
package courier

import "github.com/forkfleet/forkfleet-backend/pkg/enums"

// Location is a resolved pickup or drop-off point.
type Location struct {
	Line1      string  `json:"line1"`
	City       string  `json:"city"`
	Region     string  `json:"region"`
	PostalCode string  `json:"postal_code"`
	Country    string  `json:"country"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
}

// Package is the estimated parcel handed to the courier.
type Package struct {
	Tier        enums.PackageTier `json:"tier"`
	WeightGrams int               `json:"weight_grams"`
	LengthCm    int               `json:"length_cm"`
	WidthCm     int               `json:"width_cm"`
	HeightCm    int               `json:"height_cm"`
}

// QuoteRequest asks a provider to price one delivery.
type QuoteRequest struct {
	Origin      Location       `json:"origin"`
	Destination Location       `json:"destination"`
	Package     Package        `json:"package"`
	Currency    enums.Currency `json:"currency"`
}

// Quote is a provider's price offer.
type Quote struct {
	Fee             int64
	Currency        enums.Currency
	ProviderQuoteID string
}

// Booking is the provider's confirmation of a created delivery.
type Booking struct {
	DeliveryID  string
	TrackingRef string
}
