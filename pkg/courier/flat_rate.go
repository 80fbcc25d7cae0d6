package courier

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/forkfleet/forkfleet-backend/pkg/enums"
	pkgerrors "github.com/forkfleet/forkfleet-backend/pkg/errors"
)

const earthRadiusKm = 6371.0

// FlatRateName identifies the in-house fleet.
const FlatRateName = "in-house"

// FlatRateConfig prices in-house deliveries as base fee plus a per-km rate.
type FlatRateConfig struct {
	BaseFee  int64
	PerKm    int64
	Currency enums.Currency
	MaxKm    float64
}

// tierSurcharge is added on top of the distance price for bulky parcels.
var tierSurcharge = map[enums.PackageTier]int64{
	enums.PackageTierSmall:  0,
	enums.PackageTierMedium: 0,
	enums.PackageTierLarge:  150,
	enums.PackageTierXLarge: 350,
}

// FlatRateProvider is the vendor-operated fleet. It quotes locally and books
// by minting its own delivery ids.
type FlatRateProvider struct {
	cfg FlatRateConfig
}

// NewFlatRateProvider validates the pricing table.
func NewFlatRateProvider(cfg FlatRateConfig) (*FlatRateProvider, error) {
	if cfg.BaseFee < 0 || cfg.PerKm < 0 {
		return nil, fmt.Errorf("flat rate fees must be non-negative")
	}
	if !cfg.Currency.IsValid() {
		return nil, fmt.Errorf("flat rate currency %q invalid", cfg.Currency)
	}
	return &FlatRateProvider{cfg: cfg}, nil
}

func (p *FlatRateProvider) Name() string { return FlatRateName }

func (p *FlatRateProvider) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "flat rate quote cancelled")
	}
	km := HaversineKm(req.Origin.Lat, req.Origin.Lng, req.Destination.Lat, req.Destination.Lng)
	if p.cfg.MaxKm > 0 && km > p.cfg.MaxKm {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("destination %.1fkm away exceeds in-house range", km))
	}
	distanceFee := decimal.NewFromFloat(km).
		Mul(decimal.NewFromInt(p.cfg.PerKm)).
		Round(0).
		IntPart()
	fee := p.cfg.BaseFee + distanceFee + tierSurcharge[req.Package.Tier]
	return &Quote{
		Fee:             fee,
		Currency:        p.cfg.Currency,
		ProviderQuoteID: "ff-fleet-" + uuid.NewString(),
	}, nil
}

func (p *FlatRateProvider) CreateDelivery(_ context.Context, providerQuoteID, orderRef string) (*Booking, error) {
	if !strings.HasPrefix(providerQuoteID, "ff-fleet-") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quote was not issued by the in-house fleet")
	}
	return &Booking{
		DeliveryID:  "ff-delivery-" + uuid.NewString(),
		TrackingRef: orderRef,
	}, nil
}

// HaversineKm is the great-circle distance between two coordinates.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
