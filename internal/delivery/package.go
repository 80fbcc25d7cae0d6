package delivery

import (
	"github.com/forkfleet/forkfleet-backend/pkg/courier"
	"github.com/forkfleet/forkfleet-backend/pkg/enums"
)

// The catalog carries no physical dimensions, so parcels are estimated from
// the total item quantity.
var packageTiers = []struct {
	maxQuantity int
	pkg         courier.Package
}{
	{3, courier.Package{Tier: enums.PackageTierSmall, WeightGrams: 1500, LengthCm: 30, WidthCm: 25, HeightCm: 15}},
	{8, courier.Package{Tier: enums.PackageTierMedium, WeightGrams: 4000, LengthCm: 40, WidthCm: 35, HeightCm: 25}},
	{15, courier.Package{Tier: enums.PackageTierLarge, WeightGrams: 8000, LengthCm: 50, WidthCm: 40, HeightCm: 35}},
}

var xlargePackage = courier.Package{Tier: enums.PackageTierXLarge, WeightGrams: 15000, LengthCm: 60, WidthCm: 50, HeightCm: 45}

// EstimatePackage maps a total item quantity to a package tier.
func EstimatePackage(totalQuantity int) courier.Package {
	for _, tier := range packageTiers {
		if totalQuantity <= tier.maxQuantity {
			return tier.pkg
		}
	}
	return xlargePackage
}
