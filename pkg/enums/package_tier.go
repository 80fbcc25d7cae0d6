package enums

import "fmt"

// PackageTier is the coarse parcel size sent to couriers.
type PackageTier string

const (
	PackageTierSmall  PackageTier = "small"
	PackageTierMedium PackageTier = "medium"
	PackageTierLarge  PackageTier = "large"
	PackageTierXLarge PackageTier = "xlarge"
)

var validPackageTiers = []PackageTier{
	PackageTierSmall,
	PackageTierMedium,
	PackageTierLarge,
	PackageTierXLarge,
}

// String implements fmt.Stringer.
func (v PackageTier) String() string {
	return string(v)
}

// IsValid reports whether the value is a known PackageTier.
func (v PackageTier) IsValid() bool {
	for _, candidate := range validPackageTiers {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParsePackageTier converts raw input into a PackageTier.
func ParsePackageTier(value string) (PackageTier, error) {
	for _, candidate := range validPackageTiers {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid package tier %q", value)
}
