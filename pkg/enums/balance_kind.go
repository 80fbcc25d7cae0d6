package enums

import "fmt"

// BalanceKind picks the wallet sub-balance a movement applies to.
type BalanceKind string

const (
	BalanceKindCustomer BalanceKind = "customer"
	BalanceKindVendor   BalanceKind = "vendor"
)

var validBalanceKinds = []BalanceKind{
	BalanceKindCustomer,
	BalanceKindVendor,
}

// IsValid reports whether the value is a known BalanceKind.
func (v BalanceKind) IsValid() bool {
	for _, candidate := range validBalanceKinds {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseBalanceKind converts raw input into a BalanceKind.
func ParseBalanceKind(value string) (BalanceKind, error) {
	for _, candidate := range validBalanceKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid balance kind %q", value)
}
