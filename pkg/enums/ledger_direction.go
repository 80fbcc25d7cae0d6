package enums

import "fmt"

type LedgerDirection string

const (
	LedgerDirectionDebit  LedgerDirection = "debit"
	LedgerDirectionCredit LedgerDirection = "credit"
)

var validLedgerDirections = []LedgerDirection{
	LedgerDirectionDebit,
	LedgerDirectionCredit,
}

// IsValid reports whether the value is a known LedgerDirection.
func (v LedgerDirection) IsValid() bool {
	for _, candidate := range validLedgerDirections {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseLedgerDirection converts raw input into a LedgerDirection.
func ParseLedgerDirection(value string) (LedgerDirection, error) {
	for _, candidate := range validLedgerDirections {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger direction %q", value)
}
