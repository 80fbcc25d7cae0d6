package enums

import "fmt"

// PaymentRecordKind distinguishes money in (charge) from money back (refund).
type PaymentRecordKind string

const (
	PaymentRecordCharge PaymentRecordKind = "charge"
	PaymentRecordRefund PaymentRecordKind = "refund"
)

var validPaymentRecordKinds = []PaymentRecordKind{
	PaymentRecordCharge,
	PaymentRecordRefund,
}

// IsValid reports whether the value is a known PaymentRecordKind.
func (v PaymentRecordKind) IsValid() bool {
	for _, candidate := range validPaymentRecordKinds {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParsePaymentRecordKind converts raw input into a PaymentRecordKind.
func ParsePaymentRecordKind(value string) (PaymentRecordKind, error) {
	for _, candidate := range validPaymentRecordKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment record kind %q", value)
}
