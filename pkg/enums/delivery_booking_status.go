package enums

import "fmt"

// DeliveryBookingStatus tracks courier booking for READY delivery orders.
type DeliveryBookingStatus string

const (
	DeliveryBookingPendingRetry DeliveryBookingStatus = "PENDING_RETRY"
	DeliveryBookingBooked       DeliveryBookingStatus = "BOOKED"
	DeliveryBookingAbandoned    DeliveryBookingStatus = "ABANDONED"
)

var validDeliveryBookingStatuses = []DeliveryBookingStatus{
	DeliveryBookingPendingRetry,
	DeliveryBookingBooked,
	DeliveryBookingAbandoned,
}

// IsValid reports whether the value is a known DeliveryBookingStatus.
func (v DeliveryBookingStatus) IsValid() bool {
	for _, candidate := range validDeliveryBookingStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseDeliveryBookingStatus converts raw input into a DeliveryBookingStatus.
func ParseDeliveryBookingStatus(value string) (DeliveryBookingStatus, error) {
	for _, candidate := range validDeliveryBookingStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid delivery booking status %q", value)
}
