package enums

import "testing"

func TestParseOrderStatusRoundTrip(t *testing.T) {
	for _, status := range validOrderStatuses {
		parsed, err := ParseOrderStatus(status.String())
		if err != nil {
			t.Fatalf("parse %s: %v", status, err)
		}
		if parsed != status {
			t.Fatalf("expected %s got %s", status, parsed)
		}
	}
	if _, err := ParseOrderStatus("new"); err == nil {
		t.Fatal("status parsing must be case sensitive")
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	terminal := map[OrderStatus]bool{
		OrderStatusDelivered: true,
		OrderStatusCancelled: true,
		OrderStatusRefunded:  true,
	}
	for _, status := range validOrderStatuses {
		if status.IsTerminal() != terminal[status] {
			t.Fatalf("unexpected terminal flag for %s", status)
		}
	}
}

func TestPaymentMethodValidity(t *testing.T) {
	if !PaymentMethodBankTransfer.IsValid() {
		t.Fatal("bank transfer should be valid")
	}
	if PaymentMethod("CASH").IsValid() {
		t.Fatal("cash is not a supported payment method")
	}
}

func TestPaymentStatusTerminal(t *testing.T) {
	if PaymentStatusPending.IsTerminal() {
		t.Fatal("pending is not terminal")
	}
	if !PaymentStatusPaid.IsTerminal() || !PaymentStatusFailed.IsTerminal() {
		t.Fatal("paid and failed are terminal gateway outcomes")
	}
}
