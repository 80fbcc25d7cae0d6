package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestOrderMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOrderMetrics(reg)
	m.IncOrderCreated("WALLET", "DELIVERY")
	m.IncOrderCreated("WALLET", "DELIVERY")
	m.IncProviderQuote("swiftride", "timeout")
	m.IncWebhook("stripe", "duplicate")
	m.ObserveRateShopping(300 * time.Millisecond)
	m.IncCancellation("CUSTOMER", true)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "orders_created_total", "payment_method", "WALLET"); err != nil || got != 2 {
		t.Fatalf("expected 2 wallet orders, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "delivery_provider_quotes_total", "provider", "swiftride"); err != nil || got != 1 {
		t.Fatalf("expected provider counter 1, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "payment_webhooks_total", "result", "duplicate"); err != nil || got != 1 {
		t.Fatalf("expected webhook counter 1, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "orders_cancelled_total", "refunded", "true"); err != nil || got != 1 {
		t.Fatalf("expected cancellation counter 1, got %f (%v)", got, err)
	}
}

func TestOrderMetricsNilSafe(t *testing.T) {
	var m *OrderMetrics
	m.IncOrderCreated("CARD", "PICKUP")
	m.IncCheckoutFailure("INSUFFICIENT_FUNDS")
	m.ObserveRateShopping(time.Second)

	noop := NewOrderMetrics(nil)
	noop.IncWebhook("square", "applied")
	noop.IncCancellation("ADMIN", false)
}

func TestOrderMetricsLabelEmptyValuesUnknown(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOrderMetrics(reg)
	m.IncCheckoutFailure("")
	m.IncProviderQuote("", "ok")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "delivery_provider_quotes_total", "provider", "unknown"); err != nil || got != 1 {
		t.Fatalf("expected unknown provider counter 1, got %f (%v)", got, err)
	}
	if _, err := sample(mfs, "checkout_failures_total", "code", "unknown"); err != nil {
		t.Fatalf("expected unknown checkout failure series: %v", err)
	}
}
