package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics covers checkout, rate shopping and payment webhooks.
type OrderMetrics struct {
	ordersCreated   *prometheus.CounterVec
	checkoutFailed  *prometheus.CounterVec
	shoppingLatency prometheus.Histogram
	providerQuotes  *prometheus.CounterVec
	webhooks        *prometheus.CounterVec
	cancellations   *prometheus.CounterVec
}

// NewOrderMetrics registers the order pipeline metrics on reg. A nil
// registerer yields a no-op recorder.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	m := &OrderMetrics{
		ordersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Orders committed at checkout.",
		}, []string{"payment_method", "order_type"}),
		checkoutFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkout_failures_total",
			Help: "Checkout attempts rejected, by error code.",
		}, []string{"code"}),
		shoppingLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "delivery_rate_shopping_duration_seconds",
			Help:    "Wall time spent comparing courier quotes.",
			Buckets: []float64{.1, .25, .5, 1, 2, 4, 8, 12},
		}),
		providerQuotes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "delivery_provider_quotes_total",
			Help: "Courier quote attempts by provider and outcome.",
		}, []string{"provider", "outcome"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_webhooks_total",
			Help: "Payment webhooks processed by provider and result.",
		}, []string{"provider", "result"}),
		cancellations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orders_cancelled_total",
			Help: "Cancelled orders by who cancelled and whether money was refunded.",
		}, []string{"actor", "refunded"}),
	}
	reg.MustRegister(m.ordersCreated, m.checkoutFailed, m.shoppingLatency, m.providerQuotes, m.webhooks, m.cancellations)
	return m
}

func (m *OrderMetrics) IncOrderCreated(method, orderType string) {
	if m == nil || m.ordersCreated == nil {
		return
	}
	m.ordersCreated.WithLabelValues(normalizeLabel(method), normalizeLabel(orderType)).Inc()
}

func (m *OrderMetrics) IncCheckoutFailure(code string) {
	if m == nil || m.checkoutFailed == nil {
		return
	}
	m.checkoutFailed.WithLabelValues(normalizeLabel(code)).Inc()
}

func (m *OrderMetrics) ObserveRateShopping(d time.Duration) {
	if m == nil || m.shoppingLatency == nil {
		return
	}
	m.shoppingLatency.Observe(d.Seconds())
}

// IncProviderQuote records outcome ("ok", "error", "timeout", "currency") for one courier.
func (m *OrderMetrics) IncProviderQuote(provider, outcome string) {
	if m == nil || m.providerQuotes == nil {
		return
	}
	m.providerQuotes.WithLabelValues(normalizeLabel(provider), normalizeLabel(outcome)).Inc()
}

// IncWebhook records result ("applied", "duplicate", "ignored", "error").
func (m *OrderMetrics) IncWebhook(provider, result string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(normalizeLabel(provider), normalizeLabel(result)).Inc()
}

func (m *OrderMetrics) IncCancellation(actor string, refunded bool) {
	if m == nil || m.cancellations == nil {
		return
	}
	label := "false"
	if refunded {
		label = "true"
	}
	m.cancellations.WithLabelValues(normalizeLabel(actor), label).Inc()
}
