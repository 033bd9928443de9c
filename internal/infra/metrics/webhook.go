package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		webhookRequestsTotal,
		webhookDuration,
		webhookAmountMismatchTotal,
	)
}

var (
	// outcome: settled|failed|intermediate|duplicate|unknown_order|bad_signature|bad_payload|error
	webhookRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhook_requests_total",
			Help: "Provider notifications by reconciliation outcome.",
		},
		[]string{"outcome"},
	)

	webhookDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_webhook_duration_seconds",
			Help:    "Duration of notification reconciliation in seconds.",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"outcome"},
	)

	webhookAmountMismatchTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payment_webhook_amount_mismatch_total",
			Help: "Provider notifications whose amount differs from the order amount.",
		},
	)
)

func ObserveWebhook(outcome string, seconds float64) {
	webhookRequestsTotal.WithLabelValues(norm(outcome)).Inc()
	webhookDuration.WithLabelValues(norm(outcome)).Observe(seconds)
}

func IncWebhookAmountMismatch() { webhookAmountMismatchTotal.Inc() }
