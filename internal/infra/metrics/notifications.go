package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(notificationsTotal, eventsPublishedTotal, referralCommissionsTotal) }

var (
	// Notification sink deliveries grouped by kind and status.
	// status: sent|error|skipped
	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notifications by kind and delivery status.",
		},
		[]string{"kind", "status"},
	)

	eventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "domain_events_published_total",
			Help: "Domain events by type and publish result.",
		},
		[]string{"type", "result"},
	)

	referralCommissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_commission_amount_total",
			Help: "Accrued referral commission, labeled by currency.",
		},
		[]string{"currency"},
	)
)

func IncNotification(kind, status string) {
	notificationsTotal.WithLabelValues(norm(kind), norm(status)).Inc()
}

func IncEventPublished(typ, result string) {
	eventsPublishedTotal.WithLabelValues(norm(typ), norm(result)).Inc()
}

func AddReferralCommission(currency string, amount float64) {
	referralCommissionsTotal.WithLabelValues(norm(currency)).Add(amount)
}
