package metrics

import (
	"subscription-billing/internal/domain/model"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		subscriptionTransitionsTotal,
		subscriptionsTotal,
		renewalAttemptsTotal,
		renewalCardAttemptsTotal,
	)
}

var (
	subscriptionTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_transitions_total",
			Help: "Subscription state changes by target status and trigger.",
		},
		[]string{"to", "trigger"}, // trigger: 'webhook', 'renewal', 'cancellation', 'expiry'
	)

	subscriptionsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "subscriptions_total",
			Help: "Current number of subscriptions by status.",
		},
		[]string{"status"},
	)

	// outcome: succeeded|failed|skipped|grace|expired|reversed
	renewalAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_renewals_total",
			Help: "Recurring billing outcomes per subscription.",
		},
		[]string{"outcome"},
	)

	renewalCardAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_renewal_card_attempts_total",
			Help: "Saved-card charge attempts by card position (primary/alternate) and result.",
		},
		[]string{"card", "result"},
	)
)

func IncSubscriptionTransition(to model.SubscriptionStatus, trigger string) {
	subscriptionTransitionsTotal.WithLabelValues(string(to), norm(trigger)).Inc()
}

func IncRenewal(outcome string) {
	renewalAttemptsTotal.WithLabelValues(norm(outcome)).Inc()
}

func IncRenewalCardAttempt(card, result string) {
	renewalCardAttemptsTotal.WithLabelValues(norm(card), norm(result)).Inc()
}

func SetSubscriptionsTotal(counts map[model.SubscriptionStatus]int) {
	for _, status := range model.AllSubscriptionStatuses {
		subscriptionsTotal.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}
