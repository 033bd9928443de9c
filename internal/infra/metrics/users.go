package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		usersRegisteredTotal,
		rateLimitTriggeredTotal,
	)
}

var (
	usersRegisteredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "users_registered_total",
			Help: "Total number of users created from confirmed payments.",
		},
	)

	rateLimitTriggeredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_triggered_total",
			Help: "Requests rejected by the rate limiter, labeled by route.",
		},
		[]string{"route"},
	)
)

func IncUsersRegistered() { usersRegisteredTotal.Inc() }

func IncRateLimited(route string) {
	rateLimitTriggeredTotal.WithLabelValues(norm(route)).Inc()
}
