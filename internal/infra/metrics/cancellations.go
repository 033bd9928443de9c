package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(cancellationRequestsTotal) }

var cancellationRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cancellation_requests_total",
		Help: "Cancellation workflow events (created, duplicate, approved, rejected, expired, reminded).",
	},
	[]string{"event"},
)

func IncCancellation(event string) {
	cancellationRequestsTotal.WithLabelValues(norm(event)).Inc()
}
