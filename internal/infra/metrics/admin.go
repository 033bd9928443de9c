package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(adminJobTriggersTotal) }

var adminJobTriggersTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "admin_job_triggers_total",
		Help: "Tracks manual job triggers through the admin API.",
	},
	[]string{"job", "status"}, // status: 'accepted', 'rejected', 'unknown'
)

func IncAdminJobTrigger(job, status string) {
	adminJobTriggersTotal.WithLabelValues(norm(job), norm(status)).Inc()
}
