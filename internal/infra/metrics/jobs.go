package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(jobRunsTotal, jobRunDuration) }

var (
	jobRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "job_runs_total",
			Help: "Total number of background job passes, labeled by job and status.",
		},
		[]string{"job", "status"}, // 'ok', 'failed', 'locked', 'dropped'
	)

	jobRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "job_run_duration_seconds",
			Help:    "Duration of background job passes in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"job"},
	)
)

func IncJobRun(job, status string) {
	jobRunsTotal.WithLabelValues(norm(job), norm(status)).Inc()
}

func ObserveJobDuration(job string, seconds float64) {
	jobRunDuration.WithLabelValues(norm(job)).Observe(seconds)
}
