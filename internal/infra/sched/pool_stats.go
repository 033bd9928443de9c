package sched

import (
	"context"

	"subscription-billing/internal/infra/metrics"
)

// PoolStat reports total, idle and acquired connections.
type PoolStat func() (total, idle, inUse int32)

// PoolStatsJob publishes connection pool gauges. It is per process and takes no lock.
func PoolStatsJob(stat PoolStat) Job {
	return JobFunc(JobDBPoolStats, func(ctx context.Context) error {
		metrics.SetDBPoolStats(stat())
		return nil
	})
}
