package sched

import (
	"context"

	ucport "subscription-billing/internal/domain/ports/usecase"
	"subscription-billing/internal/infra/metrics"
	"subscription-billing/internal/infra/worker"
)

// Submitter is satisfied by worker.Pool.
type Submitter interface {
	Submit(task worker.Task) error
}

// Dispatcher queues on-demand passes on the worker pool.
type Dispatcher struct {
	catalog *Catalog
	runner  *Runner
	pool    Submitter
}

func NewDispatcher(catalog *Catalog, runner *Runner, pool Submitter) *Dispatcher {
	return &Dispatcher{catalog: catalog, runner: runner, pool: pool}
}

// Dispatch returns ErrUnknownJob or worker.ErrQueueFull without running anything.
func (d *Dispatcher) Dispatch(name string, opts ucport.RenewalOptions) error {
	job, err := d.catalog.Job(name, opts)
	if err != nil {
		metrics.IncAdminJobTrigger(name, "unknown")
		return err
	}
	if err := d.pool.Submit(func(ctx context.Context) error { return d.runner.Run(ctx, job) }); err != nil {
		metrics.IncAdminJobTrigger(name, "rejected")
		return err
	}
	metrics.IncAdminJobTrigger(name, "accepted")
	return nil
}
