package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	ucport "subscription-billing/internal/domain/ports/usecase"
)

const (
	JobRecurringBilling      = "recurring-billing"
	JobCancellationExpiry    = "cancellation-expiry"
	JobCancellationReminders = "cancellation-reminders"
	JobPaymentReconcile      = "payment-reconcile"
	JobDBPoolStats           = "db-pool-stats"
)

var ErrUnknownJob = errors.New("unknown job")

// Names lists the jobs that can be triggered on demand.
func Names() []string {
	return []string{JobRecurringBilling, JobCancellationExpiry, JobCancellationReminders, JobPaymentReconcile}
}

// Catalog builds job passes over the use cases.
type Catalog struct {
	billing    ucport.RecurringBilling
	sweeper    ucport.CancellationSweeper
	reconciler ucport.PaymentReconciler
	now        func() time.Time
	log        *zerolog.Logger
}

func NewCatalog(billing ucport.RecurringBilling, sweeper ucport.CancellationSweeper, reconciler ucport.PaymentReconciler, logger *zerolog.Logger) *Catalog {
	l := logger.With().Str("component", "jobs").Logger()
	return &Catalog{billing: billing, sweeper: sweeper, reconciler: reconciler, now: time.Now, log: &l}
}

// Job returns the named pass. opts only applies to recurring billing.
func (c *Catalog) Job(name string, opts ucport.RenewalOptions) (Job, error) {
	switch name {
	case JobRecurringBilling:
		return c.RecurringBilling(opts), nil
	case JobCancellationExpiry:
		return c.CancellationExpiry(), nil
	case JobCancellationReminders:
		return c.CancellationReminders(), nil
	case JobPaymentReconcile:
		return c.PaymentReconcile(), nil
	}
	return nil, ErrUnknownJob
}

func (c *Catalog) RecurringBilling(opts ucport.RenewalOptions) Job {
	return JobFunc(JobRecurringBilling, func(ctx context.Context) error {
		_, err := c.billing.RunRenewals(ctx, opts)
		return err
	})
}

// CancellationExpiry expires requests whose decision window has closed and cancels their subscriptions.
func (c *Catalog) CancellationExpiry() Job {
	return JobFunc(JobCancellationExpiry, func(ctx context.Context) error {
		n, err := c.sweeper.ExpireDue(ctx, c.now())
		if n > 0 {
			c.log.Info().Int("count", n).Msg("cancellation requests expired")
		}
		return err
	})
}

func (c *Catalog) CancellationReminders() Job {
	return JobFunc(JobCancellationReminders, func(ctx context.Context) error {
		n, err := c.sweeper.SendReminders(ctx, c.now())
		if n > 0 {
			c.log.Info().Int("count", n).Msg("cancellation reminders sent")
		}
		return err
	})
}

// PaymentReconcile polls the provider for orders whose callback never arrived.
func (c *Catalog) PaymentReconcile() Job {
	return JobFunc(JobPaymentReconcile, func(ctx context.Context) error {
		sum, err := c.reconciler.ReconcileStale(ctx)
		if err != nil {
			return err
		}
		if sum != (ucport.ReconcileSummary{}) {
			c.log.Info().
				Int("checked", sum.Checked).
				Int("captured", sum.Captured).
				Int("settled", sum.Settled).
				Int("failed", sum.Failed).
				Msg("stale payments reconciled")
		}
		return nil
	})
}
