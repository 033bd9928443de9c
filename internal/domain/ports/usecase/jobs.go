package usecase

import (
	"context"
	"time"
)

// Narrow views of the use cases that background jobs and the admin API drive.

type RenewalOptions struct {
	DryRun    bool
	DaysAhead int
}

// RenewalSummary is the outcome of one recurring-billing pass.
type RenewalSummary struct {
	Selected  int `json:"selected"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Grace     int `json:"grace"`
	Expired   int `json:"expired"`
}

type RecurringBilling interface {
	RunRenewals(ctx context.Context, opts RenewalOptions) (RenewalSummary, error)
}

type CancellationSweeper interface {
	ExpireDue(ctx context.Context, now time.Time) (int, error)
	SendReminders(ctx context.Context, now time.Time) (int, error)
}

// ReconcileSummary is the outcome of one stale-order pass.
type ReconcileSummary struct {
	Checked  int `json:"checked"`
	Captured int `json:"captured"`
	Settled  int `json:"settled"`
	Failed   int `json:"failed"`
}

type PaymentReconciler interface {
	ReconcileStale(ctx context.Context) (ReconcileSummary, error)
}
