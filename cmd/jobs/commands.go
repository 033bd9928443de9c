package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"subscription-billing/internal/application"
	ucport "subscription-billing/internal/domain/ports/usecase"
	"subscription-billing/internal/infra/sched"
)

func recurringCmd(g *globals) *cobra.Command {
	var opts ucport.RenewalOptions
	cmd := &cobra.Command{
		Use:   "recurring",
		Short: "Charge saved cards for subscriptions that are due",
		Long: `Select subscriptions whose period ends within the lookahead window and
charge their saved cards. Subscriptions that cannot be charged move to grace,
and grace that has run out expires the subscription.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.DaysAhead < 0 || opts.DaysAhead > 365 {
				return fmt.Errorf("--days-ahead must be between 0 and 365")
			}
			return withContainer(cmd, g, func(ctx context.Context, c *application.Container) error {
				var sum ucport.RenewalSummary
				ran, err := runLocked(ctx, c, sched.JobRecurringBilling, func(ctx context.Context) error {
					var err error
					sum, err = c.Billing.RunRenewals(ctx, opts)
					return err
				})
				if err != nil {
					return err
				}
				if !ran {
					return skipped(cmd, sched.JobRecurringBilling)
				}
				out := cmd.OutOrStdout()
				if opts.DryRun {
					fmt.Fprintln(out, "Dry run: no charges were made")
				}
				fmt.Fprintf(out, "Selected:  %d\n", sum.Selected)
				fmt.Fprintf(out, "Succeeded: %d\n", sum.Succeeded)
				fmt.Fprintf(out, "Failed:    %d\n", sum.Failed)
				fmt.Fprintf(out, "Skipped:   %d\n", sum.Skipped)
				fmt.Fprintf(out, "Grace:     %d\n", sum.Grace)
				fmt.Fprintf(out, "Expired:   %d\n", sum.Expired)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "select and report without charging")
	cmd.Flags().IntVar(&opts.DaysAhead, "days-ahead", 0, "override the lookahead window in days")
	return cmd
}

func cancellationsCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancellations",
		Short: "Sweep pending cancellation requests",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "expire",
		Short: "Expire requests whose decision window has closed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd, g, func(ctx context.Context, c *application.Container) error {
				var n int
				ran, err := runLocked(ctx, c, sched.JobCancellationExpiry, func(ctx context.Context) error {
					var err error
					n, err = c.Cancellations.ExpireDue(ctx, time.Now())
					return err
				})
				if err != nil {
					return err
				}
				if !ran {
					return skipped(cmd, sched.JobCancellationExpiry)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Expired requests: %d\n", n)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "remind",
		Short: "Remind referrers about requests that are about to expire",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd, g, func(ctx context.Context, c *application.Container) error {
				var n int
				ran, err := runLocked(ctx, c, sched.JobCancellationReminders, func(ctx context.Context) error {
					var err error
					n, err = c.Cancellations.SendReminders(ctx, time.Now())
					return err
				})
				if err != nil {
					return err
				}
				if !ran {
					return skipped(cmd, sched.JobCancellationReminders)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reminders sent: %d\n", n)
				return nil
			})
		},
	})
	return cmd
}

func reconcileCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Poll the provider for orders whose callback never arrived",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd, g, func(ctx context.Context, c *application.Container) error {
				var sum ucport.ReconcileSummary
				ran, err := runLocked(ctx, c, sched.JobPaymentReconcile, func(ctx context.Context) error {
					var err error
					sum, err = c.Reconcile.ReconcileStale(ctx)
					return err
				})
				if err != nil {
					return err
				}
				if !ran {
					return skipped(cmd, sched.JobPaymentReconcile)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Checked:  %d\n", sum.Checked)
				fmt.Fprintf(out, "Captured: %d\n", sum.Captured)
				fmt.Fprintf(out, "Settled:  %d\n", sum.Settled)
				fmt.Fprintf(out, "Failed:   %d\n", sum.Failed)
				return nil
			})
		},
	}
}
