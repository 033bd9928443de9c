// Command jobs runs one background pass in the foreground, for cron and manual operation.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"subscription-billing/internal/application"
	"subscription-billing/internal/config"
	"subscription-billing/internal/infra/logging"
	"subscription-billing/internal/infra/sched"
)

var version = "dev"

type globals struct {
	configPath string
	dev        bool
}

func main() {
	g := &globals{}
	rootCmd := &cobra.Command{
		Use:           "jobs",
		Short:         "Run billing background passes on demand",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "config.yaml", "path to YAML config file")
	rootCmd.PersistentFlags().BoolVar(&g.dev, "dev", false, "enable developer mode")

	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(recurringCmd(g))
	rootCmd.AddCommand(cancellationsCmd(g))
	rootCmd.AddCommand(reconcileCmd(g))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		cancel()
		os.Exit(1)
	}
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the jobs the admin API can trigger",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range sched.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	}
}

// withContainer builds the process dependencies for one command.
func withContainer(cmd *cobra.Command, g *globals, fn func(ctx context.Context, c *application.Container) error) error {
	cfg, err := config.LoadConfig(g.configPath, g.dev)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	ctx := cmd.Context()
	c, err := application.NewContainer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(ctx, c)
}

// runLocked runs fn under the job lock and reports whether it actually ran.
func runLocked(ctx context.Context, c *application.Container, name string, fn func(ctx context.Context) error) (bool, error) {
	ran := false
	err := c.Runner.Run(ctx, sched.JobFunc(name, func(ctx context.Context) error {
		ran = true
		return fn(ctx)
	}))
	return ran, err
}

func skipped(cmd *cobra.Command, name string) error {
	fmt.Fprintf(cmd.OutOrStdout(), "%s: another pass holds the lock, nothing done\n", name)
	return nil
}
