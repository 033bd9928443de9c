// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"subscription-billing/internal/application"
	"subscription-billing/internal/config"
	httpserver "subscription-billing/internal/infra/http"
	"subscription-billing/internal/infra/logging"
	"subscription-billing/internal/infra/metrics"
	"subscription-billing/internal/infra/sched"
	"subscription-billing/internal/infra/scheduler"
	"subscription-billing/internal/infra/worker"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, unredacted values)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	c, err := application.NewContainer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}
	defer c.Close()

	// ---- Workers and schedule ----
	pool := worker.NewPool(cfg.Workers.Size, cfg.Workers.Queue, logger)
	poolCtx, poolCancel := context.WithCancel(context.Background())
	defer poolCancel()
	pool.Start(poolCtx)
	dispatcher := sched.NewDispatcher(c.Catalog, c.Runner, pool)
	ticker := scheduler.New(pool, logger, c.Schedule()...)
	ticker.Start(ctx)

	// ---- HTTP ----
	srv := httpserver.NewServer(cfg.HTTP.Port, c.Handler(dispatcher), logger)
	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	// ---- Graceful shutdown ----
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown requested")
	case err := <-errc:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	ticker.Stop()
	// Running passes get until the shutdown deadline, then their context is cancelled.
	go func() {
		<-shutdownCtx.Done()
		poolCancel()
	}()
	pool.Stop()
	logger.Info().Msg("bye")
}
