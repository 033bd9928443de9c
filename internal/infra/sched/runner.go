package sched

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"subscription-billing/internal/domain"
	"subscription-billing/internal/domain/ports/adapter"
	"subscription-billing/internal/infra/logging"
	"subscription-billing/internal/infra/metrics"
)

// Job is one named background pass.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type funcJob struct {
	name string
	fn   func(ctx context.Context) error
}

func (j funcJob) Name() string                  { return j.name }
func (j funcJob) Run(ctx context.Context) error { return j.fn(ctx) }

// JobFunc adapts a plain function to Job.
func JobFunc(name string, fn func(ctx context.Context) error) Job {
	return funcJob{name: name, fn: fn}
}

func LockKey(job string) string { return "lock:job:" + job }

// Runner makes each job a singleton across processes: a pass that cannot take
// the job lock is skipped, not queued.
type Runner struct {
	locker adapter.Locker
	lease  time.Duration
	log    *zerolog.Logger
}

func NewRunner(locker adapter.Locker, lease time.Duration, logger *zerolog.Logger) *Runner {
	if lease <= 0 {
		lease = time.Hour
	}
	l := logger.With().Str("component", "job_runner").Logger()
	return &Runner{locker: locker, lease: lease, log: &l}
}

// Run executes job under its lock. It returns nil when the pass was skipped.
func (r *Runner) Run(ctx context.Context, job Job) error {
	name := job.Name()
	ctx = logging.WithJob(ctx, name)
	log := logging.With(ctx, r.log)

	key := LockKey(name)
	token, err := r.locker.TryLock(ctx, key, r.lease)
	if errors.Is(err, domain.ErrLockNotAcquired) {
		metrics.IncJobRun(name, "locked")
		log.Info().Msg("job already running elsewhere; pass skipped")
		return nil
	}
	if err != nil {
		metrics.IncJobRun(name, "failed")
		return fmt.Errorf("acquire %s: %w", key, err)
	}
	defer func() {
		uctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.locker.Unlock(uctx, key, token); err != nil {
			log.Warn().Err(err).Msg("failed to release job lock")
		}
	}()

	start := time.Now()
	err = job.Run(ctx)
	metrics.ObserveJobDuration(name, time.Since(start).Seconds())
	if err != nil {
		metrics.IncJobRun(name, "failed")
		log.Error().Err(err).Dur("duration", time.Since(start)).Msg("job failed")
		return err
	}
	metrics.IncJobRun(name, "ok")
	log.Debug().Dur("duration", time.Since(start)).Msg("job finished")
	return nil
}
