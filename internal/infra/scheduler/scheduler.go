package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"subscription-billing/internal/infra/metrics"
	"subscription-billing/internal/infra/worker"
)

// Submitter is satisfied by worker.Pool.
type Submitter interface {
	Submit(task worker.Task) error
}

// Entry is one periodic job. The first run happens Offset after Start, then every Interval.
type Entry struct {
	Name     string
	Interval time.Duration
	Offset   time.Duration
	Timeout  time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler ticks entries and hands each run to the worker pool.
type Scheduler struct {
	pool    Submitter
	entries []Entry
	log     *zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(pool Submitter, logger *zerolog.Logger, entries ...Entry) *Scheduler {
	l := logger.With().Str("component", "scheduler").Logger()
	return &Scheduler{pool: pool, entries: entries, log: &l}
}

// Start begins one loop per entry; calling Start twice has no effect.
func (s *Scheduler) Start(parent context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	for _, e := range s.entries {
		if e.Interval <= 0 || e.Run == nil {
			s.log.Warn().Str("job", e.Name).Msg("entry without interval or run func ignored")
			continue
		}
		s.wg.Add(1)
		go s.loop(ctx, e)
	}
}

func (s *Scheduler) loop(ctx context.Context, e Entry) {
	defer s.wg.Done()
	s.log.Info().Str("job", e.Name).Dur("interval", e.Interval).Dur("offset", e.Offset).Msg("job scheduled")

	if e.Offset > 0 {
		t := time.NewTimer(e.Offset)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
	s.dispatch(e)

	ticker := time.NewTicker(e.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.dispatch(e)
		}
	}
}

func (s *Scheduler) dispatch(e Entry) {
	err := s.pool.Submit(func(poolCtx context.Context) error {
		runCtx := poolCtx
		if e.Timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(poolCtx, e.Timeout)
			defer cancel()
		}
		return e.Run(runCtx)
	})
	if err != nil {
		metrics.IncJobRun(e.Name, "dropped")
		s.log.Warn().Err(err).Str("job", e.Name).Msg("job run dropped")
	}
}

// Stop cancels all loops and waits for them; runs already handed to the pool keep going.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.log.Info().Msg("scheduler stopped")
}
