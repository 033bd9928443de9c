//go:build !integration

package sched_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subscription-billing/internal/domain"
	ucport "subscription-billing/internal/domain/ports/usecase"
	"subscription-billing/internal/infra/sched"
	"subscription-billing/internal/infra/worker"
)

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]string
	unlocked []string
}

func newFakeLocker() *fakeLocker { return &fakeLocker{held: map[string]string{}} }

func (l *fakeLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return "", domain.ErrLockNotAcquired
	}
	l.held[key] = "tok-" + key
	return l.held[key], nil
}

func (l *fakeLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
		l.unlocked = append(l.unlocked, key)
	}
	return nil
}

type fakeBilling struct{ opts []ucport.RenewalOptions }

func (f *fakeBilling) RunRenewals(ctx context.Context, opts ucport.RenewalOptions) (ucport.RenewalSummary, error) {
	f.opts = append(f.opts, opts)
	return ucport.RenewalSummary{Selected: 1, Succeeded: 1}, nil
}

type fakeSweeper struct{ expired, reminded int }

func (f *fakeSweeper) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	f.expired++
	return 2, nil
}

func (f *fakeSweeper) SendReminders(ctx context.Context, now time.Time) (int, error) {
	f.reminded++
	return 0, nil
}

type fakeReconciler struct{ err error }

func (f *fakeReconciler) ReconcileStale(ctx context.Context) (ucport.ReconcileSummary, error) {
	return ucport.ReconcileSummary{Checked: 1}, f.err
}

// inlinePool runs tasks synchronously so dispatch results are observable.
type inlinePool struct {
	full bool
	errs []error
}

func (p *inlinePool) Submit(task worker.Task) error {
	if p.full {
		return worker.ErrQueueFull
	}
	p.errs = append(p.errs, task(context.Background()))
	return nil
}

func newLogger() *zerolog.Logger { l := zerolog.Nop(); return &l }

func TestRunner_Run(t *testing.T) {
	t.Run("should run the job and release its lock", func(t *testing.T) {
		locker := newFakeLocker()
		runner := sched.NewRunner(locker, time.Minute, newLogger())
		ran := false

		err := runner.Run(context.Background(), sched.JobFunc("demo", func(ctx context.Context) error {
			ran = true
			return nil
		}))

		require.NoError(t, err)
		assert.True(t, ran)
		assert.Equal(t, []string{"lock:job:demo"}, locker.unlocked)
	})

	t.Run("should skip a pass while another holder has the lock", func(t *testing.T) {
		locker := newFakeLocker()
		_, _ = locker.TryLock(context.Background(), sched.LockKey("demo"), time.Minute)
		runner := sched.NewRunner(locker, time.Minute, newLogger())
		ran := false

		err := runner.Run(context.Background(), sched.JobFunc("demo", func(ctx context.Context) error {
			ran = true
			return nil
		}))

		require.NoError(t, err)
		assert.False(t, ran)
	})

	t.Run("should release the lock when the job fails", func(t *testing.T) {
		locker := newFakeLocker()
		runner := sched.NewRunner(locker, time.Minute, newLogger())
		boom := errors.New("boom")

		err := runner.Run(context.Background(), sched.JobFunc("demo", func(ctx context.Context) error { return boom }))

		assert.ErrorIs(t, err, boom)
		assert.Empty(t, locker.held)
	})
}

func TestDispatcher_Dispatch(t *testing.T) {
	build := func(pool *inlinePool) (*sched.Dispatcher, *fakeBilling, *fakeSweeper) {
		billing := &fakeBilling{}
		sweeper := &fakeSweeper{}
		catalog := sched.NewCatalog(billing, sweeper, &fakeReconciler{}, newLogger())
		runner := sched.NewRunner(newFakeLocker(), time.Minute, newLogger())
		return sched.NewDispatcher(catalog, runner, pool), billing, sweeper
	}

	t.Run("should pass renewal options through to billing", func(t *testing.T) {
		pool := &inlinePool{}
		d, billing, _ := build(pool)

		err := d.Dispatch(sched.JobRecurringBilling, ucport.RenewalOptions{DryRun: true, DaysAhead: 5})

		require.NoError(t, err)
		require.Len(t, billing.opts, 1)
		assert.Equal(t, ucport.RenewalOptions{DryRun: true, DaysAhead: 5}, billing.opts[0])
	})

	t.Run("should route sweeps to the cancellation workflow", func(t *testing.T) {
		pool := &inlinePool{}
		d, _, sweeper := build(pool)

		require.NoError(t, d.Dispatch(sched.JobCancellationExpiry, ucport.RenewalOptions{}))
		require.NoError(t, d.Dispatch(sched.JobCancellationReminders, ucport.RenewalOptions{}))

		assert.Equal(t, 1, sweeper.expired)
		assert.Equal(t, 1, sweeper.reminded)
	})

	t.Run("should reject unknown jobs", func(t *testing.T) {
		d, _, _ := build(&inlinePool{})

		assert.ErrorIs(t, d.Dispatch("make-coffee", ucport.RenewalOptions{}), sched.ErrUnknownJob)
	})

	t.Run("should surface a saturated pool", func(t *testing.T) {
		d, billing, _ := build(&inlinePool{full: true})

		assert.ErrorIs(t, d.Dispatch(sched.JobRecurringBilling, ucport.RenewalOptions{}), worker.ErrQueueFull)
		assert.Empty(t, billing.opts)
	})
}

func TestCatalog_PaymentReconcileError(t *testing.T) {
	boom := errors.New("provider down")
	catalog := sched.NewCatalog(&fakeBilling{}, &fakeSweeper{}, &fakeReconciler{err: boom}, newLogger())

	job, err := catalog.Job(sched.JobPaymentReconcile, ucport.RenewalOptions{})

	require.NoError(t, err)
	assert.Equal(t, sched.JobPaymentReconcile, job.Name())
	assert.ErrorIs(t, job.Run(context.Background()), boom)
}
