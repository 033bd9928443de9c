// Package application assembles the billing engine from configuration.
package application

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"subscription-billing/internal/config"
	"subscription-billing/internal/domain/ports/adapter"
	ucport "subscription-billing/internal/domain/ports/usecase"
	"subscription-billing/internal/infra/adapters/events"
	"subscription-billing/internal/infra/adapters/notify"
	"subscription-billing/internal/infra/adapters/payment"
	"subscription-billing/internal/infra/api"
	"subscription-billing/internal/infra/cache"
	pg "subscription-billing/internal/infra/db/postgres"
	"subscription-billing/internal/infra/i18n"
	red "subscription-billing/internal/infra/redis"
	"subscription-billing/internal/infra/sched"
	"subscription-billing/internal/infra/scheduler"
	"subscription-billing/internal/infra/web"
	"subscription-billing/internal/usecase"
)

// Container holds the process-wide dependencies. Close releases them in reverse order.
type Container struct {
	Config *config.Config
	Log    *zerolog.Logger
	Pool   *pgxpool.Pool
	KV     red.RedisClient
	Policy usecase.Policy

	Gateway adapter.PaymentGateway
	Events  adapter.EventPublisher
	Locker  adapter.Locker

	Webhook       *usecase.WebhookUseCase
	Checkout      *usecase.CheckoutUseCase
	Cancellations *usecase.CancellationUseCase
	Billing       *usecase.BillingUseCase
	Reconcile     *usecase.ReconcileUseCase
	Stats         *usecase.StatsUseCase

	Catalog *sched.Catalog
	Runner  *sched.Runner

	closers []func()
}

func NewContainer(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (_ *Container, err error) {
	c := &Container{Config: cfg, Log: logger}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	if c.Policy, err = PolicyFromConfig(cfg); err != nil {
		return nil, fmt.Errorf("policy: %w", err)
	}

	// ---- Postgres ----
	c.Pool, err = pg.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	c.closers = append(c.closers, c.Pool.Close)

	// ---- Redis (or in-process fallback) ----
	if cfg.Redis.URL != "" {
		rc, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		c.KV = rc
	} else {
		logger.Warn().Msg("redis.url is empty; locks and caches are local to this process")
		c.KV = cache.NewMemoryClient(time.Minute)
	}
	kv := c.KV
	c.closers = append(c.closers, func() { _ = kv.Close() })
	c.Locker = red.NewLocker(c.KV)

	// ---- Provider ----
	if cfg.Provider.Name == "noop" {
		logger.Warn().Msg("payment provider is noop; no money moves")
		c.Gateway = payment.NewNoopPaymentGateway()
	} else {
		gw, err := payment.NewTBankGateway(cfg.Provider, logger)
		if err != nil {
			return nil, fmt.Errorf("payment gateway: %w", err)
		}
		c.Gateway = payment.NewLimitedGateway(gw, cfg.Provider.MaxConcurrent)
	}

	// ---- Events ----
	if cfg.NATS.URL != "" {
		pub, err := events.NewNATSPublisher(ctx, cfg.NATS, logger)
		if err != nil {
			return nil, fmt.Errorf("nats: %w", err)
		}
		c.closers = append(c.closers, pub.Close)
		c.Events = pub
	} else {
		c.Events = events.NewLogPublisher(logger)
	}

	// ---- Notifications ----
	texts, err := i18n.Load(cfg.Mail.Language)
	if err != nil {
		return nil, fmt.Errorf("mail.language: %w", err)
	}
	var sink adapter.Notifier
	if cfg.Mail.Host != "" {
		sink = notify.NewSMTPNotifier(cfg.Mail, logger, cfg.Runtime.Dev)
	} else {
		sink = notify.NewLogNotifier(logger, cfg.Runtime.Dev)
	}

	// ---- Repositories ----
	st := usecase.Stores{
		Users:         pg.NewUserRepo(c.Pool),
		Products:      pg.NewProductRepoCacheDecorator(pg.NewProductRepo(c.Pool), c.KV, cfg.Redis.TTL, logger),
		Orders:        pg.NewOrderRepo(c.Pool),
		Payments:      pg.NewPaymentRepo(c.Pool),
		Methods:       pg.NewPaymentMethodRepo(c.Pool),
		Mandates:      pg.NewMandateRepo(c.Pool),
		Transactions:  pg.NewTransactionRepo(c.Pool),
		Subscriptions: pg.NewUserProductRepo(c.Pool),
		Referrals:     pg.NewReferralRepo(c.Pool),
		Cancellations: pg.NewCancellationRepo(c.Pool),
	}
	tm := pg.NewTxManager(c.Pool)

	// ---- Use cases ----
	subs := usecase.NewSubscriptionUseCase(st.Subscriptions, c.Policy.Periods, c.Policy.GracePeriod, logger)
	referral := usecase.NewReferralUseCase(st.Referrals, c.Policy.CommissionRate, logger)
	notes := usecase.NewNotificationUseCase(sink, texts, logger)
	settler := usecase.NewSettler(tm, st, c.Gateway, subs, referral, notes, c.Events, logger)

	c.Webhook = usecase.NewWebhookUseCase(tm, st, c.Gateway, settler, c.Events, red.NewDedupStore(c.KV), c.Policy, logger)
	c.Checkout = usecase.NewCheckoutUseCase(tm, st, c.Gateway, c.Policy, logger)
	c.Cancellations = usecase.NewCancellationUseCase(tm, st, subs, notes, c.Events, c.Policy, logger)
	c.Billing = usecase.NewBillingUseCase(tm, st, c.Gateway, subs, settler, notes, c.Events, c.Policy, logger)
	c.Reconcile = usecase.NewReconcileUseCase(st, c.Gateway, c.Webhook, c.Policy, logger)
	c.Stats = usecase.NewStatsUseCase(st.Subscriptions)

	// ---- Jobs ----
	c.Catalog = sched.NewCatalog(c.Billing, c.Cancellations, c.Reconcile, logger)
	c.Runner = sched.NewRunner(c.Locker, cfg.Workers.JobLockTTL, logger)

	logger.Info().
		Str("provider", c.Gateway.Name()).
		Bool("redis", cfg.Redis.URL != "").
		Bool("nats", cfg.NATS.URL != "").
		Bool("smtp", cfg.Mail.Host != "").
		Msg("container ready")
	return c, nil
}

// Handler builds the public API with the admin API mounted on the same router.
func (c *Container) Handler(jobs web.JobDispatcher) http.Handler {
	cfg := c.Config.HTTP
	if cfg.JWTSecret == "" {
		c.Log.Warn().Msg("http.jwt_secret is empty; authenticated routes will reject every request")
	}
	auth := api.NewAuthenticator(cfg.JWTSecret, 0)
	public := api.NewServer(c.Webhook, c.Checkout, c.Cancellations, auth, red.NewRateLimiter(c.KV), api.Options{
		WebhookAck:         cfg.WebhookAck,
		RequestTimeout:     cfg.RequestTimeout,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	}, c.Log)
	admin := web.NewServer(jobs, c.Stats, cfg.AdminAPIKey, c.Log)
	return public.Routes(func(r chi.Router) { admin.Mount(r) })
}

// Schedule lists the periodic passes. Every pass except pool stats runs under its job lock.
func (c *Container) Schedule() []scheduler.Entry {
	locked := func(job sched.Job) func(ctx context.Context) error {
		return func(ctx context.Context) error { return c.Runner.Run(ctx, job) }
	}
	pool := c.Pool
	return []scheduler.Entry{
		{
			Name:     sched.JobRecurringBilling,
			Interval: c.Config.Billing.Interval,
			Timeout:  c.Config.Workers.JobLockTTL,
			Run:      locked(c.Catalog.RecurringBilling(ucport.RenewalOptions{})),
		},
		{
			Name:     sched.JobCancellationExpiry,
			Interval: c.Config.Cancellation.SweepInterval,
			Timeout:  c.Config.Workers.JobLockTTL,
			Run:      locked(c.Catalog.CancellationExpiry()),
		},
		{
			Name:     sched.JobCancellationReminders,
			Interval: c.Config.Cancellation.ReminderInterval,
			Offset:   c.Config.Cancellation.ReminderOffset,
			Timeout:  c.Config.Workers.JobLockTTL,
			Run:      locked(c.Catalog.CancellationReminders()),
		},
		{
			Name:     sched.JobPaymentReconcile,
			Interval: c.Config.Reconciler.Interval,
			Timeout:  c.Config.Workers.JobLockTTL,
			Run:      locked(c.Catalog.PaymentReconcile()),
		},
		{
			Name:     sched.JobDBPoolStats,
			Interval: 15 * time.Second,
			Timeout:  5 * time.Second,
			Run: sched.PoolStatsJob(func() (int32, int32, int32) {
				s := pool.Stat()
				return s.TotalConns(), s.IdleConns(), s.AcquiredConns()
			}).Run,
		},
	}
}

func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
