package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"subscription-billing/internal/domain/model"
	"subscription-billing/internal/domain/ports/adapter"
	"subscription-billing/internal/usecase"
)

// Narrow views of the use cases the handlers call.
type (
	NotificationHandler interface {
		HandleNotification(ctx context.Context, body []byte) (usecase.WebhookOutcome, error)
	}

	CheckoutService interface {
		Checkout(ctx context.Context, in usecase.CheckoutInput) (*usecase.CheckoutResult, error)
		BindCard(ctx context.Context, userID string) (*usecase.CheckoutResult, error)
		PaymentStatus(ctx context.Context, providerPaymentID string) (adapter.Result, error)
	}

	CancellationService interface {
		Create(ctx context.Context, requesterID, userProductID, reason string) (*model.CancellationRequest, error)
		Decide(ctx context.Context, actorID, requestID string, decision model.Decision, comment string) (*model.CancellationRequest, error)
		ListMine(ctx context.Context, userID string) ([]*model.CancellationRequest, error)
		ListForReferrer(ctx context.Context, referrerID string) ([]*model.CancellationRequest, error)
	}
)

type Options struct {
	WebhookAck         string
	RequestTimeout     time.Duration
	RateLimitPerMinute int
}

// Server exposes the provider callback and the subscriber-facing API.
type Server struct {
	webhook  NotificationHandler
	checkout CheckoutService
	cancels  CancellationService
	auth     *Authenticator
	limiter  Limiter
	opts     Options
	now      func() time.Time
	log      *zerolog.Logger
}

// NewServer wires the handlers. limiter may be nil.
func NewServer(webhook NotificationHandler, checkout CheckoutService, cancels CancellationService,
	auth *Authenticator, limiter Limiter, opts Options, logger *zerolog.Logger) *Server {
	if opts.WebhookAck == "" {
		opts.WebhookAck = "OK"
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	l := logger.With().Str("component", "api").Logger()
	return &Server{
		webhook:  webhook,
		checkout: checkout,
		cancels:  cancels,
		auth:     auth,
		limiter:  limiter,
		opts:     opts,
		now:      time.Now,
		log:      &l,
	}
}

// Routes builds the public router. extra mounts additional routers (the admin API) on the same chain.
func (s *Server) Routes(extra ...func(chi.Router)) http.Handler {
	r := chi.NewRouter()
	r.Use(
		TraceID(s.log),
		RequestLog(s.log),
		Recover(s.log),
		Timeout(s.opts.RequestTimeout),
		MaxBody(1<<20),
	)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/payments/webhook", s.handleNotification)
		r.Post("/checkout", s.handleCheckout)

		r.Group(func(r chi.Router) {
			r.Use(Authenticate(s.auth))
			r.Post("/cards/bind", s.handleBindCard)
			r.Get("/payments/{paymentID}/status", s.handlePaymentStatus)

			r.With(RateLimit(s.limiter, "cancellations.create", s.opts.RateLimitPerMinute, s.log)).
				Post("/cancellations", s.handleCreateCancellation)
			r.Get("/cancellations/mine", s.handleListMine)
			r.Get("/cancellations/referrals", s.handleListReferrals)
			r.Post("/cancellations/{requestID}/decision", s.handleDecide)
		})
	})

	for _, mount := range extra {
		mount(r)
	}
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
