package web

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"subscription-billing/internal/domain/model"
	ucport "subscription-billing/internal/domain/ports/usecase"
)

// JobDispatcher queues one pass of a named job; satisfied by sched.Dispatcher.
type JobDispatcher interface {
	Dispatch(name string, opts ucport.RenewalOptions) error
}

type StatsReader interface {
	SubscriptionCounts(ctx context.Context) (map[model.SubscriptionStatus]int, error)
}

// Server is the operator API under /admin/v1.
type Server struct {
	jobs   JobDispatcher
	stats  StatsReader
	apiKey string
	log    *zerolog.Logger
}

func NewServer(jobs JobDispatcher, stats StatsReader, apiKey string, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "admin_api").Logger()
	return &Server{jobs: jobs, stats: stats, apiKey: apiKey, log: &l}
}

// Mount registers the admin routes on r.
func (s *Server) Mount(r chi.Router) {
	r.Route("/admin/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/jobs/{name}", jobTriggerHandler(s.jobs, s.log))
		r.Get("/stats/subscriptions", subscriptionStatsHandler(s.stats))
	})
}

// authMiddleware provides simple Bearer token authentication for the admin API.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			s.log.Error().Msg("Admin API key is not configured")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || strings.ToLower(tokenParts[0]) != "bearer" {
			http.Error(w, "Unauthorized: Malformed token", http.StatusUnauthorized)
			return
		}

		if subtle.ConstantTimeCompare([]byte(tokenParts[1]), []byte(s.apiKey)) != 1 {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}
