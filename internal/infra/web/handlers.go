package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"subscription-billing/internal/domain/model"
	ucport "subscription-billing/internal/domain/ports/usecase"
	"subscription-billing/internal/infra/sched"
	"subscription-billing/internal/infra/worker"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// jobTriggerHandler queues one pass and answers 202; the pass itself runs on the worker pool.
// Query parameters dry_run and days_ahead only apply to recurring billing.
func jobTriggerHandler(jobs JobDispatcher, log *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")

		var opts ucport.RenewalOptions
		q := r.URL.Query()
		if v := q.Get("dry_run"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				http.Error(w, "dry_run must be a boolean", http.StatusBadRequest)
				return
			}
			opts.DryRun = b
		}
		if v := q.Get("days_ahead"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 || n > 365 {
				http.Error(w, "days_ahead must be between 0 and 365", http.StatusBadRequest)
				return
			}
			opts.DaysAhead = n
		}

		err := jobs.Dispatch(name, opts)
		switch {
		case errors.Is(err, sched.ErrUnknownJob):
			http.Error(w, "Unknown job", http.StatusNotFound)
			return
		case errors.Is(err, worker.ErrQueueFull), errors.Is(err, worker.ErrStopped):
			http.Error(w, "Job queue is busy", http.StatusServiceUnavailable)
			return
		case err != nil:
			log.Error().Err(err).Str("job", name).Msg("job trigger failed")
			http.Error(w, "Failed to queue job", http.StatusInternalServerError)
			return
		}

		log.Info().Str("job", name).Bool("dry_run", opts.DryRun).Int("days_ahead", opts.DaysAhead).Msg("job queued")
		writeJSON(w, http.StatusAccepted, map[string]string{"job": name, "status": "accepted"})
	}
}

// subscriptionStatsHandler returns counts per status; reading them refreshes the gauge.
func subscriptionStatsHandler(stats StatsReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := stats.SubscriptionCounts(r.Context())
		if err != nil {
			http.Error(w, "Failed to count subscriptions", http.StatusInternalServerError)
			return
		}

		byStatus := make(map[string]int, len(model.AllSubscriptionStatuses))
		total := 0
		for _, st := range model.AllSubscriptionStatuses {
			byStatus[string(st)] = counts[st]
			total += counts[st]
		}

		response := struct {
			Total    int            `json:"total"`
			ByStatus map[string]int `json:"by_status"`
		}{
			Total:    total,
			ByStatus: byStatus,
		}
		writeJSON(w, http.StatusOK, response)
	}
}
