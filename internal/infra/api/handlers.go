package api

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"subscription-billing/internal/domain"
	"subscription-billing/internal/domain/model"
	"subscription-billing/internal/infra/logging"
	"subscription-billing/internal/infra/metrics"
	"subscription-billing/internal/usecase"
)

// maxNotificationBody bounds a provider callback; real ones are well under 4 KiB.
const maxNotificationBody = 64 << 10

// handleNotification always acknowledges with the configured body; the provider
// redelivers on anything else.
func (s *Server) handleNotification(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	outcome := usecase.OutcomeMalformed

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxNotificationBody))
	if err == nil {
		outcome, err = s.webhook.HandleNotification(r.Context(), body)
	}
	if err != nil {
		l := logging.With(r.Context(), s.log)
		l.Error().Err(err).Str("outcome", string(outcome)).Msg("notification processing failed")
	}
	metrics.ObserveWebhook(string(outcome), time.Since(start).Seconds())

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, s.opts.WebhookAck)
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.checkout.Checkout(r.Context(), usecase.CheckoutInput{
		ProductID:  req.ProductID,
		Email:      req.Email,
		Name:       req.Name,
		Phone:      req.Phone,
		ReferrerID: req.ReferrerID,
		SaveCard:   req.SaveCard,
	})
	if err != nil {
		s.writeCheckoutError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCheckoutResponse(res))
}

func (s *Server) handleBindCard(w http.ResponseWriter, r *http.Request) {
	res, err := s.checkout.BindCard(r.Context(), UserIDFrom(r.Context()))
	if err != nil {
		s.writeCheckoutError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCheckoutResponse(res))
}

func toCheckoutResponse(res *usecase.CheckoutResult) checkoutResponse {
	return checkoutResponse{
		Success:           true,
		OrderRef:          res.OrderRef,
		ProviderPaymentID: res.ProviderPaymentID,
		PaymentURL:        res.PaymentURL,
		Amount:            res.Amount,
		Currency:          res.Currency,
	}
}

func (s *Server) writeCheckoutError(w http.ResponseWriter, r *http.Request, err error) {
	var perr *usecase.ProviderError
	switch {
	case errors.As(err, &perr):
		writeError(w, http.StatusBadGateway, perr.Message)
	case errors.Is(err, domain.ErrProviderFailure):
		writeError(w, http.StatusBadGateway, "payment provider is unavailable")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.internalError(w, r, err)
	}
}

func (s *Server) handlePaymentStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "paymentID")
	res, err := s.checkout.PaymentStatus(r.Context(), id)
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "payment id is required")
		return
	case err != nil:
		s.internalError(w, r, err)
		return
	case !res.Success:
		writeError(w, http.StatusBadGateway, firstOf(res.Message, res.ErrorCode, "payment provider is unavailable"))
		return
	}
	writeJSON(w, http.StatusOK, paymentStatusResponse{PaymentID: id, Status: res.Status})
}

func (s *Server) handleCreateCancellation(w http.ResponseWriter, r *http.Request) {
	var req createCancellationRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cr, err := s.cancels.Create(r.Context(), UserIDFrom(r.Context()), req.UserProductID, req.Reason)
	if err != nil {
		var pending *domain.PendingRequestError
		switch {
		case errors.As(err, &pending):
			writeJSON(w, http.StatusBadRequest, errorResponse{
				Message:  domain.ErrPendingRequestExists.Error(),
				TimeLeft: pending.TimeLeft,
			})
		case errors.Is(err, domain.ErrAlreadyExists):
			writeError(w, http.StatusBadRequest, domain.ErrPendingRequestExists.Error())
		case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrSubscriptionNotActive),
			errors.Is(err, domain.ErrInvalidArgument):
			writeError(w, http.StatusBadRequest, "subscription cannot be cancelled")
		default:
			s.internalError(w, r, err)
		}
		return
	}
	writeJSON(w, http.StatusCreated, toCancellationView(cr, s.now()))
}

func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	var req decideCancellationRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	decision := model.Decision(strings.ToLower(req.Decision))
	cr, err := s.cancels.Decide(r.Context(), UserIDFrom(r.Context()), chi.URLParam(r, "requestID"), decision, req.Comment)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, toCancellationView(cr, s.now()))
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "request not found")
	case errors.Is(err, domain.ErrRequestExpired):
		writeError(w, http.StatusBadRequest, domain.ErrRequestExpired.Error())
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.internalError(w, r, err)
	}
}

func (s *Server) handleListMine(w http.ResponseWriter, r *http.Request) {
	rs, err := s.cancels.ListMine(r.Context(), UserIDFrom(r.Context()))
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": toCancellationViews(rs, s.now())})
}

func (s *Server) handleListReferrals(w http.ResponseWriter, r *http.Request) {
	rs, err := s.cancels.ListForReferrer(r.Context(), UserIDFrom(r.Context()))
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": toCancellationViews(rs, s.now())})
}

func firstOf(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	l := logging.With(r.Context(), s.log)
	l.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}
