package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"subscription-billing/internal/domain/model"
)

var validate = validator.New()

type checkoutRequest struct {
	ProductID  string `json:"product_id" validate:"required,max=64"`
	Email      string `json:"email" validate:"required,email"`
	Name       string `json:"name" validate:"omitempty,max=128"`
	Phone      string `json:"phone" validate:"omitempty,max=32"`
	ReferrerID string `json:"referrer_id" validate:"omitempty,max=64"`
	SaveCard   bool   `json:"save_card"`
}

type checkoutResponse struct {
	Success           bool            `json:"success"`
	OrderRef          string          `json:"order_ref"`
	ProviderPaymentID string          `json:"payment_id"`
	PaymentURL        string          `json:"payment_url"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
}

type createCancellationRequest struct {
	UserProductID string `json:"user_product_id" validate:"required,max=64"`
	Reason        string `json:"reason" validate:"omitempty,max=1000"`
}

type decideCancellationRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approve reject"`
	Comment  string `json:"comment" validate:"omitempty,max=1000"`
}

type paymentStatusResponse struct {
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
}

// cancellationView is the public snapshot of a request.
type cancellationView struct {
	ID               string     `json:"id"`
	UserProductID    string     `json:"user_product_id"`
	RequesterID      string     `json:"requester_id"`
	ReferrerID       *string    `json:"referrer_id,omitempty"`
	Status           string     `json:"status"`
	Reason           string     `json:"reason,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	ExpiresAt        time.Time  `json:"expires_at"`
	TimeLeft         string     `json:"time_left"`
	DecidedBy        *string    `json:"decided_by,omitempty"`
	DecidedAt        *time.Time `json:"decided_at,omitempty"`
	DecisionComment  string     `json:"decision_comment,omitempty"`
	ReferrerNotified bool       `json:"referrer_notified"`
}

func toCancellationView(r *model.CancellationRequest, now time.Time) cancellationView {
	left := model.FormatTimeLeft(0)
	if r.Status == model.CancellationPending {
		left = r.TimeLeft(now)
	}
	return cancellationView{
		ID:               r.ID,
		UserProductID:    r.UserProductID,
		RequesterID:      r.RequesterID,
		ReferrerID:       r.ReferrerID,
		Status:           string(r.Status),
		Reason:           r.Reason,
		CreatedAt:        r.CreatedAt,
		ExpiresAt:        r.ExpiresAt,
		TimeLeft:         left,
		DecidedBy:        r.DecidedBy,
		DecidedAt:        r.DecidedAt,
		DecisionComment:  r.DecisionComment,
		ReferrerNotified: r.ReferrerNotified,
	}
}

func toCancellationViews(rs []*model.CancellationRequest, now time.Time) []cancellationView {
	out := make([]cancellationView, 0, len(rs))
	for _, r := range rs {
		out = append(out, toCancellationView(r, now))
	}
	return out
}

type errorResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	TimeLeft string `json:"time_left,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Message: msg})
}

// decodeAndValidate reads a JSON body into dst and runs its validate tags.
func decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.New("invalid request body")
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, strings.ToLower(fe.Field())+" "+fe.Tag())
			}
			return errors.New("invalid fields: " + strings.Join(fields, ", "))
		}
		return err
	}
	return nil
}
