package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"subscription-billing/internal/domain"
)

type CancellationStatus string

const (
	CancellationPending  CancellationStatus = "pending"
	CancellationApproved CancellationStatus = "approved"
	CancellationRejected CancellationStatus = "rejected"
	CancellationExpired  CancellationStatus = "expired"
)

func (s CancellationStatus) IsTerminal() bool { return s != CancellationPending }

// CancelsSubscription reports whether reaching s forces the linked subscription to cancelled.
func (s CancellationStatus) CancelsSubscription() bool {
	return s == CancellationApproved || s == CancellationExpired
}

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

func (d Decision) Status() (CancellationStatus, error) {
	switch d {
	case DecisionApprove:
		return CancellationApproved, nil
	case DecisionReject:
		return CancellationRejected, nil
	}
	return "", domain.ErrInvalidArgument
}

const AutoExpiredComment = "Cancelled automatically: no decision within the approval window"

// CancellationRequest is a referral-gated request to cancel one subscription.
type CancellationRequest struct {
	ID               string
	UserProductID    string
	RequesterID      string
	ReferrerID       *string
	Status           CancellationStatus
	Reason           string
	CreatedAt        time.Time
	ExpiresAt        time.Time
	DecidedBy        *string
	DecidedAt        *time.Time
	DecisionComment  string
	ReferrerNotified bool
	ReminderSent     bool
}

func NewCancellationRequest(userProductID, requesterID string, referrerID *string, reason string, window time.Duration, now time.Time) (*CancellationRequest, error) {
	if userProductID == "" || requesterID == "" || window <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	if referrerID != nil && (*referrerID == "" || *referrerID == requesterID) {
		referrerID = nil
	}
	return &CancellationRequest{
		ID:            uuid.NewString(),
		UserProductID: userProductID,
		RequesterID:   requesterID,
		ReferrerID:    referrerID,
		Status:        CancellationPending,
		Reason:        strings.TrimSpace(reason),
		CreatedAt:     now,
		ExpiresAt:     now.Add(window),
	}, nil
}

// IsPastExpiry is true from the expiry instant onwards.
func (r *CancellationRequest) IsPastExpiry(now time.Time) bool { return !now.Before(r.ExpiresAt) }

func (r *CancellationRequest) TimeLeft(now time.Time) string {
	return FormatTimeLeft(r.ExpiresAt.Sub(now))
}

// CanBeDecidedBy reports whether actor is the resolved referrer.
func (r *CancellationRequest) CanBeDecidedBy(actor string) bool {
	return r.ReferrerID != nil && actor != "" && *r.ReferrerID == actor
}

// FormatTimeLeft renders a remaining duration as whole hours and minutes.
func FormatTimeLeft(d time.Duration) string {
	if d <= 0 {
		return "expired"
	}
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
