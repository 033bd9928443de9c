package model

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"subscription-billing/internal/domain"
)

type PaymentMethodStatus string

const (
	PaymentMethodActive  PaymentMethodStatus = "active"
	PaymentMethodRevoked PaymentMethodStatus = "revoked"
	PaymentMethodExpired PaymentMethodStatus = "expired"
)

// PaymentMethod is a tokenized saved card. RebillID is globally unique.
type PaymentMethod struct {
	ID        string
	UserID    string
	Provider  string
	RebillID  string
	CardID    *string
	PanMask   string
	ExpDate   string // MMYY as reported by the provider
	Status    PaymentMethodStatus
	IsDefault bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewPaymentMethod(userID, provider, rebillID string, cardID *string, pan, expDate string) (*PaymentMethod, error) {
	if userID == "" || provider == "" || strings.TrimSpace(rebillID) == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &PaymentMethod{
		ID:        uuid.NewString(),
		UserID:    userID,
		Provider:  provider,
		RebillID:  strings.TrimSpace(rebillID),
		CardID:    cardID,
		PanMask:   MaskPAN(pan),
		ExpDate:   expDate,
		Status:    PaymentMethodActive,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Usable reports whether the card can be charged at the given instant.
func (m *PaymentMethod) Usable(now time.Time) bool {
	if m == nil || m.Status != PaymentMethodActive {
		return false
	}
	exp, ok := parseCardExpiry(m.ExpDate)
	if !ok {
		return true
	}
	return now.Before(exp)
}

// parseCardExpiry turns MMYY into the first instant after the card expires.
func parseCardExpiry(s string) (time.Time, bool) {
	if len(s) != 4 {
		return time.Time{}, false
	}
	mm, err1 := strconv.Atoi(s[:2])
	yy, err2 := strconv.Atoi(s[2:])
	if err1 != nil || err2 != nil || mm < 1 || mm > 12 {
		return time.Time{}, false
	}
	return time.Date(2000+yy, time.Month(mm), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0), true
}

// MaskPAN keeps the BIN and last four digits. Already masked values pass through.
func MaskPAN(pan string) string {
	pan = strings.TrimSpace(pan)
	if pan == "" || strings.ContainsAny(pan, "*xX") {
		return pan
	}
	if len(pan) <= 10 {
		return strings.Repeat("*", max(len(pan)-4, 0)) + pan[max(len(pan)-4, 0):]
	}
	return pan[:6] + strings.Repeat("*", len(pan)-10) + pan[len(pan)-4:]
}

type MandateStatus string

const (
	MandateActive  MandateStatus = "active"
	MandateRevoked MandateStatus = "revoked"
	MandateExpired MandateStatus = "expired"
)

// Mandate is the consent for unattended charges against a PaymentMethod.
// (UserID, MandateNumber) is unique.
type Mandate struct {
	ID              string
	UserID          string
	PaymentMethodID string
	Provider        string
	MandateNumber   string
	Status          MandateStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func NewMandate(userID string, method *PaymentMethod) (*Mandate, error) {
	if userID == "" || method == nil || method.ID == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &Mandate{
		ID:              uuid.NewString(),
		UserID:          userID,
		PaymentMethodID: method.ID,
		Provider:        method.Provider,
		MandateNumber:   MandateNumberFor(method.RebillID),
		Status:          MandateActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// MandateNumberFor derives the provider mandate number from the rebill token.
func MandateNumberFor(rebillID string) string { return "mit-" + rebillID }
