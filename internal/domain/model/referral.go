package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"subscription-billing/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Referral links a referrer to the user they brought in. CommissionRate is a percentage.
type Referral struct {
	ID             string
	ReferrerID     string
	ReferredUserID string
	CommissionRate decimal.Decimal
	TotalEarned    decimal.Decimal
	PaidOut        decimal.Decimal
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func NewReferral(referrerID, referredUserID string, rate decimal.Decimal) (*Referral, error) {
	if referrerID == "" || referredUserID == "" || referrerID == referredUserID {
		return nil, domain.ErrInvalidArgument
	}
	if rate.IsNegative() || rate.GreaterThan(hundred) {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &Referral{
		ID:             uuid.NewString(),
		ReferrerID:     referrerID,
		ReferredUserID: referredUserID,
		CommissionRate: rate,
		TotalEarned:    decimal.Zero,
		PaidOut:        decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// CommissionFor applies the stored rate, rounded to cents.
func (r *Referral) CommissionFor(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(r.CommissionRate).Div(hundred).Round(2)
}

type CommissionStatus string

const (
	CommissionPending   CommissionStatus = "pending"
	CommissionApproved  CommissionStatus = "approved"
	CommissionPaid      CommissionStatus = "paid"
	CommissionCancelled CommissionStatus = "cancelled"
)

// ReferralCommission is one accrual per order.
type ReferralCommission struct {
	ID               string
	ReferralID       string
	OrderID          string
	Amount           decimal.Decimal
	CommissionRate   decimal.Decimal
	CommissionAmount decimal.Decimal
	Status           CommissionStatus
	PayoutID         *string
	CreatedAt        time.Time
}

func NewReferralCommission(ref *Referral, orderID string, amount decimal.Decimal) (*ReferralCommission, error) {
	if ref == nil || orderID == "" || !amount.IsPositive() {
		return nil, domain.ErrInvalidArgument
	}
	return &ReferralCommission{
		ID:               uuid.NewString(),
		ReferralID:       ref.ID,
		OrderID:          orderID,
		Amount:           amount,
		CommissionRate:   ref.CommissionRate,
		CommissionAmount: ref.CommissionFor(amount),
		Status:           CommissionPending,
		CreatedAt:        time.Now(),
	}, nil
}
