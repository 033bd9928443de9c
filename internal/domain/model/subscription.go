package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"subscription-billing/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionStatusPending   SubscriptionStatus = "pending"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
)

var AllSubscriptionStatuses = []SubscriptionStatus{
	SubscriptionStatusActive,
	SubscriptionStatusPending,
	SubscriptionStatusCancelled,
	SubscriptionStatusExpired,
}

// LiveStatuses are the states in which a UserProduct still grants access or can recover.
var LiveStatuses = []SubscriptionStatus{SubscriptionStatusActive, SubscriptionStatusPending}

func (s SubscriptionStatus) IsLive() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusPending
}

// CanTransitionTo encodes the subscription state machine. Cancelled and expired
// rows are history; a fresh charge creates a new row.
func (s SubscriptionStatus) CanTransitionTo(to SubscriptionStatus) bool {
	switch s {
	case SubscriptionStatusActive:
		return to == SubscriptionStatusActive || to == SubscriptionStatusPending ||
			to == SubscriptionStatusExpired || to == SubscriptionStatusCancelled
	case SubscriptionStatusPending:
		return to == SubscriptionStatusActive || to == SubscriptionStatusExpired ||
			to == SubscriptionStatusCancelled
	default:
		return false
	}
}

// UserProduct is the subscription entity and the only source of truth for access.
type UserProduct struct {
	ID              string
	UserID          string
	ProductID       string
	Status          SubscriptionStatus
	StartDate       time.Time
	EndDate         time.Time
	RenewalPrice    decimal.Decimal
	PaymentMethodID *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewUserProduct starts a subscription at now for one period of product.
func NewUserProduct(userID string, product *Product, periods PeriodLengths, methodID *string, now time.Time) (*UserProduct, error) {
	if userID == "" || !product.IsSubscription() {
		return nil, domain.ErrInvalidArgument
	}
	return &UserProduct{
		ID:              uuid.NewString(),
		UserID:          userID,
		ProductID:       product.ID,
		Status:          SubscriptionStatusActive,
		StartDate:       now,
		EndDate:         now.Add(periods.Of(product.Period)),
		RenewalPrice:    product.Price,
		PaymentMethodID: methodID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Extended returns the end date after one more period.
func (up *UserProduct) Extended(period time.Duration) time.Time {
	return up.EndDate.Add(period)
}

// AfterFailedRenewal decides between the grace state and expiry once every card failed.
// The subscription stays pending while now is inside end_date + grace.
func (up *UserProduct) AfterFailedRenewal(now time.Time, grace time.Duration) SubscriptionStatus {
	if now.Before(up.EndDate.Add(grace)) {
		return SubscriptionStatusPending
	}
	return SubscriptionStatusExpired
}

// DaysUntilExpiry is negative once end_date has passed.
func (up *UserProduct) DaysUntilExpiry(now time.Time) int {
	return int(up.EndDate.Sub(now).Hours() / 24)
}
