package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"subscription-billing/internal/domain"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"  // created, waiting for the provider
	PaymentStatusSuccess  PaymentStatus = "success"  // provider confirmed the charge
	PaymentStatusFailed   PaymentStatus = "failed"   // provider declined or the request never reached it
	PaymentStatusRefunded PaymentStatus = "refunded" // charge reversed after success
)

// Payment is one settlement attempt for exactly one Order.
type Payment struct {
	ID            string
	OrderID       string
	UserID        *string
	Provider      string
	Amount        decimal.Decimal
	Currency      string
	Status        PaymentStatus
	ProviderRef   *string // provider payment id
	FailureReason *string
	ReceiptURL    *string
	// Card data reported with the settling callback; kept so a settlement can be replayed.
	CardToken *string
	CardID    *string
	CardPan   *string
	CardExp   *string
	CreatedAt time.Time
	UpdatedAt time.Time
	PaidAt    *time.Time
}

func NewPayment(orderID, provider string, amount decimal.Decimal, currency string) (*Payment, error) {
	if orderID == "" || provider == "" || currency == "" || !amount.IsPositive() {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &Payment{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		Provider:  provider,
		Amount:    amount,
		Currency:  currency,
		Status:    PaymentStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// PaymentUpdate carries the optional columns written together with a status change.
type PaymentUpdate struct {
	ProviderRef   *string
	FailureReason *string
	ReceiptURL    *string
	CardToken     *string
	CardID        *string
	CardPan       *string
	CardExp       *string
	PaidAt        *time.Time
}
