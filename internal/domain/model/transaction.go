package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"subscription-billing/internal/domain"
)

type TransactionType string

const (
	TransactionPayment      TransactionType = "payment"
	TransactionManualCharge TransactionType = "manual_charge"
	TransactionRefund       TransactionType = "refund"
)

// Transaction is an append-only ledger entry. ProviderRef is unique per type.
type Transaction struct {
	ID          string
	UserID      string
	OrderID     string
	PaymentID   string
	Type        TransactionType
	Amount      decimal.Decimal
	Currency    string
	ProviderRef string
	Description string
	CreatedAt   time.Time
}

func NewTransaction(typ TransactionType, userID string, p *Payment, providerRef, description string) (*Transaction, error) {
	if userID == "" || p == nil || providerRef == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &Transaction{
		ID:          uuid.NewString(),
		UserID:      userID,
		OrderID:     p.OrderID,
		PaymentID:   p.ID,
		Type:        typ,
		Amount:      p.Amount,
		Currency:    p.Currency,
		ProviderRef: providerRef,
		Description: description,
		CreatedAt:   time.Now(),
	}, nil
}
