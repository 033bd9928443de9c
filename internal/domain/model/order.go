package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"subscription-billing/internal/domain"
)

// OrderStatus mirrors the provider's payment status vocabulary. Unknown provider
// states are stored verbatim and treated as non-terminal.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusAuthorized      OrderStatus = "AUTHORIZED"
	OrderStatusConfirmed       OrderStatus = "CONFIRMED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusAuthFail        OrderStatus = "AUTH_FAIL"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusDeadlineExpired OrderStatus = "DEADLINE_EXPIRED"
	OrderStatusReversed        OrderStatus = "REVERSED"
	OrderStatusRefunded        OrderStatus = "REFUNDED"
	OrderStatusPartialRefunded OrderStatus = "PARTIAL_REFUNDED"
)

// ParseOrderStatus normalizes a raw provider status token.
func ParseOrderStatus(s string) OrderStatus {
	return OrderStatus(strings.ToUpper(strings.TrimSpace(s)))
}

func (s OrderStatus) IsSuccess() bool { return s == OrderStatusConfirmed }

func (s OrderStatus) IsFailure() bool {
	switch s {
	case OrderStatusRejected, OrderStatusAuthFail, OrderStatusCanceled, OrderStatusDeadlineExpired:
		return true
	}
	return false
}

func (s OrderStatus) IsReversal() bool {
	switch s {
	case OrderStatusReversed, OrderStatusRefunded, OrderStatusPartialRefunded:
		return true
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return s.IsSuccess() || s.IsFailure() || s.IsReversal()
}

// CanAdvanceTo reports whether an order in status s may move to next.
// Non-terminal states accept anything. A failed order may still be confirmed
// because money captured late is a financial fact. A confirmed order only
// accepts reversals. Reversals are final.
func (s OrderStatus) CanAdvanceTo(next OrderStatus) bool {
	if next == "" || s == next {
		return false
	}
	switch {
	case !s.IsTerminal():
		return true
	case s.IsFailure():
		return next.IsSuccess()
	case s.IsSuccess():
		return next.IsReversal() || next == OrderStatusCanceled
	default:
		return false
	}
}

type OrderKind string

const (
	OrderKindPurchase    OrderKind = "purchase"
	OrderKindRecurring   OrderKind = "recurring"
	OrderKindCardBinding OrderKind = "card_binding"
)

// CustomerSnapshot is the contact data captured at checkout time.
type CustomerSnapshot struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Order is one purchase attempt identified by an external order reference.
type Order struct {
	ID                string
	OrderRef          string
	Kind              OrderKind
	UserID            *string
	ProductID         *string
	UserProductID     *string
	ReferrerID        *string
	Amount            decimal.Decimal
	Currency          string
	Status            OrderStatus
	Customer          CustomerSnapshot
	Description       string
	ProviderPaymentID *string
	PaymentURL        *string
	SaveCard          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func NewOrder(ref string, kind OrderKind, amount decimal.Decimal, currency string, customer CustomerSnapshot) (*Order, error) {
	if strings.TrimSpace(ref) == "" || currency == "" || !amount.IsPositive() {
		return nil, domain.ErrInvalidArgument
	}
	switch kind {
	case OrderKindPurchase, OrderKindRecurring, OrderKindCardBinding:
	default:
		return nil, domain.ErrInvalidArgument
	}
	customer.Email = NormalizeEmail(customer.Email)
	if customer.Email == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &Order{
		ID:        uuid.NewString(),
		OrderRef:  ref,
		Kind:      kind,
		Amount:    amount,
		Currency:  currency,
		Status:    OrderStatusNew,
		Customer:  customer,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// RecurringOrderRef builds the reference used for unattended renewals.
// MinorUnits converts an amount into integer minor units at the given exponent.
func MinorUnits(amount decimal.Decimal, exponent int32) int64 {
	return amount.Shift(exponent).Round(0).IntPart()
}

// AmountMatches reports whether minor, as reported by the provider, equals the
// order amount. Zero means the provider did not report an amount.
func (o *Order) AmountMatches(minor int64, exponent int32) bool {
	return minor == 0 || minor == MinorUnits(o.Amount, exponent)
}

func RecurringOrderRef(prefix, userProductID string, at time.Time) string {
	if prefix == "" {
		prefix = "RECURRING"
	}
	return prefix + "_" + userProductID + "_" + at.UTC().Format("20060102150405")
}
