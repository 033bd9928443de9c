package adapter

import (
	"context"

	"github.com/shopspring/decimal"
)

// Normalized transport failure codes. Provider business codes pass through verbatim.
const (
	ErrCodeTimeout         = "TIMEOUT"
	ErrCodeConnection      = "CONNECTION_ERROR"
	ErrCodeHTTP            = "HTTP_ERROR"
	ErrCodeInvalidResponse = "INVALID_RESPONSE"
	ErrCodeUnknown         = "UNKNOWN_ERROR"
)

// Customer is the payer as the provider sees it.
type Customer struct {
	Email       string
	Phone       string
	Name        string
	CustomerKey string
}

type PaymentRequest struct {
	Amount      decimal.Decimal
	OrderRef    string
	Description string
	ItemName    string
	Customer    Customer
	// Recurring asks the provider to register the card for unattended charges.
	Recurring bool
}

// Result is the only shape callers see; transport errors never escape the adapter.
type Result struct {
	Success           bool
	ProviderPaymentID string
	RedirectURL       string
	Status            string
	ErrorCode         string
	Message           string
}

// PaymentNotification is an inbound provider callback after parsing.
// Fields keeps the raw signable parameter set.
type PaymentNotification struct {
	OrderRef          string
	ProviderPaymentID string
	Status            string
	Success           bool
	AmountMinor       int64
	RebillID          string
	CardID            string
	Pan               string
	ExpDate           string
	ReceiptURL        string
	ErrorCode         string
	Fields            map[string]any
}

// PaymentGateway is the hex port for payment providers. Implementations never retry.
type PaymentGateway interface {
	Name() string

	InitPayment(ctx context.Context, req PaymentRequest) Result
	// ChargeBySavedToken runs an unattended charge against a rebill token.
	ChargeBySavedToken(ctx context.Context, token string, req PaymentRequest) Result
	QueryStatus(ctx context.Context, providerPaymentID string) Result
	// Confirm captures an authorized payment; nil amount captures the full amount.
	Confirm(ctx context.Context, providerPaymentID string, amount *decimal.Decimal) Result
	// Cancel voids or refunds a payment; nil amount reverses the full amount.
	Cancel(ctx context.Context, providerPaymentID string, amount *decimal.Decimal) Result

	ParseNotification(body []byte) (*PaymentNotification, error)
	VerifyNotification(n *PaymentNotification) bool
}
