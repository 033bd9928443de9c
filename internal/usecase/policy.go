package usecase

import (
	"time"

	"github.com/shopspring/decimal"

	"subscription-billing/internal/domain/model"
	"subscription-billing/internal/domain/ports/repository"
)

// Stores groups the ledger repositories the billing workflows write to.
type Stores struct {
	Users         repository.UserRepository
	Products      repository.ProductRepository
	Orders        repository.OrderRepository
	Payments      repository.PaymentRepository
	Methods       repository.PaymentMethodRepository
	Mandates      repository.MandateRepository
	Transactions  repository.TransactionRepository
	Subscriptions repository.UserProductRepository
	Referrals     repository.ReferralRepository
	Cancellations repository.CancellationRepository
}

// Policy carries the business constants of billing, renewal and cancellation.
type Policy struct {
	Periods         model.PeriodLengths
	GracePeriod     time.Duration
	Lookahead       time.Duration
	MaxCardAttempts int
	RenewalBatch    int
	RecurringPrefix string
	Currency        string
	// MinorUnitExponent scales amounts to the provider's integer minor units.
	MinorUnitExponent int32

	DecisionWindow    time.Duration
	ReminderBefore    time.Duration
	CancellationBatch int

	CommissionRate    decimal.Decimal
	CardBindingAmount decimal.Decimal

	StaleAfter     time.Duration
	ReconcileBatch int

	VerifyNotifications bool
	DedupTTL            time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		Periods:             model.DefaultPeriodLengths(),
		GracePeriod:         72 * time.Hour,
		Lookahead:           72 * time.Hour,
		MaxCardAttempts:     3,
		RenewalBatch:        500,
		RecurringPrefix:     "RECURRING",
		Currency:            "RUB",
		MinorUnitExponent:   2,
		DecisionWindow:      24 * time.Hour,
		ReminderBefore:      6 * time.Hour,
		CancellationBatch:   200,
		CommissionRate:      decimal.NewFromInt(20),
		CardBindingAmount:   decimal.NewFromInt(1),
		StaleAfter:          15 * time.Minute,
		ReconcileBatch:      100,
		VerifyNotifications: true,
		DedupTTL:            24 * time.Hour,
	}
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
