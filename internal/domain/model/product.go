package model

import (
	"time"

	"github.com/shopspring/decimal"

	"subscription-billing/internal/domain"
)

type ProductType string

const (
	ProductTypeSubscription ProductType = "subscription"
	ProductTypeOneTime      ProductType = "one_time"
)

type BillingPeriod string

const (
	BillingPeriodMonthly BillingPeriod = "monthly"
	BillingPeriodYearly  BillingPeriod = "yearly"
)

// Product is a purchasable item; only subscription-type products produce a UserProduct.
type Product struct {
	ID        string
	Name      string
	Type      ProductType
	Period    BillingPeriod
	Price     decimal.Decimal
	Currency  string
	Active    bool
	CreatedAt time.Time
}

func (p *Product) IsZero() bool { return p == nil || p.ID == "" }

func (p *Product) IsSubscription() bool { return p != nil && p.Type == ProductTypeSubscription }

// NewProduct validates and constructs a product.
func NewProduct(id, name string, typ ProductType, period BillingPeriod, price decimal.Decimal, currency string) (*Product, error) {
	if id == "" || name == "" || currency == "" || !price.IsPositive() {
		return nil, domain.ErrInvalidArgument
	}
	if typ != ProductTypeSubscription && typ != ProductTypeOneTime {
		return nil, domain.ErrInvalidArgument
	}
	if typ == ProductTypeSubscription && period != BillingPeriodMonthly && period != BillingPeriodYearly {
		return nil, domain.ErrInvalidArgument
	}
	return &Product{
		ID:        id,
		Name:      name,
		Type:      typ,
		Period:    period,
		Price:     price,
		Currency:  currency,
		Active:    true,
		CreatedAt: time.Now(),
	}, nil
}

// PeriodLengths maps billing periods onto wall-clock durations.
type PeriodLengths struct {
	Monthly time.Duration
	Yearly  time.Duration
}

func DefaultPeriodLengths() PeriodLengths {
	return PeriodLengths{Monthly: 30 * 24 * time.Hour, Yearly: 365 * 24 * time.Hour}
}

// Of returns the length of p; unknown periods bill monthly.
func (l PeriodLengths) Of(p BillingPeriod) time.Duration {
	d := DefaultPeriodLengths()
	if l.Monthly > 0 {
		d.Monthly = l.Monthly
	}
	if l.Yearly > 0 {
		d.Yearly = l.Yearly
	}
	if p == BillingPeriodYearly {
		return d.Yearly
	}
	return d.Monthly
}
