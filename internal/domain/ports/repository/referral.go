package repository

import (
	"context"

	"github.com/shopspring/decimal"

	"subscription-billing/internal/domain/model"
)

type ReferralRepository interface {
	FindByReferredUser(ctx context.Context, tx Tx, userID string) (*model.Referral, error)
	// GetOrCreate returns the stored relationship for (referrer, referred) or inserts ref.
	GetOrCreate(ctx context.Context, tx Tx, ref *model.Referral) (*model.Referral, error)
	AddEarnings(ctx context.Context, tx Tx, referralID string, amount decimal.Decimal) error
	// AddCommission stores one accrual per order; created is false on replay.
	AddCommission(ctx context.Context, tx Tx, c *model.ReferralCommission) (created bool, err error)
}
