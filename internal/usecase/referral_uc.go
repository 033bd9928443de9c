package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"subscription-billing/internal/domain"
	"subscription-billing/internal/domain/model"
	"subscription-billing/internal/domain/ports/repository"
)

// ReferralUseCase accrues referral commissions. The stored Referral rate is the
// source of truth; the configured default only seeds new relationships.
type ReferralUseCase struct {
	referrals   repository.ReferralRepository
	defaultRate decimal.Decimal
	log         *zerolog.Logger
}

func NewReferralUseCase(referrals repository.ReferralRepository, defaultRate decimal.Decimal, logger *zerolog.Logger) *ReferralUseCase {
	l := logger.With().Str("component", "referrals").Logger()
	return &ReferralUseCase{referrals: referrals, defaultRate: defaultRate, log: &l}
}

// Accrue books one commission for orderID. A nil referrerID falls back to the
// referral relationship of userID. It returns nil when there is nothing to accrue
// or the order was already accrued.
func (uc *ReferralUseCase) Accrue(ctx context.Context, tx repository.Tx, referrerID *string, userID, orderID string, amount decimal.Decimal) (*model.ReferralCommission, error) {
	var ref *model.Referral
	if referrerID == nil || *referrerID == "" {
		found, err := uc.referrals.FindByReferredUser(ctx, tx, userID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("find referral: %w", err)
		}
		ref = found
	} else {
		if *referrerID == userID {
			return nil, nil
		}
		draft, err := model.NewReferral(*referrerID, userID, uc.defaultRate)
		if err != nil {
			return nil, err
		}
		ref, err = uc.referrals.GetOrCreate(ctx, tx, draft)
		if err != nil {
			return nil, fmt.Errorf("get or create referral: %w", err)
		}
	}

	c, err := model.NewReferralCommission(ref, orderID, amount)
	if err != nil {
		return nil, err
	}
	created, err := uc.referrals.AddCommission(ctx, tx, c)
	if err != nil {
		return nil, fmt.Errorf("add commission: %w", err)
	}
	if !created {
		return nil, nil
	}
	if err := uc.referrals.AddEarnings(ctx, tx, ref.ID, c.CommissionAmount); err != nil {
		return nil, fmt.Errorf("add earnings: %w", err)
	}
	uc.log.Debug().
		Str("referral_id", ref.ID).
		Str("order_id", orderID).
		Str("commission", c.CommissionAmount.String()).
		Msg("commission accrued")
	return c, nil
}
