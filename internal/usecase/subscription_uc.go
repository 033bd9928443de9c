// File: internal/usecase/subscription_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"subscription-billing/internal/domain"
	"subscription-billing/internal/domain/model"
	"subscription-billing/internal/domain/ports/repository"
	"subscription-billing/internal/infra/metrics"
)

// SubscriptionUseCase owns every UserProduct transition. All methods run inside the
// caller's transaction and take the per-(user, product) lock first, so a renewal
// in flight and a cancellation are applied one after the other.
type SubscriptionUseCase struct {
	subs    repository.UserProductRepository
	periods model.PeriodLengths
	grace   time.Duration
	log     *zerolog.Logger
}

func NewSubscriptionUseCase(subs repository.UserProductRepository, periods model.PeriodLengths, grace time.Duration, logger *zerolog.Logger) *SubscriptionUseCase {
	l := logger.With().Str("component", "subscriptions").Logger()
	return &SubscriptionUseCase{subs: subs, periods: periods, grace: grace, log: &l}
}

func (uc *SubscriptionUseCase) GracePeriod() time.Duration { return uc.grace }

// Activate grants one period of product. A live subscription for the same pair is
// extended from its end date; otherwise a new one starts at now.
func (uc *SubscriptionUseCase) Activate(ctx context.Context, tx repository.Tx, userID string, product *model.Product, methodID *string, now time.Time) (up *model.UserProduct, renewed bool, err error) {
	if err := uc.subs.Lock(ctx, tx, userID, product.ID); err != nil {
		return nil, false, fmt.Errorf("lock subscription: %w", err)
	}

	live, err := uc.subs.FindLive(ctx, tx, userID, product.ID)
	switch {
	case err == nil:
		if methodID == nil {
			methodID = live.PaymentMethodID
		}
		end := live.Extended(uc.periods.Of(product.Period))
		ok, err := uc.subs.Renew(ctx, tx, live.ID, end, methodID)
		if err != nil {
			return nil, false, fmt.Errorf("extend subscription: %w", err)
		}
		if !ok {
			return nil, false, domain.ErrSubscriptionNotActive
		}
		live.EndDate, live.Status, live.PaymentMethodID = end, model.SubscriptionStatusActive, methodID
		metrics.IncSubscriptionTransition(model.SubscriptionStatusActive, "purchase")
		return live, true, nil

	case errors.Is(err, domain.ErrNotFound):
		up, err := model.NewUserProduct(userID, product, uc.periods, methodID, now)
		if err != nil {
			return nil, false, err
		}
		if err := uc.subs.Save(ctx, tx, up); err != nil {
			return nil, false, fmt.Errorf("create subscription: %w", err)
		}
		metrics.IncSubscriptionTransition(model.SubscriptionStatusActive, "purchase")
		uc.log.Info().Str("user_product_id", up.ID).Str("product_id", product.ID).Msg("subscription activated")
		return up, false, nil

	default:
		return nil, false, fmt.Errorf("find live subscription: %w", err)
	}
}

// Renew extends up by one period and attaches methodID. It reports false when the
// subscription stopped being live in the meantime.
func (uc *SubscriptionUseCase) Renew(ctx context.Context, tx repository.Tx, up *model.UserProduct, product *model.Product, methodID *string) (bool, error) {
	if err := uc.subs.Lock(ctx, tx, up.UserID, up.ProductID); err != nil {
		return false, fmt.Errorf("lock subscription: %w", err)
	}
	fresh, err := uc.subs.FindByID(ctx, tx, up.ID)
	if err != nil {
		return false, fmt.Errorf("reload subscription: %w", err)
	}
	if !fresh.Status.IsLive() {
		*up = *fresh
		return false, nil
	}
	if methodID == nil {
		methodID = fresh.PaymentMethodID
	}
	end := fresh.Extended(uc.periods.Of(product.Period))
	ok, err := uc.subs.Renew(ctx, tx, fresh.ID, end, methodID)
	if err != nil {
		return false, fmt.Errorf("renew subscription: %w", err)
	}
	if !ok {
		return false, nil
	}
	*up = *fresh
	up.EndDate, up.Status, up.PaymentMethodID = end, model.SubscriptionStatusActive, methodID
	metrics.IncSubscriptionTransition(model.SubscriptionStatusActive, "renewal")
	return true, nil
}

// FailRenewal applies the grace rule after every card failed. changed is false when
// the subscription already was in the resulting state or is no longer live.
func (uc *SubscriptionUseCase) FailRenewal(ctx context.Context, tx repository.Tx, up *model.UserProduct, now time.Time) (model.SubscriptionStatus, bool, error) {
	if err := uc.subs.Lock(ctx, tx, up.UserID, up.ProductID); err != nil {
		return "", false, fmt.Errorf("lock subscription: %w", err)
	}
	fresh, err := uc.subs.FindByID(ctx, tx, up.ID)
	if err != nil {
		return "", false, fmt.Errorf("reload subscription: %w", err)
	}
	*up = *fresh
	if !fresh.Status.IsLive() {
		return fresh.Status, false, nil
	}
	to := fresh.AfterFailedRenewal(now, uc.grace)
	if !fresh.Status.CanTransitionTo(to) || to == fresh.Status {
		return fresh.Status, false, nil
	}
	ok, err := uc.subs.TransitionStatus(ctx, tx, fresh.ID, to, []model.SubscriptionStatus{fresh.Status})
	if err != nil {
		return "", false, fmt.Errorf("transition subscription: %w", err)
	}
	if !ok {
		return fresh.Status, false, nil
	}
	up.Status = to
	metrics.IncSubscriptionTransition(to, "renewal_failed")
	return to, true, nil
}

// Cancel forces a live subscription to cancelled. It is a no-op on history rows.
// The pair is resolved outside the transaction so the advisory lock is taken before
// any row lock, in the same order as every other transition.
func (uc *SubscriptionUseCase) Cancel(ctx context.Context, tx repository.Tx, userProductID, trigger string) (bool, error) {
	up, err := uc.subs.FindByID(ctx, repository.NoTX, userProductID)
	if err != nil {
		return false, fmt.Errorf("load subscription: %w", err)
	}
	if err := uc.subs.Lock(ctx, tx, up.UserID, up.ProductID); err != nil {
		return false, fmt.Errorf("lock subscription: %w", err)
	}
	ok, err := uc.subs.TransitionStatus(ctx, tx, up.ID, model.SubscriptionStatusCancelled, model.LiveStatuses)
	if err != nil {
		return false, fmt.Errorf("cancel subscription: %w", err)
	}
	if ok {
		metrics.IncSubscriptionTransition(model.SubscriptionStatusCancelled, trigger)
		uc.log.Info().Str("user_product_id", up.ID).Str("trigger", trigger).Msg("subscription cancelled")
	}
	return ok, nil
}
