package usecase

import (
	"context"

	"subscription-billing/internal/domain/model"
	"subscription-billing/internal/domain/ports/repository"
	"subscription-billing/internal/infra/metrics"
)

type StatsUseCase struct {
	subs repository.UserProductRepository
}

func NewStatsUseCase(subs repository.UserProductRepository) *StatsUseCase {
	return &StatsUseCase{subs: subs}
}

// SubscriptionCounts reports subscriptions per status and refreshes the gauge.
func (uc *StatsUseCase) SubscriptionCounts(ctx context.Context) (map[model.SubscriptionStatus]int, error) {
	counts, err := uc.subs.CountByStatus(ctx, repository.NoTX)
	if err != nil {
		return nil, err
	}
	metrics.SetSubscriptionsTotal(counts)
	return counts, nil
}
