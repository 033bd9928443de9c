package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"subscription-billing/internal/domain/model"
	"subscription-billing/internal/domain/ports/adapter"
	"subscription-billing/internal/domain/ports/repository"
	ucport "subscription-billing/internal/domain/ports/usecase"
)

var _ ucport.PaymentReconciler = (*ReconcileUseCase)(nil)

// ReconcileUseCase polls the provider for orders whose callback never arrived
// and finishes settlements that were interrupted after confirmation.
type ReconcileUseCase struct {
	st      Stores
	gateway adapter.PaymentGateway
	webhook *WebhookUseCase
	policy  Policy
	log     *zerolog.Logger
}

func NewReconcileUseCase(st Stores, gateway adapter.PaymentGateway, webhook *WebhookUseCase, policy Policy, logger *zerolog.Logger) *ReconcileUseCase {
	l := logger.With().Str("component", "reconciler").Logger()
	return &ReconcileUseCase{st: st, gateway: gateway, webhook: webhook, policy: policy, log: &l}
}

func (uc *ReconcileUseCase) ReconcileStale(ctx context.Context) (ucport.ReconcileSummary, error) {
	var sum ucport.ReconcileSummary
	cutoff := time.Now().Add(-uc.policy.StaleAfter)

	stale, err := uc.st.Orders.ListStale(ctx, repository.NoTX, cutoff, uc.policy.ReconcileBatch)
	if err != nil {
		return sum, fmt.Errorf("list stale orders: %w", err)
	}
	for _, o := range stale {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		sum.Checked++
		if err := uc.pollOne(ctx, o, &sum); err != nil {
			sum.Failed++
			uc.log.Warn().Err(err).Str("order_ref", o.OrderRef).Msg("stale order not reconciled")
		}
	}

	unsettled, err := uc.st.Orders.ListUnsettled(ctx, repository.NoTX, cutoff, uc.policy.ReconcileBatch)
	if err != nil {
		return sum, fmt.Errorf("list unsettled orders: %w", err)
	}
	for _, o := range unsettled {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		s, err := uc.webhook.Settle(ctx, o.ID)
		if err != nil {
			sum.Failed++
			uc.log.Error().Err(err).Str("order_ref", o.OrderRef).Msg("settlement retry failed")
			continue
		}
		if s != nil {
			sum.Settled++
		}
	}

	if sum.Checked > 0 || sum.Settled > 0 || sum.Failed > 0 {
		uc.log.Info().Int("checked", sum.Checked).Int("captured", sum.Captured).
			Int("settled", sum.Settled).Int("failed", sum.Failed).Msg("reconcile pass finished")
	}
	return sum, nil
}

func (uc *ReconcileUseCase) pollOne(ctx context.Context, o *model.Order, sum *ucport.ReconcileSummary) error {
	ppid := deref(o.ProviderPaymentID)
	if ppid == "" {
		return nil
	}
	res := uc.gateway.QueryStatus(ctx, ppid)
	if !res.Success {
		return fmt.Errorf("query status: %s", firstNonEmpty(res.Message, res.ErrorCode, "unknown error"))
	}

	status := model.ParseOrderStatus(res.Status)
	if status == model.OrderStatusAuthorized {
		amount := o.Amount
		captured := uc.gateway.Confirm(ctx, ppid, &amount)
		if !captured.Success {
			return fmt.Errorf("confirm: %s", firstNonEmpty(captured.Message, captured.ErrorCode, "unknown error"))
		}
		sum.Captured++
		status = model.ParseOrderStatus(firstNonEmpty(captured.Status, string(model.OrderStatusConfirmed)))
	}
	if status == o.Status || !status.IsTerminal() {
		return nil
	}

	n := &adapter.PaymentNotification{
		OrderRef:          o.OrderRef,
		ProviderPaymentID: ppid,
		Status:            string(status),
		Success:           !status.IsFailure(),
		AmountMinor:       model.MinorUnits(o.Amount, uc.policy.MinorUnitExponent),
		ErrorCode:         res.ErrorCode,
	}
	_, err := uc.webhook.Reconcile(ctx, n)
	return err
}
