// File: internal/usecase/billing_uc.go
package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"subscription-billing/internal/domain/model"
	"subscription-billing/internal/domain/ports/adapter"
	"subscription-billing/internal/domain/ports/repository"
	ucport "subscription-billing/internal/domain/ports/usecase"
	"subscription-billing/internal/infra/logging"
	"subscription-billing/internal/infra/metrics"
)

var _ ucport.RecurringBilling = (*BillingUseCase)(nil)

type renewalOutcome string

const (
	renewalRenewed renewalOutcome = "renewed"
	renewalGrace   renewalOutcome = "grace"
	renewalExpired renewalOutcome = "expired"
	renewalFailed  renewalOutcome = "failed"
	renewalError   renewalOutcome = "error"
)

// BillingUseCase charges due subscriptions against their saved cards.
type BillingUseCase struct {
	tm      repository.TransactionManager
	st      Stores
	gateway adapter.PaymentGateway
	subs    *SubscriptionUseCase
	settler *Settler
	notes   *NotificationUseCase
	events  adapter.EventPublisher
	policy  Policy
	log     *zerolog.Logger
}

func NewBillingUseCase(tm repository.TransactionManager, st Stores, gateway adapter.PaymentGateway, subs *SubscriptionUseCase,
	settler *Settler, notes *NotificationUseCase, events adapter.EventPublisher, policy Policy, logger *zerolog.Logger) *BillingUseCase {
	l := logger.With().Str("component", "recurring_billing").Logger()
	return &BillingUseCase{tm: tm, st: st, gateway: gateway, subs: subs, settler: settler, notes: notes, events: events, policy: policy, log: &l}
}

// RunRenewals is one best-effort pass over due subscriptions. Items fail in isolation;
// only the selection query can fail the pass.
func (uc *BillingUseCase) RunRenewals(ctx context.Context, opts ucport.RenewalOptions) (ucport.RenewalSummary, error) {
	defer logging.TraceDuration(uc.log, "BillingUseCase.RunRenewals")()
	var sum ucport.RenewalSummary

	now := time.Now()
	lookahead := uc.policy.Lookahead
	if opts.DaysAhead > 0 {
		lookahead = time.Duration(opts.DaysAhead) * 24 * time.Hour
	}
	due, err := uc.st.Subscriptions.ListDueForRenewal(ctx, repository.NoTX, now.Add(lookahead), uc.policy.RenewalBatch)
	if err != nil {
		return sum, fmt.Errorf("select due subscriptions: %w", err)
	}
	sum.Selected = len(due)

	for _, up := range due {
		if ctx.Err() != nil {
			uc.log.Warn().Err(ctx.Err()).Msg("renewal pass interrupted")
			break
		}
		if opts.DryRun {
			sum.Skipped++
			uc.log.Info().
				Str("user_product_id", up.ID).
				Time("end_date", up.EndDate).
				Str("amount", up.RenewalPrice.String()).
				Msg("skipped (dry run)")
			continue
		}

		outcome := uc.renewOne(ctx, up, now)
		metrics.IncRenewal(string(outcome))
		switch outcome {
		case renewalRenewed:
			sum.Succeeded++
		case renewalGrace:
			sum.Failed++
			sum.Grace++
		case renewalExpired:
			sum.Failed++
			sum.Expired++
		default:
			sum.Failed++
		}
	}

	uc.log.Info().
		Bool("dry_run", opts.DryRun).
		Int("selected", sum.Selected).
		Int("succeeded", sum.Succeeded).
		Int("failed", sum.Failed).
		Int("skipped", sum.Skipped).
		Int("grace", sum.Grace).
		Int("expired", sum.Expired).
		Msg("renewal pass finished")
	return sum, nil
}

func (uc *BillingUseCase) renewOne(ctx context.Context, up *model.UserProduct, now time.Time) (outcome renewalOutcome) {
	log := uc.log.With().Str("user_product_id", up.ID).Str("user_id", up.UserID).Logger()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("renewal panicked")
			outcome = renewalError
		}
	}()

	product, err := uc.st.Products.FindByID(ctx, repository.NoTX, up.ProductID)
	if err != nil {
		log.Error().Err(err).Msg("failed to load product")
		return renewalError
	}
	user, err := uc.st.Users.FindByID(ctx, repository.NoTX, up.UserID)
	if err != nil {
		log.Error().Err(err).Msg("failed to load user")
		return renewalError
	}
	cards, err := uc.candidates(ctx, up, now)
	if err != nil {
		log.Error().Err(err).Msg("failed to list payment methods")
		return renewalError
	}

	if len(cards) > 0 {
		o, p, err := uc.openOrder(ctx, up, user, product, now)
		if err != nil {
			log.Error().Err(err).Msg("failed to open renewal order")
			return renewalError
		}
		req := adapter.PaymentRequest{
			Amount:      o.Amount,
			OrderRef:    o.OrderRef,
			Description: "Renewal: " + product.Name,
			ItemName:    product.Name,
			Customer:    adapter.Customer{Email: user.Email, Phone: user.Phone, Name: user.Name, CustomerKey: user.CustomerKey()},
		}
		for i, card := range cards {
			label := "primary"
			if i > 0 {
				label = "alternate"
			}
			res := uc.charge(ctx, card, req)
			if !res.Success {
				metrics.IncRenewalCardAttempt(label, "declined")
				log.Warn().Str("card", card.PanMask).Str("error_code", res.ErrorCode).Msg("renewal charge declined")
				uc.recordDecline(ctx, o, p, res)
				continue
			}
			metrics.IncRenewalCardAttempt(label, "success")
			return uc.completeRenewal(ctx, log, o, p, card, res)
		}
	} else {
		log.Warn().Msg("no usable payment method")
	}

	return uc.failRenewal(ctx, log, up, user, product, now)
}

// candidates orders the attached card first, then the user's other active cards,
// capped at the configured number of attempts.
func (uc *BillingUseCase) candidates(ctx context.Context, up *model.UserProduct, now time.Time) ([]*model.PaymentMethod, error) {
	methods, err := uc.st.Methods.ListActiveByUser(ctx, repository.NoTX, up.UserID)
	if err != nil {
		return nil, err
	}
	out := make([]*model.PaymentMethod, 0, len(methods))
	attached := deref(up.PaymentMethodID)
	for _, m := range methods {
		if m.ID == attached && m.Usable(now) {
			out = append(out, m)
		}
	}
	for _, m := range methods {
		if m.ID != attached && m.Usable(now) {
			out = append(out, m)
		}
	}
	if limit := uc.policy.MaxCardAttempts; limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (uc *BillingUseCase) openOrder(ctx context.Context, up *model.UserProduct, user *model.User, product *model.Product, now time.Time) (*model.Order, *model.Payment, error) {
	ref := model.RecurringOrderRef(uc.policy.RecurringPrefix, up.ID, now)
	customer := model.CustomerSnapshot{Email: user.Email, Name: user.Name, Phone: user.Phone}
	o, err := model.NewOrder(ref, model.OrderKindRecurring, up.RenewalPrice, product.Currency, customer)
	if err != nil {
		return nil, nil, err
	}
	o.UserID, o.ProductID, o.UserProductID = &user.ID, &product.ID, &up.ID
	o.Description = "Renewal: " + product.Name

	p, err := model.NewPayment(o.ID, uc.gateway.Name(), o.Amount, o.Currency)
	if err != nil {
		return nil, nil, err
	}
	p.UserID = &user.ID

	err = uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := uc.st.Orders.Save(ctx, tx, o); err != nil {
			return fmt.Errorf("save order: %w", err)
		}
		if err := uc.st.Payments.Save(ctx, tx, p); err != nil {
			return fmt.Errorf("save payment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return o, p, nil
}

// charge runs an unattended charge and captures a two-stage authorization.
func (uc *BillingUseCase) charge(ctx context.Context, card *model.PaymentMethod, req adapter.PaymentRequest) adapter.Result {
	res := uc.gateway.ChargeBySavedToken(ctx, card.RebillID, req)
	if !res.Success || model.ParseOrderStatus(res.Status) != model.OrderStatusAuthorized {
		return res
	}
	captured := uc.gateway.Confirm(ctx, res.ProviderPaymentID, nil)
	if !captured.Success {
		captured.ProviderPaymentID = firstNonEmpty(captured.ProviderPaymentID, res.ProviderPaymentID)
		return captured
	}
	res.Status = string(model.OrderStatusConfirmed)
	return res
}

func (uc *BillingUseCase) recordDecline(ctx context.Context, o *model.Order, p *model.Payment, res adapter.Result) {
	status := model.ParseOrderStatus(res.Status)
	if !status.IsFailure() {
		status = model.OrderStatusRejected
	}
	reason := firstNonEmpty(res.ErrorCode, res.Message, string(status))
	upd := model.PaymentUpdate{ProviderRef: strPtr(res.ProviderPaymentID), FailureReason: &reason}
	err := uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		_, err := uc.settler.advance(ctx, tx, o, p, status, upd)
		return err
	})
	if err != nil {
		uc.log.Error().Err(err).Str("order_ref", o.OrderRef).Msg("failed to record declined charge")
		return
	}
	metrics.IncPayment(string(o.Kind), "failed")
}

// completeRenewal commits the charge as a financial fact, then settles the order.
func (uc *BillingUseCase) completeRenewal(ctx context.Context, log zerolog.Logger, o *model.Order, p *model.Payment, card *model.PaymentMethod, res adapter.Result) renewalOutcome {
	upd := model.PaymentUpdate{
		ProviderRef: strPtr(res.ProviderPaymentID),
		CardToken:   &card.RebillID,
		CardID:      card.CardID,
		CardPan:     strPtr(card.PanMask),
		CardExp:     strPtr(card.ExpDate),
	}
	err := uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if res.ProviderPaymentID != "" {
			if err := uc.st.Orders.SetProviderPayment(ctx, tx, o.ID, res.ProviderPaymentID, nil); err != nil {
				return fmt.Errorf("set provider payment: %w", err)
			}
			o.ProviderPaymentID = strPtr(res.ProviderPaymentID)
		}
		_, err := uc.settler.advance(ctx, tx, o, p, model.OrderStatusConfirmed, upd)
		return err
	})
	if err != nil {
		// The provider holds the money but the ledger does not know; needs an operator.
		log.Error().Err(err).Str("order_ref", o.OrderRef).Str("provider_payment_id", res.ProviderPaymentID).
			Msg("charge succeeded but could not be recorded")
		return renewalError
	}
	metrics.IncPayment(string(o.Kind), "confirmed")
	metrics.AddPaymentRevenue(o.Currency, o.Amount)
	publish(ctx, uc.events, uc.log, adapter.EventPaymentConfirmed, orderPayload(o))

	s, err := uc.settler.Settle(ctx, o.ID)
	if err != nil {
		log.Error().Err(err).Str("order_ref", o.OrderRef).Msg("renewal settlement failed; left for the reconciler")
		return renewalError
	}
	if s != nil && s.NotLive {
		return renewalFailed
	}
	log.Info().Str("order_ref", o.OrderRef).Str("card", card.PanMask).Msg("subscription renewed")
	return renewalRenewed
}

// failRenewal applies the grace rule once every card failed.
func (uc *BillingUseCase) failRenewal(ctx context.Context, log zerolog.Logger, up *model.UserProduct, user *model.User, product *model.Product, now time.Time) renewalOutcome {
	var (
		status  model.SubscriptionStatus
		changed bool
	)
	err := uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		var err error
		status, changed, err = uc.subs.FailRenewal(ctx, tx, up, now)
		return err
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to apply renewal failure")
		return renewalError
	}

	switch status {
	case model.SubscriptionStatusPending:
		graceEnds := up.EndDate.Add(uc.subs.GracePeriod())
		uc.notes.PaymentFailed(ctx, user, product, up, graceEnds)
		if changed {
			publish(ctx, uc.events, uc.log, adapter.EventSubscriptionGrace, subscriptionPayload(up))
		}
		log.Warn().Time("grace_ends", graceEnds).Msg("renewal failed; subscription in grace")
		return renewalGrace
	case model.SubscriptionStatusExpired:
		if changed {
			uc.notes.Suspended(ctx, user, product)
			publish(ctx, uc.events, uc.log, adapter.EventSubscriptionExpired, subscriptionPayload(up))
		}
		log.Warn().Msg("renewal failed; subscription expired")
		return renewalExpired
	default:
		log.Info().Str("status", string(status)).Msg("subscription left its renewal state meanwhile")
		return renewalFailed
	}
}
