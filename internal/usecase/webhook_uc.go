// File: internal/usecase/webhook_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"subscription-billing/internal/domain"
	"subscription-billing/internal/domain/model"
	"subscription-billing/internal/domain/ports/adapter"
	"subscription-billing/internal/domain/ports/repository"
	"subscription-billing/internal/infra/logging"
	"subscription-billing/internal/infra/metrics"
)

// WebhookOutcome classifies one provider callback; it never changes the HTTP answer.
type WebhookOutcome string

const (
	OutcomeProcessed        WebhookOutcome = "processed"
	OutcomeDuplicate        WebhookOutcome = "duplicate"
	OutcomeUnknownOrder     WebhookOutcome = "unknown_order"
	OutcomeInvalidSignature WebhookOutcome = "invalid_signature"
	OutcomeMalformed        WebhookOutcome = "malformed"
	OutcomeError            WebhookOutcome = "error"
)

// WebhookUseCase maps provider callbacks onto orders, payments and subscriptions.
type WebhookUseCase struct {
	tm       repository.TransactionManager
	st       Stores
	gateway  adapter.PaymentGateway
	settler  *Settler
	events   adapter.EventPublisher
	dedup    adapter.DedupStore
	verify   bool
	dedupTTL time.Duration
	exponent int32
	log      *zerolog.Logger
}

// NewWebhookUseCase builds the reconciler. dedup may be nil.
func NewWebhookUseCase(tm repository.TransactionManager, st Stores, gateway adapter.PaymentGateway, settler *Settler,
	events adapter.EventPublisher, dedup adapter.DedupStore, policy Policy, logger *zerolog.Logger) *WebhookUseCase {
	l := logger.With().Str("component", "webhook").Logger()
	return &WebhookUseCase{
		tm:       tm,
		st:       st,
		gateway:  gateway,
		settler:  settler,
		events:   events,
		dedup:    dedup,
		verify:   policy.VerifyNotifications,
		exponent: policy.MinorUnitExponent,
		dedupTTL: policy.DedupTTL,
		log:      &l,
	}
}

func dedupKey(n *adapter.PaymentNotification) string {
	return "webhook:" + n.OrderRef + ":" + n.ProviderPaymentID + ":" + n.Status
}

// HandleNotification processes a raw callback body. Only internal failures are
// returned as errors; the caller acknowledges the provider either way.
func (uc *WebhookUseCase) HandleNotification(ctx context.Context, body []byte) (WebhookOutcome, error) {
	n, err := uc.gateway.ParseNotification(body)
	if err != nil {
		uc.log.Warn().Err(err).Msg("malformed notification dropped")
		return OutcomeMalformed, nil
	}
	if uc.verify && !uc.gateway.VerifyNotification(n) {
		uc.log.Warn().Str("order_ref", n.OrderRef).Msg("notification with invalid signature dropped")
		return OutcomeInvalidSignature, nil
	}

	key := dedupKey(n)
	if uc.dedup != nil {
		if seen, err := uc.dedup.Seen(ctx, key); err == nil && seen {
			return OutcomeDuplicate, nil
		}
	}

	outcome, err := uc.Reconcile(ctx, n)
	if err == nil && uc.dedup != nil && outcome != OutcomeUnknownOrder {
		if err := uc.dedup.Mark(ctx, key, uc.dedupTTL); err != nil {
			uc.log.Debug().Err(err).Msg("failed to mark notification as seen")
		}
	}
	return outcome, err
}

// Reconcile applies one provider status to its order. The status write commits on
// its own; settlement of a confirmed order runs in a second transaction so a failed
// side effect never loses the financial fact.
func (uc *WebhookUseCase) Reconcile(ctx context.Context, n *adapter.PaymentNotification) (WebhookOutcome, error) {
	defer logging.TraceDuration(uc.log, "WebhookUseCase.Reconcile")()
	ctx = logging.WithOrderRef(ctx, n.OrderRef)
	log := logging.With(ctx, uc.log)

	status := model.ParseOrderStatus(n.Status)
	if status == "" {
		return OutcomeMalformed, nil
	}

	var (
		order    *model.Order
		payment  *model.Payment
		advanced bool
	)
	err := uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		o, err := uc.st.Orders.FindByRef(ctx, tx, n.OrderRef)
		if err != nil {
			return err
		}
		order = o
		if !o.AmountMatches(n.AmountMinor, uc.exponent) {
			metrics.IncWebhookAmountMismatch()
			log.Warn().Int64("reported_minor", n.AmountMinor).Str("order_amount", o.Amount.String()).
				Str("status", n.Status).Msg("notification amount differs from the order")
		}
		p, err := uc.st.Payments.FindByOrderID(ctx, tx, o.ID)
		if err != nil {
			return fmt.Errorf("load payment: %w", err)
		}
		payment = p

		if n.ProviderPaymentID != "" && deref(o.ProviderPaymentID) != n.ProviderPaymentID && o.Status.CanAdvanceTo(status) {
			if err := uc.st.Orders.SetProviderPayment(ctx, tx, o.ID, n.ProviderPaymentID, o.PaymentURL); err != nil {
				return fmt.Errorf("set provider payment: %w", err)
			}
			o.ProviderPaymentID = strPtr(n.ProviderPaymentID)
		}
		advanced, err = uc.settler.advance(ctx, tx, o, p, status, paymentUpdateFrom(n, status))
		return err
	})
	if errors.Is(err, domain.ErrNotFound) && order == nil {
		log.Info().Str("status", n.Status).Msg("notification for unknown order acknowledged")
		return OutcomeUnknownOrder, nil
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to apply notification")
		return OutcomeError, err
	}

	kind := string(order.Kind)
	switch {
	case status.IsSuccess():
		if advanced {
			metrics.IncPayment(kind, "confirmed")
			metrics.AddPaymentRevenue(order.Currency, order.Amount)
			publish(ctx, uc.events, uc.log, adapter.EventPaymentConfirmed, orderPayload(order))
		}
		if !order.Status.IsSuccess() {
			return OutcomeDuplicate, nil
		}
		s, err := uc.settler.Settle(ctx, order.ID)
		if err != nil {
			log.Error().Err(err).Msg("settlement failed; order stays confirmed for the reconciler")
			return OutcomeError, err
		}
		if advanced || s != nil {
			return OutcomeProcessed, nil
		}
		return OutcomeDuplicate, nil

	case status.IsFailure():
		if !advanced {
			return OutcomeDuplicate, nil
		}
		metrics.IncPayment(kind, "failed")
		publish(ctx, uc.events, uc.log, adapter.EventPaymentFailed, orderPayload(order))
		log.Info().Str("status", string(status)).Str("error_code", n.ErrorCode).Msg("payment failed")
		return OutcomeProcessed, nil

	case status.IsReversal():
		if !advanced {
			return OutcomeDuplicate, nil
		}
		metrics.IncPayment(kind, "reversed")
		if order.UserID != nil {
			ref := firstNonEmpty(n.ProviderPaymentID, deref(payment.ProviderRef))
			err := uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
				return uc.settler.recordRefund(ctx, tx, *order.UserID, payment, ref)
			})
			if err != nil {
				log.Error().Err(err).Msg("failed to record refund")
			}
		}
		return OutcomeProcessed, nil

	default:
		if !advanced {
			return OutcomeDuplicate, nil
		}
		return OutcomeProcessed, nil
	}
}

// Settle reruns the side effects of a confirmed order. Used for orders whose
// settlement did not complete.
func (uc *WebhookUseCase) Settle(ctx context.Context, orderID string) (*Settlement, error) {
	return uc.settler.Settle(ctx, orderID)
}

func paymentUpdateFrom(n *adapter.PaymentNotification, status model.OrderStatus) model.PaymentUpdate {
	upd := model.PaymentUpdate{
		ProviderRef: strPtr(n.ProviderPaymentID),
		ReceiptURL:  strPtr(n.ReceiptURL),
	}
	if status.IsSuccess() {
		upd.CardToken = strPtr(n.RebillID)
		upd.CardID = strPtr(n.CardID)
		upd.CardPan = strPtr(model.MaskPAN(n.Pan))
		upd.CardExp = strPtr(n.ExpDate)
	}
	if status.IsFailure() {
		upd.FailureReason = strPtr(firstNonEmpty(n.ErrorCode, string(status)))
	}
	return upd
}

func orderPayload(o *model.Order) map[string]any {
	return map[string]any{
		"order_id":  o.ID,
		"order_ref": o.OrderRef,
		"kind":      string(o.Kind),
		"status":    string(o.Status),
		"amount":    o.Amount.String(),
		"currency":  o.Currency,
	}
}
