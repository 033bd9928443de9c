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

var errAlreadySettled = errors.New("order already settled")

// Settlement is what one confirmed order produced.
type Settlement struct {
	Order        *model.Order
	Payment      *model.Payment
	User         *model.User
	UserCreated  bool
	Product      *model.Product
	Subscription *model.UserProduct
	Renewed      bool
	// NotLive marks a renewal charge whose subscription was cancelled or expired meanwhile.
	NotLive    bool
	Method     *model.PaymentMethod
	Commission *model.ReferralCommission
}

// Settler moves orders through their status and applies the side effects of a
// confirmed order exactly once. Webhooks, renewals and the stale-order job share it.
type Settler struct {
	tm       repository.TransactionManager
	st       Stores
	gateway  adapter.PaymentGateway
	subs     *SubscriptionUseCase
	referral *ReferralUseCase
	notes    *NotificationUseCase
	events   adapter.EventPublisher
	log      *zerolog.Logger
}

func NewSettler(tm repository.TransactionManager, st Stores, gateway adapter.PaymentGateway, subs *SubscriptionUseCase,
	referral *ReferralUseCase, notes *NotificationUseCase, events adapter.EventPublisher, logger *zerolog.Logger) *Settler {
	l := logger.With().Str("component", "settlement").Logger()
	return &Settler{tm: tm, st: st, gateway: gateway, subs: subs, referral: referral, notes: notes, events: events, log: &l}
}

// advance records a provider status on the order and its payment. Order moves follow
// OrderStatus.CanAdvanceTo; payment moves are guarded by their source states. The
// returned flag tells whether the order status changed.
func (s *Settler) advance(ctx context.Context, tx repository.Tx, o *model.Order, p *model.Payment, status model.OrderStatus, upd model.PaymentUpdate) (bool, error) {
	advanced := o.Status.CanAdvanceTo(status)
	if advanced {
		if err := s.st.Orders.UpdateStatus(ctx, tx, o.ID, status); err != nil {
			return false, fmt.Errorf("update order status: %w", err)
		}
		o.Status = status
	}

	var (
		to   model.PaymentStatus
		from []model.PaymentStatus
	)
	switch {
	case status.IsSuccess():
		to, from = model.PaymentStatusSuccess, []model.PaymentStatus{model.PaymentStatusPending, model.PaymentStatusFailed}
		if upd.PaidAt == nil {
			now := time.Now()
			upd.PaidAt = &now
		}
	case status.IsFailure():
		to, from = model.PaymentStatusFailed, []model.PaymentStatus{model.PaymentStatusPending, model.PaymentStatusFailed}
	case status.IsReversal():
		to, from = model.PaymentStatusRefunded, []model.PaymentStatus{model.PaymentStatusSuccess}
	default:
		return advanced, nil
	}
	ok, err := s.st.Payments.TransitionStatus(ctx, tx, p.ID, to, from, upd)
	if err != nil {
		return false, fmt.Errorf("update payment status: %w", err)
	}
	if ok {
		p.Status = to
		applyPaymentUpdate(p, upd)
	}
	return advanced, nil
}

func applyPaymentUpdate(p *model.Payment, upd model.PaymentUpdate) {
	set := func(dst **string, v *string) {
		if v != nil {
			*dst = v
		}
	}
	set(&p.ProviderRef, upd.ProviderRef)
	set(&p.FailureReason, upd.FailureReason)
	set(&p.ReceiptURL, upd.ReceiptURL)
	set(&p.CardToken, upd.CardToken)
	set(&p.CardID, upd.CardID)
	set(&p.CardPan, upd.CardPan)
	set(&p.CardExp, upd.CardExp)
	if upd.PaidAt != nil {
		p.PaidAt = upd.PaidAt
	}
}

// Settle applies the side effects of a confirmed order in one transaction and runs
// the post-commit steps. A nil Settlement means the order had been settled before.
func (s *Settler) Settle(ctx context.Context, orderID string) (*Settlement, error) {
	var out *Settlement
	err := s.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		res, err := s.settleTx(ctx, tx, orderID, time.Now())
		out = res
		return err
	})
	if errors.Is(err, errAlreadySettled) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.finish(ctx, out)
	return out, nil
}

// settleTx claims the order through its ledger entry; a replay finds the entry and
// stops before touching anything else.
func (s *Settler) settleTx(ctx context.Context, tx repository.Tx, orderID string, now time.Time) (*Settlement, error) {
	o, err := s.st.Orders.FindByID(ctx, tx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	if !o.Status.IsSuccess() {
		return nil, fmt.Errorf("order %s is %s: %w", o.OrderRef, o.Status, domain.ErrInvalidArgument)
	}
	p, err := s.st.Payments.FindByOrderID(ctx, tx, o.ID)
	if err != nil {
		return nil, fmt.Errorf("load payment: %w", err)
	}
	out := &Settlement{Order: o, Payment: p}

	if o.ProductID != nil {
		if out.Product, err = s.st.Products.FindByID(ctx, tx, *o.ProductID); err != nil {
			return nil, fmt.Errorf("load product: %w", err)
		}
	}
	if out.User, out.UserCreated, err = s.resolveUser(ctx, tx, o); err != nil {
		return nil, err
	}

	ref := firstNonEmpty(deref(p.ProviderRef), deref(o.ProviderPaymentID), o.OrderRef)
	entry, err := model.NewTransaction(model.TransactionPayment, out.User.ID, p, ref, ledgerDescription(o, out.Product))
	if err != nil {
		return nil, err
	}
	created, err := s.st.Transactions.Append(ctx, tx, entry)
	if err != nil {
		return nil, fmt.Errorf("append transaction: %w", err)
	}
	if !created {
		return nil, errAlreadySettled
	}

	var methodID *string
	if wantsCard(o, out.Product) && p.CardToken != nil {
		if out.Method, err = s.saveCard(ctx, tx, out.User.ID, p); err != nil {
			return nil, err
		}
		methodID = &out.Method.ID
	}

	switch {
	case o.Kind == model.OrderKindRecurring && o.UserProductID != nil && out.Product != nil:
		// Renew locks the pair and re-reads the row itself.
		up, err := s.st.Subscriptions.FindByID(ctx, repository.NoTX, *o.UserProductID)
		if err != nil {
			return nil, fmt.Errorf("load subscription: %w", err)
		}
		ok, err := s.subs.Renew(ctx, tx, up, out.Product, methodID)
		if err != nil {
			return nil, err
		}
		out.Subscription, out.Renewed, out.NotLive = up, ok, !ok
	case o.Kind != model.OrderKindCardBinding && out.Product.IsSubscription():
		if out.Subscription, out.Renewed, err = s.subs.Activate(ctx, tx, out.User.ID, out.Product, methodID, now); err != nil {
			return nil, err
		}
	}

	var upID *string
	if out.Subscription != nil {
		upID = &out.Subscription.ID
	}
	if err := s.st.Orders.AttachUser(ctx, tx, o.ID, out.User.ID, upID); err != nil {
		return nil, fmt.Errorf("attach user: %w", err)
	}

	if o.Kind != model.OrderKindCardBinding && !out.NotLive {
		referrer := o.ReferrerID
		if referrer == nil {
			referrer = out.User.ReferredBy
		}
		if out.Commission, err = s.referral.Accrue(ctx, tx, referrer, out.User.ID, o.ID, o.Amount); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func wantsCard(o *model.Order, p *model.Product) bool {
	return o.Kind == model.OrderKindCardBinding || o.Kind == model.OrderKindRecurring || o.SaveCard || p.IsSubscription()
}

func ledgerDescription(o *model.Order, p *model.Product) string {
	switch o.Kind {
	case model.OrderKindCardBinding:
		return "Card binding " + o.OrderRef
	case model.OrderKindRecurring:
		return "Renewal " + ledgerProduct(p) + " " + o.OrderRef
	default:
		return "Purchase " + ledgerProduct(p) + " " + o.OrderRef
	}
}

func ledgerProduct(p *model.Product) string {
	if p == nil {
		return "subscription"
	}
	return p.Name
}

// resolveUser finds the payer by id or email, creating the account on first payment.
// The referrer is attached only on creation.
func (s *Settler) resolveUser(ctx context.Context, tx repository.Tx, o *model.Order) (*model.User, bool, error) {
	if o.UserID != nil {
		u, err := s.st.Users.FindByID(ctx, tx, *o.UserID)
		if err != nil {
			return nil, false, fmt.Errorf("load user: %w", err)
		}
		return u, false, nil
	}
	u, err := s.st.Users.FindByEmail(ctx, tx, o.Customer.Email)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, fmt.Errorf("find user by email: %w", err)
	}

	u, err = model.NewUser("", o.Customer.Email, o.Customer.Name, o.Customer.Phone, o.ReferrerID)
	if err != nil {
		return nil, false, err
	}
	if err := s.st.Users.Save(ctx, tx, u); err != nil {
		return nil, false, fmt.Errorf("create user: %w", err)
	}
	metrics.IncUsersRegistered()
	return u, true, nil
}

// saveCard upserts the card and its mandate and makes the card the user's default.
func (s *Settler) saveCard(ctx context.Context, tx repository.Tx, userID string, p *model.Payment) (*model.PaymentMethod, error) {
	m, err := model.NewPaymentMethod(userID, p.Provider, *p.CardToken, p.CardID, deref(p.CardPan), deref(p.CardExp))
	if err != nil {
		return nil, err
	}
	if _, err := s.st.Methods.Upsert(ctx, tx, m); err != nil {
		return nil, fmt.Errorf("upsert payment method: %w", err)
	}
	if err := s.st.Methods.SetDefault(ctx, tx, userID, m.ID); err != nil {
		return nil, fmt.Errorf("set default payment method: %w", err)
	}
	m.IsDefault = true

	mandate, err := model.NewMandate(userID, m)
	if err != nil {
		return nil, err
	}
	if _, err := s.st.Mandates.Upsert(ctx, tx, mandate); err != nil {
		return nil, fmt.Errorf("upsert mandate: %w", err)
	}
	return m, nil
}

// finish runs the post-commit steps. None of them can undo the settlement.
func (s *Settler) finish(ctx context.Context, out *Settlement) {
	if out == nil {
		return
	}
	o := out.Order
	log := logging.With(logging.WithOrderRef(ctx, o.OrderRef), s.log)

	switch {
	case o.Kind == model.OrderKindCardBinding:
		s.reverse(ctx, out, model.OrderStatusReversed)
		s.notes.CardBound(ctx, out.User, out.Method)
	case out.NotLive:
		log.Warn().Msg("renewal charged for a subscription that is no longer live; reversing")
		s.reverse(ctx, out, model.OrderStatusCanceled)
	case o.Kind == model.OrderKindRecurring:
		s.notes.RenewalSucceeded(ctx, out.User, out.Product, out.Subscription)
		publish(ctx, s.events, s.log, adapter.EventSubscriptionRenewed, subscriptionPayload(out.Subscription))
	default:
		s.notes.Welcome(ctx, out.User, out.Product, out.Subscription)
		if out.Subscription != nil {
			typ := adapter.EventSubscriptionActivated
			if out.Renewed {
				typ = adapter.EventSubscriptionRenewed
			}
			publish(ctx, s.events, s.log, typ, subscriptionPayload(out.Subscription))
		}
	}

	if c := out.Commission; c != nil {
		metrics.AddReferralCommission(o.Currency, c.CommissionAmount.InexactFloat64())
		publish(ctx, s.events, s.log, adapter.EventCommissionAccrued, map[string]any{
			"referral_id": c.ReferralID,
			"order_id":    c.OrderID,
			"amount":      c.CommissionAmount.String(),
			"currency":    o.Currency,
		})
	}
	log.Info().
		Str("user_id", out.User.ID).
		Bool("user_created", out.UserCreated).
		Bool("renewed", out.Renewed).
		Msg("order settled")
}

// reverse voids the settled charge and records the refund. A provider refusal is
// left for manual follow-up.
func (s *Settler) reverse(ctx context.Context, out *Settlement, orderStatus model.OrderStatus) {
	o, p := out.Order, out.Payment
	ref := firstNonEmpty(deref(p.ProviderRef), deref(o.ProviderPaymentID))
	if ref == "" {
		s.log.Error().Str("order_ref", o.OrderRef).Msg("cannot reverse a charge without provider payment id")
		return
	}
	res := s.gateway.Cancel(ctx, ref, nil)
	if !res.Success {
		s.log.Error().
			Str("order_ref", o.OrderRef).
			Str("error_code", res.ErrorCode).
			Str("message", res.Message).
			Msg("provider refused the reversal; manual refund required")
		return
	}
	err := s.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if o.Status.CanAdvanceTo(orderStatus) {
			if err := s.st.Orders.UpdateStatus(ctx, tx, o.ID, orderStatus); err != nil {
				return fmt.Errorf("update order status: %w", err)
			}
			o.Status = orderStatus
		}
		ok, err := s.st.Payments.TransitionStatus(ctx, tx, p.ID, model.PaymentStatusRefunded,
			[]model.PaymentStatus{model.PaymentStatusSuccess}, model.PaymentUpdate{})
		if err != nil {
			return fmt.Errorf("refund payment: %w", err)
		}
		if ok {
			p.Status = model.PaymentStatusRefunded
		}
		return s.recordRefund(ctx, tx, out.User.ID, p, ref)
	})
	if err != nil {
		s.log.Error().Err(err).Str("order_ref", o.OrderRef).Msg("failed to record reversal")
		return
	}
	metrics.IncPayment(string(o.Kind), "reversed")
}

func (s *Settler) recordRefund(ctx context.Context, tx repository.Tx, userID string, p *model.Payment, ref string) error {
	entry, err := model.NewTransaction(model.TransactionRefund, userID, p, ref, "Refund "+ref)
	if err != nil {
		return err
	}
	if _, err := s.st.Transactions.Append(ctx, tx, entry); err != nil {
		return fmt.Errorf("append refund: %w", err)
	}
	return nil
}

func subscriptionPayload(up *model.UserProduct) map[string]any {
	if up == nil {
		return nil
	}
	return map[string]any{
		"user_product_id": up.ID,
		"user_id":         up.UserID,
		"product_id":      up.ProductID,
		"status":          string(up.Status),
		"end_date":        up.EndDate.UTC().Format(time.RFC3339),
	}
}
