package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"subscription-billing/internal/domain"
	"subscription-billing/internal/domain/model"
	"subscription-billing/internal/domain/ports/adapter"
	"subscription-billing/internal/domain/ports/repository"
	"subscription-billing/internal/infra/metrics"
)

type CheckoutInput struct {
	ProductID  string
	Email      string
	Name       string
	Phone      string
	ReferrerID string
	SaveCard   bool
}

type CheckoutResult struct {
	OrderID           string          `json:"order_id"`
	OrderRef          string          `json:"order_ref"`
	ProviderPaymentID string          `json:"provider_payment_id"`
	PaymentURL        string          `json:"payment_url"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
}

// ProviderError carries the provider's refusal back to the caller.
type ProviderError struct {
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", domain.ErrProviderFailure.Error(), e.Message, e.Code)
}

func (e *ProviderError) Unwrap() error { return domain.ErrProviderFailure }

// CheckoutUseCase starts purchases and card bindings at the provider.
type CheckoutUseCase struct {
	tm      repository.TransactionManager
	st      Stores
	gateway adapter.PaymentGateway
	policy  Policy
	log     *zerolog.Logger
}

func NewCheckoutUseCase(tm repository.TransactionManager, st Stores, gateway adapter.PaymentGateway, policy Policy, logger *zerolog.Logger) *CheckoutUseCase {
	l := logger.With().Str("component", "checkout").Logger()
	return &CheckoutUseCase{tm: tm, st: st, gateway: gateway, policy: policy, log: &l}
}

// NewOrderRef returns a sortable external order reference.
func NewOrderRef() string { return "ORD-" + ulid.Make().String() }

// customerKeyFor identifies a payer that has no account yet.
func customerKeyFor(email string) string {
	sum := sha256.Sum256([]byte(model.NormalizeEmail(email)))
	return "user_" + hex.EncodeToString(sum[:8])
}

// Checkout creates the order and its payment, then asks the provider for a payment page.
func (uc *CheckoutUseCase) Checkout(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	product, err := uc.st.Products.FindByID(ctx, repository.NoTX, in.ProductID)
	if err != nil {
		return nil, fmt.Errorf("load product: %w", err)
	}
	if !product.Active {
		return nil, fmt.Errorf("product %s is not on sale: %w", product.ID, domain.ErrNotFound)
	}

	customer := model.CustomerSnapshot{Email: in.Email, Name: strings.TrimSpace(in.Name), Phone: strings.TrimSpace(in.Phone)}
	o, err := model.NewOrder(NewOrderRef(), model.OrderKindPurchase, product.Price, product.Currency, customer)
	if err != nil {
		return nil, err
	}
	o.ProductID = &product.ID
	o.SaveCard = in.SaveCard
	o.Description = product.Name

	customerKey := customerKeyFor(o.Customer.Email)
	if u, err := uc.st.Users.FindByEmail(ctx, repository.NoTX, o.Customer.Email); err == nil {
		o.UserID = &u.ID
		customerKey = u.CustomerKey()
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if ref := strings.TrimSpace(in.ReferrerID); ref != "" && ref != deref(o.UserID) {
		if _, err := uc.st.Users.FindByID(ctx, repository.NoTX, ref); err == nil {
			o.ReferrerID = &ref
		} else {
			uc.log.Warn().Str("referrer_id", ref).Msg("unknown referrer ignored")
		}
	}

	req := adapter.PaymentRequest{
		Amount:      o.Amount,
		OrderRef:    o.OrderRef,
		Description: product.Name,
		ItemName:    product.Name,
		Customer:    adapter.Customer{Email: o.Customer.Email, Phone: o.Customer.Phone, Name: o.Customer.Name, CustomerKey: customerKey},
		Recurring:   product.IsSubscription() || in.SaveCard,
	}
	return uc.start(ctx, o, req)
}

// BindCard starts a small recurring-enabled charge that registers a card and is
// reversed once confirmed.
func (uc *CheckoutUseCase) BindCard(ctx context.Context, userID string) (*CheckoutResult, error) {
	u, err := uc.st.Users.FindByID(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	ref := "card_bind_" + u.ID + "_" + suffix
	customer := model.CustomerSnapshot{Email: u.Email, Name: u.Name, Phone: u.Phone}
	o, err := model.NewOrder(ref, model.OrderKindCardBinding, uc.policy.CardBindingAmount, uc.policy.Currency, customer)
	if err != nil {
		return nil, err
	}
	o.UserID = &u.ID
	o.SaveCard = true
	o.Description = "Card binding"

	req := adapter.PaymentRequest{
		Amount:      o.Amount,
		OrderRef:    o.OrderRef,
		Description: "Card binding",
		ItemName:    "Card binding",
		Customer:    adapter.Customer{Email: u.Email, Phone: u.Phone, Name: u.Name, CustomerKey: u.CustomerKey()},
		Recurring:   true,
	}
	return uc.start(ctx, o, req)
}

func (uc *CheckoutUseCase) start(ctx context.Context, o *model.Order, req adapter.PaymentRequest) (*CheckoutResult, error) {
	p, err := model.NewPayment(o.ID, uc.gateway.Name(), o.Amount, o.Currency)
	if err != nil {
		return nil, err
	}
	p.UserID = o.UserID

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
		return nil, err
	}

	res := uc.gateway.InitPayment(ctx, req)
	kind := string(o.Kind)
	if !res.Success {
		metrics.IncPayment(kind, "init_failed")
		reason := firstNonEmpty(res.Message, res.ErrorCode)
		err := uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			if err := uc.st.Orders.UpdateStatus(ctx, tx, o.ID, model.OrderStatusRejected); err != nil {
				return err
			}
			_, err := uc.st.Payments.TransitionStatus(ctx, tx, p.ID, model.PaymentStatusFailed,
				[]model.PaymentStatus{model.PaymentStatusPending}, model.PaymentUpdate{FailureReason: &reason})
			return err
		})
		if err != nil {
			uc.log.Error().Err(err).Str("order_ref", o.OrderRef).Msg("failed to record init failure")
		}
		uc.log.Warn().Str("order_ref", o.OrderRef).Str("error_code", res.ErrorCode).Msg("provider refused payment init")
		return nil, &ProviderError{Code: res.ErrorCode, Message: reason}
	}

	paymentURL := strPtr(res.RedirectURL)
	err = uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := uc.st.Orders.SetProviderPayment(ctx, tx, o.ID, res.ProviderPaymentID, paymentURL); err != nil {
			return err
		}
		_, err := uc.st.Payments.TransitionStatus(ctx, tx, p.ID, model.PaymentStatusPending,
			[]model.PaymentStatus{model.PaymentStatusPending}, model.PaymentUpdate{ProviderRef: strPtr(res.ProviderPaymentID)})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("store provider payment: %w", err)
	}
	metrics.IncPayment(kind, "initiated")
	uc.log.Info().Str("order_ref", o.OrderRef).Str("provider_payment_id", res.ProviderPaymentID).Msg("payment initiated")

	return &CheckoutResult{
		OrderID:           o.ID,
		OrderRef:          o.OrderRef,
		ProviderPaymentID: res.ProviderPaymentID,
		PaymentURL:        res.RedirectURL,
		Amount:            o.Amount,
		Currency:          o.Currency,
	}, nil
}

// PaymentStatus asks the provider for the current state of a payment.
func (uc *CheckoutUseCase) PaymentStatus(ctx context.Context, providerPaymentID string) (adapter.Result, error) {
	if strings.TrimSpace(providerPaymentID) == "" {
		return adapter.Result{}, domain.ErrInvalidArgument
	}
	return uc.gateway.QueryStatus(ctx, providerPaymentID), nil
}
