//go:build !integration

package usecase_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"subscription-billing/internal/domain/model"
	"subscription-billing/internal/domain/ports/adapter"
	"subscription-billing/internal/usecase"
)

// testEnv wires the real use cases to in-memory repositories and recording adapters.
type testEnv struct {
	users         *MockUserRepo
	products      *MockProductRepo
	orders        *MockOrderRepo
	payments      *MockPaymentRepo
	methods       *MockPaymentMethodRepo
	mandates      *MockMandateRepo
	ledger        *MockTransactionRepo
	subs          *MockUserProductRepo
	referrals     *MockReferralRepo
	cancellations *MockCancellationRepo

	tm       *MockTxManager
	gateway  *MockGateway
	notifier *MockNotifier
	events   *MockPublisher
	dedup    *MockDedup

	policy usecase.Policy

	subUC     *usecase.SubscriptionUseCase
	settler   *usecase.Settler
	webhook   *usecase.WebhookUseCase
	checkout  *usecase.CheckoutUseCase
	billing   *usecase.BillingUseCase
	cancels   *usecase.CancellationUseCase
	reconcile *usecase.ReconcileUseCase
	stats     *usecase.StatsUseCase
}

func newTestEnv(t *testing.T, tweaks ...func(p *usecase.Policy)) *testEnv {
	t.Helper()
	env := &testEnv{
		users:         NewMockUserRepo(),
		products:      NewMockProductRepo(),
		orders:        NewMockOrderRepo(),
		payments:      NewMockPaymentRepo(),
		methods:       NewMockPaymentMethodRepo(),
		mandates:      NewMockMandateRepo(),
		ledger:        NewMockTransactionRepo(),
		subs:          NewMockUserProductRepo(),
		referrals:     NewMockReferralRepo(),
		cancellations: NewMockCancellationRepo(),
		tm:            NewMockTxManager(),
		gateway:       &MockGateway{},
		notifier:      &MockNotifier{},
		events:        &MockPublisher{},
		dedup:         NewMockDedup(),
		policy:        usecase.DefaultPolicy(),
	}
	for _, tweak := range tweaks {
		tweak(&env.policy)
	}
	env.subs.MethodActive = func(methodID string) bool {
		m, err := env.methods.FindByID(context.Background(), nil, methodID)
		return err == nil && m.Status == model.PaymentMethodActive
	}

	st := usecase.Stores{
		Users:         env.users,
		Products:      env.products,
		Orders:        env.orders,
		Payments:      env.payments,
		Methods:       env.methods,
		Mandates:      env.mandates,
		Transactions:  env.ledger,
		Subscriptions: env.subs,
		Referrals:     env.referrals,
		Cancellations: env.cancellations,
	}
	log := newTestLogger()
	notes := usecase.NewNotificationUseCase(env.notifier, nil, log)
	env.subUC = usecase.NewSubscriptionUseCase(env.subs, env.policy.Periods, env.policy.GracePeriod, log)
	referral := usecase.NewReferralUseCase(env.referrals, env.policy.CommissionRate, log)
	env.settler = usecase.NewSettler(env.tm, st, env.gateway, env.subUC, referral, notes, env.events, log)
	env.webhook = usecase.NewWebhookUseCase(env.tm, st, env.gateway, env.settler, env.events, env.dedup, env.policy, log)
	env.checkout = usecase.NewCheckoutUseCase(env.tm, st, env.gateway, env.policy, log)
	env.billing = usecase.NewBillingUseCase(env.tm, st, env.gateway, env.subUC, env.settler, notes, env.events, env.policy, log)
	env.cancels = usecase.NewCancellationUseCase(env.tm, st, env.subUC, notes, env.events, env.policy, log)
	env.reconcile = usecase.NewReconcileUseCase(st, env.gateway, env.webhook, env.policy, log)
	env.stats = usecase.NewStatsUseCase(env.subs)
	return env
}

func (e *testEnv) seedUser(t *testing.T, email string, referredBy *string) *model.User {
	t.Helper()
	u, err := model.NewUser("", email, "", "", referredBy)
	if err != nil {
		t.Fatalf("new user: %v", err)
	}
	if err := e.users.Save(context.Background(), nil, u); err != nil {
		t.Fatalf("save user: %v", err)
	}
	return u
}

func (e *testEnv) seedProduct(t *testing.T) *model.Product {
	t.Helper()
	p, err := model.NewProduct("pro-monthly", "Pro", model.ProductTypeSubscription, model.BillingPeriodMonthly, decimal.NewFromInt(990), "RUB")
	if err != nil {
		t.Fatalf("new product: %v", err)
	}
	if err := e.products.Save(context.Background(), nil, p); err != nil {
		t.Fatalf("save product: %v", err)
	}
	return p
}

func (e *testEnv) seedCard(t *testing.T, userID, rebillID string, isDefault bool) *model.PaymentMethod {
	t.Helper()
	m, err := model.NewPaymentMethod(userID, "mock", rebillID, nil, "4300000000000777", "1299")
	if err != nil {
		t.Fatalf("new card: %v", err)
	}
	m.IsDefault = isDefault
	if _, err := e.methods.Upsert(context.Background(), nil, m); err != nil {
		t.Fatalf("save card: %v", err)
	}
	return m
}

// seedSubscription stores an active subscription ending at end.
func (e *testEnv) seedSubscription(t *testing.T, u *model.User, p *model.Product, end time.Time, methodID *string) *model.UserProduct {
	t.Helper()
	up, err := model.NewUserProduct(u.ID, p, e.policy.Periods, methodID, end.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("new subscription: %v", err)
	}
	up.EndDate = end
	if err := e.subs.Save(context.Background(), nil, up); err != nil {
		t.Fatalf("save subscription: %v", err)
	}
	return up
}

func (e *testEnv) subscription(t *testing.T, id string) *model.UserProduct {
	t.Helper()
	up, err := e.subs.FindByID(context.Background(), nil, id)
	if err != nil {
		t.Fatalf("load subscription %s: %v", id, err)
	}
	return up
}

func (e *testEnv) order(t *testing.T, ref string) *model.Order {
	t.Helper()
	o, err := e.orders.FindByRef(context.Background(), nil, ref)
	if err != nil {
		t.Fatalf("load order %s: %v", ref, err)
	}
	return o
}

func (e *testEnv) payment(t *testing.T, orderID string) *model.Payment {
	t.Helper()
	p, err := e.payments.FindByOrderID(context.Background(), nil, orderID)
	if err != nil {
		t.Fatalf("load payment of %s: %v", orderID, err)
	}
	return p
}

// callback renders a provider notification the way MockGateway parses it.
func callback(t *testing.T, n adapter.PaymentNotification) []byte {
	t.Helper()
	b, err := json.Marshal(n)
	if err != nil {
		t.Fatalf("marshal notification: %v", err)
	}
	return b
}

func confirmed(ref, ppid, rebillID string) adapter.PaymentNotification {
	return adapter.PaymentNotification{
		OrderRef:          ref,
		ProviderPaymentID: ppid,
		Status:            string(model.OrderStatusConfirmed),
		Success:           true,
		RebillID:          rebillID,
		Pan:               "430000******0777",
		ExpDate:           "1230",
	}
}

func strp(s string) *string { return &s }
