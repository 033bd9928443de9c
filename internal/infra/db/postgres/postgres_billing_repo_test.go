//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/shopspring/decimal"

	"subscription-billing/internal/domain"
	"subscription-billing/internal/domain/model"
	"subscription-billing/internal/domain/ports/repository"
)

type fixture struct {
	users    *userRepo
	products *productRepo
	orders   *orderRepo
	payments *paymentRepo
	methods  *paymentMethodRepo
	mandates *mandateRepo
	ledger   *transactionRepo
	subs     *userProductRepo
	refs     *referralRepo
	cancels  *cancellationRepo
	tm       *TxManager
}

func newFixture() fixture {
	return fixture{
		users:    NewUserRepo(testPool),
		products: NewProductRepo(testPool),
		orders:   NewOrderRepo(testPool),
		payments: NewPaymentRepo(testPool),
		methods:  NewPaymentMethodRepo(testPool),
		mandates: NewMandateRepo(testPool),
		ledger:   NewTransactionRepo(testPool),
		subs:     NewUserProductRepo(testPool),
		refs:     NewReferralRepo(testPool),
		cancels:  NewCancellationRepo(testPool),
		tm:       NewTxManager(testPool),
	}
}

func mustUser(t *testing.T, f fixture, email string, referredBy *string) *model.User {
	t.Helper()
	u, err := model.NewUser("", email, "", "", referredBy)
	if err != nil {
		t.Fatalf("model.NewUser() failed: %v", err)
	}
	if err := f.users.Save(context.Background(), nil, u); err != nil {
		t.Fatalf("save user: %v", err)
	}
	return u
}

func mustProduct(t *testing.T, f fixture) *model.Product {
	t.Helper()
	p, err := model.NewProduct("pro-monthly", "Pro", model.ProductTypeSubscription, model.BillingPeriodMonthly, decimal.RequireFromString("990.00"), "RUB")
	if err != nil {
		t.Fatalf("model.NewProduct() failed: %v", err)
	}
	if err := f.products.Save(context.Background(), nil, p); err != nil {
		t.Fatalf("save product: %v", err)
	}
	return p
}

func TestUserRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	f := newFixture()
	ctx := context.Background()

	t.Run("should find users by normalized email and reject duplicates", func(t *testing.T) {
		cleanup(t)
		u := mustUser(t, f, "buyer@example.com", nil)

		found, err := f.users.FindByEmail(ctx, nil, "  BUYER@example.com ")
		if err != nil {
			t.Fatalf("FindByEmail failed: %v", err)
		}
		if found.ID != u.ID {
			t.Errorf("expected %s, got %s", u.ID, found.ID)
		}

		dup, _ := model.NewUser("", "buyer@example.com", "", "", nil)
		if err := f.users.Save(ctx, nil, dup); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Errorf("expected ErrAlreadyExists, got %v", err)
		}

		if _, err := f.users.FindByID(ctx, nil, "missing"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestOrderAndPaymentRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	f := newFixture()
	ctx := context.Background()

	t.Run("should guard payment transitions", func(t *testing.T) {
		cleanup(t)
		o, _ := model.NewOrder("ORD-1", model.OrderKindPurchase, decimal.RequireFromString("990.00"), "RUB", model.CustomerSnapshot{Email: "a@b.c"})
		if err := f.orders.Save(ctx, nil, o); err != nil {
			t.Fatalf("save order: %v", err)
		}
		p, _ := model.NewPayment(o.ID, "tbank", o.Amount, "RUB")
		if err := f.payments.Save(ctx, nil, p); err != nil {
			t.Fatalf("save payment: %v", err)
		}

		token := "rebill-1"
		ok, err := f.payments.TransitionStatus(ctx, nil, p.ID, model.PaymentStatusSuccess,
			[]model.PaymentStatus{model.PaymentStatusPending, model.PaymentStatusFailed}, model.PaymentUpdate{CardToken: &token})
		if err != nil || !ok {
			t.Fatalf("expected first transition to apply, got %v / %v", ok, err)
		}
		ok, _ = f.payments.TransitionStatus(ctx, nil, p.ID, model.PaymentStatusSuccess,
			[]model.PaymentStatus{model.PaymentStatusPending, model.PaymentStatusFailed}, model.PaymentUpdate{})
		if ok {
			t.Error("replayed transition must not apply")
		}

		stored, err := f.payments.FindByOrderID(ctx, nil, o.ID)
		if err != nil {
			t.Fatalf("FindByOrderID failed: %v", err)
		}
		if stored.CardToken == nil || *stored.CardToken != token {
			t.Error("card token should be stored with the transition")
		}
		if !stored.Amount.Equal(decimal.RequireFromString("990")) {
			t.Errorf("amount round-trip mismatch: %s", stored.Amount)
		}
	})

	t.Run("should lock the order row inside a transaction", func(t *testing.T) {
		cleanup(t)
		o, _ := model.NewOrder("ORD-2", model.OrderKindPurchase, decimal.NewFromInt(10), "RUB", model.CustomerSnapshot{Email: "a@b.c"})
		_ = f.orders.Save(ctx, nil, o)

		err := f.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			locked, err := f.orders.FindByRef(ctx, tx, "ORD-2")
			if err != nil {
				return err
			}
			return f.orders.UpdateStatus(ctx, tx, locked.ID, model.OrderStatusConfirmed)
		})
		if err != nil {
			t.Fatalf("tx failed: %v", err)
		}
		got, _ := f.orders.FindByRef(ctx, nil, "ORD-2")
		if got.Status != model.OrderStatusConfirmed {
			t.Errorf("expected CONFIRMED, got %s", got.Status)
		}
	})
}

func TestLedgerAndSubscriptionRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	f := newFixture()
	ctx := context.Background()

	t.Run("should append a ledger entry only once per provider reference", func(t *testing.T) {
		cleanup(t)
		u := mustUser(t, f, "l@x.y", nil)
		o, _ := model.NewOrder("ORD-L", model.OrderKindPurchase, decimal.NewFromInt(100), "RUB", model.CustomerSnapshot{Email: u.Email})
		_ = f.orders.Save(ctx, nil, o)
		p, _ := model.NewPayment(o.ID, "tbank", o.Amount, "RUB")
		_ = f.payments.Save(ctx, nil, p)

		first, _ := model.NewTransaction(model.TransactionPayment, u.ID, p, "pp-1", "")
		created, err := f.ledger.Append(ctx, nil, first)
		if err != nil || !created {
			t.Fatalf("expected created, got %v / %v", created, err)
		}
		replay, _ := model.NewTransaction(model.TransactionPayment, u.ID, p, "pp-1", "")
		created, err = f.ledger.Append(ctx, nil, replay)
		if err != nil || created {
			t.Fatalf("expected replay to be ignored, got %v / %v", created, err)
		}
		exists, _ := f.ledger.ExistsForOrder(ctx, nil, o.ID)
		if !exists {
			t.Error("ledger entry should exist for the order")
		}
	})

	t.Run("should keep one live subscription and never revive a cancelled one", func(t *testing.T) {
		cleanup(t)
		u := mustUser(t, f, "s@x.y", nil)
		prod := mustProduct(t, f)
		now := time.Now().UTC().Truncate(time.Second)

		up, _ := model.NewUserProduct(u.ID, prod, model.DefaultPeriodLengths(), nil, now)
		if err := f.subs.Save(ctx, nil, up); err != nil {
			t.Fatalf("save subscription: %v", err)
		}
		second, _ := model.NewUserProduct(u.ID, prod, model.DefaultPeriodLengths(), nil, now)
		if err := f.subs.Save(ctx, nil, second); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Errorf("expected ErrAlreadyExists for a second live row, got %v", err)
		}

		ok, _ := f.subs.TransitionStatus(ctx, nil, up.ID, model.SubscriptionStatusCancelled, model.LiveStatuses)
		if !ok {
			t.Fatal("expected cancellation to apply")
		}
		renewed, _ := f.subs.Renew(ctx, nil, up.ID, up.Extended(time.Hour), nil)
		if renewed {
			t.Error("renewal must not resurrect a cancelled subscription")
		}

		counts, err := f.subs.CountByStatus(ctx, nil)
		if err != nil {
			t.Fatalf("CountByStatus failed: %v", err)
		}
		if counts[model.SubscriptionStatusCancelled] != 1 {
			t.Errorf("expected one cancelled row, got %v", counts)
		}
	})

	t.Run("should select due rows only through their attached active card", func(t *testing.T) {
		cleanup(t)
		prod := mustProduct(t, f)
		now := time.Now().UTC().Truncate(time.Second)
		due := func(email string, withCard, attach bool) (*model.UserProduct, *model.PaymentMethod) {
			u := mustUser(t, f, email, nil)
			var card *model.PaymentMethod
			if withCard {
				card, _ = model.NewPaymentMethod(u.ID, "tbank", "rb-"+email, nil, "430000******0777", "1299")
				if _, err := f.methods.Upsert(ctx, nil, card); err != nil {
					t.Fatalf("save card: %v", err)
				}
			}
			var methodID *string
			if attach {
				methodID = &card.ID
			}
			up, _ := model.NewUserProduct(u.ID, prod, model.DefaultPeriodLengths(), methodID, now.Add(-29*24*time.Hour))
			if err := f.subs.Save(ctx, nil, up); err != nil {
				t.Fatalf("save subscription: %v", err)
			}
			return up, card
		}

		attached, _ := due("attached@x.y", true, true)
		due("unattached@x.y", true, false)
		revoked, card := due("revoked@x.y", true, true)
		spare, _ := model.NewPaymentMethod(revoked.UserID, "tbank", "rb-spare", nil, "", "")
		if _, err := f.methods.Upsert(ctx, nil, spare); err != nil {
			t.Fatalf("save spare card: %v", err)
		}
		if _, err := testPool.Exec(ctx, `UPDATE payment_methods SET status='revoked' WHERE id=$1`, card.ID); err != nil {
			t.Fatalf("revoke card: %v", err)
		}

		list, err := f.subs.ListDueForRenewal(ctx, nil, now.Add(3*24*time.Hour), 10)
		if err != nil {
			t.Fatalf("ListDueForRenewal failed: %v", err)
		}
		if len(list) != 1 || list[0].ID != attached.ID {
			t.Errorf("expected only %s, got %+v", attached.ID, list)
		}
	})

	t.Run("should upsert payment methods by rebill token", func(t *testing.T) {
		cleanup(t)
		u := mustUser(t, f, "c@x.y", nil)
		m1, _ := model.NewPaymentMethod(u.ID, "tbank", "rb-1", nil, "430000******0777", "1230")
		created, err := f.methods.Upsert(ctx, nil, m1)
		if err != nil || !created {
			t.Fatalf("expected insert, got %v / %v", created, err)
		}
		m2, _ := model.NewPaymentMethod(u.ID, "tbank", "rb-1", nil, "", "")
		created, err = f.methods.Upsert(ctx, nil, m2)
		if err != nil || created {
			t.Fatalf("expected update, got %v / %v", created, err)
		}
		if m2.ID != m1.ID {
			t.Errorf("expected stored id %s, got %s", m1.ID, m2.ID)
		}
		if err := f.methods.SetDefault(ctx, nil, u.ID, m1.ID); err != nil {
			t.Fatalf("SetDefault failed: %v", err)
		}
		list, _ := f.methods.ListActiveByUser(ctx, nil, u.ID)
		if len(list) != 1 || !list[0].IsDefault || list[0].PanMask != "430000******0777" {
			t.Errorf("unexpected methods %+v", list)
		}
		mandate, _ := model.NewMandate(u.ID, m1)
		if created, _ := f.mandates.Upsert(ctx, nil, mandate); !created {
			t.Error("first mandate should be created")
		}
		again, _ := model.NewMandate(u.ID, m1)
		if created, _ := f.mandates.Upsert(ctx, nil, again); created {
			t.Error("mandate replay should update")
		}
	})
}

func TestReferralAndCancellationRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	f := newFixture()
	ctx := context.Background()

	t.Run("should accrue commission once per order", func(t *testing.T) {
		cleanup(t)
		referrer := mustUser(t, f, "r@x.y", nil)
		buyer := mustUser(t, f, "b@x.y", &referrer.ID)
		o, _ := model.NewOrder("ORD-R", model.OrderKindPurchase, decimal.RequireFromString("999.99"), "RUB", model.CustomerSnapshot{Email: buyer.Email})
		_ = f.orders.Save(ctx, nil, o)

		ref, _ := model.NewReferral(referrer.ID, buyer.ID, decimal.NewFromInt(20))
		stored, err := f.refs.GetOrCreate(ctx, nil, ref)
		if err != nil {
			t.Fatalf("GetOrCreate failed: %v", err)
		}
		again, _ := model.NewReferral(referrer.ID, buyer.ID, decimal.NewFromInt(50))
		same, _ := f.refs.GetOrCreate(ctx, nil, again)
		if same.ID != stored.ID || !same.CommissionRate.Equal(decimal.NewFromInt(20)) {
			t.Errorf("expected the stored relationship to win, got %+v", same)
		}

		c, _ := model.NewReferralCommission(stored, o.ID, o.Amount)
		if created, _ := f.refs.AddCommission(ctx, nil, c); !created {
			t.Fatal("first commission should be created")
		}
		dup, _ := model.NewReferralCommission(stored, o.ID, o.Amount)
		if created, _ := f.refs.AddCommission(ctx, nil, dup); created {
			t.Error("commission replay must be ignored")
		}
		if err := f.refs.AddEarnings(ctx, nil, stored.ID, c.CommissionAmount); err != nil {
			t.Fatalf("AddEarnings failed: %v", err)
		}
		byUser, _ := f.refs.FindByReferredUser(ctx, nil, buyer.ID)
		if !byUser.TotalEarned.Equal(decimal.RequireFromString("200")) {
			t.Errorf("expected 200 earned, got %s", byUser.TotalEarned)
		}
	})

	t.Run("should keep a single pending cancellation and resolve it once", func(t *testing.T) {
		cleanup(t)
		referrer := mustUser(t, f, "r2@x.y", nil)
		buyer := mustUser(t, f, "b2@x.y", &referrer.ID)
		prod := mustProduct(t, f)
		now := time.Now().UTC()
		up, _ := model.NewUserProduct(buyer.ID, prod, model.DefaultPeriodLengths(), nil, now)
		_ = f.subs.Save(ctx, nil, up)

		req, _ := model.NewCancellationRequest(up.ID, buyer.ID, &referrer.ID, "", 24*time.Hour, now)
		if err := f.cancels.Create(ctx, nil, req); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		dup, _ := model.NewCancellationRequest(up.ID, buyer.ID, &referrer.ID, "", 24*time.Hour, now)
		if err := f.cancels.Create(ctx, nil, dup); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Errorf("expected ErrAlreadyExists, got %v", err)
		}

		due, _ := f.cancels.ListReminderDue(ctx, nil, now.Add(19*time.Hour), now.Add(25*time.Hour), 10)
		if len(due) != 1 {
			t.Fatalf("expected one reminder due, got %d", len(due))
		}
		if ok, _ := f.cancels.MarkReminderSent(ctx, nil, req.ID); !ok {
			t.Error("first reminder claim should win")
		}
		if ok, _ := f.cancels.MarkReminderSent(ctx, nil, req.ID); ok {
			t.Error("second reminder claim should lose")
		}

		ok, err := f.cancels.Resolve(ctx, nil, req.ID, model.CancellationApproved, &referrer.ID, "ok", now)
		if err != nil || !ok {
			t.Fatalf("expected resolve, got %v / %v", ok, err)
		}
		if ok, _ := f.cancels.Resolve(ctx, nil, req.ID, model.CancellationRejected, &referrer.ID, "", now); ok {
			t.Error("a resolved request must not be decided twice")
		}
		expired, _ := f.cancels.ListExpired(ctx, nil, now.Add(48*time.Hour), 10)
		if len(expired) != 0 {
			t.Errorf("resolved requests must not be listed as expired, got %d", len(expired))
		}
	})
}
