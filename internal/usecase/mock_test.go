//go:build !integration

package usecase_test

import (
	"context"
	"encoding/json"
	"io"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"subscription-billing/internal/domain"
	"subscription-billing/internal/domain/model"
	"subscription-billing/internal/domain/ports/adapter"
	"subscription-billing/internal/domain/ports/repository"
)

// =============================
// Repositories (in-memory)
// =============================

// Every repository returns copies, so a use case only sees its own writes after
// they went through the repository, like with a real database.

// ---- Users ----

type MockUserRepo struct {
	mu   sync.Mutex
	byID map[string]*model.User
	// Lookups records the ids passed to FindByID.
	Lookups []string

	SaveFunc     func(ctx context.Context, tx repository.Tx, u *model.User) error
	FindByIDFunc func(ctx context.Context, tx repository.Tx, id string) (*model.User, error)
}

var _ repository.UserRepository = (*MockUserRepo)(nil)

func NewMockUserRepo() *MockUserRepo { return &MockUserRepo{byID: map[string]*model.User{}} }

func (m *MockUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, u)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.Email == u.Email && existing.ID != u.ID {
			return domain.ErrAlreadyExists
		}
	}
	c := *u
	m.byID[u.ID] = &c
	return nil
}

func (m *MockUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	m.mu.Lock()
	m.Lookups = append(m.Lookups, id)
	m.mu.Unlock()
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, tx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[id]; ok {
		c := *u
		return &c, nil
	}
	return nil, domain.ErrNotFound
}

func (m *MockUserRepo) FindByEmail(ctx context.Context, tx repository.Tx, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = model.NormalizeEmail(email)
	for _, u := range m.byID {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockUserRepo) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

// ---- Products ----

type MockProductRepo struct {
	mu   sync.Mutex
	byID map[string]*model.Product
}

var _ repository.ProductRepository = (*MockProductRepo)(nil)

func NewMockProductRepo() *MockProductRepo {
	return &MockProductRepo{byID: map[string]*model.Product{}}
}

func (m *MockProductRepo) Save(ctx context.Context, tx repository.Tx, p *model.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *p
	m.byID[p.ID] = &c
	return nil
}

func (m *MockProductRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.byID[id]; ok {
		c := *p
		return &c, nil
	}
	return nil, domain.ErrNotFound
}

func (m *MockProductRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Product
	for _, p := range m.byID {
		if p.Active {
			c := *p
			out = append(out, &c)
		}
	}
	return out, nil
}

// ---- Orders ----

type MockOrderRepo struct {
	mu   sync.Mutex
	byID map[string]*model.Order

	UpdateStatusFunc  func(ctx context.Context, tx repository.Tx, id string, status model.OrderStatus) error
	ListUnsettledFunc func(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Order, error)
}

var _ repository.OrderRepository = (*MockOrderRepo)(nil)

func NewMockOrderRepo() *MockOrderRepo { return &MockOrderRepo{byID: map[string]*model.Order{}} }

func (m *MockOrderRepo) Save(ctx context.Context, tx repository.Tx, o *model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.OrderRef == o.OrderRef {
			return domain.ErrAlreadyExists
		}
	}
	c := *o
	m.byID[o.ID] = &c
	return nil
}

// Clear drops every stored order.
func (m *MockOrderRepo) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID = map[string]*model.Order{}
}

func (m *MockOrderRepo) find(pred func(o *model.Order) bool) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.byID {
		if pred(o) {
			c := *o
			return &c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockOrderRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Order, error) {
	return m.find(func(o *model.Order) bool { return o.ID == id })
}

func (m *MockOrderRepo) FindByRef(ctx context.Context, tx repository.Tx, ref string) (*model.Order, error) {
	return m.find(func(o *model.Order) bool { return o.OrderRef == ref })
}

func (m *MockOrderRepo) FindByProviderPaymentID(ctx context.Context, tx repository.Tx, providerPaymentID string) (*model.Order, error) {
	return m.find(func(o *model.Order) bool {
		return o.ProviderPaymentID != nil && *o.ProviderPaymentID == providerPaymentID
	})
}

func (m *MockOrderRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.OrderStatus) error {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, tx, id, status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	o.Status = status
	o.UpdatedAt = time.Now()
	return nil
}

func (m *MockOrderRepo) SetProviderPayment(ctx context.Context, tx repository.Tx, id, providerPaymentID string, paymentURL *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	ppid := providerPaymentID
	o.ProviderPaymentID = &ppid
	if paymentURL != nil {
		o.PaymentURL = paymentURL
	}
	return nil
}

func (m *MockOrderRepo) AttachUser(ctx context.Context, tx repository.Tx, id, userID string, userProductID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	uid := userID
	o.UserID = &uid
	if userProductID != nil {
		o.UserProductID = userProductID
	}
	return nil
}

func (m *MockOrderRepo) ListStale(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Order
	for _, o := range m.byID {
		if !o.Status.IsTerminal() && o.ProviderPaymentID != nil && o.CreatedAt.Before(olderThan) {
			c := *o
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockOrderRepo) ListUnsettled(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Order, error) {
	if m.ListUnsettledFunc != nil {
		return m.ListUnsettledFunc(ctx, tx, olderThan, limit)
	}
	return nil, nil
}

// All returns every stored order.
func (m *MockOrderRepo) All() []*model.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Order, 0, len(m.byID))
	for _, o := range m.byID {
		c := *o
		out = append(out, &c)
	}
	return out
}

// Backdate moves an order's creation time, for stale-order tests.
func (m *MockOrderRepo) Backdate(id string, createdAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.byID[id]; ok {
		o.CreatedAt = createdAt
	}
}

// ---- Payments ----

type MockPaymentRepo struct {
	mu   sync.Mutex
	byID map[string]*model.Payment
}

var _ repository.PaymentRepository = (*MockPaymentRepo)(nil)

func NewMockPaymentRepo() *MockPaymentRepo {
	return &MockPaymentRepo{byID: map[string]*model.Payment{}}
}

func (m *MockPaymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.OrderID == p.OrderID {
			return domain.ErrAlreadyExists
		}
	}
	c := *p
	m.byID[p.ID] = &c
	return nil
}

func (m *MockPaymentRepo) FindByOrderID(ctx context.Context, tx repository.Tx, orderID string) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.byID {
		if p.OrderID == orderID {
			c := *p
			return &c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockPaymentRepo) TransitionStatus(ctx context.Context, tx repository.Tx, id string, to model.PaymentStatus, from []model.PaymentStatus, upd model.PaymentUpdate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	allowed := false
	for _, s := range from {
		if p.Status == s {
			allowed = true
		}
	}
	if !allowed {
		return false, nil
	}
	p.Status = to
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
	return true, nil
}

// ---- Payment methods ----

type MockPaymentMethodRepo struct {
	mu    sync.Mutex
	order []string
	byID  map[string]*model.PaymentMethod
}

var _ repository.PaymentMethodRepository = (*MockPaymentMethodRepo)(nil)

func NewMockPaymentMethodRepo() *MockPaymentMethodRepo {
	return &MockPaymentMethodRepo{byID: map[string]*model.PaymentMethod{}}
}

func (m *MockPaymentMethodRepo) Upsert(ctx context.Context, tx repository.Tx, pm *model.PaymentMethod) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.RebillID == pm.RebillID {
			existing.Status = model.PaymentMethodActive
			existing.UpdatedAt = time.Now()
			pm.ID = existing.ID
			return false, nil
		}
	}
	c := *pm
	m.byID[pm.ID] = &c
	m.order = append(m.order, pm.ID)
	return true, nil
}

func (m *MockPaymentMethodRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PaymentMethod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pm, ok := m.byID[id]; ok {
		c := *pm
		return &c, nil
	}
	return nil, domain.ErrNotFound
}

func (m *MockPaymentMethodRepo) ListActiveByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.PaymentMethod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.PaymentMethod
	for _, id := range m.order {
		pm := m.byID[id]
		if pm.UserID == userID && pm.Status == model.PaymentMethodActive {
			c := *pm
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].IsDefault && !out[j].IsDefault })
	return out, nil
}

func (m *MockPaymentMethodRepo) SetDefault(ctx context.Context, tx repository.Tx, userID, methodID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, pm := range m.byID {
		if pm.UserID == userID {
			pm.IsDefault = pm.ID == methodID
		}
	}
	return nil
}

// Revoke marks a stored card revoked.
func (m *MockPaymentMethodRepo) Revoke(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pm, ok := m.byID[id]; ok {
		pm.Status = model.PaymentMethodRevoked
	}
}

func (m *MockPaymentMethodRepo) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

// ---- Mandates ----

type MockMandateRepo struct {
	mu   sync.Mutex
	byNo map[string]*model.Mandate
}

var _ repository.MandateRepository = (*MockMandateRepo)(nil)

func NewMockMandateRepo() *MockMandateRepo {
	return &MockMandateRepo{byNo: map[string]*model.Mandate{}}
}

func (m *MockMandateRepo) Upsert(ctx context.Context, tx repository.Tx, md *model.Mandate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := md.UserID + "/" + md.MandateNumber
	if existing, ok := m.byNo[key]; ok {
		existing.PaymentMethodID = md.PaymentMethodID
		existing.Status = model.MandateActive
		md.ID = existing.ID
		return false, nil
	}
	c := *md
	m.byNo[key] = &c
	return true, nil
}

func (m *MockMandateRepo) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byNo)
}

// ---- Ledger ----

type MockTransactionRepo struct {
	mu      sync.Mutex
	entries []*model.Transaction

	AppendFunc func(ctx context.Context, tx repository.Tx, t *model.Transaction) (bool, error)
}

var _ repository.TransactionRepository = (*MockTransactionRepo)(nil)

func NewMockTransactionRepo() *MockTransactionRepo { return &MockTransactionRepo{} }

func (m *MockTransactionRepo) Append(ctx context.Context, tx repository.Tx, t *model.Transaction) (bool, error) {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, tx, t)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.Type == t.Type && e.ProviderRef == t.ProviderRef {
			return false, nil
		}
	}
	c := *t
	m.entries = append(m.entries, &c)
	return true, nil
}

func (m *MockTransactionRepo) ExistsForOrder(ctx context.Context, tx repository.Tx, orderID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.OrderID == orderID && e.Type == model.TransactionPayment {
			return true, nil
		}
	}
	return false, nil
}

// OfType returns the ledger entries of one type.
func (m *MockTransactionRepo) OfType(typ model.TransactionType) []*model.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Transaction
	for _, e := range m.entries {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// ---- Subscriptions ----

type MockUserProductRepo struct {
	mu    sync.Mutex
	byID  map[string]*model.UserProduct
	Locks int
	// Ops records "lock" and, for reads inside a transaction, "read-for-update".
	Ops []string

	LockFunc func(ctx context.Context, tx repository.Tx, userID, productID string) error
	// MethodActive reports whether an attached card is active; due selection
	// skips rows without one, like the SQL join does.
	MethodActive func(methodID string) bool
}

var _ repository.UserProductRepository = (*MockUserProductRepo)(nil)

func NewMockUserProductRepo() *MockUserProductRepo {
	return &MockUserProductRepo{byID: map[string]*model.UserProduct{}}
}

func (m *MockUserProductRepo) record(tx repository.Tx, op string) {
	if op == "read-for-update" && tx == repository.NoTX {
		return
	}
	m.Ops = append(m.Ops, op)
}

// ResetOps clears the recorded operations.
func (m *MockUserProductRepo) ResetOps() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Ops = nil
}

// RecordedOps returns a copy of the recorded operations.
func (m *MockUserProductRepo) RecordedOps() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Ops...)
}

func (m *MockUserProductRepo) Lock(ctx context.Context, tx repository.Tx, userID, productID string) error {
	m.mu.Lock()
	m.record(tx, "lock")
	m.mu.Unlock()
	if m.LockFunc != nil {
		return m.LockFunc(ctx, tx, userID, productID)
	}
	m.mu.Lock()
	m.Locks++
	m.mu.Unlock()
	return nil
}

func (m *MockUserProductRepo) Save(ctx context.Context, tx repository.Tx, up *model.UserProduct) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if up.Status.IsLive() {
		for _, existing := range m.byID {
			if existing.UserID == up.UserID && existing.ProductID == up.ProductID && existing.Status.IsLive() && existing.ID != up.ID {
				return domain.ErrAlreadyExists
			}
		}
	}
	c := *up
	m.byID[up.ID] = &c
	return nil
}

func (m *MockUserProductRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.UserProduct, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(tx, "read-for-update")
	if up, ok := m.byID[id]; ok {
		c := *up
		return &c, nil
	}
	return nil, domain.ErrNotFound
}

func (m *MockUserProductRepo) FindLive(ctx context.Context, tx repository.Tx, userID, productID string) (*model.UserProduct, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(tx, "read-for-update")
	for _, up := range m.byID {
		if up.UserID == userID && up.ProductID == productID && up.Status.IsLive() {
			c := *up
			return &c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockUserProductRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.UserProduct, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.UserProduct
	for _, up := range m.byID {
		if up.UserID == userID {
			c := *up
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *MockUserProductRepo) ListDueForRenewal(ctx context.Context, tx repository.Tx, before time.Time, limit int) ([]*model.UserProduct, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.UserProduct
	for _, up := range m.byID {
		if up.Status.IsLive() && !up.EndDate.After(before) && m.hasActiveMethod(up) {
			c := *up
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndDate.Before(out[j].EndDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SetEndDate moves the end of a stored row without touching its status.
func (m *MockUserProductRepo) SetEndDate(id string, end time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if up, ok := m.byID[id]; ok {
		up.EndDate = end
	}
}

func (m *MockUserProductRepo) hasActiveMethod(up *model.UserProduct) bool {
	if m.MethodActive == nil {
		return true
	}
	return up.PaymentMethodID != nil && m.MethodActive(*up.PaymentMethodID)
}

func (m *MockUserProductRepo) Renew(ctx context.Context, tx repository.Tx, id string, endDate time.Time, methodID *string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	up, ok := m.byID[id]
	if !ok || !up.Status.IsLive() {
		return false, nil
	}
	up.EndDate = endDate
	up.Status = model.SubscriptionStatusActive
	up.PaymentMethodID = methodID
	return true, nil
}

func (m *MockUserProductRepo) TransitionStatus(ctx context.Context, tx repository.Tx, id string, to model.SubscriptionStatus, from []model.SubscriptionStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	up, ok := m.byID[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	for _, s := range from {
		if up.Status == s {
			up.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (m *MockUserProductRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.SubscriptionStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[model.SubscriptionStatus]int{}
	for _, up := range m.byID {
		out[up.Status]++
	}
	return out, nil
}

// ---- Referrals ----

type MockReferralRepo struct {
	mu          sync.Mutex
	byID        map[string]*model.Referral
	commissions map[string]*model.ReferralCommission
}

var _ repository.ReferralRepository = (*MockReferralRepo)(nil)

func NewMockReferralRepo() *MockReferralRepo {
	return &MockReferralRepo{byID: map[string]*model.Referral{}, commissions: map[string]*model.ReferralCommission{}}
}

func (m *MockReferralRepo) FindByReferredUser(ctx context.Context, tx repository.Tx, userID string) (*model.Referral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.byID {
		if r.ReferredUserID == userID {
			c := *r
			return &c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockReferralRepo) GetOrCreate(ctx context.Context, tx repository.Tx, ref *model.Referral) (*model.Referral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.byID {
		if r.ReferrerID == ref.ReferrerID && r.ReferredUserID == ref.ReferredUserID {
			c := *r
			return &c, nil
		}
	}
	c := *ref
	m.byID[ref.ID] = &c
	out := c
	return &out, nil
}

func (m *MockReferralRepo) AddEarnings(ctx context.Context, tx repository.Tx, referralID string, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[referralID]
	if !ok {
		return domain.ErrNotFound
	}
	r.TotalEarned = r.TotalEarned.Add(amount)
	return nil
}

func (m *MockReferralRepo) AddCommission(ctx context.Context, tx repository.Tx, c *model.ReferralCommission) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.commissions[c.OrderID]; ok {
		return false, nil
	}
	cc := *c
	m.commissions[c.OrderID] = &cc
	return true, nil
}

// Earned returns the running total of the referrer's relationship with referred.
func (m *MockReferralRepo) Earned(referrerID, referredID string) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.byID {
		if r.ReferrerID == referrerID && r.ReferredUserID == referredID {
			return r.TotalEarned
		}
	}
	return decimal.Zero
}

func (m *MockReferralRepo) Commissions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.commissions)
}

// ---- Cancellation requests ----

type MockCancellationRepo struct {
	mu   sync.Mutex
	byID map[string]*model.CancellationRequest

	CreateFunc func(ctx context.Context, tx repository.Tx, r *model.CancellationRequest) error
}

var _ repository.CancellationRepository = (*MockCancellationRepo)(nil)

func NewMockCancellationRepo() *MockCancellationRepo {
	return &MockCancellationRepo{byID: map[string]*model.CancellationRequest{}}
}

func (m *MockCancellationRepo) Create(ctx context.Context, tx repository.Tx, r *model.CancellationRequest) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tx, r)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.UserProductID == r.UserProductID && existing.Status == model.CancellationPending {
			return domain.ErrAlreadyExists
		}
	}
	c := *r
	m.byID[r.ID] = &c
	return nil
}

func (m *MockCancellationRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.CancellationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.byID[id]; ok {
		c := *r
		return &c, nil
	}
	return nil, domain.ErrNotFound
}

func (m *MockCancellationRepo) FindPendingByUserProduct(ctx context.Context, tx repository.Tx, userProductID string) (*model.CancellationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.byID {
		if r.UserProductID == userProductID && r.Status == model.CancellationPending {
			c := *r
			return &c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockCancellationRepo) Resolve(ctx context.Context, tx repository.Tx, id string, to model.CancellationStatus, decidedBy *string, comment string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[id]
	if !ok || r.Status != model.CancellationPending {
		return false, nil
	}
	r.Status, r.DecidedBy, r.DecisionComment = to, decidedBy, comment
	r.DecidedAt = &at
	return true, nil
}

func (m *MockCancellationRepo) list(pred func(r *model.CancellationRequest) bool, limit int) []*model.CancellationRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.CancellationRequest
	for _, r := range m.byID {
		if pred(r) {
			c := *r
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *MockCancellationRepo) ListExpired(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.CancellationRequest, error) {
	return m.list(func(r *model.CancellationRequest) bool {
		return r.Status == model.CancellationPending && r.IsPastExpiry(now)
	}, limit), nil
}

func (m *MockCancellationRepo) ListReminderDue(ctx context.Context, tx repository.Tx, now, until time.Time, limit int) ([]*model.CancellationRequest, error) {
	return m.list(func(r *model.CancellationRequest) bool {
		return r.Status == model.CancellationPending && !r.ReminderSent && r.ReferrerID != nil &&
			r.ExpiresAt.After(now) && !r.ExpiresAt.After(until)
	}, limit), nil
}

func (m *MockCancellationRepo) MarkReminderSent(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[id]
	if !ok || r.ReminderSent {
		return false, nil
	}
	r.ReminderSent = true
	return true, nil
}

func (m *MockCancellationRepo) MarkReferrerNotified(ctx context.Context, tx repository.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	r.ReferrerNotified = true
	return nil
}

func (m *MockCancellationRepo) ListByRequester(ctx context.Context, tx repository.Tx, userID string) ([]*model.CancellationRequest, error) {
	return m.list(func(r *model.CancellationRequest) bool { return r.RequesterID == userID }, 0), nil
}

func (m *MockCancellationRepo) ListByReferrer(ctx context.Context, tx repository.Tx, referrerID string) ([]*model.CancellationRequest, error) {
	return m.list(func(r *model.CancellationRequest) bool {
		return r.ReferrerID != nil && *r.ReferrerID == referrerID
	}, 0), nil
}

// Put stores r as is, bypassing the pending check.
func (m *MockCancellationRepo) Put(r *model.CancellationRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *r
	m.byID[r.ID] = &c
}

// =============================
// Transactions
// =============================

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager { return &MockTxManager{} }

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn immediately with NoTX unless WithTxFunc overrides it.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// =============================
// Adapters
// =============================

// ---- Payment gateway ----

type MockGateway struct {
	mu sync.Mutex

	InitPaymentFunc        func(ctx context.Context, req adapter.PaymentRequest) adapter.Result
	ChargeBySavedTokenFunc func(ctx context.Context, token string, req adapter.PaymentRequest) adapter.Result
	QueryStatusFunc        func(ctx context.Context, providerPaymentID string) adapter.Result
	ConfirmFunc            func(ctx context.Context, providerPaymentID string, amount *decimal.Decimal) adapter.Result
	CancelFunc             func(ctx context.Context, providerPaymentID string, amount *decimal.Decimal) adapter.Result
	VerifyFunc             func(n *adapter.PaymentNotification) bool

	Calls struct {
		Init    []adapter.PaymentRequest
		Charges []string
		Queries []string
		Confirm []string
		Cancel  []string
	}
}

var _ adapter.PaymentGateway = (*MockGateway)(nil)

func (g *MockGateway) Name() string { return "mock" }

func (g *MockGateway) InitPayment(ctx context.Context, req adapter.PaymentRequest) adapter.Result {
	g.mu.Lock()
	g.Calls.Init = append(g.Calls.Init, req)
	g.mu.Unlock()
	if g.InitPaymentFunc != nil {
		return g.InitPaymentFunc(ctx, req)
	}
	return adapter.Result{
		Success:           true,
		ProviderPaymentID: "pp-" + req.OrderRef,
		RedirectURL:       "https://pay.example/" + req.OrderRef,
		Status:            string(model.OrderStatusNew),
	}
}

func (g *MockGateway) ChargeBySavedToken(ctx context.Context, token string, req adapter.PaymentRequest) adapter.Result {
	g.mu.Lock()
	g.Calls.Charges = append(g.Calls.Charges, token)
	n := len(g.Calls.Charges)
	g.mu.Unlock()
	if g.ChargeBySavedTokenFunc != nil {
		return g.ChargeBySavedTokenFunc(ctx, token, req)
	}
	return adapter.Result{
		Success:           true,
		ProviderPaymentID: "charge-" + token + "-" + strconv.Itoa(n),
		Status:            string(model.OrderStatusConfirmed),
	}
}

func (g *MockGateway) QueryStatus(ctx context.Context, providerPaymentID string) adapter.Result {
	g.mu.Lock()
	g.Calls.Queries = append(g.Calls.Queries, providerPaymentID)
	g.mu.Unlock()
	if g.QueryStatusFunc != nil {
		return g.QueryStatusFunc(ctx, providerPaymentID)
	}
	return adapter.Result{Success: true, ProviderPaymentID: providerPaymentID, Status: string(model.OrderStatusConfirmed)}
}

func (g *MockGateway) Confirm(ctx context.Context, providerPaymentID string, amount *decimal.Decimal) adapter.Result {
	g.mu.Lock()
	g.Calls.Confirm = append(g.Calls.Confirm, providerPaymentID)
	g.mu.Unlock()
	if g.ConfirmFunc != nil {
		return g.ConfirmFunc(ctx, providerPaymentID, amount)
	}
	return adapter.Result{Success: true, ProviderPaymentID: providerPaymentID, Status: string(model.OrderStatusConfirmed)}
}

func (g *MockGateway) Cancel(ctx context.Context, providerPaymentID string, amount *decimal.Decimal) adapter.Result {
	g.mu.Lock()
	g.Calls.Cancel = append(g.Calls.Cancel, providerPaymentID)
	g.mu.Unlock()
	if g.CancelFunc != nil {
		return g.CancelFunc(ctx, providerPaymentID, amount)
	}
	return adapter.Result{Success: true, ProviderPaymentID: providerPaymentID, Status: string(model.OrderStatusReversed)}
}

// ParseNotification decodes the JSON form of adapter.PaymentNotification.
func (g *MockGateway) ParseNotification(body []byte) (*adapter.PaymentNotification, error) {
	var n adapter.PaymentNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, err
	}
	if n.OrderRef == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &n, nil
}

func (g *MockGateway) VerifyNotification(n *adapter.PaymentNotification) bool {
	if g.VerifyFunc != nil {
		return g.VerifyFunc(n)
	}
	return true
}

func (g *MockGateway) ChargeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Calls.Charges)
}

func (g *MockGateway) CancelCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Calls.Cancel)
}

// ---- Notifier ----

type sentMail struct {
	To      string
	Subject string
	Body    string
}

type MockNotifier struct {
	mu   sync.Mutex
	Sent []sentMail

	NotifyFunc func(ctx context.Context, to, subject, body string) bool
}

var _ adapter.Notifier = (*MockNotifier)(nil)

func (n *MockNotifier) Notify(ctx context.Context, to, subject, body string) bool {
	n.mu.Lock()
	n.Sent = append(n.Sent, sentMail{To: to, Subject: subject, Body: body})
	n.mu.Unlock()
	if n.NotifyFunc != nil {
		return n.NotifyFunc(ctx, to, subject, body)
	}
	return true
}

// To returns the subjects sent to one recipient.
func (n *MockNotifier) To(email string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, m := range n.Sent {
		if m.To == email {
			out = append(out, m.Subject)
		}
	}
	return out
}

// ---- Event publisher ----

type MockPublisher struct {
	mu     sync.Mutex
	Events []adapter.Event

	PublishFunc func(ctx context.Context, e adapter.Event) error
}

var _ adapter.EventPublisher = (*MockPublisher)(nil)

func (p *MockPublisher) Publish(ctx context.Context, e adapter.Event) error {
	p.mu.Lock()
	p.Events = append(p.Events, e)
	p.mu.Unlock()
	if p.PublishFunc != nil {
		return p.PublishFunc(ctx, e)
	}
	return nil
}

func (p *MockPublisher) Count(typ string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.Events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

// ---- Dedup store ----

type MockDedup struct {
	mu   sync.Mutex
	keys map[string]bool
}

var _ adapter.DedupStore = (*MockDedup)(nil)

func NewMockDedup() *MockDedup { return &MockDedup{keys: map[string]bool{}} }

func (d *MockDedup) Seen(ctx context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.keys[key], nil
}

func (d *MockDedup) Mark(ctx context.Context, key string, ttl time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys[key] = true
	return nil
}

// =============================
// Helpers
// =============================

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}
