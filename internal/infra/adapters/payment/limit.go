package payment

import (
	"context"

	"github.com/shopspring/decimal"

	"subscription-billing/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.PaymentGateway = (*limitedGateway)(nil)

// limitedGateway caps in-flight provider calls across checkout, renewals and reconciliation.
type limitedGateway struct {
	inner adapter.PaymentGateway
	sem   chan struct{}
}

// NewLimitedGateway returns inner unchanged when maxConcurrent is not positive.
func NewLimitedGateway(inner adapter.PaymentGateway, maxConcurrent int) adapter.PaymentGateway {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedGateway{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

// acquire waits for a slot; a caller whose context ends first gets a timeout result.
func (l *limitedGateway) acquire(ctx context.Context) (func(), *adapter.Result) {
	select {
	case l.sem <- struct{}{}:
		return func() { <-l.sem }, nil
	case <-ctx.Done():
		return nil, &adapter.Result{ErrorCode: adapter.ErrCodeTimeout, Message: ctx.Err().Error()}
	}
}

func (l *limitedGateway) Name() string { return l.inner.Name() }

func (l *limitedGateway) InitPayment(ctx context.Context, req adapter.PaymentRequest) adapter.Result {
	release, busy := l.acquire(ctx)
	if busy != nil {
		return *busy
	}
	defer release()
	return l.inner.InitPayment(ctx, req)
}

func (l *limitedGateway) ChargeBySavedToken(ctx context.Context, token string, req adapter.PaymentRequest) adapter.Result {
	release, busy := l.acquire(ctx)
	if busy != nil {
		return *busy
	}
	defer release()
	return l.inner.ChargeBySavedToken(ctx, token, req)
}

func (l *limitedGateway) QueryStatus(ctx context.Context, providerPaymentID string) adapter.Result {
	release, busy := l.acquire(ctx)
	if busy != nil {
		return *busy
	}
	defer release()
	return l.inner.QueryStatus(ctx, providerPaymentID)
}

func (l *limitedGateway) Confirm(ctx context.Context, providerPaymentID string, amount *decimal.Decimal) adapter.Result {
	release, busy := l.acquire(ctx)
	if busy != nil {
		return *busy
	}
	defer release()
	return l.inner.Confirm(ctx, providerPaymentID, amount)
}

func (l *limitedGateway) Cancel(ctx context.Context, providerPaymentID string, amount *decimal.Decimal) adapter.Result {
	release, busy := l.acquire(ctx)
	if busy != nil {
		return *busy
	}
	defer release()
	return l.inner.Cancel(ctx, providerPaymentID, amount)
}

// Parsing and verification are local and never wait for a slot.
func (l *limitedGateway) ParseNotification(body []byte) (*adapter.PaymentNotification, error) {
	return l.inner.ParseNotification(body)
}

func (l *limitedGateway) VerifyNotification(n *adapter.PaymentNotification) bool {
	return l.inner.VerifyNotification(n)
}
