package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"subscription-billing/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*NoopPaymentGateway)(nil)

// NoopPaymentGateway is an in-memory gateway for dev runs and tests. Every call succeeds.
type NoopPaymentGateway struct {
	mu       sync.Mutex
	seq      int64
	payments map[string]string // provider payment id -> status
}

func NewNoopPaymentGateway() *NoopPaymentGateway {
	return &NoopPaymentGateway{
		payments: make(map[string]string),
	}
}

func (g *NoopPaymentGateway) Name() string { return "noop" }

func (g *NoopPaymentGateway) next(status string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	id := fmt.Sprintf("noop-%d", g.seq)
	g.payments[id] = status
	return id
}

func (g *NoopPaymentGateway) setStatus(id, status string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.payments[id]; !ok {
		return false
	}
	g.payments[id] = status
	return true
}

func (g *NoopPaymentGateway) InitPayment(ctx context.Context, req adapter.PaymentRequest) adapter.Result {
	id := g.next("NEW")
	return adapter.Result{Success: true, ProviderPaymentID: id, RedirectURL: "https://example.test/pay/" + id, Status: "NEW"}
}

func (g *NoopPaymentGateway) ChargeBySavedToken(ctx context.Context, token string, req adapter.PaymentRequest) adapter.Result {
	id := g.next("CONFIRMED")
	return adapter.Result{Success: true, ProviderPaymentID: id, Status: "CONFIRMED"}
}

func (g *NoopPaymentGateway) QueryStatus(ctx context.Context, providerPaymentID string) adapter.Result {
	g.mu.Lock()
	status, ok := g.payments[providerPaymentID]
	g.mu.Unlock()
	if !ok {
		return adapter.Result{ErrorCode: "7", Message: "payment not found"}
	}
	return adapter.Result{Success: true, ProviderPaymentID: providerPaymentID, Status: status}
}

func (g *NoopPaymentGateway) Confirm(ctx context.Context, providerPaymentID string, amount *decimal.Decimal) adapter.Result {
	if !g.setStatus(providerPaymentID, "CONFIRMED") {
		return adapter.Result{ErrorCode: "7", Message: "payment not found"}
	}
	return adapter.Result{Success: true, ProviderPaymentID: providerPaymentID, Status: "CONFIRMED"}
}

func (g *NoopPaymentGateway) Cancel(ctx context.Context, providerPaymentID string, amount *decimal.Decimal) adapter.Result {
	if !g.setStatus(providerPaymentID, "REVERSED") {
		return adapter.Result{ErrorCode: "7", Message: "payment not found"}
	}
	return adapter.Result{Success: true, ProviderPaymentID: providerPaymentID, Status: "REVERSED"}
}

func (g *NoopPaymentGateway) ParseNotification(body []byte) (*adapter.PaymentNotification, error) {
	return parseNotification(body)
}

func (g *NoopPaymentGateway) VerifyNotification(*adapter.PaymentNotification) bool { return true }
