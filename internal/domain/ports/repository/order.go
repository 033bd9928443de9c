package repository

import (
	"context"
	"time"

	"subscription-billing/internal/domain/model"
)

// OrderRepository persists purchase attempts. Lookups lock the row inside a transaction,
// which serializes concurrent webhook deliveries for the same order.
type OrderRepository interface {
	Save(ctx context.Context, tx Tx, o *model.Order) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Order, error)
	FindByRef(ctx context.Context, tx Tx, ref string) (*model.Order, error)
	FindByProviderPaymentID(ctx context.Context, tx Tx, providerPaymentID string) (*model.Order, error)
	UpdateStatus(ctx context.Context, tx Tx, id string, status model.OrderStatus) error
	SetProviderPayment(ctx context.Context, tx Tx, id, providerPaymentID string, paymentURL *string) error
	AttachUser(ctx context.Context, tx Tx, id, userID string, userProductID *string) error

	// ListStale returns non-terminal orders with a provider payment id created before olderThan.
	ListStale(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.Order, error)
	// ListUnsettled returns confirmed orders that have no ledger transaction yet.
	ListUnsettled(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.Order, error)
}
