package repository

import (
	"context"

	"subscription-billing/internal/domain/model"
)

type PaymentRepository interface {
	Save(ctx context.Context, tx Tx, p *model.Payment) error
	FindByOrderID(ctx context.Context, tx Tx, orderID string) (*model.Payment, error)
	// TransitionStatus moves the payment to `to` only when its current status is one of `from`.
	TransitionStatus(ctx context.Context, tx Tx, id string, to model.PaymentStatus, from []model.PaymentStatus, upd model.PaymentUpdate) (bool, error)
}
