package repository

import (
	"context"

	"subscription-billing/internal/domain/model"
)

type PaymentMethodRepository interface {
	// Upsert is keyed by the rebill token. On conflict m.ID is replaced by the stored id
	// and created is false.
	Upsert(ctx context.Context, tx Tx, m *model.PaymentMethod) (created bool, err error)
	FindByID(ctx context.Context, tx Tx, id string) (*model.PaymentMethod, error)
	// ListActiveByUser orders the default card first, then the most recently used.
	ListActiveByUser(ctx context.Context, tx Tx, userID string) ([]*model.PaymentMethod, error)
	// SetDefault marks methodID as the only default card of userID.
	SetDefault(ctx context.Context, tx Tx, userID, methodID string) error
}

type MandateRepository interface {
	// Upsert is keyed by (user, mandate number).
	Upsert(ctx context.Context, tx Tx, m *model.Mandate) (created bool, err error)
}
