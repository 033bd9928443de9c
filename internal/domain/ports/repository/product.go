package repository

import (
	"context"

	"subscription-billing/internal/domain/model"
)

// ProductRepository is the port for catalog reads used by billing.
type ProductRepository interface {
	Save(ctx context.Context, tx Tx, p *model.Product) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Product, error)
	ListActive(ctx context.Context, tx Tx) ([]*model.Product, error)
}
