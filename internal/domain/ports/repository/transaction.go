package repository

import (
	"context"

	"subscription-billing/internal/domain/model"
)

// TransactionRepository is the append-only ledger.
type TransactionRepository interface {
	// Append writes t once per (type, provider reference); created is false on replay.
	Append(ctx context.Context, tx Tx, t *model.Transaction) (created bool, err error)
	ExistsForOrder(ctx context.Context, tx Tx, orderID string) (bool, error)
}
