package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"subscription-billing/internal/domain"
	"subscription-billing/internal/domain/model"
	"subscription-billing/internal/domain/ports/repository"
)

var _ repository.TransactionRepository = (*transactionRepo)(nil)

type transactionRepo struct{ pool *pgxpool.Pool }

func NewTransactionRepo(pool *pgxpool.Pool) *transactionRepo {
	return &transactionRepo{pool: pool}
}

// Append is the ledger's idempotency claim: a replayed (type, provider_ref) affects no row.
func (r *transactionRepo) Append(ctx context.Context, tx repository.Tx, t *model.Transaction) (bool, error) {
	const q = `
INSERT INTO transactions (id, user_id, order_id, payment_id, type, amount, currency, provider_ref, description, created_at)
VALUES ($1,$2,$3,$4,$5,$6::numeric,$7,$8,$9,$10)
ON CONFLICT (type, provider_ref) DO NOTHING;`

	cmd, err := execSQL(ctx, r.pool, tx, q, t.ID, t.UserID, t.OrderID, t.PaymentID, string(t.Type), t.Amount.String(),
		t.Currency, t.ProviderRef, t.Description, t.CreatedAt)
	if err != nil {
		return false, mapExecErr(err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *transactionRepo) ExistsForOrder(ctx context.Context, tx repository.Tx, orderID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM transactions WHERE order_id=$1);`
	row, err := pickRow(ctx, r.pool, tx, q, orderID)
	if err != nil {
		return false, err
	}
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, domain.ErrReadDatabaseRow
	}
	return exists, nil
}
