package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"subscription-billing/internal/domain"
	"subscription-billing/internal/domain/model"
	"subscription-billing/internal/domain/ports/repository"
)

var (
	_ repository.PaymentMethodRepository = (*paymentMethodRepo)(nil)
	_ repository.MandateRepository       = (*mandateRepo)(nil)
)

type paymentMethodRepo struct{ pool *pgxpool.Pool }

func NewPaymentMethodRepo(pool *pgxpool.Pool) *paymentMethodRepo {
	return &paymentMethodRepo{pool: pool}
}

const paymentMethodColumns = `id, user_id, provider, rebill_id, card_id, pan_mask, exp_date, status, is_default, created_at, updated_at`

func scanPaymentMethod(row pgx.Row) (*model.PaymentMethod, error) {
	var m model.PaymentMethod
	if err := row.Scan(&m.ID, &m.UserID, &m.Provider, &m.RebillID, &m.CardID, &m.PanMask, &m.ExpDate, &m.Status, &m.IsDefault, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

// Upsert inserts m or refreshes the card details of the row holding the same rebill token.
// xmax = 0 identifies a fresh insert.
func (r *paymentMethodRepo) Upsert(ctx context.Context, tx repository.Tx, m *model.PaymentMethod) (bool, error) {
	const q = `
INSERT INTO payment_methods (id, user_id, provider, rebill_id, card_id, pan_mask, exp_date, status, is_default, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (rebill_id) DO UPDATE SET
  card_id  = COALESCE(EXCLUDED.card_id, payment_methods.card_id),
  pan_mask = CASE WHEN EXCLUDED.pan_mask <> '' THEN EXCLUDED.pan_mask ELSE payment_methods.pan_mask END,
  exp_date = CASE WHEN EXCLUDED.exp_date <> '' THEN EXCLUDED.exp_date ELSE payment_methods.exp_date END,
  status   = 'active',
  updated_at = NOW()
RETURNING id, (xmax = 0) AS inserted;`

	row, err := pickRow(ctx, r.pool, tx, q, m.ID, m.UserID, m.Provider, m.RebillID, m.CardID, m.PanMask, m.ExpDate,
		string(m.Status), m.IsDefault, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return false, err
	}
	var (
		id       string
		inserted bool
	)
	if err := row.Scan(&id, &inserted); err != nil {
		return false, mapExecErr(err)
	}
	m.ID = id
	return inserted, nil
}

func (r *paymentMethodRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PaymentMethod, error) {
	const q = `SELECT ` + paymentMethodColumns + ` FROM payment_methods WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	m, err := scanPaymentMethod(row)
	if err != nil {
		return nil, mapScanErr(err)
	}
	return m, nil
}

func (r *paymentMethodRepo) ListActiveByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.PaymentMethod, error) {
	const q = `SELECT ` + paymentMethodColumns + ` FROM payment_methods
 WHERE user_id=$1 AND status='active'
 ORDER BY is_default DESC, updated_at DESC;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, mapQueryErr(err)
	}
	defer rows.Close()

	var out []*model.PaymentMethod
	for rows.Next() {
		m, err := scanPaymentMethod(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, m)
	}
	if rows.Err() != nil {
		return nil, domain.ErrOperationFailed
	}
	return out, nil
}

func (r *paymentMethodRepo) SetDefault(ctx context.Context, tx repository.Tx, userID, methodID string) error {
	const q = `UPDATE payment_methods SET is_default = (id = $2), updated_at = NOW() WHERE user_id = $1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, userID, methodID)
	if err != nil {
		return mapExecErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type mandateRepo struct{ pool *pgxpool.Pool }

func NewMandateRepo(pool *pgxpool.Pool) *mandateRepo {
	return &mandateRepo{pool: pool}
}

func (r *mandateRepo) Upsert(ctx context.Context, tx repository.Tx, m *model.Mandate) (bool, error) {
	const q = `
INSERT INTO mandates (id, user_id, payment_method_id, provider, mandate_number, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (user_id, mandate_number) DO UPDATE SET
  payment_method_id = EXCLUDED.payment_method_id,
  status = 'active',
  updated_at = NOW()
RETURNING id, (xmax = 0) AS inserted;`

	row, err := pickRow(ctx, r.pool, tx, q, m.ID, m.UserID, m.PaymentMethodID, m.Provider, m.MandateNumber, string(m.Status), m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return false, err
	}
	var (
		id       string
		inserted bool
	)
	if err := row.Scan(&id, &inserted); err != nil {
		return false, mapExecErr(err)
	}
	m.ID = id
	return inserted, nil
}
