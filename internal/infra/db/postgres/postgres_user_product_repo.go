package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"subscription-billing/internal/domain"
	"subscription-billing/internal/domain/model"
	"subscription-billing/internal/domain/ports/repository"
)

var _ repository.UserProductRepository = (*userProductRepo)(nil)

type userProductRepo struct{ pool *pgxpool.Pool }

func NewUserProductRepo(pool *pgxpool.Pool) *userProductRepo {
	return &userProductRepo{pool: pool}
}

const userProductColumns = `id, user_id, product_id, status, start_date, end_date, renewal_price::text, payment_method_id, created_at, updated_at`

func scanUserProduct(row pgx.Row) (*model.UserProduct, error) {
	var (
		up    model.UserProduct
		price string
	)
	if err := row.Scan(&up.ID, &up.UserID, &up.ProductID, &up.Status, &up.StartDate, &up.EndDate, &price, &up.PaymentMethodID, &up.CreatedAt, &up.UpdatedAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	up.RenewalPrice = d
	return &up, nil
}

// Lock takes a transaction-scoped advisory lock on the (user, product) pair.
func (r *userProductRepo) Lock(ctx context.Context, tx repository.Tx, userID, productID string) error {
	if _, ok := tx.(pgx.Tx); !ok {
		return domain.ErrInvalidExecContext
	}
	_, err := execSQL(ctx, r.pool, tx, `SELECT pg_advisory_xact_lock($1);`, hashToInt64("user_product:"+userID+":"+productID))
	return mapExecErr(err)
}

func (r *userProductRepo) Save(ctx context.Context, tx repository.Tx, up *model.UserProduct) error {
	const q = `
INSERT INTO user_products (id, user_id, product_id, status, start_date, end_date, renewal_price, payment_method_id, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7::numeric,$8,$9,$10);`
	_, err := execSQL(ctx, r.pool, tx, q, up.ID, up.UserID, up.ProductID, string(up.Status), up.StartDate, up.EndDate,
		up.RenewalPrice.String(), up.PaymentMethodID, up.CreatedAt, up.UpdatedAt)
	return mapExecErr(err)
}

func (r *userProductRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.UserProduct, error) {
	q := forUpdate(`SELECT `+userProductColumns+` FROM user_products WHERE id=$1`, tx) + ";"
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	up, err := scanUserProduct(row)
	if err != nil {
		return nil, mapScanErr(err)
	}
	return up, nil
}

func (r *userProductRepo) FindLive(ctx context.Context, tx repository.Tx, userID, productID string) (*model.UserProduct, error) {
	q := forUpdate(`SELECT `+userProductColumns+` FROM user_products
 WHERE user_id=$1 AND product_id=$2 AND status IN ('active','pending')
 LIMIT 1`, tx) + ";"
	row, err := pickRow(ctx, r.pool, tx, q, userID, productID)
	if err != nil {
		return nil, err
	}
	up, err := scanUserProduct(row)
	if err != nil {
		return nil, mapScanErr(err)
	}
	return up, nil
}

func (r *userProductRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.UserProduct, error) {
	const q = `SELECT ` + userProductColumns + ` FROM user_products WHERE user_id=$1 ORDER BY created_at DESC;`
	return r.list(ctx, tx, q, userID)
}

// ListDueForRenewal selects live subscription rows ending before the cutoff whose
// attached card is still active. The user's other cards are only tried once a row
// is selected.
func (r *userProductRepo) ListDueForRenewal(ctx context.Context, tx repository.Tx, before time.Time, limit int) ([]*model.UserProduct, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT up.id, up.user_id, up.product_id, up.status, up.start_date, up.end_date, up.renewal_price::text,
       up.payment_method_id, up.created_at, up.updated_at
  FROM user_products up
  JOIN products p ON p.id = up.product_id
  JOIN payment_methods pm ON pm.id = up.payment_method_id
 WHERE up.status IN ('active','pending')
   AND p.type = 'subscription'
   AND up.end_date <= $1
   AND pm.status = 'active'
 ORDER BY up.end_date ASC
 LIMIT $2;`
	return r.list(ctx, tx, q, before, limit)
}

// Renew extends a live row. A row cancelled or expired meanwhile is left untouched.
func (r *userProductRepo) Renew(ctx context.Context, tx repository.Tx, id string, endDate time.Time, methodID *string) (bool, error) {
	const q = `
UPDATE user_products
   SET end_date = $2,
       payment_method_id = COALESCE($3, payment_method_id),
       status = 'active',
       updated_at = NOW()
 WHERE id = $1
   AND status IN ('active','pending');`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, endDate, methodID)
	if err != nil {
		return false, mapExecErr(err)
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *userProductRepo) TransitionStatus(ctx context.Context, tx repository.Tx, id string, to model.SubscriptionStatus, from []model.SubscriptionStatus) (bool, error) {
	const q = `UPDATE user_products SET status=$2, updated_at=NOW() WHERE id=$1 AND status = ANY($3);`
	statuses := make([]string, len(from))
	for i, s := range from {
		statuses[i] = string(s)
	}
	cmd, err := execSQL(ctx, r.pool, tx, q, id, string(to), statuses)
	if err != nil {
		return false, mapExecErr(err)
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *userProductRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.SubscriptionStatus]int, error) {
	const q = `SELECT status, COUNT(*) FROM user_products GROUP BY status;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, mapQueryErr(err)
	}
	defer rows.Close()

	out := make(map[model.SubscriptionStatus]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out[model.SubscriptionStatus(status)] = n
	}
	if rows.Err() != nil {
		return nil, domain.ErrOperationFailed
	}
	return out, nil
}

func (r *userProductRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.UserProduct, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, mapQueryErr(err)
	}
	defer rows.Close()

	var out []*model.UserProduct
	for rows.Next() {
		up, err := scanUserProduct(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, up)
	}
	if rows.Err() != nil {
		return nil, domain.ErrOperationFailed
	}
	return out, nil
}
