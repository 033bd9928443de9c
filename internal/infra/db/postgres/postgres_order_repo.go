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

var _ repository.OrderRepository = (*orderRepo)(nil)

type orderRepo struct{ pool *pgxpool.Pool }

func NewOrderRepo(pool *pgxpool.Pool) *orderRepo {
	return &orderRepo{pool: pool}
}

const orderColumns = `id, order_ref, kind, user_id, product_id, user_product_id, referrer_id, amount::text, currency, status,
  customer_email, customer_name, customer_phone, description, provider_payment_id, payment_url, save_card, created_at, updated_at`

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o      model.Order
		amount string
	)
	if err := row.Scan(&o.ID, &o.OrderRef, &o.Kind, &o.UserID, &o.ProductID, &o.UserProductID, &o.ReferrerID, &amount, &o.Currency, &o.Status,
		&o.Customer.Email, &o.Customer.Name, &o.Customer.Phone, &o.Description, &o.ProviderPaymentID, &o.PaymentURL, &o.SaveCard, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	o.Amount = d
	return &o, nil
}

func (r *orderRepo) Save(ctx context.Context, tx repository.Tx, o *model.Order) error {
	const q = `
INSERT INTO orders (
  id, order_ref, kind, user_id, product_id, user_product_id, referrer_id, amount, currency, status,
  customer_email, customer_name, customer_phone, description, provider_payment_id, payment_url, save_card, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8::numeric,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
ON CONFLICT (id) DO UPDATE SET
  user_id=$4, product_id=$5, user_product_id=$6, referrer_id=$7, status=$10, description=$14,
  provider_payment_id=$15, payment_url=$16, updated_at=NOW();`

	_, err := execSQL(ctx, r.pool, tx, q, o.ID, o.OrderRef, string(o.Kind), o.UserID, o.ProductID, o.UserProductID, o.ReferrerID,
		o.Amount.String(), o.Currency, string(o.Status), o.Customer.Email, o.Customer.Name, o.Customer.Phone, o.Description,
		o.ProviderPaymentID, o.PaymentURL, o.SaveCard, o.CreatedAt, o.UpdatedAt)
	return mapExecErr(err)
}

func (r *orderRepo) findOne(ctx context.Context, tx repository.Tx, where string, arg interface{}) (*model.Order, error) {
	q := forUpdate(`SELECT `+orderColumns+` FROM orders WHERE `+where+` LIMIT 1`, tx) + ";"
	row, err := pickRow(ctx, r.pool, tx, q, arg)
	if err != nil {
		return nil, err
	}
	o, err := scanOrder(row)
	if err != nil {
		return nil, mapScanErr(err)
	}
	return o, nil
}

func (r *orderRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Order, error) {
	return r.findOne(ctx, tx, "id=$1", id)
}

func (r *orderRepo) FindByRef(ctx context.Context, tx repository.Tx, ref string) (*model.Order, error) {
	return r.findOne(ctx, tx, "order_ref=$1", ref)
}

func (r *orderRepo) FindByProviderPaymentID(ctx context.Context, tx repository.Tx, providerPaymentID string) (*model.Order, error) {
	return r.findOne(ctx, tx, "provider_payment_id=$1", providerPaymentID)
}

func (r *orderRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.OrderStatus) error {
	const q = `UPDATE orders SET status=$2, updated_at=NOW() WHERE id=$1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, string(status))
	if err != nil {
		return mapExecErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *orderRepo) SetProviderPayment(ctx context.Context, tx repository.Tx, id, providerPaymentID string, paymentURL *string) error {
	const q = `UPDATE orders SET provider_payment_id=$2, payment_url=COALESCE($3, payment_url), updated_at=NOW() WHERE id=$1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, providerPaymentID, paymentURL)
	if err != nil {
		return mapExecErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *orderRepo) AttachUser(ctx context.Context, tx repository.Tx, id, userID string, userProductID *string) error {
	const q = `UPDATE orders SET user_id=$2, user_product_id=COALESCE($3, user_product_id), updated_at=NOW() WHERE id=$1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, userID, userProductID)
	if err != nil {
		return mapExecErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *orderRepo) ListStale(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + orderColumns + ` FROM orders
 WHERE provider_payment_id IS NOT NULL
   AND status NOT IN ('CONFIRMED','REJECTED','AUTH_FAIL','CANCELED','DEADLINE_EXPIRED','REVERSED','REFUNDED','PARTIAL_REFUNDED')
   AND created_at < $1
 ORDER BY created_at ASC
 LIMIT $2;`
	return r.list(ctx, tx, q, olderThan, limit)
}

func (r *orderRepo) ListUnsettled(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + orderColumns + ` FROM orders o
 WHERE o.status='CONFIRMED'
   AND o.kind <> 'card_binding'
   AND o.updated_at < $1
   AND NOT EXISTS (SELECT 1 FROM transactions t WHERE t.order_id = o.id)
 ORDER BY o.updated_at ASC
 LIMIT $2;`
	return r.list(ctx, tx, q, olderThan, limit)
}

func (r *orderRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.Order, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, mapQueryErr(err)
	}
	defer rows.Close()

	var out []*model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, o)
	}
	if rows.Err() != nil {
		return nil, domain.ErrOperationFailed
	}
	return out, nil
}
