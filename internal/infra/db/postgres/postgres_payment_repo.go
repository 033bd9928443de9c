package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"subscription-billing/internal/domain"
	"subscription-billing/internal/domain/model"
	"subscription-billing/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentColumns = `id, order_id, user_id, provider, amount::text, currency, status, provider_ref, failure_reason, receipt_url,
  card_token, card_id, card_pan, card_exp, created_at, updated_at, paid_at`

func scanPayment(row pgx.Row) (*model.Payment, error) {
	var (
		p      model.Payment
		amount string
	)
	if err := row.Scan(&p.ID, &p.OrderID, &p.UserID, &p.Provider, &amount, &p.Currency, &p.Status, &p.ProviderRef, &p.FailureReason, &p.ReceiptURL,
		&p.CardToken, &p.CardID, &p.CardPan, &p.CardExp, &p.CreatedAt, &p.UpdatedAt, &p.PaidAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	p.Amount = d
	return &p, nil
}

func (r *paymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	const q = `
INSERT INTO payments (
  id, order_id, user_id, provider, amount, currency, status, provider_ref, failure_reason, receipt_url,
  card_token, card_id, card_pan, card_exp, created_at, updated_at, paid_at
) VALUES ($1,$2,$3,$4,$5::numeric,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
ON CONFLICT (id) DO UPDATE SET
  user_id=$3, status=$7, provider_ref=$8, failure_reason=$9, receipt_url=$10,
  card_token=$11, card_id=$12, card_pan=$13, card_exp=$14, updated_at=NOW(), paid_at=$17;`

	_, err := execSQL(ctx, r.pool, tx, q, p.ID, p.OrderID, p.UserID, p.Provider, p.Amount.String(), p.Currency, string(p.Status),
		p.ProviderRef, p.FailureReason, p.ReceiptURL, p.CardToken, p.CardID, p.CardPan, p.CardExp, p.CreatedAt, p.UpdatedAt, p.PaidAt)
	return mapExecErr(err)
}

func (r *paymentRepo) FindByOrderID(ctx context.Context, tx repository.Tx, orderID string) (*model.Payment, error) {
	q := forUpdate(`SELECT `+paymentColumns+` FROM payments WHERE order_id=$1 LIMIT 1`, tx) + ";"
	row, err := pickRow(ctx, r.pool, tx, q, orderID)
	if err != nil {
		return nil, err
	}
	p, err := scanPayment(row)
	if err != nil {
		return nil, mapScanErr(err)
	}
	return p, nil
}

// TransitionStatus atomically moves the payment to `to` when its status is one of `from`.
// Optional columns are only overwritten when provided.
func (r *paymentRepo) TransitionStatus(
	ctx context.Context, tx repository.Tx, id string, to model.PaymentStatus, from []model.PaymentStatus, upd model.PaymentUpdate,
) (bool, error) {
	const q = `
    UPDATE payments
       SET status = $2,
           provider_ref   = COALESCE($4, provider_ref),
           failure_reason = COALESCE($5, failure_reason),
           receipt_url    = COALESCE($6, receipt_url),
           card_token     = COALESCE($7, card_token),
           card_id        = COALESCE($8, card_id),
           card_pan       = COALESCE($9, card_pan),
           card_exp       = COALESCE($10, card_exp),
           paid_at        = COALESCE($11, paid_at),
           updated_at = NOW()
     WHERE id = $1
       AND status = ANY($3)`

	statuses := make([]string, len(from))
	for i, s := range from {
		statuses[i] = string(s)
	}
	cmd, err := execSQL(ctx, r.pool, tx, q, id, string(to), statuses,
		upd.ProviderRef, upd.FailureReason, upd.ReceiptURL, upd.CardToken, upd.CardID, upd.CardPan, upd.CardExp, upd.PaidAt)
	if err != nil {
		return false, mapExecErr(err)
	}
	return cmd.RowsAffected() >= 1, nil
}
