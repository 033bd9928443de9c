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

var _ repository.ReferralRepository = (*referralRepo)(nil)

type referralRepo struct{ pool *pgxpool.Pool }

func NewReferralRepo(pool *pgxpool.Pool) *referralRepo {
	return &referralRepo{pool: pool}
}

const referralColumns = `id, referrer_id, referred_user_id, commission_rate::text, total_earned::text, paid_out::text, created_at, updated_at`

func scanReferral(row pgx.Row) (*model.Referral, error) {
	var (
		ref                   model.Referral
		rate, earned, paidOut string
	)
	if err := row.Scan(&ref.ID, &ref.ReferrerID, &ref.ReferredUserID, &rate, &earned, &paidOut, &ref.CreatedAt, &ref.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if ref.CommissionRate, err = decimal.NewFromString(rate); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	if ref.TotalEarned, err = decimal.NewFromString(earned); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	if ref.PaidOut, err = decimal.NewFromString(paidOut); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return &ref, nil
}

// FindByReferredUser returns the oldest relationship of the referred user.
func (r *referralRepo) FindByReferredUser(ctx context.Context, tx repository.Tx, userID string) (*model.Referral, error) {
	const q = `SELECT ` + referralColumns + ` FROM referrals WHERE referred_user_id=$1 ORDER BY created_at ASC LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, err
	}
	ref, err := scanReferral(row)
	if err != nil {
		return nil, mapScanErr(err)
	}
	return ref, nil
}

// GetOrCreate inserts ref unless the pair exists, then returns the stored row.
func (r *referralRepo) GetOrCreate(ctx context.Context, tx repository.Tx, ref *model.Referral) (*model.Referral, error) {
	const ins = `
INSERT INTO referrals (id, referrer_id, referred_user_id, commission_rate, total_earned, paid_out, created_at, updated_at)
VALUES ($1,$2,$3,$4::numeric,0,0,$5,$6)
ON CONFLICT (referrer_id, referred_user_id) DO NOTHING;`
	if _, err := execSQL(ctx, r.pool, tx, ins, ref.ID, ref.ReferrerID, ref.ReferredUserID, ref.CommissionRate.String(), ref.CreatedAt, ref.UpdatedAt); err != nil {
		return nil, mapExecErr(err)
	}

	q := forUpdate(`SELECT `+referralColumns+` FROM referrals WHERE referrer_id=$1 AND referred_user_id=$2`, tx) + ";"
	row, err := pickRow(ctx, r.pool, tx, q, ref.ReferrerID, ref.ReferredUserID)
	if err != nil {
		return nil, err
	}
	stored, err := scanReferral(row)
	if err != nil {
		return nil, mapScanErr(err)
	}
	return stored, nil
}

func (r *referralRepo) AddEarnings(ctx context.Context, tx repository.Tx, referralID string, amount decimal.Decimal) error {
	const q = `UPDATE referrals SET total_earned = total_earned + $2::numeric, updated_at = NOW() WHERE id=$1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, referralID, amount.String())
	if err != nil {
		return mapExecErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *referralRepo) AddCommission(ctx context.Context, tx repository.Tx, c *model.ReferralCommission) (bool, error) {
	const q = `
INSERT INTO referral_commissions (id, referral_id, order_id, amount, commission_rate, commission_amount, status, payout_id, created_at)
VALUES ($1,$2,$3,$4::numeric,$5::numeric,$6::numeric,$7,$8,$9)
ON CONFLICT (order_id) DO NOTHING;`
	cmd, err := execSQL(ctx, r.pool, tx, q, c.ID, c.ReferralID, c.OrderID, c.Amount.String(), c.CommissionRate.String(),
		c.CommissionAmount.String(), string(c.Status), c.PayoutID, c.CreatedAt)
	if err != nil {
		return false, mapExecErr(err)
	}
	return cmd.RowsAffected() == 1, nil
}
