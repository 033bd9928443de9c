package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"subscription-billing/internal/domain"
	"subscription-billing/internal/domain/model"
	"subscription-billing/internal/domain/ports/repository"
)

var _ repository.CancellationRepository = (*cancellationRepo)(nil)

type cancellationRepo struct{ pool *pgxpool.Pool }

func NewCancellationRepo(pool *pgxpool.Pool) *cancellationRepo {
	return &cancellationRepo{pool: pool}
}

const cancellationColumns = `id, user_product_id, requester_id, referrer_id, status, reason, created_at, expires_at,
  decided_by, decided_at, decision_comment, referrer_notified, reminder_sent`

func scanCancellation(row pgx.Row) (*model.CancellationRequest, error) {
	var c model.CancellationRequest
	if err := row.Scan(&c.ID, &c.UserProductID, &c.RequesterID, &c.ReferrerID, &c.Status, &c.Reason, &c.CreatedAt, &c.ExpiresAt,
		&c.DecidedBy, &c.DecidedAt, &c.DecisionComment, &c.ReferrerNotified, &c.ReminderSent); err != nil {
		return nil, err
	}
	return &c, nil
}

// Create relies on the partial unique index over pending requests.
func (r *cancellationRepo) Create(ctx context.Context, tx repository.Tx, c *model.CancellationRequest) error {
	const q = `
INSERT INTO cancellation_requests (id, user_product_id, requester_id, referrer_id, status, reason, created_at, expires_at,
  decided_by, decided_at, decision_comment, referrer_notified, reminder_sent)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13);`
	_, err := execSQL(ctx, r.pool, tx, q, c.ID, c.UserProductID, c.RequesterID, c.ReferrerID, string(c.Status), c.Reason, c.CreatedAt,
		c.ExpiresAt, c.DecidedBy, c.DecidedAt, c.DecisionComment, c.ReferrerNotified, c.ReminderSent)
	return mapExecErr(err)
}

func (r *cancellationRepo) one(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.CancellationRequest, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	c, err := scanCancellation(row)
	if err != nil {
		return nil, mapScanErr(err)
	}
	return c, nil
}

func (r *cancellationRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.CancellationRequest, error) {
	q := forUpdate(`SELECT `+cancellationColumns+` FROM cancellation_requests WHERE id=$1`, tx) + ";"
	return r.one(ctx, tx, q, id)
}

func (r *cancellationRepo) FindPendingByUserProduct(ctx context.Context, tx repository.Tx, userProductID string) (*model.CancellationRequest, error) {
	const q = `SELECT ` + cancellationColumns + ` FROM cancellation_requests WHERE user_product_id=$1 AND status='pending' LIMIT 1;`
	return r.one(ctx, tx, q, userProductID)
}

// Resolve is guarded on the pending status so concurrent deciders cannot both win.
func (r *cancellationRepo) Resolve(ctx context.Context, tx repository.Tx, id string, to model.CancellationStatus, decidedBy *string, comment string, at time.Time) (bool, error) {
	const q = `
UPDATE cancellation_requests
   SET status=$2, decided_by=$3, decision_comment=$4, decided_at=$5
 WHERE id=$1 AND status='pending';`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, string(to), decidedBy, comment, at)
	if err != nil {
		return false, mapExecErr(err)
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *cancellationRepo) ListExpired(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.CancellationRequest, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + cancellationColumns + ` FROM cancellation_requests
 WHERE status='pending' AND expires_at <= $1
 ORDER BY expires_at ASC
 LIMIT $2;`
	return r.list(ctx, tx, q, now, limit)
}

func (r *cancellationRepo) ListReminderDue(ctx context.Context, tx repository.Tx, now, until time.Time, limit int) ([]*model.CancellationRequest, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + cancellationColumns + ` FROM cancellation_requests
 WHERE status='pending' AND NOT reminder_sent AND referrer_id IS NOT NULL
   AND expires_at > $1 AND expires_at <= $2
 ORDER BY expires_at ASC
 LIMIT $3;`
	return r.list(ctx, tx, q, now, until, limit)
}

func (r *cancellationRepo) MarkReminderSent(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	const q = `UPDATE cancellation_requests SET reminder_sent=TRUE WHERE id=$1 AND NOT reminder_sent;`
	cmd, err := execSQL(ctx, r.pool, tx, q, id)
	if err != nil {
		return false, mapExecErr(err)
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *cancellationRepo) MarkReferrerNotified(ctx context.Context, tx repository.Tx, id string) error {
	const q = `UPDATE cancellation_requests SET referrer_notified=TRUE WHERE id=$1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, id)
	if err != nil {
		return mapExecErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *cancellationRepo) ListByRequester(ctx context.Context, tx repository.Tx, userID string) ([]*model.CancellationRequest, error) {
	const q = `SELECT ` + cancellationColumns + ` FROM cancellation_requests WHERE requester_id=$1 ORDER BY created_at DESC;`
	return r.list(ctx, tx, q, userID)
}

func (r *cancellationRepo) ListByReferrer(ctx context.Context, tx repository.Tx, referrerID string) ([]*model.CancellationRequest, error) {
	const q = `SELECT ` + cancellationColumns + ` FROM cancellation_requests WHERE referrer_id=$1 ORDER BY created_at DESC;`
	return r.list(ctx, tx, q, referrerID)
}

func (r *cancellationRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.CancellationRequest, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, mapQueryErr(err)
	}
	defer rows.Close()

	var out []*model.CancellationRequest
	for rows.Next() {
		c, err := scanCancellation(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, c)
	}
	if rows.Err() != nil {
		return nil, domain.ErrOperationFailed
	}
	return out, nil
}
