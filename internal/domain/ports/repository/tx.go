package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager runs fn inside a storage transaction and hands the handle to
// repositories through the tx argument.
//
// Repositories detect a live transaction (pgx.Tx for Postgres) to take row locks
// (SELECT ... FOR UPDATE) and to bind Exec/Query to it. A nil tx means the
// non-transactional path. fn returning an error rolls everything back.
//
//	err := tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
//		o, err := orders.FindByRef(ctx, tx, ref) // row locked until commit
//		...
//	})
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
