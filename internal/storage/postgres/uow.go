package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/fulfillment"
	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/inventory"
	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/order"
)

var _ fulfillment.UnitOfWork = (*UnitOfWork)(nil)

// UnitOfWork implements fulfillment.UnitOfWork over a pgx transaction.
type UnitOfWork struct {
	pool *pgxpool.Pool
}

// NewUnitOfWork returns a UnitOfWork backed by the given pool.
func NewUnitOfWork(pool *pgxpool.Pool) *UnitOfWork {
	return &UnitOfWork{pool: pool}
}

// Do runs fn inside one database transaction. Lock and serialization failures
// surface as inventory.ErrConcurrencyConflict so callers can retry.
func (u *UnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, tx fulfillment.Tx) error) error {
	dbTx, err := u.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer func() { _ = dbTx.Rollback(ctx) }()

	if err := fn(ctx, &txContext{tx: dbTx}); err != nil {
		return mapConflict(err)
	}
	if err := dbTx.Commit(ctx); err != nil {
		return mapConflict(errors.Wrap(err, "commit transaction"))
	}
	return nil
}

// txContext scopes the repositories to one transaction.
type txContext struct {
	tx pgx.Tx
}

func (t *txContext) Orders() order.Repository { return &OrderRepository{db: t.tx} }
func (t *txContext) Ledger() inventory.Ledger { return &Ledger{db: t.tx, inTx: true} }
