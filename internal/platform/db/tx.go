package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type contextKey string

// DBTxKey is the context key under which the active transaction is stored.
const DBTxKey contextKey = "db_tx"

// TxFromContext returns the transaction bound to ctx, or nil.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(DBTxKey).(pgx.Tx)
	return tx
}

// WithTx binds tx to ctx so repositories run their statements inside it.
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, DBTxKey, tx)
}

// Transactor runs fn as one atomic unit of work.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// TxBeginner is satisfied by *pgxpool.Pool.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// UnitOfWork opens READ COMMITTED transactions on a pool. Uniqueness is
// enforced by unique indexes, which hold at any isolation level.
type UnitOfWork struct {
	db   TxBeginner
	opts pgx.TxOptions
}

func NewUnitOfWork(db TxBeginner) *UnitOfWork {
	return &UnitOfWork{db: db, opts: pgx.TxOptions{IsoLevel: pgx.ReadCommitted}}
}

// WithinTx commits when fn returns nil and rolls back otherwise. A call made
// while a transaction is already bound to ctx joins it instead of nesting.
func (u *UnitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := u.db.BeginTx(ctx, u.opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(WithTx(ctx, tx)); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
