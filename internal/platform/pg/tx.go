package pg

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// txKey is the context key a transaction is stashed under.
type txKey struct{}

// Querier unifies the query methods a pool and a transaction both expose,
// so pgsink's single insert statement works identically whether it's
// run through the pool or inside WithinTx.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var (
	_ Querier = (*pgxpool.Pool)(nil)
	_ Querier = (pgx.Tx)(nil)
)

// TxRunner runs callbacks inside a transaction, committing on a nil
// return and rolling back otherwise.
type TxRunner struct {
	Pool *pgxpool.Pool
}

// NewTxRunner wraps pool in a TxRunner.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{Pool: pool}
}

// WithinTx runs fn inside a transaction with default options. The
// transaction is reachable inside fn via PgxTx(ctx); pgsink.Write's
// single insert goes through this every call.
func (r *TxRunner) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return pgx.BeginFunc(ctx, r.Pool, func(tx pgx.Tx) error {
		ctx = context.WithValue(ctx, txKey{}, tx)
		return fn(ctx)
	})
}

// WithinTxWithOptions is WithinTx with caller-supplied transaction
// options (isolation level, access mode).
func (r *TxRunner) WithinTxWithOptions(ctx context.Context, txOptions pgx.TxOptions, fn func(ctx context.Context) error) error {
	return pgx.BeginTxFunc(ctx, r.Pool, txOptions, func(tx pgx.Tx) error {
		ctx = context.WithValue(ctx, txKey{}, tx)
		return fn(ctx)
	})
}

// PgxTx retrieves the active transaction from ctx, if any.
func PgxTx(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	return tx, ok
}

// GetQuerier returns the active transaction's Querier if ctx carries
// one, otherwise the pool itself.
func (r *TxRunner) GetQuerier(ctx context.Context) Querier {
	if tx, ok := PgxTx(ctx); ok {
		return tx
	}
	return r.Pool
}
