package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// txKey is the context key a transaction is stashed under.
type txKey struct{}

// Querier unifies the query methods a *sql.DB and a transaction both
// expose, so sqlitesink's insert works identically whether it runs
// through the pool or inside WithinTx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

var (
	_ Querier = (*sql.DB)(nil)
	_ Querier = (*sql.Tx)(nil)
	_ Querier = (*manualTx)(nil)
)

// writeRequest is one pending write-queue operation.
type writeRequest struct {
	fn       func(context.Context) error
	resultCh chan error
	ctx      context.Context
}

// TxRunner runs callbacks inside a transaction, committing on a nil
// return and rolling back otherwise, with an optional write queue and
// SQLITE_BUSY retry on top.
type TxRunner struct {
	DB             *sql.DB
	TxLockMode     TxLockMode
	RetryConfig    *RetryConfig
	writeQueue     chan writeRequest
	writeQueueDone chan struct{}
	enableQueue    bool
}

// NewTxRunner wraps db in a TxRunner using DefaultDBOptions.
func NewTxRunner(db *sql.DB) *TxRunner {
	return NewTxRunnerWithOptions(db, DefaultDBOptions())
}

// RetryConfig controls the backoff used to retry a SQLITE_BUSY error.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// NewTxRunnerWithOptions wraps db in a TxRunner configured from opts,
// starting the write-queue goroutine if opts.EnableWriteQueue is set.
func NewTxRunnerWithOptions(db *sql.DB, opts DBOptions) *TxRunner {
	runner := &TxRunner{
		DB:         db,
		TxLockMode: opts.TxLockMode,
		RetryConfig: &RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 10 * time.Millisecond,
			MaxDelay:     500 * time.Millisecond,
			Multiplier:   2.0,
		},
		enableQueue: opts.EnableWriteQueue,
	}

	if opts.EnableWriteQueue {
		runner.writeQueue = make(chan writeRequest, opts.WriteQueueSize)
		runner.writeQueueDone = make(chan struct{})
		go runner.runWriteQueue()
	}

	return runner
}

// Close shuts down the write queue, if one is running, waiting for it to
// drain.
func (r *TxRunner) Close() error {
	if r.enableQueue && r.writeQueue != nil {
		close(r.writeQueue)
		<-r.writeQueueDone
	}
	return nil
}

// WithinTx runs fn inside a transaction. If the write queue is enabled,
// fn is routed through it; otherwise it runs directly with retry on
// SQLITE_BUSY. The transaction is reachable inside fn via SqlTx(ctx).
func (r *TxRunner) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.enableQueue {
		return r.enqueueWrite(ctx, fn)
	}

	return r.executeWithRetry(ctx, fn)
}

// WithinTxWrite is WithinTx for a write: it always goes through the
// queue when one is enabled. sqlitesink's history insert uses this.
func (r *TxRunner) WithinTxWrite(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.WithinTx(ctx, fn)
}

// WithinTxRead runs fn with retry but bypasses the write queue, since a
// read never contends with SQLite's single-writer restriction the way a
// write does.
func (r *TxRunner) WithinTxRead(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.executeWithRetry(ctx, fn)
}

// WithinSavepoint runs fn inside a SAVEPOINT. If ctx already carries a
// transaction, the savepoint nests inside it; otherwise a new
// transaction is opened to hold it. On error, only the savepoint is
// rolled back.
func (r *TxRunner) WithinSavepoint(ctx context.Context, fn func(ctx context.Context) error) error {
	if existingQuerier, hasActiveTx := GetTxQuerier(ctx); hasActiveTx {
		return r.executeSavepoint(ctx, existingQuerier, fn)
	}

	return r.executeWithRetry(ctx, func(txCtx context.Context) error {
		querier := r.GetQuerier(txCtx)
		return r.executeSavepoint(txCtx, querier, fn)
	})
}

// SqlTx retrieves the active *sql.Tx from ctx, if any. A manually-begun
// transaction (TxLockImmediate/TxLockExclusive) doesn't have a real
// *sql.Tx and reports false here even though GetTxQuerier would find it.
func SqlTx(ctx context.Context) (*sql.Tx, bool) {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx, true
	}
	return nil, false
}

// GetTxQuerier retrieves whatever transaction value ctx carries (a
// *sql.Tx or a manualTx) as a Querier.
func GetTxQuerier(ctx context.Context) (Querier, bool) {
	if querier, ok := ctx.Value(txKey{}).(Querier); ok {
		return querier, true
	}
	return nil, false
}

// GetQuerier returns the active transaction's Querier if ctx carries
// one, otherwise the runner's *sql.DB.
func (r *TxRunner) GetQuerier(ctx context.Context) Querier {
	if querier, ok := GetTxQuerier(ctx); ok {
		return querier
	}
	return r.DB
}

// BeginTx opens a transaction with opts and stashes it in the returned
// context. The caller owns commit/rollback.
func (r *TxRunner) BeginTx(ctx context.Context, opts *sql.TxOptions) (context.Context, *sql.Tx, error) {
	tx, err := r.DB.BeginTx(ctx, opts)
	if err != nil {
		return ctx, nil, err
	}

	ctx = context.WithValue(ctx, txKey{}, tx)
	return ctx, tx, nil
}

// runWriteQueue drains the write queue in its own goroutine, one
// request at a time, so writes serialize regardless of how many
// goroutines call WithinTxWrite concurrently.
func (r *TxRunner) runWriteQueue() {
	defer close(r.writeQueueDone)

	for req := range r.writeQueue {
		select {
		case <-req.ctx.Done():
			req.resultCh <- req.ctx.Err()
		default:
			err := r.executeWithRetry(req.ctx, req.fn)
			req.resultCh <- err
		}
		close(req.resultCh)
	}
}

// enqueueWrite submits fn to the write queue and waits for its result.
func (r *TxRunner) enqueueWrite(ctx context.Context, fn func(context.Context) error) error {
	req := writeRequest{
		fn:       fn,
		resultCh: make(chan error, 1),
		ctx:      ctx,
	}

	select {
	case r.writeQueue <- req:
		select {
		case err := <-req.resultCh:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// executeWithRetry runs fn in a transaction, retrying on SQLITE_BUSY
// with exponential backoff up to RetryConfig.MaxAttempts.
func (r *TxRunner) executeWithRetry(ctx context.Context, fn func(context.Context) error) error {
	delay := r.RetryConfig.InitialDelay

	for attempt := 1; attempt <= r.RetryConfig.MaxAttempts; attempt++ {
		err := r.executeTx(ctx, fn)

		if err == nil || attempt == r.RetryConfig.MaxAttempts {
			return err
		}

		if !r.isSQLiteBusyError(err) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
			delay = time.Duration(float64(delay) * r.RetryConfig.Multiplier)
			if delay > r.RetryConfig.MaxDelay {
				delay = r.RetryConfig.MaxDelay
			}
		}
	}

	return fmt.Errorf("max retry attempts exceeded")
}

// executeTx runs one attempt at fn inside a transaction.
func (r *TxRunner) executeTx(ctx context.Context, fn func(context.Context) error) error {
	if _, existingTx := GetTxQuerier(ctx); existingTx {
		return fmt.Errorf("nested transactions are not supported by SQLite")
	}

	// A non-DEFERRED lock mode needs a manual BEGIN, since database/sql
	// has no way to pass a lock mode to BeginTx.
	if r.TxLockMode != TxLockDeferred {
		return r.executeTxWithLockMode(ctx, fn)
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	ctx = context.WithValue(ctx, txKey{}, tx)

	if err := fn(ctx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

// executeTxWithLockMode runs fn inside a transaction opened with an
// explicit BEGIN <mode>, since a manually-begun SQLite transaction has
// no corresponding *sql.Tx to hand back.
func (r *TxRunner) executeTxWithLockMode(ctx context.Context, fn func(context.Context) error) error {
	beginQuery := fmt.Sprintf("BEGIN %s", r.TxLockMode)
	_, err := r.DB.ExecContext(ctx, beginQuery)
	if err != nil {
		return err
	}

	manualTxWrapper := &manualTx{db: r.DB, ctx: ctx}
	ctx = context.WithValue(ctx, txKey{}, manualTxWrapper)

	if err := fn(ctx); err != nil {
		_, _ = r.DB.ExecContext(ctx, "ROLLBACK")
		return err
	}

	_, err = r.DB.ExecContext(ctx, "COMMIT")
	return err
}

// manualTx wraps the plain connection so code inside an IMMEDIATE or
// EXCLUSIVE transaction still sees a Querier, even without a *sql.Tx.
type manualTx struct {
	db  *sql.DB
	ctx context.Context
}

func (m *manualTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return m.db.ExecContext(ctx, query, args...)
}

func (m *manualTx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return m.db.QueryContext(ctx, query, args...)
}

func (m *manualTx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return m.db.QueryRowContext(ctx, query, args...)
}

func (m *manualTx) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	return m.db.PrepareContext(ctx, query)
}

// isSQLiteBusyError reports whether err looks like a SQLITE_BUSY/locked
// error, the only case executeWithRetry retries.
func (r *TxRunner) isSQLiteBusyError(err error) bool {
	if err == nil {
		return false
	}

	errStr := err.Error()
	return strings.Contains(errStr, "database is locked") ||
		strings.Contains(errStr, "SQLITE_BUSY") ||
		strings.Contains(errStr, "database table is locked")
}

// executeSavepoint runs fn inside a uniquely-named SAVEPOINT, rolling
// back to it (not the whole transaction) on error.
func (r *TxRunner) executeSavepoint(ctx context.Context, querier Querier, fn func(context.Context) error) error {
	savepointName := fmt.Sprintf("sp_%d", time.Now().UnixNano())

	if _, err := querier.ExecContext(ctx, "SAVEPOINT "+savepointName); err != nil {
		return fmt.Errorf("failed to create savepoint %s: %w", savepointName, err)
	}

	if err := fn(ctx); err != nil {
		if _, rollbackErr := querier.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+savepointName); rollbackErr != nil {
			return fmt.Errorf("failed to rollback to savepoint %s: %v (original error: %w)", savepointName, rollbackErr, err)
		}
		_, _ = querier.ExecContext(ctx, "RELEASE SAVEPOINT "+savepointName)
		return err
	}

	if _, err := querier.ExecContext(ctx, "RELEASE SAVEPOINT "+savepointName); err != nil {
		return fmt.Errorf("failed to release savepoint %s: %w", savepointName, err)
	}

	return nil
}
