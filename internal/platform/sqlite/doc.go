// Package sqlite provides the embedded-SQLite plumbing sqlitesink builds
// on: connection setup with sane PRAGMA defaults, a TxRunner with
// write-queue/retry/savepoint support for serializing concurrent history
// writes, and schema migrations loaded from an embed.FS.
//
// # Opening a database
//
//	ctx := context.Background()
//	db, err := sqlite.NewDB(ctx, "history.db")
//	if err != nil {
//		return err
//	}
//	defer db.Close()
//
// # Transactions
//
//	runner := sqlite.NewTxRunner(db)
//	err = runner.WithinTx(ctx, func(ctx context.Context) error {
//		querier := runner.GetQuerier(ctx)
//		_, err := querier.ExecContext(ctx, "INSERT INTO task_history (task_name) VALUES (?)", "report")
//		return err
//	})
//
// Savepoints nest inside an existing transaction, or open one of their own:
//
//	err = runner.WithinTx(ctx, func(outerCtx context.Context) error {
//		return runner.WithinSavepoint(outerCtx, func(innerCtx context.Context) error {
//			return nil // rolled back independently of the outer transaction on error
//		})
//	})
//
// Read and write paths are distinguished so only writes go through the queue:
//
//	err = runner.WithinTxRead(ctx, func(ctx context.Context) error { ... })
//	err = runner.WithinTxWrite(ctx, func(ctx context.Context) error { ... })
//
// # Write concurrency
//
// sqlitesink enables the write queue so concurrent task-completion
// callbacks serialize instead of racing on SQLITE_BUSY:
//
//	opts := sqlite.DefaultDBOptions()
//	opts.EnableWriteQueue = true
//	opts.TxLockMode = sqlite.TxLockImmediate // optional; sqlitesink keeps the default lock mode
//	db, err := sqlite.NewDBWithOptions(ctx, "history.db", opts)
//
// # Migrations
//
// sqlitesink embeds its schema and applies it with ApplyMigrationsFromFS:
//
//	//go:embed migrations/*.sql
//	var migrationsFS embed.FS
//	err = sqlite.ApplyMigrationsFromFS("history.db", migrationsFS, "migrations")
package sqlite
