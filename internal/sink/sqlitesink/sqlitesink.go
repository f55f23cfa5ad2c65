// Package sqlitesink persists task history records to an embedded SQLite
// database, reusing the teacher's sqlite platform package (TxRunner with
// its write-queue/retry/savepoint support) for the concern it already
// covers: serializing writes against SQLite's single-writer model.
package sqlitesink

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"chronosched/internal/logrecord"
	"chronosched/internal/platform/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Sink writes every record to the "task_history" table through the
// platform package's TxRunner, with its write queue enabled so concurrent
// sink writes from multiple running tasks serialize instead of colliding
// on SQLITE_BUSY.
type Sink struct {
	db     *sql.DB
	runner *sqlite.TxRunner
}

// Open creates/opens dbPath, applies embedded migrations, and returns a
// ready Sink. The underlying *sql.DB is owned by the Sink; call Close to
// release it.
func Open(ctx context.Context, dbPath string) (*Sink, error) {
	if err := sqlite.ApplyMigrationsFromFS(dbPath, migrationsFS, "migrations"); err != nil {
		return nil, fmt.Errorf("sqlitesink: apply migrations: %w", err)
	}
	opts := sqlite.DefaultDBOptions()
	opts.EnableWriteQueue = true
	db, err := sqlite.NewDBWithOptions(ctx, dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("sqlitesink: open: %w", err)
	}
	return &Sink{db: db, runner: sqlite.NewTxRunnerWithOptions(db, opts)}, nil
}

func (s *Sink) Close() error {
	if err := s.runner.Close(); err != nil {
		return err
	}
	return s.db.Close()
}

func (s *Sink) Write(ctx context.Context, rec logrecord.Record) error {
	return s.runner.WithinTxWrite(ctx, func(ctx context.Context) error {
		q := s.runner.GetQuerier(ctx)
		_, err := q.ExecContext(ctx,
			`INSERT INTO task_history (task_name, action, at, exc_text) VALUES (?, ?, ?, ?)`,
			rec.TaskName, string(rec.Action), rec.At.UnixNano(), rec.ExcText,
		)
		return err
	})
}
