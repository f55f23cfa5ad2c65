// Package pgsink persists task history records to PostgreSQL on top of
// the platform pg package's pool/TxRunner/migration helpers: a sink
// write is just another callback run WithinTx.
package pgsink

import (
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"chronosched/internal/logrecord"
	"chronosched/internal/platform/pg"
	"chronosched/pkg/retry"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Sink writes every record to the "task_history" table inside its own
// transaction, via the platform package's TxRunner. Writes retry on
// transient connection errors so a momentary blip in the Postgres
// connection doesn't silently drop a history record.
type Sink struct {
	runner   *pg.TxRunner
	retryCfg retry.Config
}

// Open waits for dsn to accept connections (a scheduler started under
// docker-compose may race a Postgres container's own startup), applies
// embedded migrations, and returns a ready Sink. The pool is owned by
// the Sink; call Close to release it.
func Open(ctx context.Context, dsn string) (*Sink, error) {
	if err := pg.WaitForDBSimple(ctx, dsn, 30*time.Second); err != nil {
		return nil, fmt.Errorf("pgsink: wait for database: %w", err)
	}
	if _, err := pg.ApplyMigrationsFromFS(dsn, migrationsFS, "migrations"); err != nil {
		return nil, fmt.Errorf("pgsink: apply migrations: %w", err)
	}
	pool, err := pg.NewPool(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgsink: connect: %w", err)
	}
	return &Sink{runner: pg.NewTxRunner(pool), retryCfg: retry.DefaultConfig()}, nil
}

// New wraps an already-open pool, for callers that manage pool lifecycle
// themselves (tests, or an app that shares one pool across sinks).
func New(pool *pgxpool.Pool) *Sink {
	return &Sink{runner: pg.NewTxRunner(pool), retryCfg: retry.DefaultConfig()}
}

func (s *Sink) Close() {
	s.runner.Pool.Close()
}

func (s *Sink) Write(ctx context.Context, rec logrecord.Record) error {
	return retry.Do(ctx, s.retryCfg, func(ctx context.Context) error {
		return s.runner.WithinTx(ctx, func(ctx context.Context) error {
			q := s.runner.GetQuerier(ctx)
			_, err := q.Exec(ctx,
				`INSERT INTO task_history (task_name, action, at, exc_text) VALUES ($1, $2, $3, $4)`,
				rec.TaskName, string(rec.Action), rec.At, rec.ExcText,
			)
			return err
		})
	})
}
