package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, no cgo
)

// TxLockMode controls how a SQLite transaction acquires its lock.
type TxLockMode string

const (
	// TxLockDeferred defers locking until the first read/write (SQLite's default).
	TxLockDeferred TxLockMode = "DEFERRED"
	// TxLockImmediate grabs a RESERVED lock immediately, avoiding a
	// SQLITE_BUSY surprise partway through a write transaction.
	TxLockImmediate TxLockMode = "IMMEDIATE"
	// TxLockExclusive grabs an EXCLUSIVE lock immediately.
	TxLockExclusive TxLockMode = "EXCLUSIVE"
)

// AccessMode controls how the database file is opened.
type AccessMode string

const (
	// AccessModeReadWrite opens an existing file for reading and writing.
	AccessModeReadWrite AccessMode = "rw"
	// AccessModeReadOnly opens an existing file read-only.
	AccessModeReadOnly AccessMode = "ro"
	// AccessModeReadWriteCreate opens for reading and writing, creating
	// the file if it doesn't exist yet.
	AccessModeReadWriteCreate AccessMode = "rwc"
)

// DBOptions configures a SQLite connection.
type DBOptions struct {
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	// PingTimeout bounds the initial connectivity check at open.
	PingTimeout time.Duration
	// WALMode turns on write-ahead logging.
	WALMode bool
	// ForeignKeys turns on foreign-key constraint enforcement (SQLite
	// disables it by default for backward compatibility).
	ForeignKeys bool
	// BusyTimeout is how long a statement waits on SQLITE_BUSY before
	// giving up.
	BusyTimeout time.Duration
	// TxLockMode is the lock mode new transactions open with.
	TxLockMode TxLockMode
	// EnableWriteQueue serializes writes through a single in-process
	// queue instead of relying on SQLite's own locking to arbitrate
	// concurrent writers.
	EnableWriteQueue bool
	// WriteQueueSize is the write queue's channel buffer (default 100).
	WriteQueueSize int
	// AccessMode is the file-open mode.
	AccessMode AccessMode
}

// DefaultDBOptions returns settings sized for an embedded, single-writer
// database: a small connection pool, WAL mode, foreign keys enforced.
func DefaultDBOptions() DBOptions {
	return DBOptions{
		ConnMaxLifetime:  time.Hour,
		ConnMaxIdleTime:  10 * time.Minute,
		MaxOpenConns:     4, // SQLite has exactly one writer regardless
		MaxIdleConns:     1,
		PingTimeout:      5 * time.Second,
		WALMode:          true,
		ForeignKeys:      true,
		BusyTimeout:      5 * time.Second,
		TxLockMode:       TxLockDeferred,
		EnableWriteQueue: false,
		WriteQueueSize:   100,
		AccessMode:       AccessModeReadWrite,
	}
}

// NewDB opens dbPath with DefaultDBOptions.
func NewDB(ctx context.Context, dbPath string) (*sql.DB, error) {
	return NewDBWithOptions(ctx, dbPath, DefaultDBOptions())
}

// NewDBWithOptions opens dbPath with the given options: creates the
// parent directory if missing, opens the connection, pings it, then
// applies the PRAGMA settings opts describes.
func NewDBWithOptions(ctx context.Context, dbPath string, opts DBOptions) (*sql.DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	dsn := buildDSN(dbPath, opts)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)

	pingCtx, cancel := context.WithTimeout(ctx, opts.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	if err := applyPragmaSettings(ctx, db, opts); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply PRAGMA settings: %w", err)
	}

	return db, nil
}

// buildDSN builds a minimal SQLite DSN; most settings are applied via
// PRAGMA after open rather than as DSN parameters.
func buildDSN(dbPath string, opts DBOptions) string {
	params := []string{}

	if opts.AccessMode != "" && opts.AccessMode != AccessModeReadWrite {
		params = append(params, fmt.Sprintf("mode=%s", opts.AccessMode))
	}

	if opts.BusyTimeout > 0 {
		timeoutMs := int(opts.BusyTimeout.Milliseconds())
		params = append(params, fmt.Sprintf("_busy_timeout=%d", timeoutMs))
	}

	if len(params) > 0 {
		return dbPath + "?" + strings.Join(params, "&")
	}

	return dbPath
}

// NewInMemoryDB opens an in-memory SQLite database for tests. The
// connection pool is capped at one connection, since a second connection
// to ":memory:" would see an empty, unrelated database.
func NewInMemoryDB(ctx context.Context) (*sql.DB, error) {
	opts := DefaultDBOptions()
	opts.WALMode = false // WAL isn't supported for in-memory databases
	opts.MaxOpenConns = 1
	opts.MaxIdleConns = 1
	opts.EnableWriteQueue = false

	return NewDBWithOptions(ctx, ":memory:", opts)
}

// NewTestDB creates a file-backed SQLite database in the system temp
// directory, for tests that need migrations or WAL behavior an
// in-memory database can't exercise.
func NewTestDB(ctx context.Context) (*sql.DB, string, error) {
	tmpFile, err := os.CreateTemp("", "test_db_*.sqlite")
	if err != nil {
		return nil, "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()

	db, err := NewDB(ctx, tmpPath)
	if err != nil {
		_ = os.Remove(tmpPath)
		return nil, "", err
	}

	return db, tmpPath, nil
}

// CleanupTestDB closes db and removes its backing file, if any.
func CleanupTestDB(db *sql.DB, dbPath string) error {
	if db != nil {
		_ = db.Close()
	}
	if dbPath != "" && dbPath != ":memory:" {
		return os.Remove(dbPath)
	}
	return nil
}

// applyPragmaSettings applies opts' PRAGMA settings to an already-open
// connection, so they take effect regardless of whether the driver
// honors them as DSN parameters.
func applyPragmaSettings(ctx context.Context, db *sql.DB, opts DBOptions) error {
	pragmas := make([]string, 0, 5)

	if opts.ForeignKeys {
		pragmas = append(pragmas, "PRAGMA foreign_keys = ON")
	}

	if opts.WALMode {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}

	pragmas = append(pragmas, "PRAGMA synchronous = NORMAL")

	if opts.BusyTimeout > 0 {
		timeoutMs := int(opts.BusyTimeout.Milliseconds())
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA busy_timeout = %d", timeoutMs))
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	return nil
}
