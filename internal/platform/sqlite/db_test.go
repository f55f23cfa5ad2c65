package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultDBOptions(t *testing.T) {
	opts := DefaultDBOptions()

	assert.Equal(t, time.Hour, opts.ConnMaxLifetime)
	assert.Equal(t, 10*time.Minute, opts.ConnMaxIdleTime)
	assert.Equal(t, 4, opts.MaxOpenConns)
	assert.Equal(t, 1, opts.MaxIdleConns)
	assert.Equal(t, 5*time.Second, opts.PingTimeout)
	assert.True(t, opts.WALMode)
	assert.True(t, opts.ForeignKeys)
	assert.Equal(t, 5*time.Second, opts.BusyTimeout)
	assert.Equal(t, TxLockDeferred, opts.TxLockMode)
	assert.False(t, opts.EnableWriteQueue)
	assert.Equal(t, 100, opts.WriteQueueSize)
	assert.Equal(t, AccessModeReadWrite, opts.AccessMode)
}

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		name     string
		dbPath   string
		opts     DBOptions
		expected string
	}{
		{
			name:     "default options",
			dbPath:   "/tmp/test.db",
			opts:     DefaultDBOptions(),
			expected: "/tmp/test.db?_busy_timeout=5000",
		},
		{
			name:   "without busy timeout",
			dbPath: ":memory:",
			opts: DBOptions{
				BusyTimeout: 0,
			},
			expected: ":memory:",
		},
		{
			name:   "custom busy timeout",
			dbPath: "test.db",
			opts: DBOptions{
				BusyTimeout: 10 * time.Second,
			},
			expected: "test.db?_busy_timeout=10000",
		},
		{
			name:   "read only mode",
			dbPath: "test.db",
			opts: DBOptions{
				AccessMode: AccessModeReadOnly,
			},
			expected: "test.db?mode=ro",
		},
		{
			name:   "read write create mode with timeout",
			dbPath: "test.db",
			opts: DBOptions{
				AccessMode:  AccessModeReadWriteCreate,
				BusyTimeout: 2 * time.Second,
			},
			expected: "test.db?mode=rwc&_busy_timeout=2000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := buildDSN(tt.dbPath, tt.opts)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestNewInMemoryDB(t *testing.T) {
	ctx := context.Background()
	db, err := NewInMemoryDB(ctx)
	require.NoError(t, err)
	require.NotNil(t, db)

	defer func() { _ = db.Close() }()

	err = db.PingContext(ctx)
	assert.NoError(t, err)

	_, err = db.ExecContext(ctx, "CREATE TABLE test (id INTEGER PRIMARY KEY)")
	assert.NoError(t, err)
}

func TestNewTestDB(t *testing.T) {
	ctx := context.Background()
	db, path, err := NewTestDB(ctx)
	require.NoError(t, err)
	require.NotNil(t, db)
	require.NotEmpty(t, path)

	defer func() {
		_ = CleanupTestDB(db, path)
	}()

	_, err = os.Stat(path)
	assert.NoError(t, err)

	err = db.PingContext(ctx)
	assert.NoError(t, err)

	_, err = db.ExecContext(ctx, "CREATE TABLE test (id INTEGER PRIMARY KEY)")
	assert.NoError(t, err)
}

func TestNewDB_CreateDirectory(t *testing.T) {
	ctx := context.Background()

	tmpDir, err := os.MkdirTemp("", "sqlite_test")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	dbPath := filepath.Join(tmpDir, "subdir", "test.db")

	db, err := NewDB(ctx, dbPath)
	require.NoError(t, err)
	require.NotNil(t, db)

	defer func() { _ = db.Close() }()

	_, err = os.Stat(filepath.Dir(dbPath))
	assert.NoError(t, err)

	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
}

func TestNewDBWithOptions(t *testing.T) {
	ctx := context.Background()

	tmpFile, err := os.CreateTemp("", "test_*.db")
	require.NoError(t, err)
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	defer os.Remove(tmpPath)

	opts := DBOptions{
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		MaxOpenConns:    5,
		MaxIdleConns:    1,
		PingTimeout:     2 * time.Second,
		WALMode:         false,
		ForeignKeys:     false,
	}

	db, err := NewDBWithOptions(ctx, tmpPath, opts)
	require.NoError(t, err)
	require.NotNil(t, db)

	defer func() { _ = db.Close() }()

	err = db.PingContext(ctx)
	assert.NoError(t, err)
}

func TestNewDB_InvalidPath(t *testing.T) {
	ctx := context.Background()

	var invalidPath string

	if os.Getenv("OS") == "Windows_NT" || strings.Contains(os.Getenv("OS"), "Windows") {
		invalidPath = "C:\\invalid<>:\"|?*path\\test.db"
	} else {
		invalidPath = "/dev/null/nonexistent/test.db"
	}

	_, err := NewDB(ctx, invalidPath)
	assert.Error(t, err)
}

func TestCleanupTestDB(t *testing.T) {
	ctx := context.Background()

	db, path, err := NewTestDB(ctx)
	require.NoError(t, err)

	_, err = os.Stat(path)
	assert.NoError(t, err)

	err = CleanupTestDB(db, path)
	assert.NoError(t, err)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestCleanupTestDB_InMemory(t *testing.T) {
	ctx := context.Background()

	db, err := NewInMemoryDB(ctx)
	require.NoError(t, err)

	err = CleanupTestDB(db, ":memory:")
	assert.NoError(t, err)
}

func TestCleanupTestDB_NilDB(t *testing.T) {
	err := CleanupTestDB(nil, "")
	assert.NoError(t, err)
}

func TestPragmaSettings(t *testing.T) {
	ctx := context.Background()

	db, path, err := NewTestDB(ctx)
	require.NoError(t, err)
	defer func() {
		if err := CleanupTestDB(db, path); err != nil {
			t.Logf("Failed to cleanup test DB: %v", err)
		}
	}()

	var journalMode string
	err = db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journalMode)
	require.NoError(t, err)
	assert.Equal(t, "wal", strings.ToLower(journalMode))

	var foreignKeys int
	err = db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&foreignKeys)
	require.NoError(t, err)
	assert.Equal(t, 1, foreignKeys)

	var busyTimeout int
	err = db.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&busyTimeout)
	require.NoError(t, err)
	assert.Equal(t, 5000, busyTimeout) // DefaultDBOptions sets 5 seconds

	var synchronous string
	err = db.QueryRowContext(ctx, "PRAGMA synchronous").Scan(&synchronous)
	require.NoError(t, err)
	// SQLite reports this as a number: 0=OFF, 1=NORMAL, 2=FULL, 3=EXTRA
	assert.Equal(t, "1", synchronous)
}
