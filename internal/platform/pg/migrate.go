package pg

import (
	"errors"
	"fmt"
	"io/fs"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// ApplyMigrationsFromFS applies every migration embedded in fsys (under
// dirName) to dsn, via golang-migrate's iofs source driver — the shape
// pgsink uses to ship its schema inside the scheduler binary rather than
// as a separate file tree. Safe to call repeatedly: once every migration
// is applied, migrate.ErrNoChange is treated as success, not an error.
func ApplyMigrationsFromFS(dsn string, fsys fs.FS, dirName string) (MigrationInfo, error) {
	sourceDriver, err := iofs.New(fsys, dirName)
	if err != nil {
		return MigrationInfo{}, fmt.Errorf("failed to create iofs source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, dsn)
	if err != nil {
		return MigrationInfo{}, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() {
		_, _ = m.Close()
	}()

	info := MigrationInfo{Applied: false, Dirty: false}

	currentVersion, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return MigrationInfo{}, fmt.Errorf("failed to get current version: %w", err)
	}
	info.CurrentVersion = currentVersion
	info.Dirty = dirty

	if dirty {
		return info, fmt.Errorf("database is in dirty state at version %d", currentVersion)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return info, nil
		}
		return info, fmt.Errorf("failed to apply migrations: %w", err)
	}

	info.Applied = true
	finalVersion, _, err := m.Version()
	if err == nil {
		info.FinalVersion = finalVersion
	}

	return info, nil
}

// MigrationInfo reports the outcome of ApplyMigrationsFromFS.
type MigrationInfo struct {
	Applied        bool // whether any new migration was applied
	CurrentVersion uint // schema version before this call
	FinalVersion   uint // schema version after this call
	Dirty          bool // whether the database was left in a dirty state
}

// GetMigrationVersionFromFS reports the currently applied schema version
// without attempting to apply anything, for startup diagnostics.
func GetMigrationVersionFromFS(dsn string, fsys fs.FS, dirName string) (uint, bool, error) {
	sourceDriver, err := iofs.New(fsys, dirName)
	if err != nil {
		return 0, false, fmt.Errorf("failed to create iofs source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, dsn)
	if err != nil {
		return 0, false, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() {
		_, _ = m.Close()
	}()

	version, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}

	return version, dirty, nil
}
