package sqlite

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"runtime"
	"strings"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// BuildMigrateURL turns a filesystem path into the sqlite:// URL
// golang-migrate expects, handling the Windows drive-letter case
// ("C:\..." becomes "sqlite:///C:/...").
func BuildMigrateURL(dbPath string) (string, error) {
	absPath, err := filepath.Abs(dbPath)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	urlPath := filepath.ToSlash(absPath)

	if runtime.GOOS == "windows" && len(urlPath) >= 2 && urlPath[1] == ':' {
		urlPath = "/" + urlPath
	}

	if !strings.HasPrefix(urlPath, "/") {
		urlPath = "/" + urlPath
	}

	return "sqlite://" + urlPath, nil
}

// ApplyMigrationsFromFS applies every migration embedded in fsys (under
// dirName) to dbPath, via golang-migrate's iofs source driver — mirrors
// pg.ApplyMigrationsFromFS for a sink that embeds its schema instead of
// shipping a migrations directory alongside the binary. Safe to call
// repeatedly: migrate.ErrNoChange is treated as success.
func ApplyMigrationsFromFS(dbPath string, fsys fs.FS, dirName string) error {
	databaseURL, err := BuildMigrateURL(dbPath)
	if err != nil {
		return fmt.Errorf("failed to build database URL: %w", err)
	}

	sourceDriver, err := iofs.New(fsys, dirName)
	if err != nil {
		return fmt.Errorf("failed to create iofs source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() {
		_, _ = m.Close()
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	return nil
}
