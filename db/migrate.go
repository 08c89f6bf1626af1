package db

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// migrationDirs are tried in order, relative to the working directory: module root,
// the db package itself (tests), and cmd/<tool>.
var migrationDirs = []string{"db/migrations", "migrations", "../db/migrations", "../../db/migrations"}

func migrationsSource() (string, error) {
	for _, dir := range migrationDirs {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", dir, err)
		}
		return "file://" + abs, nil
	}
	return "", fmt.Errorf("migrations directory not found (tried %v)", migrationDirs)
}

func newMigrator(db *sql.DB, source string) (*migrate.Migrate, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("migrate driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("migrate instance: %w", err)
	}
	return m, nil
}

// RunMigrations applies every pending versioned migration from db/migrations.
// Running it on an up-to-date schema is a no-op.
func RunMigrations(db *sql.DB) error {
	src, err := migrationsSource()
	if err != nil {
		return err
	}
	return RunMigrationsFromPath(db, src)
}

// RunMigrationsFromPath is RunMigrations with an explicit source URL (file://...).
func RunMigrationsFromPath(db *sql.DB, source string) error {
	m, err := newMigrator(db, source)
	if err != nil {
		return err
	}
	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		slog.Info("database schema is up to date", slog.String("component", "db_migrate"))
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	return logVersion(m, "migrations applied")
}

// MigrateDown rolls back the most recent migration. Rolling back 000001 drops
// every subscription and ledger row.
func MigrateDown(db *sql.DB) error {
	src, err := migrationsSource()
	if err != nil {
		return err
	}
	return MigrateDownFromPath(db, src)
}

// MigrateDownFromPath is MigrateDown with an explicit source URL.
func MigrateDownFromPath(db *sql.DB, source string) error {
	m, err := newMigrator(db, source)
	if err != nil {
		return err
	}
	err = m.Steps(-1)
	if errors.Is(err, migrate.ErrNoChange) || errors.Is(err, os.ErrNotExist) {
		slog.Info("no migrations to roll back", slog.String("component", "db_migrate"))
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrate down: %w", err)
	}
	return logVersion(m, "migration rolled back")
}

// logVersion reports the schema version after a change and fails on a dirty schema.
func logVersion(m *migrate.Migrate, msg string) error {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		slog.Info(msg, slog.String("component", "db_migrate"), slog.String("version", "none"))
		return nil
	}
	if err != nil {
		slog.Warn("could not determine migration version", slog.Any("err", err), slog.String("component", "db_migrate"))
		return nil
	}
	if dirty {
		return fmt.Errorf("schema dirty at version %d: manual intervention required", version)
	}
	slog.Info(msg, slog.String("component", "db_migrate"), slog.Uint64("version", uint64(version)))
	return nil
}

// GetMigrationVersion returns the applied version, or 0 when nothing is applied.
func GetMigrationVersion(db *sql.DB) (version uint, dirty bool, err error) {
	src, err := migrationsSource()
	if err != nil {
		return 0, false, err
	}
	m, err := newMigrator(db, src)
	if err != nil {
		return 0, false, err
	}
	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("migration version: %w", err)
	}
	return version, dirty, nil
}
