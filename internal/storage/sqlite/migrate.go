package sqlite

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// The schema ships inside the binary so a fresh database file can be
// brought up to date without any files next to the executable.
//
//go:embed migrations/*.sql
var migrationsFS embed.FS

// runMigrations applies every pending up migration to db.
//
// The returned *migrate.Migrate is deliberately not closed: closing it
// closes its database driver, and that driver owns db, which the store
// keeps using afterwards.
func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("runMigrations: source: %w", err)
	}

	drv, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("runMigrations: driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", drv)
	if err != nil {
		return fmt.Errorf("runMigrations: init: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("runMigrations: up: %w", err)
	}

	return nil
}
