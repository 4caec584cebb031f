// Package migrate runs database migrations from embedded SQL files using golang-migrate.
package migrate

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"seshlock/internal/db"
)

// ErrNoChange is returned when Up/Down has nothing to do (already at target version).
var ErrNoChange = migrate.ErrNoChange

// Run applies migrations for dialect d in the given direction against the database at dsn.
// For Postgres dsn is a postgres:// URL; for SQLite it is a file path.
// direction must be "up" or "down". Returns nil on success and when already at the target version.
func Run(dsn string, d db.Dialect, direction string) error {
	if dsn == "" {
		return errors.New("database location is not set; set DATABASE_URL (postgres) or SQLITE_PATH (sqlite)")
	}
	if direction != "up" && direction != "down" {
		return fmt.Errorf("direction must be up or down, got %q", direction)
	}
	src, err := sourceFor(d)
	if err != nil {
		return err
	}

	url := dsn
	if d == db.SQLite {
		url = "sqlite://" + dsn
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()
	return apply(m, direction)
}

// Up applies every pending migration over an already open connection.
// The driver keeps using conn after Up returns, so conn must outlive any later
// migration call; the caller owns closing it.
func Up(conn *sql.DB, d db.Dialect) error {
	src, err := sourceFor(d)
	if err != nil {
		return err
	}
	var driver database.Driver
	switch d {
	case db.Postgres:
		driver, err = postgres.WithInstance(conn, &postgres.Config{})
	case db.SQLite:
		driver, err = sqlite.WithInstance(conn, &sqlite.Config{})
	default:
		return fmt.Errorf("migrate: unsupported dialect %q", d.Name())
	}
	if err != nil {
		return fmt.Errorf("migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, d.Name(), driver)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return apply(m, "up")
}

func sourceFor(d db.Dialect) (source.Driver, error) {
	src, err := iofs.New(db.MigrationFS, db.MigrationsDir(d))
	if err != nil {
		return nil, fmt.Errorf("migrate source: %w", err)
	}
	return src, nil
}

func apply(m *migrate.Migrate, direction string) error {
	var err error
	switch direction {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
