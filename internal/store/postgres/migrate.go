package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// MigrationsPath is the default location of the driver's .sql
// migration files relative to the process working directory.
const MigrationsPath = "internal/store/postgres/migrations"

// Migrate runs every pending up migration against db, per spec.md
// §6's "schema migrations run on startup, idempotent" requirement.
func Migrate(db *sql.DB, migrationsPath string) error {
	if migrationsPath == "" {
		migrationsPath = MigrationsPath
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		"postgres", driver,
	)
	if err != nil {
		return fmt.Errorf("initializing migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}
