package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var exportMigrations embed.FS

const exportMigrationsTable = "export_log_migrations"

// migrateExportLog applies the embedded export log migrations to dbPath.
// The migrator owns its connection and closes it when done.
func migrateExportLog(dbPath string) error {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open migration database: %w", err)
	}

	driver, err := sqlite.WithInstance(conn, &sqlite.Config{MigrationsTable: exportMigrationsTable})
	if err != nil {
		conn.Close()
		return fmt.Errorf("create sqlite driver: %w", err)
	}

	src, err := iofs.New(exportMigrations, "migrations")
	if err != nil {
		driver.Close()
		return fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		src.Close()
		driver.Close()
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	switch err := m.Up(); {
	case errors.Is(err, migrate.ErrNoChange):
		return nil
	case err != nil:
		return fmt.Errorf("apply export log migrations: %w", err)
	}
	return nil
}
