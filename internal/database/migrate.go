package database

import (
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/vidscope/vidscope-backend/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunMigrations brings the schema up to date. The embedded chunk and
// frame_chunk tables carry vector columns, so pgvector availability is
// checked first to fail with a readable error instead of a mid-migration
// SQL one.
func RunMigrations(db *DB, cfg config.DatabaseConfig) error {
	if err := ensureVectorAvailable(db); err != nil {
		return err
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, GetDSN(cfg))
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// RollbackMigration rolls back the last migration
func RollbackMigration(cfg config.DatabaseConfig) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, GetDSN(cfg))
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	defer m.Close()

	if err := m.Steps(-1); err != nil {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}

	return nil
}

// ensureVectorAvailable verifies the server has the pgvector extension
// installed (not necessarily created; the initial migration creates it).
func ensureVectorAvailable(db *DB) error {
	var available bool
	err := db.Get(&available,
		`SELECT EXISTS (SELECT 1 FROM pg_available_extensions WHERE name = 'vector')`)
	if err != nil {
		return fmt.Errorf("failed to check pgvector availability: %w", err)
	}
	if !available {
		return fmt.Errorf("pgvector extension is not installed on the database server")
	}
	return nil
}
