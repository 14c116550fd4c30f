// Package migrations embeds the SQL schema of the inbox service: the commit
// ledger, the developer job queue and the submission log, plus the stored
// procedures that are the only write path into them.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed files/*.sql
var migrationFiles embed.FS

// Status describes where the database schema stands relative to the
// migrations compiled into this binary.
type Status struct {
	Version       uint
	LatestVersion uint
	Dirty         bool
	NeedsInit     bool
}

// MigrateUp runs all pending migrations to bring the database to the latest
// version. The caller owns the db handle and is responsible for closing it.
func MigrateUp(db *sql.DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("migration failed: %w", err)
	}

	return nil
}

// MigrationStatus reports the schema version of the database against the
// embedded migrations without changing anything.
func MigrationStatus(db *sql.DB) (*Status, error) {
	latest, err := latestEmbeddedVersion()
	if err != nil {
		return nil, fmt.Errorf("failed to determine latest version: %w", err)
	}

	m, err := newMigrate(db)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return &Status{LatestVersion: latest, NeedsInit: true}, nil
		}
		return nil, fmt.Errorf("failed to get database version: %w", err)
	}

	return &Status{
		Version:       version,
		LatestVersion: latest,
		Dirty:         dirty,
	}, nil
}

// newMigrate creates a new migrate instance for the given database.
func newMigrate(db *sql.DB) (*migrate.Migrate, error) {
	sourceDriver, err := iofs.New(migrationFiles, "files")
	if err != nil {
		return nil, fmt.Errorf("failed to create source driver: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		sourceDriver.Close()
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		sourceDriver.Close()
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	return m, nil
}

// latestEmbeddedVersion returns the highest version among the embedded files.
func latestEmbeddedVersion() (uint, error) {
	sourceDriver, err := iofs.New(migrationFiles, "files")
	if err != nil {
		return 0, err
	}
	defer sourceDriver.Close()

	version, err := sourceDriver.First()
	if err != nil {
		return 0, err
	}
	for {
		next, err := sourceDriver.Next(version)
		if err != nil {
			break
		}
		version = next
	}
	return version, nil
}
