package repository

import (
	"fmt"

	"github.com/pressly/goose/v3"

	"photogallery/internal/db/migrations"
	"photogallery/internal/logging"
)

const gooseDialect = "sqlite3"

func prepareGoose() error {
	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(logging.Log)
	return goose.SetDialect(gooseDialect)
}

// MigrateUp applies all pending migrations.
func (s *Repository) MigrateUp() error {
	if err := prepareGoose(); err != nil {
		return err
	}
	return goose.Up(s.DB, ".")
}

// MigrateDown rolls back the most recent migration.
func (s *Repository) MigrateDown() error {
	if err := prepareGoose(); err != nil {
		return err
	}
	return goose.Down(s.DB, ".")
}

// MigrationStatus logs the state of every migration.
func (s *Repository) MigrationStatus() error {
	if err := prepareGoose(); err != nil {
		return err
	}
	return goose.Status(s.DB, ".")
}

// EnsureSchemaBootstrapped migrates a brand new database. A database that already has
// a goose version table is left for the operator to migrate explicitly.
func (s *Repository) EnsureSchemaBootstrapped() error {
	var name string
	err := s.DB.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='goose_db_version'").Scan(&name)
	if err == nil {
		return nil
	}
	logging.Log.Info("Fresh database detected, applying migrations")
	return s.MigrateUp()
}

// ValidateSchema fails when the database is behind the embedded migrations.
func (s *Repository) ValidateSchema() error {
	if err := prepareGoose(); err != nil {
		return err
	}
	current, err := goose.GetDBVersion(s.DB)
	if err != nil {
		return fmt.Errorf("database schema is outdated: %w", err)
	}

	all, err := goose.CollectMigrations(".", 0, goose.MaxVersion)
	if err != nil {
		return fmt.Errorf("failed to collect migrations: %w", err)
	}
	if len(all) == 0 {
		return nil
	}
	latest := all[len(all)-1].Version
	if current < latest {
		return fmt.Errorf("database schema is outdated (version %d, latest %d); run 'photogallery migrate up'", current, latest)
	}
	return nil
}
