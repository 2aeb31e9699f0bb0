// filepath: internal/services/persistence_factory.go
package services

import (
	"photogallery/internal/config"
	"photogallery/internal/logging"
	"photogallery/internal/persistence"
	"photogallery/internal/persistence/supabase"
	"photogallery/internal/repository"
)

// NewPersistenceClient builds the process-wide persistence collaborator. Missing
// configuration or a failed initialization yields a disabled client; the process keeps
// running and every gallery operation reports NotConfigured.
func NewPersistenceClient(cfg *config.Config) persistence.Client {
	p := cfg.Persistence
	switch p.Driver {
	case "":
		logging.Log.Warn("No persistence driver configured; gallery storage is disabled")
		return persistence.NewDisabled("no persistence driver configured")

	case config.DriverSupabase:
		if p.URL == "" || p.AnonKey == "" {
			logging.Log.Warn("Supabase URL or anon key missing; gallery storage is disabled")
			return persistence.NewDisabled("missing Supabase URL or anon key")
		}
		client, err := supabase.New(p.URL, p.AnonKey, p.Table, p.HeartbeatRPC, cfg.PersistenceTimeout)
		if err != nil {
			logging.Log.Errorf("Failed to initialize Supabase client: %v", err)
			return persistence.NewDisabled("Supabase client initialization failed")
		}
		logging.Log.Infof("Using Supabase persistence at %s (table %s)", p.URL, p.Table)
		return client

	case config.DriverSQLite:
		if p.DatabasePath == "" {
			logging.Log.Warn("SQLite database path missing; gallery storage is disabled")
			return persistence.NewDisabled("missing database path")
		}
		repo, err := repository.NewRepository(p.DatabasePath)
		if err != nil {
			logging.Log.Errorf("Failed to open SQLite database: %v", err)
			return persistence.NewDisabled("database could not be opened")
		}
		if err := repo.EnsureSchemaBootstrapped(); err != nil {
			logging.Log.Errorf("Failed to bootstrap database schema: %v", err)
			repo.Close()
			return persistence.NewDisabled("database schema could not be created")
		}
		if err := repo.ValidateSchema(); err != nil {
			logging.Log.Errorf("Database schema check failed: %v", err)
			repo.Close()
			return persistence.NewDisabled("database schema is outdated")
		}
		logging.Log.Infof("Using SQLite persistence at %s", p.DatabasePath)
		return repository.NewGalleryStore(repo)

	default:
		logging.Log.Errorf("Unknown persistence driver %q; gallery storage is disabled", p.Driver)
		return persistence.NewDisabled("unknown persistence driver")
	}
}
