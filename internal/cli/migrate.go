// filepath: internal/cli/migrate.go
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"photogallery/internal/config"
	"photogallery/internal/logging"
	"photogallery/internal/repository"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Database migration tools for the sqlite driver",
	Long:  `Manage the local gallery schema version. Use subcommands 'up', 'down', or 'status'.`,
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Migrate the database to the most recent version",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigration("up")
	},
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the database by one version",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigration("down")
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Dump the migration status for the current DB",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigration("status")
	},
}

func init() {
	migrateCmd.AddCommand(upCmd)
	migrateCmd.AddCommand(downCmd)
	migrateCmd.AddCommand(statusCmd)
}

func runMigration(command string) error {
	// The root command's PersistentPreRunE has already loaded the 'cfg' global variable.
	if cfg.Persistence.Driver != config.DriverSQLite {
		return fmt.Errorf("migrations apply to the sqlite driver only (configured driver: %q)", cfg.Persistence.Driver)
	}

	repo, err := repository.NewRepository(cfg.Persistence.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer repo.Close()

	logging.Log.Infof("Running migration command: %s", command)

	switch command {
	case "up":
		err = repo.MigrateUp()
	case "down":
		err = repo.MigrateDown()
	case "status":
		err = repo.MigrationStatus()
	default:
		return fmt.Errorf("unknown migration command: %s", command)
	}
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	logging.Log.Info("Migration operation completed successfully.")
	return nil
}
