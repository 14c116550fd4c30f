package cli

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/spf13/cobra"

	"github.com/devatlas/devatlas/internal/inboxsrv/db/migrations"
)

var migrateStatusOnly bool

// newMigrateCmd creates the database migration command
func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate [flags]",
		Short: "Apply database migrations",
		Long: `Apply the embedded database migrations to the configured Postgres
database. Migrations create the commit ledger, the developer queue and the
submission log together with their stored procedures.

Examples:
  # Apply all pending migrations
  inboxd migrate

  # Report the schema version without changing anything
  inboxd migrate --status`,
		RunE: runMigrate,
	}
	cmd.Flags().BoolVar(&migrateStatusOnly, "status", false, "Report the schema version without applying anything")
	return cmd
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadDaemonConfig()
	if err != nil {
		return err
	}

	pool, err := sql.Open("pgx", cfg.Postgres.DSN())
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer pool.Close()

	if migrateStatusOnly {
		return printMigrationStatus(pool)
	}

	if err := migrations.MigrateUp(pool); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	if jsonOutput {
		printJSON(map[string]string{"status": "applied"})
	} else {
		okLabel.Println("Migrations applied")
	}
	return nil
}

func printMigrationStatus(pool *sql.DB) error {
	status, err := migrations.MigrationStatus(pool)
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}

	if jsonOutput {
		printJSON(map[string]any{
			"version":        status.Version,
			"latest_version": status.LatestVersion,
			"dirty":          status.Dirty,
			"needs_init":     status.NeedsInit,
		})
		return nil
	}

	if status.NeedsInit {
		fmt.Printf("Schema not initialized, latest version is %d\n", status.LatestVersion)
		return nil
	}
	fmt.Printf("Schema version: %d\n", status.Version)
	fmt.Printf("Latest version: %d\n", status.LatestVersion)
	if status.Dirty {
		errorLabel.Println("Schema is dirty: the last migration did not finish")
	} else if status.Version < status.LatestVersion {
		fmt.Printf("%d migrations pending\n", status.LatestVersion-status.Version)
	} else {
		okLabel.Println("Schema is up to date")
	}
	return nil
}
