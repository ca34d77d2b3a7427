package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"briefly/internal/config"
	"briefly/internal/persistence"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the discovery engine's database schema migrations",
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd, migrateStatusCmd)
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, cleanup, err := buildMigrationManager()
		if cleanup != nil {
			defer cleanup()
		}
		if err != nil {
			return err
		}
		return mgr.Migrate(cmd.Context())
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration status",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, cleanup, err := buildMigrationManager()
		if cleanup != nil {
			defer cleanup()
		}
		if err != nil {
			return err
		}
		rows, err := mgr.Status(cmd.Context())
		if err != nil {
			return err
		}
		for _, row := range rows {
			applied := "pending"
			if row.Applied {
				applied = "applied"
			}
			fmt.Printf("%03d  %-40s %s\n", row.Version, row.Description, applied)
		}
		return nil
	},
}

func buildMigrationManager() (*persistence.MigrationManager, func(), error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	db, err := persistence.NewPostgresDB(cfg.Database.ConnectionString)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	return persistence.NewMigrationManager(db), func() { _ = db.Close() }, nil
}
