package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iliyamo/reservation-engine/internal/config"
	"github.com/iliyamo/reservation-engine/internal/database"
)

var migrateStatus bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	Long: `Apply the embedded goose migrations to the configured MySQL database.

Examples:
  reservation-engine migrate
  reservation-engine migrate --status`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateStatus, "status", false, "print applied and pending migrations instead of applying them")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if migrateStatus {
		return database.MigrationStatus(db)
	}
	return database.Migrate(db)
}
