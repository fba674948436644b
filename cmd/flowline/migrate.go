package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"flowline/internal/config"
	"flowline/internal/db"
	"flowline/internal/logging"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logging.Initialize(cfg.Debug)

		database, err := db.New(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer database.Close()

		if err := database.Migrate(); err != nil {
			return err
		}
		fmt.Printf("Database %s is up to date\n", cfg.DatabaseURL)
		return nil
	},
}
