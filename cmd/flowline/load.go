package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"flowline/internal/config"
	"flowline/internal/db"
	"flowline/internal/db/repositories"
	"flowline/internal/logging"
	"flowline/internal/services"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Seed workflow definitions from *.workflow.yaml files",
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

		repos := repositories.New(database)
		auditService := services.NewAuditService(repos)
		workflowService := services.NewWorkflowService(repos, auditService)

		result, err := workflowService.SeedFromDir(cmd.Context(), cfg.WorkflowsDir)
		if err != nil {
			return err
		}

		fmt.Printf("Loaded %d workflow files from %s (%d found)\n",
			len(result.Workflows), cfg.WorkflowsDir, result.TotalFiles)
		for _, loadErr := range result.Errors {
			fmt.Printf("  %s: %v\n", loadErr.FilePath, loadErr.Error)
		}
		if len(result.Errors) > 0 {
			return fmt.Errorf("%d workflow files failed to load", len(result.Errors))
		}
		return nil
	},
}
