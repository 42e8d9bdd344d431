package main

import (
	"fmt"

	"github.com/medflow/labstock/internal/inventory/migrations"
	"github.com/medflow/labstock/pkg/config"
	"github.com/medflow/labstock/pkg/logger"
	"github.com/spf13/cobra"
)

const serviceName = "inventory-service"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           serviceName,
		Short:         "Lab inventory allocation service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newMigrateCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Fails fast in production if required config is missing
			cfg, err := config.LoadWithValidation(serviceName)
			if err != nil {
				return err
			}
			log := logger.New(serviceName, cfg.Server.Environment)

			if migrate && cfg.Storage.Driver == config.StoragePostgres {
				if err := migrations.Up(cfg.Database.MigrationURL(), log); err != nil {
					return fmt.Errorf("migrate database: %w", err)
				}
			}

			return serve(cmd.Context(), cfg, log)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	var down int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long:  "Applies all pending migrations, or rolls back --down steps.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(serviceName)
			if err != nil {
				return err
			}
			log := logger.New(serviceName, cfg.Server.Environment)

			if down > 0 {
				return migrations.Down(cfg.Database.MigrationURL(), down, log)
			}
			return migrations.Up(cfg.Database.MigrationURL(), log)
		},
	}
	cmd.Flags().IntVar(&down, "down", 0, "number of migrations to roll back")
	return cmd
}
