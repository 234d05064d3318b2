package main

import (
	"fmt"

	"rally/internal/bootstrap"
	"rally/internal/database"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply, inspect or roll back the database schema",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending SQL migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				rt, err := openRuntime(cmd.Context(), bootstrap.Options{SkipSchema: true})
				if err != nil {
					return err
				}
				defer rt.Close(cmd.Context())
				if err := database.RunMigrations(cmd.Context(), rt.DB); err != nil {
					return fmt.Errorf("sql migrations failed: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "sql migrations applied")
				return nil
			},
		},
		&cobra.Command{
			Use:   "auto",
			Short: "Run GORM AutoMigrate against the models",
			RunE: func(cmd *cobra.Command, _ []string) error {
				rt, err := openRuntime(cmd.Context(), bootstrap.Options{SkipSchema: true})
				if err != nil {
					return err
				}
				defer rt.Close(cmd.Context())
				rt.Config.DBSchemaMode = database.SchemaModeAuto
				if err := database.ApplySchema(cmd.Context(), rt.DB, rt.Config); err != nil {
					return fmt.Errorf("auto schema apply failed: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "automigrations applied")
				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the schema mode and current migration version",
			RunE: func(cmd *cobra.Command, _ []string) error {
				rt, err := openRuntime(cmd.Context(), bootstrap.Options{SkipSchema: true})
				if err != nil {
					return err
				}
				defer rt.Close(cmd.Context())
				status, err := database.GetSchemaStatus(cmd.Context(), rt.DB, rt.Config)
				if err != nil {
					return fmt.Errorf("schema status failed: %w", err)
				}
				return printJSON(cmd, status)
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			RunE: func(cmd *cobra.Command, _ []string) error {
				rt, err := openRuntime(cmd.Context(), bootstrap.Options{SkipSchema: true})
				if err != nil {
					return err
				}
				defer rt.Close(cmd.Context())
				if err := database.RollbackMigration(cmd.Context(), rt.DB); err != nil {
					return fmt.Errorf("rollback failed: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "rolled back one migration")
				return nil
			},
		},
	)
	return cmd
}
