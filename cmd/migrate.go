package cmd

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/matrixise/chain-reader/internal/config"
	"github.com/matrixise/chain-reader/internal/logger"
	"github.com/matrixise/chain-reader/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage database migrations",
	Long:  `Run, rollback, or check the status of the snapshot database migrations.`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: migrateAction(storage.RunMigrations,
		"Migration failed", "Migrations applied successfully"),
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Rollback the last migration",
	RunE: migrateAction(storage.MigrateDown,
		"Rollback failed", "Migration rolled back successfully"),
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration status",
	RunE: migrateAction(storage.MigrateStatus,
		"Failed to get migration status", ""),
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}

func migrateAction(fn func(ctx context.Context, dsn string) error, failMsg, okMsg string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		logger.Setup(logLevel)

		dsn, err := config.DatabaseURL()
		if err != nil {
			return err
		}

		if err := fn(cmd.Context(), dsn); err != nil {
			slog.Error(failMsg, "error", err)
			return err
		}

		if okMsg != "" {
			slog.Info(okMsg)
		}
		return nil
	}
}
