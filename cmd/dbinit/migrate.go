package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"classroom-platform/dbinit/internal/migrate"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or revert migrations without the table check",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply every pending migration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		defer closeApp()

		res, err := app.orchestrator.MigrateUp(cmd.Context())
		if res != nil {
			printJSON(map[string]any{
				"adopted": migrationNames(res.Adopted),
				"applied": migrationNames(res.Applied),
				"version": res.Version,
			})
		}
		if err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
		return nil
	},
}

var downTarget uint64

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Revert applied migrations above --to, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		defer closeApp()

		reverted, err := app.orchestrator.MigrateDown(cmd.Context(), migrate.Version(downTarget))
		printJSON(map[string]any{
			"reverted": migrationNames(reverted),
			"target":   downTarget,
		})
		if err != nil {
			return fmt.Errorf("migrate down to %d: %w", downTarget, err)
		}
		return nil
	},
}

func init() {
	migrateDownCmd.Flags().Uint64Var(&downTarget, "to", 0, "version to revert to (kept applied)")
	_ = migrateDownCmd.MarkFlagRequired("to")

	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
}
