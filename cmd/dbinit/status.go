package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the migration ledger status as JSON",
	Long: `Status compares the available migrations with the ledger and prints
applied, pending and missing counts, checksum drift and the current and
latest versions. When the ledger is empty and a legacy alembic_version row
exists, the migrations adoption would record count as applied. It changes
nothing, not even creating the ledger table.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		defer closeApp()

		status, err := app.orchestrator.Status(cmd.Context())
		if err != nil {
			return fmt.Errorf("reading migration status: %w", err)
		}
		printJSON(status)
		return nil
	},
}
