package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"classroom-platform/dbinit/internal/migrate"
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Run the one-shot database bootstrap and exit",
	Long: `Bootstrap waits for PostgreSQL, applies pending migrations, inspects the
declared tables and creates the missing ones.

The command runs once, prints a JSON result to stdout, and exits 0 on
success or 1 on failure.`,
	RunE: runBootstrap,
}

func runBootstrap(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer closeApp()

	slog.Info("starting bootstrap", "database", cfg.Database.Endpoint())

	result, err := app.orchestrator.RunBootstrap(ctx)
	if result != nil {
		printJSON(result)
	}
	if err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}

	slog.Info("bootstrap completed successfully",
		"run_id", result.RunID,
		"schema_version", result.SchemaVersion,
	)
	return nil
}

// closeApp releases clients and flushes telemetry with its own deadline, so
// a cancelled run still exports its spans.
func closeApp() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	app.Close(ctx)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		slog.Error("encoding result failed", "error", err)
	}
}

// migrationNames renders migrations the way BootstrapResult lists them.
func migrationNames(ms []migrate.Migration) []string {
	names := make([]string, 0, len(ms))
	for _, m := range ms {
		names = append(names, m.String())
	}
	return names
}
