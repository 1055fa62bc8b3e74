package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"classroom-platform/dbinit/internal/config"
	"classroom-platform/dbinit/internal/telemetry"
)

var (
	cfgFile  string
	logLevel string

	// cfg is populated by PersistentPreRunE and shared with all subcommands.
	cfg *config.Config

	// app holds all wired dependencies; populated by PersistentPreRunE.
	app *AppContext
)

var rootCmd = &cobra.Command{
	Use:   "dbinit",
	Short: "Bring the classroom database to a schema-ready state",
	Long: `dbinit prepares the Interactive Classroom Platform database before the
API starts. Without a subcommand it runs the bootstrap: connectivity check
with retry, migrations, table inspection and creation of missing tables.

It prints a JSON result to stdout and exits 0 on success, 1 on failure.`,
	SilenceUsage: true,
	RunE:         runBootstrap,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		initLogger(logLevel)

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		// --log-level flag takes precedence over value in config file.
		if cmd.Flags().Changed("log-level") {
			cfg.Telemetry.LogLevel = logLevel
		} else if cfg.Telemetry.LogLevel != "" {
			initLogger(cfg.Telemetry.LogLevel)
		}

		app, err = buildAppContext(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("building app context: %w", err)
		}

		return nil
	}

	rootCmd.AddCommand(bootstrapCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(serverCmd)
}

// Execute is the entry point called by main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func initLogger(level string) {
	slog.SetDefault(telemetry.NewLogger(telemetry.ParseLevel(level), os.Stdout, os.Stderr))
}
