package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"classroom-platform/dbinit/internal/api"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Bootstrap once, then serve readiness over HTTP",
	Long: `Start the dbinit HTTP server on the configured port (default :8090).

The bootstrap runs once in the background at startup; /ready reports 200
after it succeeds. The server shuts down cleanly on SIGTERM or SIGINT.`,
	Args: cobra.NoArgs,
	RunE: runServer,
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer closeApp()

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(app.orchestrator, cfg.Telemetry.ServiceName, slog.Default())

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start the server in a goroutine so we can listen for shutdown signals.
	serverErr := make(chan error, 1)
	go func() {
		slog.Info("dbinit server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	bootstrapDone, err := app.orchestrator.StartBootstrap(ctx)
	if err != nil {
		return fmt.Errorf("starting bootstrap: %w", err)
	}
	// Deferred after closeApp so it runs first: background runs share the
	// clients closeApp closes. stop cancels the startup run if still going.
	defer func() {
		stop()
		<-bootstrapDone
		app.orchestrator.Wait()
		if last := app.orchestrator.LastResult(); last != nil {
			slog.Info("startup bootstrap finished", "run_id", last.RunID, "status", last.Status)
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("server stopped cleanly")
	return nil
}
