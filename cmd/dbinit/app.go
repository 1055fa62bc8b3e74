package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"classroom-platform/dbinit/internal/clients"
	"classroom-platform/dbinit/internal/config"
	"classroom-platform/dbinit/internal/migrate"
	"classroom-platform/dbinit/internal/orchestrator"
	"classroom-platform/dbinit/internal/schema"
	"classroom-platform/dbinit/internal/telemetry"
)

// AppContext holds all constructed application dependencies shared across
// subcommands. It is built once in PersistentPreRunE.
type AppContext struct {
	cfg          *config.Config
	otelProvider *telemetry.Provider
	orchestrator *orchestrator.Orchestrator
	closers      []func() error
}

// buildAppContext constructs all application dependencies from cfg:
//  1. Initialises the OTEL provider (best-effort, non-fatal)
//  2. Loads the migration source
//  3. Creates the Postgres client and, when configured, the Redis lease and
//     NATS notifier, each behind its own circuit breaker
//  4. Creates the orchestrator
func buildAppContext(ctx context.Context, cfg *config.Config) (*AppContext, error) {
	app := &AppContext{cfg: cfg}
	logger := slog.Default()

	// A missing collector must never block the bootstrap. With no endpoint,
	// telemetry stays off entirely.
	if cfg.Telemetry.OTLPEndpoint == "" {
		slog.Debug("OTEL telemetry disabled (no endpoint configured)")
	} else {
		tp, err := telemetry.InitProvider(
			ctx,
			cfg.Telemetry.OTLPEndpoint,
			cfg.Telemetry.ServiceName,
			cfg.Telemetry.OTLPInsecure,
		)
		if err != nil {
			slog.Warn("OTEL provider init failed, telemetry disabled", "error", err)
		} else {
			app.otelProvider = tp
		}
	}

	source, err := migrationSource(cfg.Bootstrap.MigrationsDir)
	if err != nil {
		return nil, err
	}

	pg := clients.NewPostgresClient(cfg.Database, cfg.Bootstrap, source, clients.NewCircuitBreaker("postgres", cfg.Breaker), logger)

	deps := orchestrator.Deps{
		Connector: pg,
		Probes:    map[string]orchestrator.Prober{"postgres": pg},
	}

	if metrics, err := telemetry.NewMetrics(); err != nil {
		slog.Warn("creating bootstrap metrics failed", "error", err)
	} else {
		deps.Metrics = metrics
	}

	if cfg.Lease.Enabled {
		redis := clients.NewRedisClient(cfg.Lease, cfg.Bootstrap.RetryDelay, clients.NewCircuitBreaker("redis", cfg.Breaker), logger)
		deps.Lease = redis
		deps.Probes["redis"] = redis
		app.closers = append(app.closers, redis.Close)
	}

	if cfg.Notify.NATSURL != "" {
		nats := clients.NewNATSClient(cfg.Notify, clients.NewCircuitBreaker("nats", cfg.Breaker))
		deps.Notifier = nats
		deps.Probes["nats"] = nats
	}

	app.orchestrator = orchestrator.New(deps, orchestrator.Options{
		MaxAttempts:    cfg.Bootstrap.MaxAttempts,
		RetryDelay:     cfg.Bootstrap.RetryDelay,
		AttemptTimeout: cfg.Bootstrap.AttemptTimeout,
		Timeout:        cfg.Bootstrap.Timeout,
	})

	slog.Debug("dependencies wired",
		"database", cfg.Database.Endpoint(),
		"lease", cfg.Lease.Enabled,
		"notify", cfg.Notify.NATSURL != "",
	)

	return app, nil
}

// Close flushes telemetry and closes long-lived clients.
func (a *AppContext) Close(ctx context.Context) {
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			slog.Warn("closing client failed", "error", err)
		}
	}
	if a.otelProvider != nil {
		if err := a.otelProvider.Shutdown(ctx); err != nil {
			slog.Warn("OTEL shutdown error", "error", err)
		}
	}
}

// migrationSource returns the embedded migrations, or the scripts in dir
// when one is configured.
func migrationSource(dir string) (migrate.Source, error) {
	var (
		src *migrate.FSSource
		err error
	)
	if dir == "" {
		src, err = migrate.NewFSSource(schema.Migrations, schema.MigrationsDir)
	} else {
		src, err = migrate.NewFSSource(os.DirFS(dir), ".")
	}
	if err != nil {
		return nil, fmt.Errorf("loading migrations: %w", err)
	}
	return src, nil
}
