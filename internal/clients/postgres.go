package clients

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/sony/gobreaker"

	"classroom-platform/dbinit/internal/config"
	"classroom-platform/dbinit/internal/migrate"
	"classroom-platform/dbinit/internal/orchestrator"
	"classroom-platform/dbinit/internal/schema"
)

const postgresProbeName = "postgres"

// dbPinger abstracts the pgxpool.Pool methods used in Probe so that tests
// can inject a fake without standing up a real database.
type dbPinger interface {
	Ping(ctx context.Context) error
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresClient opens verified sessions against the target database and
// probes it for the deep health check.
type PostgresClient struct {
	cfg    config.DatabaseConfig
	boot   config.BootstrapConfig
	source migrate.Source
	cb     *gobreaker.CircuitBreaker
	logger *slog.Logger

	open func(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error)
	dial func(ctx context.Context, cfg config.DatabaseConfig) (dbPinger, error)
}

// NewPostgresClient creates a PostgresClient. No connection is made at
// construction time.
func NewPostgresClient(
	cfg config.DatabaseConfig,
	boot config.BootstrapConfig,
	source migrate.Source,
	cb *gobreaker.CircuitBreaker,
	logger *slog.Logger,
) *PostgresClient {
	return &PostgresClient{
		cfg:    cfg,
		boot:   boot,
		source: source,
		cb:     cb,
		logger: logger,
		open:   realConnect,
		dial: func(ctx context.Context, cfg config.DatabaseConfig) (dbPinger, error) {
			return realConnect(ctx, cfg)
		},
	}
}

// Connect makes one connection attempt, runs SELECT 1 and wires the
// migration engine and table manager onto the new pool.
func (c *PostgresClient) Connect(ctx context.Context) (orchestrator.Session, error) {
	pool, err := c.open(ctx, c.cfg)
	if err != nil {
		return nil, err
	}

	var one int
	if err := pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		pool.Close()
		return nil, fmt.Errorf("SELECT 1 on %s: %w", c.cfg.Endpoint(), err)
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	builder, err := schema.NewGormBuilder(sqlDB, c.logger, c.cfg.Echo)
	if err != nil {
		_ = sqlDB.Close()
		pool.Close()
		return nil, err
	}

	driver := migrate.NewPostgresDriver(pool, migrate.PostgresConfig{LedgerTable: c.boot.MigrationsTable})
	migrator := migrate.New(c.source, driver, migrate.Options{
		TxMode:      migrate.TxMode(c.boot.TxMode),
		AdoptLegacy: c.boot.AdoptAlembic,
	}, c.logger)

	return &Database{
		pool:     pool,
		sqlDB:    sqlDB,
		migrator: migrator,
		tables:   schema.NewManager(schema.NewPGCatalog(pool), builder, c.logger),
	}, nil
}

// Probe pings the server and verifies the migration ledger exists. It wraps
// the check in the circuit breaker so that persistent failures trip the
// breaker after three consecutive errors.
func (c *PostgresClient) Probe(ctx context.Context) orchestrator.ProbeResult {
	start := time.Now()

	_, err := c.cb.Execute(func() (any, error) {
		pool, err := c.dial(ctx, c.cfg)
		if err != nil {
			return nil, err
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			return nil, fmt.Errorf("ping: %w", err)
		}

		var exists bool
		row := pool.QueryRow(ctx, "SELECT to_regclass($1) IS NOT NULL", c.boot.MigrationsTable)
		if err := row.Scan(&exists); err != nil {
			return nil, fmt.Errorf("checking %s: %w", c.boot.MigrationsTable, err)
		}
		if !exists {
			return nil, fmt.Errorf("%s table not found", c.boot.MigrationsTable)
		}
		return nil, nil
	})

	return probeResult(postgresProbeName, start, err)
}

// Database is a verified session on one pgx pool. The GORM builder shares
// the pool through database/sql.
type Database struct {
	pool     *pgxpool.Pool
	sqlDB    *sql.DB
	migrator *migrate.Migrator
	tables   *schema.Manager
}

func (d *Database) Migrator() orchestrator.Migrator   { return d.migrator }
func (d *Database) Tables() orchestrator.TableManager { return d.tables }

// Close releases the database/sql wrapper, then the pool.
func (d *Database) Close() {
	_ = d.sqlDB.Close()
	d.pool.Close()
}

// probeResult converts a breaker outcome into a ProbeResult.
func probeResult(name string, start time.Time, err error) orchestrator.ProbeResult {
	latency := time.Since(start).Milliseconds()

	if err != nil {
		errMsg := err.Error()
		if errors.Is(err, gobreaker.ErrOpenState) {
			errMsg = "circuit open"
		}
		return orchestrator.ProbeResult{
			Name:      name,
			OK:        false,
			LatencyMs: latency,
			Error:     errMsg,
		}
	}

	return orchestrator.ProbeResult{
		Name:      name,
		OK:        true,
		LatencyMs: latency,
	}
}

// realConnect opens a pgxpool.Pool for the configured database.
func realConnect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing postgres DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("opening postgres pool for %s: %w", cfg.Endpoint(), err)
	}

	return pool, nil
}
