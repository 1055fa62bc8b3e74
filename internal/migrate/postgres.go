package migrate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgConn is the subset of *pgxpool.Pool the ledger driver uses.
type pgConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PostgresConfig struct {
	// LedgerTable may be schema-qualified ("ops.schema_migrations").
	LedgerTable string
}

// PostgresDriver keeps the ledger in a PostgreSQL table and runs scripts
// through pgx. Scripts are sent without arguments, so pgx uses the simple
// protocol and a file may hold several statements.
type PostgresDriver struct {
	conn  pgConn
	table string
}

func NewPostgresDriver(conn pgConn, cfg PostgresConfig) *PostgresDriver {
	return &PostgresDriver{
		conn:  conn,
		table: quoteQualified(cfg.LedgerTable),
	}
}

func (d *PostgresDriver) EnsureLedger(ctx context.Context) error {
	_, err := d.conn.Exec(ctx, fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s ("+
			"version    BIGINT PRIMARY KEY, "+
			"name       TEXT NOT NULL, "+
			"checksum   TEXT NOT NULL, "+
			"applied_at TIMESTAMPTZ NOT NULL DEFAULT now()"+
			")",
		d.table,
	))
	if err != nil {
		return fmt.Errorf("failed to create migration ledger %s: %w", d.table, err)
	}
	return nil
}

func (d *PostgresDriver) ListApplied(ctx context.Context) ([]Log, error) {
	rows, err := d.conn.Query(ctx, fmt.Sprintf(
		"SELECT version, name, checksum, applied_at FROM %s ORDER BY version",
		d.table,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to list applied migrations: %w", err)
	}
	defer rows.Close()

	result := make([]Log, 0)
	for rows.Next() {
		var (
			entry   Log
			version int64
		)
		if err := rows.Scan(&version, &entry.Name, &entry.Checksum, &entry.AppliedAt); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidLedger, err)
		}
		entry.Version = Version(version)
		result = append(result, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidLedger, err)
	}

	return result, nil
}

func (d *PostgresDriver) Apply(ctx context.Context, batch []Script) error {
	return d.inTx(ctx, func(tx pgx.Tx) error {
		for _, script := range batch {
			if _, err := tx.Exec(ctx, script.SQL); err != nil {
				return &ScriptError{Migration: script.Migration, Direction: Up, Err: err}
			}
			if err := d.record(ctx, tx, script); err != nil {
				return &ScriptError{Migration: script.Migration, Direction: Up, Err: err}
			}
		}
		return nil
	})
}

func (d *PostgresDriver) Revert(ctx context.Context, batch []Script) error {
	return d.inTx(ctx, func(tx pgx.Tx) error {
		for _, script := range batch {
			if _, err := tx.Exec(ctx, script.SQL); err != nil {
				return &ScriptError{Migration: script.Migration, Direction: Down, Err: err}
			}
			_, err := tx.Exec(ctx,
				fmt.Sprintf("DELETE FROM %s WHERE version = $1", d.table),
				int64(script.Version),
			)
			if err != nil {
				return &ScriptError{Migration: script.Migration, Direction: Down, Err: err}
			}
		}
		return nil
	})
}

func (d *PostgresDriver) Baseline(ctx context.Context, batch []Script) error {
	return d.inTx(ctx, func(tx pgx.Tx) error {
		for _, script := range batch {
			if err := d.record(ctx, tx, script); err != nil {
				return fmt.Errorf("failed to baseline %s: %w", script.Migration, err)
			}
		}
		return nil
	})
}

func (d *PostgresDriver) LedgerExists(ctx context.Context) (bool, error) {
	var exists bool
	if err := d.conn.QueryRow(ctx, "SELECT to_regclass($1) IS NOT NULL", d.table).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to look up %s: %w", d.table, err)
	}
	return exists, nil
}

// LegacyVersion reads alembic_version.version_num. Alembic revisions in this
// project are zero-padded integers; anything else is reported as an error.
func (d *PostgresDriver) LegacyVersion(ctx context.Context) (Version, bool, error) {
	var exists bool
	err := d.conn.QueryRow(ctx, "SELECT to_regclass('alembic_version') IS NOT NULL").Scan(&exists)
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up alembic_version: %w", err)
	}
	if !exists {
		return 0, false, nil
	}

	var revision string
	err = d.conn.QueryRow(ctx, "SELECT version_num FROM alembic_version LIMIT 1").Scan(&revision)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read alembic_version: %w", err)
	}

	v, err := strconv.ParseUint(strings.TrimSpace(revision), 10, VersionBits)
	if err != nil {
		return 0, false, fmt.Errorf("alembic revision %q is not numeric: %w", revision, err)
	}
	return Version(v), true, nil
}

func (d *PostgresDriver) record(ctx context.Context, tx pgx.Tx, script Script) error {
	_, err := tx.Exec(ctx,
		fmt.Sprintf("INSERT INTO %s (version, name, checksum) VALUES ($1, $2, $3)", d.table),
		int64(script.Version), script.Name, Checksum(script.SQL),
	)
	return err
}

func (d *PostgresDriver) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := d.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Checksum fingerprints a script so later edits to an applied migration can
// be reported.
func Checksum(sql string) string {
	sum := sha256.Sum256([]byte(sql))
	return hex.EncodeToString(sum[:])
}

func quoteQualified(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}
