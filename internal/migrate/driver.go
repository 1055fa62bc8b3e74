package migrate

import (
	"context"
	"errors"
	"fmt"
)

// Driver persists the migration ledger and executes scripts.
type Driver interface {
	// EnsureLedger creates the ledger table if it does not exist yet.
	EnsureLedger(ctx context.Context) error
	// LedgerExists reports whether the ledger table is there, without
	// creating it.
	LedgerExists(ctx context.Context) (bool, error)
	// ListApplied returns the ledger ordered by version.
	ListApplied(ctx context.Context) ([]Log, error)
	// Apply runs every script of batch in one transaction and records each
	// in the ledger. On failure nothing of the batch is kept.
	Apply(ctx context.Context, batch []Script) error
	// Revert runs every down script of batch in one transaction and removes
	// the matching ledger rows.
	Revert(ctx context.Context, batch []Script) error
	// LegacyVersion reports the revision recorded by a previous Alembic-based
	// deployment, if any.
	LegacyVersion(ctx context.Context) (Version, bool, error)
	// Baseline records migrations as applied without executing them.
	Baseline(ctx context.Context, batch []Script) error
}

var ErrInvalidLedger = errors.New("an error has occurred when reading the migration ledger")

// ScriptError reports which script of a batch failed.
type ScriptError struct {
	Migration Migration
	Direction Direction
	Err       error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("migration %s (%s) failed: %v", e.Migration, e.Direction, e.Err)
}

func (e *ScriptError) Unwrap() error { return e.Err }
