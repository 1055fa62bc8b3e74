package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
)

// ErrIrreversible is returned by Down when a migration above the target has
// no down script.
var ErrIrreversible = errors.New("migration cannot be reverted")

type TxMode string

const (
	// TxPerMigration commits each script with its ledger row on its own.
	TxPerMigration TxMode = "per-migration"
	// TxSingle applies every pending script in one transaction.
	TxSingle TxMode = "single"
)

type Options struct {
	TxMode TxMode
	// AdoptLegacy baselines an empty ledger from alembic_version.
	AdoptLegacy bool
}

type ValidationResult struct {
	Migrations   []State `json:"migrations"`
	AppliedCount uint    `json:"applied_count"`
	PendingCount uint    `json:"pending_count"`
	MissingCount uint    `json:"missing_count"`
	DriftCount   uint    `json:"drift_count"`
	// Current is the highest applied version, 0 on an empty ledger.
	Current Version `json:"current_version"`
	// Latest is the highest version the source provides.
	Latest Version `json:"latest_version"`
	// Legacy is the alembic revision an empty ledger would be adopted from.
	Legacy Version `json:"legacy_revision,omitempty"`
}

type UpResult struct {
	Adopted []Migration
	Applied []Migration
	Version Version
}

// Migrator reconciles a Source against the ledger kept by a Driver.
type Migrator struct {
	source Source
	driver Driver
	opts   Options
	logger *slog.Logger
}

func New(source Source, driver Driver, opts Options, logger *slog.Logger) *Migrator {
	if opts.TxMode == "" {
		opts.TxMode = TxPerMigration
	}
	return &Migrator{
		source: source,
		driver: driver,
		opts:   opts,
		logger: logger,
	}
}

// Status compares the source with the ledger without writing anything. An
// absent ledger reads as empty. When an empty ledger would be adopted from
// alembic_version, the adoptable migrations are reported as applied.
func (m *Migrator) Status(ctx context.Context) (*ValidationResult, error) {
	exists, err := m.driver.LedgerExists(ctx)
	if err != nil {
		return nil, err
	}

	available, err := m.source.Available()
	if err != nil {
		return nil, fmt.Errorf("failed to get the list of available migrations: %w", err)
	}

	applied := make([]Log, 0)
	if exists {
		applied, err = m.driver.ListApplied(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get the list of applied migrations: %w", err)
		}
	}

	var legacy Version
	if len(applied) == 0 && m.opts.AdoptLegacy {
		v, ok, err := m.driver.LegacyVersion(ctx)
		if err != nil {
			return nil, err
		}
		if ok {
			legacy = v
		}
	}

	return m.reconcile(available, applied, legacy)
}

// reconcile matches available scripts against the ledger. Migrations at or
// below legacy with no ledger row count as applied.
func (m *Migrator) reconcile(available []Description, applied []Log, legacy Version) (*ValidationResult, error) {
	ledger := make(map[Version]Log, len(applied))
	for _, entry := range applied {
		ledger[entry.Version] = entry
	}

	result := ValidationResult{
		Migrations: make([]State, 0, len(available)),
		Legacy:     legacy,
	}

	offered := make(map[Version]struct{}, len(available))
	for _, descr := range available {
		offered[descr.Version] = struct{}{}
		if descr.Version > result.Latest {
			result.Latest = descr.Version
		}

		entry, ok := ledger[descr.Version]
		if !ok && descr.Version <= legacy {
			result.AppliedCount++
			result.Current = maxVersion(result.Current, descr.Version)
			result.Migrations = append(result.Migrations, State{Description: descr, Status: Applied})
			continue
		}
		if !ok {
			result.PendingCount++
			result.Migrations = append(result.Migrations, State{Description: descr, Status: Pending})
			continue
		}

		state := State{Description: descr, Status: Applied}
		appliedAt := entry.AppliedAt
		state.AppliedAt = &appliedAt

		script, err := m.source.Read(descr.Migration, Up)
		if err != nil {
			return nil, err
		}
		if entry.Checksum != Checksum(script.SQL) {
			state.Drifted = true
			result.DriftCount++
		}

		result.AppliedCount++
		result.Migrations = append(result.Migrations, state)
	}

	for _, entry := range applied {
		if entry.Version > result.Current {
			result.Current = entry.Version
		}
		if _, ok := offered[entry.Version]; ok {
			continue
		}

		appliedAt := entry.AppliedAt
		result.Migrations = append(result.Migrations, State{
			Description: Description{Migration: entry.Migration},
			Status:      Missing,
			AppliedAt:   &appliedAt,
		})
		result.MissingCount++
	}

	sort.Slice(result.Migrations, func(i, j int) bool {
		return result.Migrations[i].Version < result.Migrations[j].Version
	})

	return &result, nil
}

// Up applies every pending migration in ascending order. In per-migration
// mode, migrations committed before a failure stay applied and are reported
// in the result alongside the error.
func (m *Migrator) Up(ctx context.Context) (*UpResult, error) {
	if err := m.driver.EnsureLedger(ctx); err != nil {
		return nil, err
	}

	available, err := m.source.Available()
	if err != nil {
		return nil, fmt.Errorf("failed to get the list of available migrations: %w", err)
	}

	applied, err := m.driver.ListApplied(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get the list of applied migrations: %w", err)
	}

	result := &UpResult{}

	if len(applied) == 0 && m.opts.AdoptLegacy {
		adopted, err := m.adoptLegacy(ctx, available)
		if err != nil {
			return nil, err
		}
		if len(adopted) > 0 {
			result.Adopted = adopted
			applied, err = m.driver.ListApplied(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to get the list of applied migrations: %w", err)
			}
		}
	}

	state, err := m.reconcile(available, applied, 0)
	if err != nil {
		return nil, err
	}
	result.Version = state.Current

	for _, s := range state.Migrations {
		switch {
		case s.Status == Missing:
			m.logger.Warn("applied migration is no longer available",
				"migration", s.Migration.String())
		case s.Drifted:
			m.logger.Warn("applied migration was modified after it ran",
				"migration", s.Migration.String())
		}
	}

	pending := make([]Script, 0, state.PendingCount)
	for _, s := range state.Migrations {
		if s.Status != Pending {
			continue
		}
		script, err := m.source.Read(s.Migration, Up)
		if err != nil {
			return nil, err
		}
		pending = append(pending, script)
	}

	if len(pending) == 0 {
		m.logger.Info("schema is up to date", "version", result.Version)
		return result, nil
	}

	if m.opts.TxMode == TxSingle {
		if err := m.driver.Apply(ctx, pending); err != nil {
			return result, err
		}
		for _, script := range pending {
			m.logger.Info("migration applied", "migration", script.Migration.String())
			result.Applied = append(result.Applied, script.Migration)
		}
		result.Version = maxVersion(result.Version, pending[len(pending)-1].Version)
		return result, nil
	}

	for _, script := range pending {
		if err := m.driver.Apply(ctx, []Script{script}); err != nil {
			return result, err
		}
		m.logger.Info("migration applied", "migration", script.Migration.String())
		result.Applied = append(result.Applied, script.Migration)
		result.Version = maxVersion(result.Version, script.Version)
	}

	return result, nil
}

// Down reverts applied migrations above target, highest first, one
// transaction each. It returns the reverted migrations.
func (m *Migrator) Down(ctx context.Context, target Version) ([]Migration, error) {
	if err := m.driver.EnsureLedger(ctx); err != nil {
		return nil, err
	}

	available, err := m.source.Available()
	if err != nil {
		return nil, fmt.Errorf("failed to get the list of available migrations: %w", err)
	}

	applied, err := m.driver.ListApplied(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get the list of applied migrations: %w", err)
	}

	undoable := make(map[Version]Description, len(available))
	for _, descr := range available {
		undoable[descr.Version] = descr
	}

	// Check every step first so a run never stops halfway on a known gap.
	victims := make([]Log, 0)
	for _, entry := range applied {
		if entry.Version <= target {
			continue
		}
		descr, ok := undoable[entry.Version]
		if !ok || !descr.CanUndo {
			return nil, fmt.Errorf("%w: %s", ErrIrreversible, entry.Migration)
		}
		victims = append(victims, entry)
	}

	sort.Slice(victims, func(i, j int) bool {
		return victims[i].Version > victims[j].Version
	})

	reverted := make([]Migration, 0, len(victims))
	for _, entry := range victims {
		script, err := m.source.Read(entry.Migration, Down)
		if err != nil {
			return reverted, err
		}
		if err := m.driver.Revert(ctx, []Script{script}); err != nil {
			return reverted, err
		}
		m.logger.Info("migration reverted", "migration", entry.Migration.String())
		reverted = append(reverted, entry.Migration)
	}

	return reverted, nil
}

func (m *Migrator) adoptLegacy(ctx context.Context, available []Description) ([]Migration, error) {
	legacy, ok, err := m.driver.LegacyVersion(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	batch := make([]Script, 0)
	for _, descr := range available {
		if descr.Version > legacy {
			break
		}
		script, err := m.source.Read(descr.Migration, Up)
		if err != nil {
			return nil, err
		}
		batch = append(batch, script)
	}
	if len(batch) == 0 {
		return nil, nil
	}

	if err := m.driver.Baseline(ctx, batch); err != nil {
		return nil, err
	}

	adopted := make([]Migration, 0, len(batch))
	for _, script := range batch {
		adopted = append(adopted, script.Migration)
	}
	m.logger.Info("adopted legacy alembic revision",
		"revision", legacy,
		"baselined", len(adopted),
	)

	return adopted, nil
}

func maxVersion(a, b Version) Version {
	if a > b {
		return a
	}
	return b
}
