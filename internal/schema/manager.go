package schema

import (
	"context"
	"fmt"
	"log/slog"
)

type Catalog interface {
	ListTables(ctx context.Context) ([]string, error)
}

type Builder interface {
	CreateTable(ctx context.Context, t Table) error
	AddForeignKey(ctx context.Context, fk ForeignKey) (bool, error)
	// Transaction runs fn with a Builder bound to one transaction and
	// commits only if fn returns nil.
	Transaction(ctx context.Context, fn func(tx Builder) error) error
}

// Inventory compares declared tables with what the database holds.
type Inventory struct {
	Declared []string `json:"declared"`
	Present  []string `json:"present"`
	Missing  []string `json:"missing"`
}

func (i Inventory) Complete() bool { return len(i.Missing) == 0 }

type Creation struct {
	Tables      []string `json:"tables"`
	ForeignKeys []string `json:"foreign_keys"`
}

// Manager creates declared tables that are absent. It never drops or alters
// an existing table.
type Manager struct {
	catalog Catalog
	builder Builder
	tables  []Table
	fks     []ForeignKey
	logger  *slog.Logger
}

func NewManager(catalog Catalog, builder Builder, logger *slog.Logger) *Manager {
	return &Manager{
		catalog: catalog,
		builder: builder,
		tables:  Tables(),
		fks:     ForeignKeys(),
		logger:  logger,
	}
}

func (m *Manager) Inspect(ctx context.Context) (*Inventory, error) {
	existing, err := m.catalog.ListTables(ctx)
	if err != nil {
		return nil, err
	}

	present := make(map[string]struct{}, len(existing))
	for _, name := range existing {
		present[name] = struct{}{}
	}

	inv := &Inventory{
		Declared: make([]string, 0, len(m.tables)),
		Present:  make([]string, 0, len(m.tables)),
		Missing:  make([]string, 0),
	}
	for _, t := range m.tables {
		inv.Declared = append(inv.Declared, t.Name)
		if _, ok := present[t.Name]; ok {
			inv.Present = append(inv.Present, t.Name)
		} else {
			inv.Missing = append(inv.Missing, t.Name)
		}
	}

	return inv, nil
}

// CreateMissing creates the tables named in missing in declaration order,
// then adds the foreign keys those tables own. Everything runs in one
// transaction: on error nothing is kept and the empty Creation is returned
// with the error, so a later run starts from the same missing set.
func (m *Manager) CreateMissing(ctx context.Context, missing []string) (*Creation, error) {
	declared := make(map[string]struct{}, len(m.tables))
	for _, t := range m.tables {
		declared[t.Name] = struct{}{}
	}

	wanted := make(map[string]struct{}, len(missing))
	for _, name := range missing {
		if _, ok := declared[name]; !ok {
			return nil, fmt.Errorf("table %s is not declared", name)
		}
		wanted[name] = struct{}{}
	}

	var result *Creation
	err := m.builder.Transaction(ctx, func(tx Builder) error {
		var err error
		result, err = m.create(ctx, tx, wanted)
		return err
	})
	if err != nil {
		return &Creation{Tables: []string{}, ForeignKeys: []string{}}, err
	}

	for _, name := range result.Tables {
		m.logger.Info("table created", "table", name)
	}
	for _, name := range result.ForeignKeys {
		m.logger.Debug("foreign key added", "constraint", name)
	}
	return result, nil
}

func (m *Manager) create(ctx context.Context, b Builder, wanted map[string]struct{}) (*Creation, error) {
	result := &Creation{
		Tables:      make([]string, 0, len(wanted)),
		ForeignKeys: make([]string, 0),
	}

	for _, t := range m.tables {
		if _, ok := wanted[t.Name]; !ok {
			continue
		}
		if err := b.CreateTable(ctx, t); err != nil {
			return nil, err
		}
		result.Tables = append(result.Tables, t.Name)
	}

	for _, fk := range m.fks {
		if _, ok := wanted[fk.Table]; !ok {
			continue
		}
		added, err := b.AddForeignKey(ctx, fk)
		if err != nil {
			return nil, err
		}
		if added {
			result.ForeignKeys = append(result.ForeignKeys, fk.ConstraintName())
		}
	}

	return result, nil
}
