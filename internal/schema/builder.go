package schema

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"classroom-platform/dbinit/internal/telemetry"
)

// GormBuilder creates tables from the GORM models. It runs on a connection
// pool owned by the caller.
type GormBuilder struct {
	db *gorm.DB
}

func NewGormBuilder(conn gorm.ConnPool, logger *slog.Logger, echo bool) (*GormBuilder, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: conn}), &gorm.Config{
		Logger:                                   telemetry.NewGormLogger(logger, echo),
		DisableForeignKeyConstraintWhenMigrating: true,
		DisableAutomaticPing:                     true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening gorm session: %w", err)
	}
	return &GormBuilder{db: db}, nil
}

// CreateTable creates t with its columns and indexes.
func (b *GormBuilder) CreateTable(ctx context.Context, t Table) error {
	if err := b.db.WithContext(ctx).Migrator().CreateTable(t.Model); err != nil {
		return fmt.Errorf("creating table %s: %w", t.Name, err)
	}
	return nil
}

// Transaction runs fn on a builder bound to one database transaction.
// PostgreSQL DDL is transactional, so a failed fn leaves no table behind.
func (b *GormBuilder) Transaction(ctx context.Context, fn func(tx Builder) error) error {
	return b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormBuilder{db: tx})
	})
}

// AddForeignKey adds fk unless a constraint with the same name exists on
// the table. It reports whether the constraint was added.
func (b *GormBuilder) AddForeignKey(ctx context.Context, fk ForeignKey) (bool, error) {
	onDelete, err := onDeleteClause(fk.OnDelete)
	if err != nil {
		return false, err
	}

	db := b.db.WithContext(ctx)
	name := fk.ConstraintName()

	var count int64
	err = db.Raw(
		"SELECT count(*) FROM pg_constraint WHERE conname = ? AND conrelid = to_regclass(?)",
		name, fk.Table,
	).Scan(&count).Error
	if err != nil {
		return false, fmt.Errorf("looking up constraint %s: %w", name, err)
	}
	if count > 0 {
		return false, nil
	}

	err = db.Exec(
		"ALTER TABLE ? ADD CONSTRAINT ? FOREIGN KEY (?) REFERENCES ? (?)"+onDelete,
		clause.Table{Name: fk.Table},
		clause.Column{Name: name},
		clause.Column{Name: fk.Column},
		clause.Table{Name: fk.RefTable},
		clause.Column{Name: fk.RefColumn},
	).Error
	if err != nil {
		return false, fmt.Errorf("adding constraint %s: %w", name, err)
	}
	return true, nil
}

func onDeleteClause(action string) (string, error) {
	switch action {
	case "":
		return "", nil
	case cascade, setNull, "RESTRICT", "NO ACTION":
		return " ON DELETE " + action, nil
	default:
		return "", fmt.Errorf("unsupported ON DELETE action %q", action)
	}
}
