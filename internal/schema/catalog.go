package schema

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PGCatalog reads table names from information_schema.
type PGCatalog struct {
	conn rowQuerier
}

func NewPGCatalog(conn rowQuerier) *PGCatalog {
	return &PGCatalog{conn: conn}
}

// ListTables returns the base tables of the connection's current schema.
func (c *PGCatalog) ListTables(ctx context.Context) ([]string, error) {
	rows, err := c.conn.Query(ctx,
		`SELECT table_name FROM information_schema.tables
		 WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'
		 ORDER BY table_name`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying information_schema.tables: %w", err)
	}

	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("reading table names: %w", err)
	}
	return names, nil
}
