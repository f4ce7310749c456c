package engine

import (
	"context"
	"fmt"
)

// Column is one column of a relation as reported by DESCRIBE.
type Column struct {
	Name string `db:"column_name" json:"name"`
	Type string `db:"column_type" json:"type"`
}

// Describe returns the columns of a relation expression, which may be a
// quoted view name or a table function call.
func (h *Handle) Describe(ctx context.Context, relation string) ([]Column, error) {
	var cols []Column
	q := "SELECT column_name, column_type FROM (DESCRIBE SELECT * FROM " + relation + ")"
	if err := h.conn.SelectContext(ctx, &cols, q); err != nil {
		return nil, fmt.Errorf("describe %s: %w", relation, err)
	}
	return cols, nil
}

// Views lists user views in the session database, sorted by name.
func (h *Handle) Views(ctx context.Context) ([]string, error) {
	var names []string
	err := h.conn.SelectContext(ctx, &names,
		`SELECT view_name FROM duckdb_views()
		 WHERE NOT internal AND database_name = current_database() AND schema_name = 'main'
		 ORDER BY view_name`)
	if err != nil {
		return nil, fmt.Errorf("list views: %w", err)
	}
	return names, nil
}

// ViewExists reports whether a user view with the exact name exists.
func (h *Handle) ViewExists(ctx context.Context, name string) (bool, error) {
	var n int
	err := h.conn.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM duckdb_views()
		 WHERE NOT internal AND database_name = current_database() AND schema_name = 'main' AND view_name = ?`,
		name)
	if err != nil {
		return false, fmt.Errorf("inspect views: %w", err)
	}
	return n > 0, nil
}

// CountRows returns COUNT(*) over a relation expression.
func (h *Handle) CountRows(ctx context.Context, relation string) (int64, error) {
	var n int64
	if err := h.conn.GetContext(ctx, &n, "SELECT COUNT(*) FROM "+relation); err != nil {
		return 0, err
	}
	return n, nil
}
