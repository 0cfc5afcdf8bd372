package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// catalog answers which structures exist and grows them. It is the only
// place DDL is issued. Columns are added as TEXT when new keys appear and
// are never dropped or retyped, so the column set of a structure only
// widens over its lifetime.
type catalog struct {
	db *sql.DB
}

// exists reports whether a structure has been created
func (c *catalog) exists(ctx context.Context, name string) (bool, error) {
	var n int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check structure %s: %w", name, err)
	}
	return n > 0, nil
}

// columnsOf returns the document columns of a structure in declaration
// order, system columns excluded. A missing structure yields an empty set.
func (c *catalog) columnsOf(ctx context.Context, name string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT name FROM pragma_table_info(?) ORDER BY cid`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", name, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return nil, fmt.Errorf("failed to scan column of %s: %w", name, err)
		}
		if col == colID || col == colRecordedAt {
			continue
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating columns of %s: %w", name, err)
	}
	return columns, nil
}

// createOrWiden ensures a structure exists and declares every given
// column. Existing columns are left untouched; missing ones are added.
func (c *catalog) createOrWiden(ctx context.Context, name string, columns []string) error {
	ok, err := c.exists(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return c.create(ctx, name, columns)
	}

	existing, err := c.columnsOf(ctx, name)
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(existing))
	for _, col := range existing {
		have[col] = true
	}
	for _, col := range columns {
		if have[col] {
			continue
		}
		ddl := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s TEXT", quoteIdent(name), quoteIdent(col))
		if _, err := c.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("failed to widen structure %s with column %s: %w", name, col, err)
		}
	}
	return nil
}

func (c *catalog) create(ctx context.Context, name string, columns []string) error {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(quoteIdent(name))
	b.WriteString(" (id INTEGER PRIMARY KEY AUTOINCREMENT, recorded_at INTEGER NOT NULL")
	for _, col := range columns {
		b.WriteString(", ")
		b.WriteString(quoteIdent(col))
		b.WriteString(" TEXT")
	}
	b.WriteString(")")

	if _, err := c.db.ExecContext(ctx, b.String()); err != nil {
		return fmt.Errorf("failed to create structure %s: %w", name, err)
	}
	return nil
}

// structures lists every stored structure in name order. The fixed order
// keeps catalog scans deterministic for a given database state.
func (c *catalog) structures(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list structures: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan structure name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating structures: %w", err)
	}
	return names, nil
}

// family lists root and every structure descended from it, in name order.
// The underscore in the prefix pattern is escaped so it matches literally
// instead of acting as a single-character wildcard.
func (c *catalog) family(ctx context.Context, root string) ([]string, error) {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(root)
	rows, err := c.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND (name = ? OR name LIKE ? ESCAPE '\') ORDER BY name`,
		root, escaped+`\_%`)
	if err != nil {
		return nil, fmt.Errorf("failed to list family of %s: %w", root, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan structure name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating family of %s: %w", root, err)
	}
	return names, nil
}

// recordCount counts the rows of a structure
func (c *catalog) recordCount(ctx context.Context, name string) (int64, error) {
	var n int64
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+quoteIdent(name)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count records of %s: %w", name, err)
	}
	return n, nil
}
