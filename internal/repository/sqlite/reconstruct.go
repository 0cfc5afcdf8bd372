package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"tabularium/internal/domain"
)

// load reconstructs the document of a structure from its current record.
// Missing structures, empty structures, and descents past the depth limit
// all yield an empty document.
func (r *Repository) load(ctx context.Context, structure string, depth int) (domain.Document, error) {
	if depth >= r.maxDepth {
		return domain.Document{}, nil
	}

	ok, err := r.catalog.exists(ctx, structure)
	if err != nil {
		return nil, domain.NewStorageError("load", err)
	}
	if !ok {
		return domain.Document{}, nil
	}

	columns, err := r.catalog.columnsOf(ctx, structure)
	if err != nil {
		return nil, domain.NewStorageError("load", err)
	}

	values, found, err := r.latestRecord(ctx, structure, columns)
	if err != nil {
		return nil, err
	}
	if !found {
		return domain.Document{}, nil
	}
	return r.documentFromRecord(ctx, structure, columns, values, depth)
}

// latestRecord fetches the current record's cells: the newest row under
// append_history (ties broken by insertion order), which is also the
// singleton under upsert_singleton.
func (r *Repository) latestRecord(ctx context.Context, structure string, columns []string) ([]sql.NullString, bool, error) {
	if len(columns) == 0 {
		// Only system columns exist; just confirm a record is present.
		var n int
		err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+quoteIdent(structure)).Scan(&n)
		if err != nil {
			return nil, false, domain.NewStorageError("load", fmt.Errorf("structure %s: %w", structure, err))
		}
		return nil, n > 0, nil
	}

	query := "SELECT " + selectList(columns) + " FROM " + quoteIdent(structure) +
		" ORDER BY recorded_at DESC, id DESC LIMIT 1"

	values := make([]sql.NullString, len(columns))
	dest := make([]any, len(columns))
	for i := range values {
		dest[i] = &values[i]
	}

	err := r.db.QueryRowContext(ctx, query).Scan(dest...)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, domain.NewStorageError("load", fmt.Errorf("structure %s: %w", structure, err))
	}
	return values, true, nil
}

// documentFromRecord turns one record's cells back into a document.
// NULL cells are rows written before their column existed and read as
// absent keys. The sentinel marker recurses into the child structure;
// every other cell parses as JSON with a plain-string fallback.
func (r *Repository) documentFromRecord(ctx context.Context, structure string, columns []string, values []sql.NullString, depth int) (domain.Document, error) {
	doc := domain.Document{}
	for i, col := range columns {
		v := values[i]
		if !v.Valid {
			continue
		}
		if v.String == domain.ObjectSentinel {
			child, err := r.load(ctx, childStructure(structure, col), depth+1)
			if err != nil {
				return nil, err
			}
			doc[col] = map[string]any(child)
			continue
		}
		doc[col] = domain.ParseCellText(v.String)
	}
	return doc, nil
}
