package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"tabularium/internal/domain"
)

// findByAttribute scans every structure declaring a column named key and
// matches records where that column equals value. The match is limited to
// the newest matching record per structure, and each hit is reconstructed
// into the document rooted at its structure. Structures are visited in
// name order, so results are deterministic for a fixed database state.
//
// Both terms empty short-circuits to an empty result; one empty term is a
// validation failure.
func (r *Repository) findByAttribute(ctx context.Context, key, value string) ([]domain.Document, error) {
	if key == "" && value == "" {
		return []domain.Document{}, nil
	}
	if key == "" {
		return nil, domain.NewValidationError("search key is empty")
	}
	if value == "" {
		return nil, domain.NewValidationError("search value is empty")
	}

	names, err := r.catalog.structures(ctx)
	if err != nil {
		return nil, domain.NewStorageError("search", err)
	}

	results := []domain.Document{}
	for _, name := range names {
		columns, err := r.catalog.columnsOf(ctx, name)
		if err != nil {
			return nil, domain.NewStorageError("search", err)
		}
		if !hasColumn(columns, key) {
			continue
		}

		values, found, err := r.matchingRecord(ctx, name, columns, key, value)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}

		doc, err := r.documentFromRecord(ctx, name, columns, values, 0)
		if err != nil {
			return nil, err
		}
		results = append(results, doc)
	}
	return results, nil
}

// matchingRecord finds the newest record of a structure whose key column
// equals value.
func (r *Repository) matchingRecord(ctx context.Context, structure string, columns []string, key, value string) ([]sql.NullString, bool, error) {
	query := "SELECT " + selectList(columns) + " FROM " + quoteIdent(structure) +
		" WHERE " + quoteIdent(key) + " = ? ORDER BY recorded_at DESC, id DESC LIMIT 1"

	values := make([]sql.NullString, len(columns))
	dest := make([]any, len(columns))
	for i := range values {
		dest[i] = &values[i]
	}

	err := r.db.QueryRowContext(ctx, query, value).Scan(dest...)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, domain.NewStorageError("search", fmt.Errorf("structure %s: %w", structure, err))
	}
	return values, true, nil
}
