package sqlite

import (
	"strings"

	"tabularium/internal/domain"
)

// ============================================================================
// Naming
// ============================================================================

// System columns present in every structure. Document keys must not
// collide with them.
const (
	colID         = "id"
	colRecordedAt = "recorded_at"
)

// Row id written by the upsert_singleton policy
const singletonID = 1

// quoteIdent quotes an identifier for embedding in SQL. Structure and
// column names come from document keys, so they are always quoted and
// embedded quotes are doubled.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// validateKey rejects document keys that cannot become columns
func validateKey(key string) error {
	if key == "" {
		return domain.NewValidationError("document key is empty")
	}
	if key == colID || key == colRecordedAt {
		return domain.NewValidationError("document key %q collides with a reserved column", key)
	}
	return nil
}

// childStructure derives the structure name holding the content of an
// object-valued key.
func childStructure(parent, key string) string {
	return parent + "_" + key
}

// ============================================================================
// Column Helpers
// ============================================================================

// hasColumn reports whether a column list declares name
func hasColumn(columns []string, name string) bool {
	for _, col := range columns {
		if col == name {
			return true
		}
	}
	return false
}

// selectList renders a quoted comma-separated column list
func selectList(columns []string) string {
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = quoteIdent(col)
	}
	return strings.Join(quoted, ", ")
}
