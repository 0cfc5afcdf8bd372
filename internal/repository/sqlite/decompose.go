package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tabularium/internal/domain"
)

// frame is one pending object write on the decomposition work list
type frame struct {
	structure string
	doc       domain.Document
	depth     int
}

// store walks the document iteratively, creating or widening one structure
// per object and writing one record into each. The explicit work list
// replaces call recursion, so nesting is bounded by the configured depth
// limit rather than the stack. Keys are visited in sorted order; the write
// outcome does not depend on traversal order.
func (r *Repository) store(ctx context.Context, structure string, doc domain.Document) error {
	if structure == "" {
		return domain.NewValidationError("structure name is empty")
	}
	if doc == nil {
		return domain.ErrNotAnObject
	}

	stack := []frame{{structure: structure, doc: doc, depth: 1}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if f.depth > r.maxDepth {
			return domain.NewValidationError("document nesting exceeds %d levels", r.maxDepth)
		}

		columns := make([]string, 0, len(f.doc))
		cells := make(map[string]domain.Cell, len(f.doc))
		for _, key := range f.doc.SortedKeys() {
			if err := validateKey(key); err != nil {
				return err
			}
			cell, err := domain.CellFromValue(f.doc[key])
			if err != nil {
				return domain.NewValidationError("key %q: %v", key, err)
			}
			columns = append(columns, key)
			cells[key] = cell

			if cell.IsObjectMarker() {
				child, err := domain.AsDocument(f.doc[key])
				if err != nil {
					return err
				}
				stack = append(stack, frame{
					structure: childStructure(f.structure, key),
					doc:       child,
					depth:     f.depth + 1,
				})
			}
		}

		if err := r.catalog.createOrWiden(ctx, f.structure, columns); err != nil {
			return domain.NewStorageError("create", err)
		}
		if err := r.writeRecord(ctx, f.structure, columns, cells); err != nil {
			return err
		}
	}
	return nil
}

// writeRecord writes one row per the active policy: a plain insert under
// append_history, the fixed singleton row under upsert_singleton. The
// upsert touches only the columns present in this document; cells written
// by earlier shapes keep their values.
func (r *Repository) writeRecord(ctx context.Context, structure string, columns []string, cells map[string]domain.Cell) error {
	now := time.Now().Unix()

	var b strings.Builder
	args := make([]any, 0, len(columns)+2)

	b.WriteString("INSERT INTO ")
	b.WriteString(quoteIdent(structure))

	if r.policy == domain.PolicyUpsertSingleton {
		b.WriteString(" (id, recorded_at")
		args = append(args, singletonID, now)
	} else {
		b.WriteString(" (recorded_at")
		args = append(args, now)
	}
	for _, col := range columns {
		b.WriteString(", ")
		b.WriteString(quoteIdent(col))
	}
	b.WriteString(") VALUES (?")
	if r.policy == domain.PolicyUpsertSingleton {
		b.WriteString(", ?")
	}
	for _, col := range columns {
		b.WriteString(", ?")
		args = append(args, cells[col].Text)
	}
	b.WriteString(")")

	if r.policy == domain.PolicyUpsertSingleton {
		b.WriteString(" ON CONFLICT(id) DO UPDATE SET recorded_at = excluded.recorded_at")
		for _, col := range columns {
			b.WriteString(", ")
			b.WriteString(quoteIdent(col))
			b.WriteString(" = excluded.")
			b.WriteString(quoteIdent(col))
		}
	}

	if _, err := r.db.ExecContext(ctx, b.String(), args...); err != nil {
		return domain.NewStorageError("write", fmt.Errorf("structure %s: %w", structure, err))
	}
	return nil
}
