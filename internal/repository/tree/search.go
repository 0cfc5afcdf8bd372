package tree

import (
	"context"

	"github.com/mjl-/bstore"

	"tabularium/internal/domain"
)

// findByAttribute scans every leaf named key for the given value and
// reconstructs the enclosing container around each hit. Hits are visited
// in node id order and duplicate parents collapse to one document, so
// results are deterministic for a fixed database state.
//
// Both terms empty short-circuits to an empty result; one empty term is a
// validation failure.
func (s *Store) findByAttribute(ctx context.Context, key, value string) ([]domain.Document, error) {
	if key == "" && value == "" {
		return []domain.Document{}, nil
	}
	if key == "" {
		return nil, domain.NewValidationError("search key is empty")
	}
	if value == "" {
		return nil, domain.NewValidationError("search value is empty")
	}

	results := []domain.Document{}
	err := s.db.Read(ctx, func(tx *bstore.Tx) error {
		hits, err := bstore.QueryTx[Node](tx).
			FilterEqual("Key", key).
			FilterEqual("IsLeaf", true).
			FilterEqual("Value", value).
			SortAsc("ID").
			List()
		if err != nil {
			return err
		}

		seen := make(map[int64]bool)
		for _, hit := range hits {
			if hit.ParentID == 0 {
				// A root leaf has no enclosing document; emit the pair.
				results = append(results, domain.Document{hit.Key: domain.ParseCellText(hit.Value)})
				continue
			}
			if seen[hit.ParentID] {
				continue
			}
			seen[hit.ParentID] = true

			parent := Node{ID: hit.ParentID}
			if err := tx.Get(&parent); err != nil {
				return err
			}
			rendered, err := s.renderNode(tx, parent, s.maxDepth)
			if err != nil {
				return err
			}
			if obj, ok := rendered.(map[string]any); ok {
				results = append(results, domain.Document(obj))
			} else {
				// The enclosing container is an array; wrap it under the
				// parent's own key to keep the result a document.
				results = append(results, domain.Document{parent.Key: rendered})
			}
		}
		return nil
	})
	if err != nil {
		return nil, domain.NewStorageError("search", err)
	}
	return results, nil
}
