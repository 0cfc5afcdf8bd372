package tree

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mjl-/bstore"

	"tabularium/internal/domain"
)

// sweep deletes nodes older than the cutoff from the subtree under the
// named root. Ages are judged per node; an in-place overwrite refreshes a
// node's timestamp, so children can be swept out from under a fresher
// parent, mirroring how relational records age per structure. A failing
// node does not stop the walk; failures are joined and reported at the
// end alongside the partial result.
func (s *Store) sweep(ctx context.Context, root string, maxAgeDays int) (*domain.SweepResult, error) {
	if root == "" {
		return nil, domain.NewValidationError("sweep root is empty")
	}
	if maxAgeDays < 0 {
		return nil, domain.NewValidationError("max age must not be negative")
	}

	cutoff := time.Now().Add(-time.Duration(maxAgeDays) * 24 * time.Hour)
	result := &domain.SweepResult{Root: root, Cutoff: cutoff}

	var errs []error
	err := s.db.Write(ctx, func(tx *bstore.Tx) error {
		rootNode, ok, err := childByKey(tx, 0, root)
		if err != nil {
			return err
		}
		if !ok {
			// Absence of the root is an empty result, not an error.
			return nil
		}
		result.StructuresSwept = 1

		queue := []int64{rootNode.ID}
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]

			children, err := bstore.QueryTx[Node](tx).FilterEqual("ParentID", id).List()
			if err != nil {
				errs = append(errs, fmt.Errorf("node %d: %w", id, err))
				continue
			}
			for _, child := range children {
				// Enumerate before deleting so the walk reaches every
				// descendant even when its parent is being removed.
				queue = append(queue, child.ID)
				if !child.Recorded.Before(cutoff) {
					continue
				}
				if err := tx.Delete(&child); err != nil {
					errs = append(errs, fmt.Errorf("node %d: %w", child.ID, err))
					continue
				}
				result.RecordsDeleted++
			}
		}
		return nil
	})
	if err != nil {
		return nil, domain.NewStorageError("sweep", err)
	}
	if len(errs) > 0 {
		return result, domain.NewStorageError("sweep", errors.Join(errs...))
	}
	return result, nil
}
