package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tabularium/internal/domain"
)

// sweep deletes records older than the cutoff from root and every
// descendant structure. A failure on one structure does not stop the
// cascade; failures are joined and reported at the end alongside the
// partial result.
func (r *Repository) sweep(ctx context.Context, root string, maxAgeDays int) (*domain.SweepResult, error) {
	if root == "" {
		return nil, domain.NewValidationError("sweep root is empty")
	}
	if maxAgeDays < 0 {
		return nil, domain.NewValidationError("max age must not be negative")
	}

	cutoff := time.Now().Add(-time.Duration(maxAgeDays) * 24 * time.Hour)
	result := &domain.SweepResult{Root: root, Cutoff: cutoff}

	names, err := r.catalog.family(ctx, root)
	if err != nil {
		return nil, domain.NewStorageError("sweep", err)
	}

	var errs []error
	for _, name := range names {
		res, err := r.db.ExecContext(ctx,
			`DELETE FROM `+quoteIdent(name)+` WHERE recorded_at < ?`, cutoff.Unix())
		if err != nil {
			errs = append(errs, fmt.Errorf("structure %s: %w", name, err))
			continue
		}
		deleted, err := res.RowsAffected()
		if err != nil {
			errs = append(errs, fmt.Errorf("structure %s: %w", name, err))
			continue
		}
		result.StructuresSwept++
		result.RecordsDeleted += deleted
	}

	if len(errs) > 0 {
		return result, domain.NewStorageError("sweep", errors.Join(errs...))
	}
	return result, nil
}
