package tree

import (
	"context"
	"errors"
	"sort"
	"strconv"

	"github.com/mjl-/bstore"

	"tabularium/internal/domain"
)

// wrapStorage wraps substrate failures while letting domain errors pass
// through untouched.
func wrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	var verr *domain.ValidationError
	if errors.As(err, &verr) || errors.Is(err, domain.ErrNotAnObject) || errors.Is(err, domain.ErrPathNotFound) {
		return err
	}
	return domain.NewStorageError(op, err)
}

// childrenOf lists the direct children of a node in the requested order.
// The node id is the tiebreaker, so duplicate-key versions come out in
// insertion order and the listing is deterministic.
func childrenOf(tx *bstore.Tx, parentID int64, key domain.SortKey, order domain.SortOrder) ([]Node, error) {
	q := bstore.QueryTx[Node](tx).FilterEqual("ParentID", parentID)

	field := "Key"
	if key == domain.SortByRecorded {
		field = "Recorded"
	}
	if order == domain.SortDescending {
		q = q.SortDesc(field, "ID")
	} else {
		q = q.SortAsc(field, "ID")
	}
	return q.List()
}

// lessIndexKey orders array element keys numerically, with any
// non-numeric stragglers after the indices in lexical order.
func lessIndexKey(a, b string) bool {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	switch {
	case aerr == nil && berr == nil:
		return ai < bi
	case aerr == nil:
		return true
	case berr == nil:
		return false
	default:
		return a < b
	}
}

// renderNode renders a node into its JSON value. Leaves yield their
// parsed literal. Internal nodes expand while the remaining budget is
// greater than 1 and collapse to the truncation placeholder otherwise;
// the budget decrements by one per descent. Duplicate-key children
// collapse newest-last in object renders, so the current version wins.
func (s *Store) renderNode(tx *bstore.Tx, node Node, budget int) (any, error) {
	if node.IsLeaf {
		return domain.ParseCellText(node.Value), nil
	}
	if budget <= 1 {
		return domain.TruncatedPlaceholder, nil
	}

	children, err := childrenOf(tx, node.ID, domain.SortByKey, domain.SortAscending)
	if err != nil {
		return nil, err
	}

	if node.Value == containerArray {
		// Element keys are decimal indices, so "10" must sort after "2".
		sort.SliceStable(children, func(i, j int) bool {
			return lessIndexKey(children[i].Key, children[j].Key)
		})
		arr := make([]any, 0, len(children))
		for _, child := range children {
			v, err := s.renderNode(tx, child, budget-1)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		return arr, nil
	}

	obj := make(map[string]any, len(children))
	for _, child := range children {
		v, err := s.renderNode(tx, child, budget-1)
		if err != nil {
			return nil, err
		}
		obj[child.Key] = v
	}
	return obj, nil
}

// loadPath reconstructs the full value at a resolved path, bounded only
// by the configured depth limit.
func (s *Store) loadPath(ctx context.Context, segments []string) (any, error) {
	var value any
	err := s.db.Read(ctx, func(tx *bstore.Tx) error {
		node, err := walkPath(tx, segments, false)
		if err != nil {
			return err
		}
		value, err = s.renderNode(tx, node, s.maxDepth)
		return err
	})
	if err != nil {
		return nil, wrapStorage("load", err)
	}
	return value, nil
}

// queryByPath paginates over the direct children of the resolved path.
// Pagination applies only at this level; descents into child subtrees
// always render completely within the depth budget.
func (s *Store) queryByPath(ctx context.Context, q domain.PathQuery) ([]domain.PathEntry, error) {
	segments, err := domain.ParsePath(q.Path)
	if err != nil {
		return nil, err
	}

	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = 50
	}
	if q.SortKey == "" {
		q.SortKey = domain.SortByKey
	}
	if !q.SortKey.Valid() {
		return nil, domain.NewValidationError("unknown sort key %q", q.SortKey)
	}
	if q.SortOrder == "" {
		q.SortOrder = domain.SortAscending
	}
	if !q.SortOrder.Valid() {
		return nil, domain.NewValidationError("unknown sort order %q", q.SortOrder)
	}

	budget := q.MaxDepth
	if budget <= 0 || budget > s.maxDepth {
		budget = s.maxDepth
	}

	var entries []domain.PathEntry
	err = s.db.Read(ctx, func(tx *bstore.Tx) error {
		node, err := walkPath(tx, segments, false)
		if err != nil {
			return err
		}

		children, err := childrenOf(tx, node.ID, q.SortKey, q.SortOrder)
		if err != nil {
			return err
		}

		start := (q.Page - 1) * q.PageSize
		if start >= len(children) {
			entries = []domain.PathEntry{}
			return nil
		}
		end := start + q.PageSize
		if end > len(children) {
			end = len(children)
		}

		entries = make([]domain.PathEntry, 0, end-start)
		for _, child := range children[start:end] {
			v, err := s.renderNode(tx, child, budget)
			if err != nil {
				return err
			}
			entries = append(entries, domain.PathEntry{Key: child.Key, Value: v})
		}
		return nil
	})
	if err != nil {
		return nil, wrapStorage("query", err)
	}
	return entries, nil
}
