package tree

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/mjl-/bstore"

	"tabularium/internal/domain"
)

// childByKey finds the oldest child of parentID with the given key. With
// duplicate-key siblings the lowest id wins, so repeated resolutions of
// the same path land on the same node.
func childByKey(tx *bstore.Tx, parentID int64, key string) (Node, bool, error) {
	nodes, err := bstore.QueryTx[Node](tx).
		FilterEqual("ParentID", parentID).
		FilterEqual("Key", key).
		SortAsc("ID").
		Limit(1).
		List()
	if err != nil {
		return Node{}, false, err
	}
	if len(nodes) == 0 {
		return Node{}, false, nil
	}
	return nodes[0], true, nil
}

// walkPath resolves a segment chain from the roots down. With create set,
// missing segments are inserted as internal nodes, which makes resolution
// idempotent; without it a missing segment is ErrPathNotFound.
func walkPath(tx *bstore.Tx, segments []string, create bool) (Node, error) {
	var parentID int64
	var node Node
	for _, seg := range segments {
		child, ok, err := childByKey(tx, parentID, seg)
		if err != nil {
			return Node{}, err
		}
		if !ok {
			if !create {
				return Node{}, domain.ErrPathNotFound
			}
			child = Node{ParentID: parentID, Key: seg, Recorded: time.Now()}
			if err := tx.Insert(&child); err != nil {
				return Node{}, err
			}
		}
		node = child
		parentID = child.ID
	}
	return node, nil
}

// entryFrame is one pending child write on the decomposition work list
type entryFrame struct {
	parentID int64
	key      string
	value    any
	depth    int
}

// containerKind classifies container values and names the kind marker
// their node records.
func containerKind(v any) (string, bool) {
	switch v.(type) {
	case domain.Document, map[string]any:
		return containerObject, true
	case []any:
		return containerArray, true
	}
	return "", false
}

// pushEntries schedules the entries of a container value as child writes.
// Object entries are keyed by field name, array elements by their
// stringified index.
func pushEntries(stack *[]entryFrame, parentID int64, value any, depth int) error {
	switch val := value.(type) {
	case domain.Document:
		return pushEntries(stack, parentID, map[string]any(val), depth)
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if key == "" {
				return domain.NewValidationError("document key is empty")
			}
			*stack = append(*stack, entryFrame{parentID: parentID, key: key, value: val[key], depth: depth})
		}
	case []any:
		for i, elem := range val {
			*stack = append(*stack, entryFrame{parentID: parentID, key: strconv.Itoa(i), value: elem, depth: depth})
		}
	}
	return nil
}

// storeAt resolves the path and decomposes value into a subtree under the
// terminal node. Scalar values make the terminal node itself a leaf.
func (s *Store) storeAt(ctx context.Context, segments []string, value any, overwrite bool) error {
	err := s.db.Write(ctx, func(tx *bstore.Tx) error {
		node, err := walkPath(tx, segments, true)
		if err != nil {
			return err
		}
		return s.writeValue(tx, node, value, overwrite)
	})
	return wrapStorage("write", err)
}

// writeValue sets the resolved node's value or decomposes a container
// value into child nodes beneath it. The explicit work list bounds
// nesting by the configured depth limit instead of the call stack.
func (s *Store) writeValue(tx *bstore.Tx, node Node, value any, overwrite bool) error {
	kind, isContainer := containerKind(value)
	node.Recorded = time.Now()

	if !isContainer {
		cell, err := domain.CellFromValue(value)
		if err != nil {
			return domain.NewValidationError("path value: %v", err)
		}
		node.IsLeaf = true
		node.Value = cell.Text
		return tx.Update(&node)
	}

	node.IsLeaf = false
	node.Value = kind
	if err := tx.Update(&node); err != nil {
		return err
	}

	var stack []entryFrame
	if err := pushEntries(&stack, node.ID, value, 1); err != nil {
		return err
	}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if f.depth > s.maxDepth {
			return domain.NewValidationError("value nesting exceeds %d levels", s.maxDepth)
		}

		child, err := s.writeChild(tx, f.parentID, f.key, f.value, overwrite)
		if err != nil {
			return err
		}
		if _, ok := containerKind(f.value); ok {
			if err := pushEntries(&stack, child.ID, f.value, f.depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeChild writes one child node. With overwrite the existing child
// with the same key is updated in place; otherwise a new sibling is
// always inserted, which is how historical versions accumulate.
func (s *Store) writeChild(tx *bstore.Tx, parentID int64, key string, value any, overwrite bool) (Node, error) {
	var node Node
	var found bool
	if overwrite {
		var err error
		node, found, err = childByKey(tx, parentID, key)
		if err != nil {
			return Node{}, err
		}
	}

	kind, isContainer := containerKind(value)
	if isContainer {
		node.IsLeaf = false
		node.Value = kind
	} else {
		cell, err := domain.CellFromValue(value)
		if err != nil {
			return Node{}, domain.NewValidationError("key %q: %v", key, err)
		}
		node.IsLeaf = true
		node.Value = cell.Text
	}
	node.Recorded = time.Now()

	if found {
		if err := tx.Update(&node); err != nil {
			return Node{}, err
		}
		return node, nil
	}

	node.ParentID = parentID
	node.Key = key
	if err := tx.Insert(&node); err != nil {
		return Node{}, err
	}
	return node, nil
}
