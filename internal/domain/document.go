package domain

import "sort"

// Document is a decoded JSON object, the unit of storage
type Document map[string]any

// AsDocument asserts that a decoded JSON value is an object.
// Anything else fails with ErrNotAnObject.
func AsDocument(v any) (Document, error) {
	switch obj := v.(type) {
	case Document:
		return obj, nil
	case map[string]any:
		return Document(obj), nil
	default:
		return nil, ErrNotAnObject
	}
}

// SortedKeys returns the document's keys in ascending order. Decomposition
// walks keys in this order so column creation and child traversal stay
// deterministic regardless of map iteration.
func (d Document) SortedKeys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
