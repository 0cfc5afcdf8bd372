package domain

import "strings"

// TruncatedPlaceholder stands in for an internal node cut off by the depth
// budget of a path query.
const TruncatedPlaceholder = "..."

// SortKey selects the child attribute a path query orders by
type SortKey string

const (
	SortByKey      SortKey = "key"      // order by child key
	SortByRecorded SortKey = "recorded" // order by write timestamp
)

// Valid reports whether the sort key is one of the known attributes
func (k SortKey) Valid() bool {
	return k == SortByKey || k == SortByRecorded
}

// SortOrder is the direction of a path query's ordering
type SortOrder string

const (
	SortAscending  SortOrder = "asc"
	SortDescending SortOrder = "desc"
)

// Valid reports whether the sort order is a known direction
func (o SortOrder) Valid() bool {
	return o == SortAscending || o == SortDescending
}

// PathQuery carries the parameters of a paginated child query. Page is
// 1-based. MaxDepth 0 means unlimited. Pagination applies only to the
// direct children of the resolved node; recursive descents always render
// from the first page.
type PathQuery struct {
	Path      string    `json:"path"`
	Page      int       `json:"page"`
	PageSize  int       `json:"page_size"`
	MaxDepth  int       `json:"max_depth"`
	SortKey   SortKey   `json:"sort_key"`
	SortOrder SortOrder `json:"sort_order"`
}

// PathEntry is one child of a queried node. Duplicate keys are possible
// when historical versions coexist under a parent, so query results are
// entry lists rather than objects.
type PathEntry struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// ParsePath splits a /-delimited path into its segments. Leading and
// trailing slashes are ignored; empty paths and empty segments are
// rejected.
func ParsePath(path string) ([]string, error) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil, NewValidationError("path is empty")
	}
	segments := strings.Split(trimmed, "/")
	for _, seg := range segments {
		if seg == "" {
			return nil, NewValidationError("path %q has an empty segment", path)
		}
	}
	return segments, nil
}
