package repository

import (
	"context"

	"tabularium/internal/domain"
)

// Store defines the interface both storage backends satisfy. Every method
// holds the store's single mutex for its full duration; contexts are
// plumbed to the substrate only and carry no cancellation semantics of
// their own.
type Store interface {
	// Document operations
	Store(ctx context.Context, structure string, doc domain.Document) error
	Load(ctx context.Context, structure string) (domain.Document, error)

	// Catalog
	Structures(ctx context.Context) ([]domain.StructureInfo, error)

	// Retention
	Sweep(ctx context.Context, root string, maxAgeDays int) (*domain.SweepResult, error)

	// Search
	FindByAttribute(ctx context.Context, key, value string) ([]domain.Document, error)

	// Close releases the underlying substrate
	Close() error
}

// PathStore extends Store with the tree backend's path-addressed writes
// and paginated child queries. The relational backend does not implement
// it; callers discover support with a type assertion.
type PathStore interface {
	Store

	// StoreAtPath decomposes value into a subtree under the resolved path.
	// Overwrite updates children in place; otherwise every write inserts
	// new siblings.
	StoreAtPath(ctx context.Context, path string, value any, overwrite bool) error

	// LoadPath reconstructs the value rooted at the resolved path.
	LoadPath(ctx context.Context, path string) (any, error)

	// QueryByPath paginates over the direct children of the resolved path.
	QueryByPath(ctx context.Context, q domain.PathQuery) ([]domain.PathEntry, error)
}
