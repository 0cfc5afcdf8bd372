package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"tabularium/internal/domain"

	_ "modernc.org/sqlite"
)

// DefaultMaxDepth bounds document nesting when no limit is configured
const DefaultMaxDepth = 32

// Options configure a repository. Zero values fall back to the append
// policy and DefaultMaxDepth.
type Options struct {
	Policy   domain.WritePolicy
	MaxDepth int
}

// Repository stores documents as dynamically shaped tables: one table per
// object, one TEXT column per observed key, and a sentinel marker cell for
// keys whose value is a nested object. It implements repository.Store.
type Repository struct {
	db      *sql.DB
	catalog *catalog

	policy   domain.WritePolicy
	maxDepth int

	// One coarse mutex serializes every operation for its full duration
	mu sync.Mutex
}

// New opens or creates the database at dbPath
func New(dbPath string, opts Options) (*Repository, error) {
	if opts.Policy == "" {
		opts.Policy = domain.PolicyAppendHistory
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection is all the coarse mutex can use, and it keeps
	// in-memory databases on one schema.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Repository{
		db:       db,
		catalog:  &catalog{db: db},
		policy:   opts.Policy,
		maxDepth: opts.MaxDepth,
	}, nil
}

// Policy returns the active write policy
func (r *Repository) Policy() domain.WritePolicy {
	return r.policy
}

// Store decomposes doc into the structure family rooted at structure
func (r *Repository) Store(ctx context.Context, structure string, doc domain.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store(ctx, structure, doc)
}

// Load reconstructs the current document of a structure. A missing or
// empty structure yields an empty document, not an error.
func (r *Repository) Load(ctx context.Context, structure string) (domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if structure == "" {
		return nil, domain.NewValidationError("structure name is empty")
	}
	return r.load(ctx, structure, 0)
}

// Structures lists stored structures with their record counts
func (r *Repository) Structures(ctx context.Context) ([]domain.StructureInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	names, err := r.catalog.structures(ctx)
	if err != nil {
		return nil, domain.NewStorageError("list", err)
	}
	infos := make([]domain.StructureInfo, 0, len(names))
	for _, name := range names {
		n, err := r.catalog.recordCount(ctx, name)
		if err != nil {
			return nil, domain.NewStorageError("list", err)
		}
		infos = append(infos, domain.StructureInfo{Name: name, Records: n})
	}
	return infos, nil
}

// Sweep deletes records older than maxAgeDays from root and every
// descendant structure.
func (r *Repository) Sweep(ctx context.Context, root string, maxAgeDays int) (*domain.SweepResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sweep(ctx, root, maxAgeDays)
}

// FindByAttribute scans every structure for records whose key column
// equals value and reconstructs the document around each hit.
func (r *Repository) FindByAttribute(ctx context.Context, key, value string) ([]domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findByAttribute(ctx, key, value)
}

// Close releases the database
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.db.Close()
}
