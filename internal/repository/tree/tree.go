// Package tree implements the tree storage backend: documents are
// decomposed into a parent-referencing node store addressed by /-delimited
// paths. Object entries and array elements both become child nodes; a node
// is a leaf iff it carries a scalar value. Path resolution is idempotent
// per segment, and the append policy deliberately permits duplicate-key
// siblings as historical versions.
package tree

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/mjl-/bstore"
	bolt "go.etcd.io/bbolt"

	"tabularium/internal/domain"
)

// Node is one vertex of the document tree. The first field is the
// bstore primary key. ParentID 0 marks a root node. Internal nodes record
// their container kind in Value; leaves store canonical cell text.
type Node struct {
	ID       int64
	ParentID int64  `bstore:"index ParentID+Key"`
	Key      string `bstore:"nonzero,index"`
	Value    string
	IsLeaf   bool
	Recorded time.Time `bstore:"nonzero"`
}

// DBTypes are the types stored in the tree database
var DBTypes = []any{Node{}}

// Container kinds recorded in the Value field of internal nodes
const (
	containerObject = ""
	containerArray  = "array"
)

// DefaultMaxDepth bounds value nesting when no limit is configured
const DefaultMaxDepth = 32

// Options configure a store. Zero values fall back to the append policy
// and DefaultMaxDepth.
type Options struct {
	Policy   domain.WritePolicy
	MaxDepth int
}

// Store implements repository.PathStore on a bstore node database
type Store struct {
	db *bstore.DB

	policy   domain.WritePolicy
	maxDepth int

	// One coarse mutex serializes every operation for its full duration
	mu sync.Mutex
}

// New opens or creates the node database at path. An existing file is
// run through bolt's consistency check before bstore takes its lock.
func New(path string, opts Options) (*Store, error) {
	if opts.Policy == "" {
		opts.Policy = domain.PolicyAppendHistory
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}

	if _, err := os.Stat(path); err == nil {
		if err := checkBoltFile(path); err != nil {
			return nil, fmt.Errorf("tree database failed consistency check: %w", err)
		}
	}

	db, err := bstore.Open(context.Background(), path, &bstore.Options{Timeout: 5 * time.Second, Perm: 0660}, DBTypes...)
	if err != nil {
		return nil, fmt.Errorf("failed to open tree database: %w", err)
	}

	return &Store{
		db:       db,
		policy:   opts.Policy,
		maxDepth: opts.MaxDepth,
	}, nil
}

// Policy returns the active write policy
func (s *Store) Policy() domain.WritePolicy {
	return s.policy
}

// Store writes doc under the root node named structure. The append policy
// inserts new sibling versions; upsert_singleton updates children in
// place.
func (s *Store) Store(ctx context.Context, structure string, doc domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if structure == "" {
		return domain.NewValidationError("structure name is empty")
	}
	if doc == nil {
		return domain.ErrNotAnObject
	}
	return s.storeAt(ctx, []string{structure}, doc, s.policy == domain.PolicyUpsertSingleton)
}

// Load reconstructs the document under the root node named structure.
// A missing root yields an empty document, not an error.
func (s *Store) Load(ctx context.Context, structure string) (domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if structure == "" {
		return nil, domain.NewValidationError("structure name is empty")
	}

	value, err := s.loadPath(ctx, []string{structure})
	if err == domain.ErrPathNotFound {
		return domain.Document{}, nil
	}
	if err != nil {
		return nil, err
	}
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, domain.ErrNotAnObject
	}
	return domain.Document(obj), nil
}

// StoreAtPath decomposes value into a subtree under the resolved path,
// creating missing path segments on the way.
func (s *Store) StoreAtPath(ctx context.Context, path string, value any, overwrite bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	segments, err := domain.ParsePath(path)
	if err != nil {
		return err
	}
	return s.storeAt(ctx, segments, value, overwrite)
}

// LoadPath reconstructs the value rooted at the resolved path
func (s *Store) LoadPath(ctx context.Context, path string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	segments, err := domain.ParsePath(path)
	if err != nil {
		return nil, err
	}
	return s.loadPath(ctx, segments)
}

// QueryByPath paginates over the direct children of the resolved path
func (s *Store) QueryByPath(ctx context.Context, q domain.PathQuery) ([]domain.PathEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queryByPath(ctx, q)
}

// Structures lists root nodes with the size of their subtrees
func (s *Store) Structures(ctx context.Context) ([]domain.StructureInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var infos []domain.StructureInfo
	err := s.db.Read(ctx, func(tx *bstore.Tx) error {
		roots, err := bstore.QueryTx[Node](tx).
			FilterEqual("ParentID", int64(0)).
			SortAsc("Key", "ID").
			List()
		if err != nil {
			return err
		}
		infos = make([]domain.StructureInfo, 0, len(roots))
		for _, root := range roots {
			n, err := s.subtreeSize(tx, root.ID)
			if err != nil {
				return err
			}
			infos = append(infos, domain.StructureInfo{Name: root.Key, Records: n})
		}
		return nil
	})
	if err != nil {
		return nil, domain.NewStorageError("list", err)
	}
	return infos, nil
}

// Sweep deletes nodes older than maxAgeDays from the subtree under the
// root node named root.
func (s *Store) Sweep(ctx context.Context, root string, maxAgeDays int) (*domain.SweepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweep(ctx, root, maxAgeDays)
}

// FindByAttribute scans every leaf named key for the given value and
// reconstructs the enclosing document around each hit.
func (s *Store) FindByAttribute(ctx context.Context, key, value string) ([]domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findByAttribute(ctx, key, value)
}

// Close releases the database
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// checkBoltFile opens the raw database file and walks bolt's own
// consistency check. The check channel must be drained in full.
func checkBoltFile(path string) error {
	bdb, err := bolt.Open(path, 0660, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return err
	}
	defer bdb.Close()

	return bdb.View(func(tx *bolt.Tx) error {
		var first error
		for err := range tx.Check() {
			if first == nil {
				first = err
			}
		}
		return first
	})
}

// subtreeSize counts the nodes strictly below id
func (s *Store) subtreeSize(tx *bstore.Tx, id int64) (int64, error) {
	var total int64
	queue := []int64{id}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]

		children, err := bstore.QueryTx[Node](tx).FilterEqual("ParentID", next).List()
		if err != nil {
			return 0, err
		}
		total += int64(len(children))
		for _, child := range children {
			queue = append(queue, child.ID)
		}
	}
	return total, nil
}
