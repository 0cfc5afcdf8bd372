package service

import (
	"context"
	"io"
	"log/slog"

	"tabularium/internal/codec"
	"tabularium/internal/domain"
	"tabularium/internal/repository"
)

// Limits bounds query pagination
type Limits struct {
	MaxPageSize     int
	DefaultPageSize int
}

// applyDefaults fills unset limits with their defaults
func (l Limits) applyDefaults() Limits {
	if l.MaxPageSize <= 0 {
		l.MaxPageSize = 500
	}
	if l.DefaultPageSize <= 0 {
		l.DefaultPageSize = 50
	}
	return l
}

// ArchiveService provides business logic for document operations. It
// fronts whichever store backs the archive; path operations are only
// available when the store supports path addressing.
type ArchiveService struct {
	store    repository.Store
	paths    repository.PathStore
	eventBus *EventBus
	limits   Limits
	logger   *slog.Logger
}

// NewArchiveService creates a new archive service
func NewArchiveService(store repository.Store, eventBus *EventBus, limits Limits, logger *slog.Logger) *ArchiveService {
	svc := &ArchiveService{
		store:    store,
		eventBus: eventBus,
		limits:   limits.applyDefaults(),
		logger:   logger,
	}
	if paths, ok := store.(repository.PathStore); ok {
		svc.paths = paths
	}
	return svc
}

// PathsSupported reports whether the backing store offers path addressing
func (s *ArchiveService) PathsSupported() bool {
	return s.paths != nil
}

// StoreDocument decomposes a document into the named structure
func (s *ArchiveService) StoreDocument(ctx context.Context, structure string, doc domain.Document) error {
	if err := s.store.Store(ctx, structure, doc); err != nil {
		return err
	}

	s.logger.Debug("document stored", "structure", structure, "keys", len(doc))
	s.eventBus.Publish(Event{
		Type:    EventDocumentStored,
		Payload: map[string]string{"structure": structure},
	})

	return nil
}

// LoadDocument reconstructs the latest document of the named structure
func (s *ArchiveService) LoadDocument(ctx context.Context, structure string) (domain.Document, error) {
	return s.store.Load(ctx, structure)
}

// IngestReader parses a document from r with the given importer and
// stores it into the named structure
func (s *ArchiveService) IngestReader(ctx context.Context, structure string, importer codec.Importer, r io.Reader) (domain.Document, error) {
	doc, err := importer.Parse(r)
	if err != nil {
		return nil, err
	}
	if err := s.StoreDocument(ctx, structure, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// ExportDocument writes the latest document of the named structure
// through the given exporter
func (s *ArchiveService) ExportDocument(ctx context.Context, structure string, exporter codec.Exporter, w io.Writer) error {
	doc, err := s.store.Load(ctx, structure)
	if err != nil {
		return err
	}
	return exporter.Export(doc, w)
}

// Structures lists the known root structures
func (s *ArchiveService) Structures(ctx context.Context) ([]domain.StructureInfo, error) {
	return s.store.Structures(ctx)
}

// FindByAttribute locates the documents whose key carries the value
func (s *ArchiveService) FindByAttribute(ctx context.Context, key, value string) ([]domain.Document, error) {
	return s.store.FindByAttribute(ctx, key, value)
}

// Sweep deletes records older than the age bound from the named root
// and everything beneath it
func (s *ArchiveService) Sweep(ctx context.Context, root string, maxAgeDays int) (*domain.SweepResult, error) {
	result, err := s.store.Sweep(ctx, root, maxAgeDays)
	if result != nil {
		s.logger.Info("sweep completed",
			"root", root,
			"structures", result.StructuresSwept,
			"deleted", result.RecordsDeleted,
			"partial", err != nil)
		s.eventBus.Publish(Event{
			Type:    EventSweepCompleted,
			Payload: result,
		})
	}
	return result, err
}

// StoreAtPath writes a value at a slash-separated path
func (s *ArchiveService) StoreAtPath(ctx context.Context, path string, value any, overwrite bool) error {
	if s.paths == nil {
		return domain.ErrPathsUnsupported
	}
	if err := s.paths.StoreAtPath(ctx, path, value, overwrite); err != nil {
		return err
	}

	s.eventBus.Publish(Event{
		Type:    EventPathStored,
		Payload: map[string]string{"path": path},
	})

	return nil
}

// LoadPath reads the value at a slash-separated path
func (s *ArchiveService) LoadPath(ctx context.Context, path string) (any, error) {
	if s.paths == nil {
		return nil, domain.ErrPathsUnsupported
	}
	return s.paths.LoadPath(ctx, path)
}

// QueryByPath pages over the children of a path. Page sizes beyond the
// configured maximum clamp down to it.
func (s *ArchiveService) QueryByPath(ctx context.Context, q domain.PathQuery) ([]domain.PathEntry, error) {
	if s.paths == nil {
		return nil, domain.ErrPathsUnsupported
	}

	if q.PageSize <= 0 {
		q.PageSize = s.limits.DefaultPageSize
	}
	if q.PageSize > s.limits.MaxPageSize {
		q.PageSize = s.limits.MaxPageSize
	}

	return s.paths.QueryByPath(ctx, q)
}

// Policy reports the write policy of the backing store
func (s *ArchiveService) Policy() domain.WritePolicy {
	type policied interface {
		Policy() domain.WritePolicy
	}
	if p, ok := s.store.(policied); ok {
		return p.Policy()
	}
	return ""
}

// Describe summarizes the service configuration for status reporting
func (s *ArchiveService) Describe() map[string]any {
	return map[string]any{
		"policy":          string(s.Policy()),
		"paths_supported": s.PathsSupported(),
		"max_page_size":   s.limits.MaxPageSize,
	}
}
