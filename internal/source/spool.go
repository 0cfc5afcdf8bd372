package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"tabularium/internal/codec"
)

// rejectedDir is where unparseable spool files are moved so they stop
// blocking the scan.
const rejectedDir = "rejected"

// SpoolSource ingests documents dropped as files into a spool
// directory. Each recognized file is parsed by its extension, stored,
// and removed on success. Files that fail to parse move into a
// rejected/ subdirectory for inspection.
type SpoolSource struct {
	dir       string
	structure string
	ingester  Ingester
	logger    *slog.Logger
	mu        sync.Mutex
	running   bool
}

// NewSpoolSource creates a spool source over the given directory. With
// a fixed structure every file lands there; otherwise the structure is
// derived from the file name.
func NewSpoolSource(dir, structure string, ingester Ingester, logger *slog.Logger) *SpoolSource {
	return &SpoolSource{
		dir:       dir,
		structure: structure,
		ingester:  ingester,
		logger:    logger,
	}
}

// Name returns the source identifier
func (s *SpoolSource) Name() string {
	return "spool"
}

// Type returns the source type
func (s *SpoolSource) Type() SourceType {
	return SourceTypePolling
}

// Start initializes the source
func (s *SpoolSource) Start(ctx context.Context) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create spool directory: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	s.logger.Info("spool source started", "dir", s.dir)
	return nil
}

// Stop shuts down the source
func (s *SpoolSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	return nil
}

// Sync scans the spool once and ingests every recognized file
func (s *SpoolSource) Sync(ctx context.Context) (*SyncResult, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read spool directory: %w", err)
	}

	result := &SyncResult{}
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		importer, ok := codec.ForExtension(entry.Name())
		if !ok {
			continue
		}

		if err := s.ingestFile(ctx, entry.Name(), importer); err != nil {
			s.logger.Warn("spool file rejected", "file", entry.Name(), "error", err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", entry.Name(), err))
			s.reject(entry.Name())
			continue
		}
		result.Documents++
	}

	return result, nil
}

// ingestFile parses one spool file and removes it once stored
func (s *SpoolSource) ingestFile(ctx context.Context, name string, importer codec.Importer) error {
	path := filepath.Join(s.dir, name)
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open: %w", err)
	}

	_, err = s.ingester.IngestReader(ctx, s.structureFor(name), importer, f)
	f.Close()
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to remove ingested file: %w", err)
	}
	return nil
}

// structureFor names the target structure for a spool file
func (s *SpoolSource) structureFor(name string) string {
	if s.structure != "" {
		return s.structure
	}
	base := strings.TrimSuffix(name, filepath.Ext(name))
	return sanitizeStructure(base)
}

// reject moves a failed file aside so the next scan skips it
func (s *SpoolSource) reject(name string) {
	dst := filepath.Join(s.dir, rejectedDir)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		s.logger.Error("failed to create rejected directory", "error", err)
		return
	}
	if err := os.Rename(filepath.Join(s.dir, name), filepath.Join(dst, name)); err != nil {
		s.logger.Error("failed to move rejected file", "file", name, "error", err)
	}
}

// sanitizeStructure folds a file name into a safe structure name
func sanitizeStructure(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
