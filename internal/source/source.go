package source

import (
	"context"
	"io"
	"time"

	"tabularium/internal/codec"
	"tabularium/internal/domain"
)

// SourceType defines how a source delivers documents
type SourceType string

const (
	// SourceTypePolling - source pulls documents on a schedule
	SourceTypePolling SourceType = "polling"
	// SourceTypeOneShot - manual trigger only
	SourceTypeOneShot SourceType = "oneshot"
)

// SourceConfig holds configuration for a source instance
type SourceConfig struct {
	// Enabled determines if the source should run
	Enabled bool `json:"enabled"`
	// PollInterval for polling sources
	PollInterval time.Duration `json:"poll_interval,omitempty"`
}

// SyncResult represents the outcome of a source sync operation
type SyncResult struct {
	// Documents is the count of documents ingested
	Documents int `json:"documents"`
	// Errors encountered during sync (non-fatal)
	Errors []string `json:"errors,omitempty"`
}

// Ingester accepts parsed documents for storage. The archive service
// satisfies this.
type Ingester interface {
	StoreDocument(ctx context.Context, structure string, doc domain.Document) error
	IngestReader(ctx context.Context, structure string, importer codec.Importer, r io.Reader) (domain.Document, error)
}

// Source defines the interface for document ingestion integrations
type Source interface {
	// Name returns the unique identifier for this source
	Name() string

	// Type returns how this source delivers documents
	Type() SourceType

	// Start initializes the source (called once on startup)
	Start(ctx context.Context) error

	// Stop gracefully shuts down the source
	Stop() error

	// Sync pulls documents from the origin and ingests them.
	// Called on schedule for polling sources, or manually for oneshot.
	Sync(ctx context.Context) (*SyncResult, error)
}
