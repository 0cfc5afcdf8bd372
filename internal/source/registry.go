package source

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// SyncEventFunc is called after a source sync completes
type SyncEventFunc func(name string, result *SyncResult)

// Registry manages all registered sources and their lifecycle
type Registry struct {
	mu        sync.RWMutex
	sources   map[string]Source
	configs   map[string]SourceConfig
	syncEvent SyncEventFunc
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewRegistry creates a new source registry
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		sources: make(map[string]Source),
		configs: make(map[string]SourceConfig),
		logger:  logger,
	}
}

// SetSyncEventHandler sets the handler called after each sync
func (r *Registry) SetSyncEventHandler(handler SyncEventFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncEvent = handler
}

// Register adds a source to the registry
func (r *Registry) Register(source Source, config SourceConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := source.Name()
	if _, exists := r.sources[name]; exists {
		return fmt.Errorf("source %s already registered", name)
	}

	r.sources[name] = source
	r.configs[name] = config
	r.logger.Info("registered source", "name", name, "type", source.Type(), "enabled", config.Enabled)

	return nil
}

// Start initializes all enabled sources and begins their sync cycles
func (r *Registry) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ctx, r.cancel = context.WithCancel(ctx)

	for name, source := range r.sources {
		config := r.configs[name]
		if !config.Enabled {
			r.logger.Info("source disabled, skipping", "name", name)
			continue
		}

		if err := source.Start(r.ctx); err != nil {
			r.logger.Error("failed to start source", "name", name, "error", err)
			continue
		}

		if source.Type() == SourceTypePolling {
			r.startPollingLoop(name, source, config)
		}
	}

	return nil
}

// Stop gracefully shuts down all sources
func (r *Registry) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
	}

	// Wait for all polling loops to finish
	r.wg.Wait()

	for name, source := range r.sources {
		if err := source.Stop(); err != nil {
			r.logger.Error("error stopping source", "name", name, "error", err)
		}
	}

	return nil
}

// TriggerSync manually triggers a sync for a specific source
func (r *Registry) TriggerSync(ctx context.Context, name string) (*SyncResult, error) {
	r.mu.RLock()
	source, exists := r.sources[name]
	config := r.configs[name]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("source %s not found", name)
	}
	if !config.Enabled {
		return nil, fmt.Errorf("source %s is disabled", name)
	}

	return r.runSync(ctx, name, source)
}

// ListSources returns information about registered sources
func (r *Registry) ListSources() []SourceInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]SourceInfo, 0, len(r.sources))
	for name, source := range r.sources {
		config := r.configs[name]
		infos = append(infos, SourceInfo{
			Name:         name,
			Type:         source.Type(),
			Enabled:      config.Enabled,
			PollInterval: config.PollInterval.String(),
		})
	}
	return infos
}

// SourceInfo provides read-only information about a source
type SourceInfo struct {
	Name         string     `json:"name"`
	Type         SourceType `json:"type"`
	Enabled      bool       `json:"enabled"`
	PollInterval string     `json:"poll_interval,omitempty"`
}

// startPollingLoop starts a goroutine that syncs the source on schedule
func (r *Registry) startPollingLoop(name string, source Source, config SourceConfig) {
	interval := config.PollInterval
	if interval <= 0 {
		r.logger.Warn("no poll interval for source, using 1m default", "name", name)
		interval = time.Minute
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		// Run initial sync
		if _, err := r.runSync(r.ctx, name, source); err != nil {
			r.logger.Error("initial sync failed", "name", name, "error", err)
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-r.ctx.Done():
				r.logger.Info("stopping polling loop", "name", name)
				return
			case <-ticker.C:
				if _, err := r.runSync(r.ctx, name, source); err != nil {
					r.logger.Error("sync failed", "name", name, "error", err)
				}
			}
		}
	}()

	r.logger.Info("started polling loop", "name", name, "interval", interval)
}

// runSync executes one sync operation and reports the result
func (r *Registry) runSync(ctx context.Context, name string, source Source) (*SyncResult, error) {
	r.logger.Debug("running sync", "name", name)

	result, err := source.Sync(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync failed: %w", err)
	}
	if result == nil {
		result = &SyncResult{}
	}

	r.mu.RLock()
	handler := r.syncEvent
	r.mu.RUnlock()
	if handler != nil && result.Documents > 0 {
		handler(name, result)
	}

	r.logger.Info("sync complete", "name", name, "documents", result.Documents, "errors", len(result.Errors))
	return result, nil
}
