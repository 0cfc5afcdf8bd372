// Package main is the entry point for the Tabularium server.
//
// Tabularium is a schema-less JSON document archive. Documents arrive over
// HTTP, from a spool directory, or from SSH pull collectors, and are
// decomposed into either relational tables or a path-addressable node tree.
// Configuration is read from a YAML file found via a search chain, with a
// few flag overrides.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"golang.org/x/sync/errgroup"

	"tabularium/internal/config"
	"tabularium/internal/handler"
	"tabularium/internal/hub"
	"tabularium/internal/repository"
	"tabularium/internal/repository/sqlite"
	"tabularium/internal/repository/tree"
	"tabularium/internal/secrets"
	"tabularium/internal/service"
	"tabularium/internal/source"
	"tabularium/internal/watcher"
)

func main() {
	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "tabularium: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Config file path (overrides the search chain)")
	listenAddr := flag.String("addr", "", "HTTP listen address (overrides the config)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (overrides the config)")
	flag.Parse()
	if len(flag.Args()) > 0 {
		return fmt.Errorf("unknown arguments: %v", flag.Args())
	}

	var (
		cfg  *config.Config
		path string
		err  error
	)
	if *configPath != "" {
		cfg, path, err = config.LoadFromPath(*configPath)
	} else {
		cfg, path, err = config.Load()
	}
	if err != nil {
		return err
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level := &slog.LevelVar{}
	switch cfg.Logging.Level {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}
	logger := slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	}))
	slog.SetDefault(logger)

	if path != "" {
		logger.Info("config loaded", "path", path)
	} else {
		logger.Info("no config file found, using defaults")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info("store opened", "backend", cfg.Database.Backend, "policy", cfg.Write.Policy)

	secretStore := secrets.NewStore(cfg.Secrets.MountPaths, cfg.Secrets.EnvPrefix, logger)
	if err := secretStore.Load(); err != nil {
		logger.Warn("failed to load secrets", "error", err)
	}

	eventBus := service.NewEventBus()
	sseHub := hub.New(logger)
	eventChan := make(chan service.Event, 100)
	eventBus.Subscribe(eventChan)

	svc := service.NewArchiveService(store, eventBus, service.Limits{
		MaxPageSize:     cfg.Limits.MaxPageSize,
		DefaultPageSize: cfg.Limits.DefaultPageSize,
	}, logger)

	registry := source.NewRegistry(logger)
	registry.SetSyncEventHandler(func(name string, result *source.SyncResult) {
		eventBus.Publish(service.Event{
			Type: service.EventSourceSynced,
			Payload: map[string]any{
				"source":    name,
				"documents": result.Documents,
				"errors":    len(result.Errors),
			},
		})
	})

	spoolEnabled := cfg.Ingest.SpoolDir != ""
	if spoolEnabled {
		if err := os.MkdirAll(cfg.Ingest.SpoolDir, 0755); err != nil {
			return fmt.Errorf("failed to create spool directory: %w", err)
		}
		spool := source.NewSpoolSource(cfg.Ingest.SpoolDir, cfg.Ingest.SpoolStructure, svc, logger)
		if err := registry.Register(spool, source.SourceConfig{Enabled: true, PollInterval: time.Minute}); err != nil {
			return err
		}
	}

	for _, col := range cfg.Collectors {
		pull := source.NewSSHPullSource(source.SSHPullConfig{
			Name:      col.Name,
			Host:      col.Host,
			Port:      col.Port,
			User:      col.User,
			Secret:    col.Secret,
			Command:   col.Command,
			Structure: col.Structure,
		}, secretStore, svc, logger)
		if err := registry.Register(pull, source.SourceConfig{Enabled: true, PollInterval: col.Interval.Duration()}); err != nil {
			return err
		}
	}

	if err := registry.Start(ctx); err != nil {
		return fmt.Errorf("failed to start sources: %w", err)
	}
	defer registry.Stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return sseHub.Run(gctx) })

	// Bridge archive events onto the SSE hub.
	g.Go(func() error {
		for {
			select {
			case ev := <-eventChan:
				sseHub.Broadcast(ev)
			case <-gctx.Done():
				return nil
			}
		}
	})

	if spoolEnabled {
		spoolWatcher := watcher.New(cfg.Ingest.SpoolDir, func() {
			if _, err := registry.TriggerSync(gctx, "spool"); err != nil {
				logger.Warn("spool sync failed", "error", err)
			}
		}, logger)
		g.Go(func() error { return spoolWatcher.Watch(gctx) })
	}

	if cfg.Retention.Enabled {
		retention := service.NewRetention(svc, cfg.Retention.Roots, cfg.Retention.MaxAgeDays,
			cfg.Retention.Interval.Duration(), logger)
		g.Go(func() error { return retention.Run(gctx) })
	}

	mux := http.NewServeMux()
	handler.NewArchiveHandler(svc, logger).Register(mux)
	handler.NewTreeHandler(svc, logger).Register(mux)
	handler.NewSecretsHandler(secretStore, logger).Register(mux)
	mux.Handle("GET /api/events", sseHub)

	finalHandler := handler.Chain(mux,
		handler.Recover(logger),
		handler.CORS(),
		handler.RequestLogger(logger),
	)

	addr := cfg.Addr()
	if *listenAddr != "" {
		addr = *listenAddr
	}

	// No WriteTimeout: the SSE stream stays open indefinitely.
	server := &http.Server{
		Addr:              addr,
		Handler:           finalHandler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g.Go(func() error {
		logger.Info("server listening", "addr", addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// openStore opens the configured substrate
func openStore(cfg *config.Config) (repository.Store, error) {
	switch cfg.Database.Backend {
	case config.BackendTree:
		store, err := tree.New(cfg.Database.TreePath, tree.Options{
			Policy:   cfg.Policy(),
			MaxDepth: cfg.Limits.MaxDepth,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open tree store: %w", err)
		}
		return store, nil
	default:
		store, err := sqlite.New(cfg.Database.Path, sqlite.Options{
			Policy:   cfg.Policy(),
			MaxDepth: cfg.Limits.MaxDepth,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		return store, nil
	}
}
