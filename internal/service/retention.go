package service

import (
	"context"
	"log/slog"
	"time"
)

// Retention periodically sweeps aged records out of configured roots
type Retention struct {
	svc      *ArchiveService
	roots    []string
	maxAge   int
	interval time.Duration
	logger   *slog.Logger
}

// NewRetention creates a retention loop over the given roots
func NewRetention(svc *ArchiveService, roots []string, maxAgeDays int, interval time.Duration, logger *slog.Logger) *Retention {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Retention{
		svc:      svc,
		roots:    roots,
		maxAge:   maxAgeDays,
		interval: interval,
		logger:   logger,
	}
}

// Run sweeps on a fixed interval until the context ends. An initial
// pass runs immediately so a restart does not postpone cleanup.
func (r *Retention) Run(ctx context.Context) error {
	if len(r.roots) == 0 {
		r.logger.Info("retention disabled, no roots configured")
		return nil
	}

	r.logger.Info("retention started", "roots", r.roots, "max_age_days", r.maxAge, "interval", r.interval)
	r.sweepAll(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("retention stopped")
			return nil
		case <-ticker.C:
			r.sweepAll(ctx)
		}
	}
}

// sweepAll sweeps every configured root, continuing past failures
func (r *Retention) sweepAll(ctx context.Context) {
	for _, root := range r.roots {
		if _, err := r.svc.Sweep(ctx, root, r.maxAge); err != nil {
			r.logger.Error("retention sweep failed", "root", root, "error", err)
		}
	}
}
