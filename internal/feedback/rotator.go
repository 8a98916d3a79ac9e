package feedback

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ILLUVRSE/resource-selector/internal/logging"
)

type RotatorConfig struct {
	// RetentionPerResource is how many of the newest records each resource
	// keeps in the live log.
	RetentionPerResource int
	PollInterval         time.Duration
	Logger               *zap.Logger
}

// Rotator bounds the live feedback log. Records beyond retention are
// archived first, and only the archived records are trimmed once the archive
// write succeeded. Only one rotator may run against a given log.
type Rotator struct {
	log      Log
	archiver Archiver
	keep     int
	interval time.Duration
	logger   *zap.Logger
}

func NewRotator(log Log, archiver Archiver, cfg RotatorConfig) *Rotator {
	if cfg.RetentionPerResource <= 0 {
		cfg.RetentionPerResource = 1000
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Minute
	}
	return &Rotator{
		log:      log,
		archiver: archiver,
		keep:     cfg.RetentionPerResource,
		interval: cfg.PollInterval,
		logger:   logging.OrNop(cfg.Logger).Named("feedback.rotator"),
	}
}

// Run rotates every interval until ctx is cancelled.
func (r *Rotator) Run(ctx context.Context) {
	r.logger.Info("starting", zap.Int("retention", r.keep), zap.Duration("interval", r.interval))
	defer r.logger.Info("stopped")
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if _, err := r.RotateOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.Warn("rotate feedback", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RotateOnce makes one pass over all resources and returns how many records
// left the live log. A failure on one resource does not stop the pass; the
// last error is returned.
func (r *Rotator) RotateOnce(ctx context.Context) (int, error) {
	ids, err := r.log.Resources(ctx)
	if err != nil {
		return 0, fmt.Errorf("list feedback resources: %w", err)
	}
	var (
		total   int
		lastErr error
	)
	for _, id := range ids {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		n, err := r.rotate(ctx, id)
		total += n
		if err != nil {
			lastErr = err
			r.logger.Warn("rotate resource feedback", zap.String("resource_id", id), zap.Error(err))
		}
	}
	return total, lastErr
}

func (r *Rotator) rotate(ctx context.Context, resourceID string) (int, error) {
	if r.archiver == nil {
		removed, err := r.log.Trim(ctx, resourceID, r.keep)
		if err != nil {
			return 0, fmt.Errorf("trim feedback: %w", err)
		}
		return len(removed), nil
	}

	records, err := r.log.List(ctx, resourceID)
	if err != nil {
		return 0, fmt.Errorf("list feedback: %w", err)
	}
	drop := len(records) - r.keep
	if drop <= 0 {
		return 0, nil
	}
	key, err := r.archiver.ArchiveSegment(ctx, resourceID, records[:drop])
	if err != nil {
		return 0, fmt.Errorf("archive feedback: %w", err)
	}
	r.logger.Info("archived feedback segment",
		zap.String("resource_id", resourceID),
		zap.Int("records", drop),
		zap.String("key", key),
	)
	// Appends land at the tail, so the archived records are still the
	// oldest drop entries even if the log grew during the upload.
	removed, err := r.log.TrimHead(ctx, resourceID, drop)
	if err != nil {
		return 0, fmt.Errorf("trim feedback: %w", err)
	}
	return len(removed), nil
}
