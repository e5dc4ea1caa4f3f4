package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/depthlab/bookpulse/internal/domain"
)

// ArchiveServiceConfig holds the retention loop parameters.
type ArchiveServiceConfig struct {
	// RetentionDays is how long signals stay in the primary store.
	RetentionDays int
	// Interval is how often the retention pass runs.
	Interval time.Duration
	// DeleteAfter removes archived rows from the primary store once the
	// archive upload has succeeded.
	DeleteAfter bool
}

// ArchiveService periodically exports aged signals to blob storage and
// optionally deletes them from the primary store afterwards.
type ArchiveService struct {
	cfg      ArchiveServiceConfig
	archiver domain.Archiver
	store    domain.SignalStore
	logger   *slog.Logger
}

// NewArchiveService creates an ArchiveService.
func NewArchiveService(cfg ArchiveServiceConfig, archiver domain.Archiver, store domain.SignalStore, logger *slog.Logger) *ArchiveService {
	return &ArchiveService{
		cfg:      cfg,
		archiver: archiver,
		store:    store,
		logger:   logger.With(slog.String("component", "archive_service")),
	}
}

// Run executes a retention pass on every tick until the context is cancelled.
// Call in a goroutine.
func (a *ArchiveService) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.RunOnce(ctx); err != nil {
				a.logger.Error("retention pass failed", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce performs a single retention pass: archive everything older than the
// retention window, then delete the archived rows if configured to.
func (a *ArchiveService) RunOnce(ctx context.Context) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -a.cfg.RetentionDays)

	count, err := a.archiver.ArchiveSignals(ctx, cutoff)
	if err != nil {
		return err
	}
	if count == 0 {
		a.logger.Debug("no signals past retention", slog.Time("cutoff", cutoff))
		return nil
	}

	a.logger.Info("signals archived",
		slog.Int64("count", count),
		slog.Time("cutoff", cutoff),
	)

	if a.cfg.DeleteAfter {
		deleted, err := a.store.DeleteBefore(ctx, cutoff)
		if err != nil {
			return err
		}
		a.logger.Info("archived signals deleted from primary store",
			slog.Int64("count", deleted),
		)
	}
	return nil
}
