package archive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nexio-platform/nexio/internal/download"
)

// Maintenance implements the periodic queue tasks: artefact retention sweeps
// and reaping of jobs stuck in processing.
type Maintenance struct {
	repo      *Repository
	builder   *Builder
	tokens    *download.Store
	logger    *slog.Logger
	retention time.Duration
	timeout   time.Duration
}

// MaintenanceConfig collects dependencies for the periodic tasks.
type MaintenanceConfig struct {
	Repository *Repository
	Builder    *Builder
	Tokens     *download.Store
	Logger     *slog.Logger
	Retention  time.Duration
	Timeout    time.Duration
}

// NewMaintenance constructs a Maintenance handler.
func NewMaintenance(cfg MaintenanceConfig) *Maintenance {
	retention := cfg.Retention
	if retention <= 0 {
		retention = 72 * time.Hour
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	return &Maintenance{
		repo:      cfg.Repository,
		builder:   cfg.Builder,
		tokens:    cfg.Tokens,
		logger:    cfg.Logger,
		retention: retention,
		timeout:   timeout,
	}
}

// HandleSweep removes artefacts past retention and purges expired tokens.
func (m *Maintenance) HandleSweep(ctx context.Context, _ *asynq.Task) error {
	if m == nil || m.repo == nil || m.builder == nil {
		return fmt.Errorf("archive sweep not configured")
	}
	cutoff := time.Now().Add(-m.retention)
	expired, err := m.repo.ExpiredArchives(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, job := range expired {
		if err := m.builder.Remove(job.ArchiveID); err != nil {
			if m.logger != nil {
				m.logger.Warn("sweep archive artefact", slog.String("archive_id", job.ArchiveID), slog.Any("error", err))
			}
			continue
		}
		if err := m.repo.MarkSwept(ctx, job.ID); err != nil {
			return err
		}
	}
	if m.tokens != nil {
		purged, err := m.tokens.PurgeExpired(ctx)
		if err != nil {
			return err
		}
		if purged > 0 && m.logger != nil {
			m.logger.Info("purged expired download tokens", slog.Int64("count", purged))
		}
	}
	if len(expired) > 0 && m.logger != nil {
		m.logger.Info("swept expired archives", slog.Int("count", len(expired)))
	}
	return nil
}

// HandleStale fails jobs that have been processing for longer than the build
// timeout. The worker that owned them is assumed dead.
func (m *Maintenance) HandleStale(ctx context.Context, _ *asynq.Task) error {
	if m == nil || m.repo == nil {
		return fmt.Errorf("archive stale reaper not configured")
	}
	cutoff := time.Now().Add(-m.timeout)
	stale, err := m.repo.StaleProcessing(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, job := range stale {
		if err := m.repo.MarkFailed(ctx, job.ID, "build timed out"); err != nil {
			if m.logger != nil {
				m.logger.Warn("reap stale archive job", slog.String("session_id", job.SessionID), slog.Any("error", err))
			}
			continue
		}
		if m.builder != nil {
			_ = m.builder.Remove(job.ArchiveID)
		}
		if m.logger != nil {
			m.logger.Warn("archive job timed out", slog.String("session_id", job.SessionID))
		}
	}
	return nil
}
