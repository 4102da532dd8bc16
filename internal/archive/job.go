package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nexio-platform/nexio/internal/download"
	"github.com/nexio-platform/nexio/internal/observability"
	"github.com/nexio-platform/nexio/jobs"
)

// TokenIssuer mints download tokens once an artefact exists on disk.
type TokenIssuer interface {
	Issue(ctx context.Context, archiveID string, tenantID, userID int64) (download.Token, error)
}

// JobConfig wires dependencies required by the worker job.
type JobConfig struct {
	Service *Service
	Builder *Builder
	Tokens  TokenIssuer
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

// BuildJob processes archive build requests coming from the queue. It owns
// every transition out of pending: exactly one terminal state is reached per
// job, and the artefact exists before the job reads completed.
type BuildJob struct {
	service *Service
	builder *Builder
	tokens  TokenIssuer
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewBuildJob constructs a BuildJob handler.
func NewBuildJob(cfg JobConfig) *BuildJob {
	return &BuildJob{service: cfg.Service, builder: cfg.Builder, tokens: cfg.Tokens, metrics: cfg.Metrics, logger: cfg.Logger}
}

// Handle fulfils the asynq.HandlerFunc contract.
func (j *BuildJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.service == nil || j.builder == nil || j.tokens == nil {
		return fmt.Errorf("archive build job not configured")
	}
	var payload jobs.ArchiveBuildPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.SessionID == "" {
		return asynq.SkipRetry
	}
	job, err := j.service.GetForWorker(ctx, payload.SessionID)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return asynq.SkipRetry
		}
		return err
	}
	if job.Status.Terminal() {
		return nil
	}
	if err := j.service.store.MarkProcessing(ctx, job.ID); err != nil {
		if errors.Is(err, ErrInvalidStatus) {
			// A concurrent delivery already owns the job.
			current, loadErr := j.service.GetForWorker(ctx, payload.SessionID)
			if loadErr == nil && current.Status != StatusPending {
				return nil
			}
		}
		return err
	}

	docs, err := j.service.dir.DocumentsByIDs(ctx, job.DocumentIDs)
	if err != nil {
		return j.fail(ctx, job, err)
	}
	files, err := j.service.dir.FilesForArchive(ctx, docs, job.Options.PreserveStructure)
	if err != nil {
		return j.fail(ctx, job, err)
	}
	if len(files) == 0 {
		return j.fail(ctx, job, ErrNoValidDocuments)
	}

	total := len(files)
	step := total / 20
	if step < 1 {
		step = 1
	}
	progress := func(done int) {
		if done%step != 0 && done != total {
			return
		}
		percent := done * 100 / total
		if err := j.service.store.UpdateProgress(ctx, job.ID, done, percent); err != nil && j.logger != nil {
			j.logger.Warn("persist archive progress", slog.String("session_id", job.SessionID), slog.Any("error", err))
		}
	}

	path, size, err := j.builder.Build(ctx, job.ArchiveID, files, job.Options, progress)
	if err != nil {
		return j.fail(ctx, job, err)
	}
	// Token first: once the job reads completed the progress endpoint must be
	// able to hand out a link. A token for a never-completed archive is inert,
	// the download handler checks job status.
	if _, err := j.tokens.Issue(ctx, job.ArchiveID, job.TenantID, job.UserID); err != nil {
		return j.fail(ctx, job, fmt.Errorf("issue download token: %w", err))
	}
	if err := j.service.store.MarkCompleted(ctx, job.ID, path, size, time.Now()); err != nil {
		_ = j.builder.Remove(job.ArchiveID)
		return err
	}
	j.metrics.ArchiveJobFinished("completed", size)
	if j.logger != nil {
		j.logger.Info("archive ready",
			slog.String("session_id", job.SessionID),
			slog.String("archive_id", job.ArchiveID),
			slog.Int("files", total),
			slog.Int64("size", size))
	}
	return nil
}

func (j *BuildJob) fail(ctx context.Context, job Job, cause error) error {
	if err := j.service.store.MarkFailed(ctx, job.ID, cause.Error()); err != nil && j.logger != nil {
		j.logger.Error("mark archive failed", slog.String("session_id", job.SessionID), slog.Any("error", err))
	}
	_ = j.builder.Remove(job.ArchiveID)
	j.metrics.ArchiveJobFinished("failed", 0)
	if j.logger != nil {
		j.logger.Warn("archive build failed", slog.String("session_id", job.SessionID), slog.Any("error", cause))
	}
	return cause
}
