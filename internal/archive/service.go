package archive

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nexio-platform/nexio/internal/directory"
	"github.com/nexio-platform/nexio/internal/permissions"
	"github.com/nexio-platform/nexio/internal/shared"
)

// JobStore is the persistence surface the service and worker rely on.
type JobStore interface {
	Insert(ctx context.Context, job Job) (Job, error)
	GetBySession(ctx context.Context, sessionID string, tenantID int64, elevated bool) (Job, error)
	GetForWorker(ctx context.Context, sessionID string) (Job, error)
	GetByArchiveID(ctx context.Context, archiveID string) (Job, error)
	MarkProcessing(ctx context.Context, id int64) error
	UpdateProgress(ctx context.Context, id int64, filesProcessed, percent int) error
	MarkCompleted(ctx context.Context, id int64, filePath string, finalSize int64, completedAt time.Time) error
	MarkFailed(ctx context.Context, id int64, msg string) error
}

// Directory resolves selections into documents and archive entries.
type Directory interface {
	ExpandFolders(ctx context.Context, tenantID int64, elevated bool, folderIDs []int64, includeSubfolders bool) ([]int64, error)
	DocumentsByIDs(ctx context.Context, ids []int64) ([]directory.Document, error)
	FilesForArchive(ctx context.Context, docs []directory.Document, preserveStructure bool) ([]directory.File, error)
}

// AccessChecker answers per-document download permission questions.
type AccessChecker interface {
	CheckAccess(ctx context.Context, resourceType permissions.ResourceType, resourceID int64, action permissions.Action, actor shared.AuthContext) (bool, error)
}

// Enqueuer hands the build off to the background queue.
type Enqueuer interface {
	EnqueueArchiveBuild(ctx context.Context, sessionID string) error
}

// Service owns archive job creation and the polling view. The build itself
// runs on the worker; creation only validates, filters, and persists.
type Service struct {
	store  JobStore
	dir    Directory
	access AccessChecker
	queue  Enqueuer
	audit  *shared.AuditLogger
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a Service instance.
func NewService(store JobStore, dir Directory, access AccessChecker, queue Enqueuer, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		dir:    dir,
		access: access,
		queue:  queue,
		audit:  audit,
		logger: logger,
		now:    time.Now,
	}
}

// Create resolves the selection into a concrete document list, filters it, and
// persists a pending job for the worker. Documents the caller may not
// download, oversized files, and excluded types are dropped silently; only a
// selection with nothing left is an error.
func (s *Service) Create(ctx context.Context, actor shared.AuthContext, req CreateRequest) (Job, error) {
	if err := req.Validate(); err != nil {
		return Job{}, err
	}

	candidates := append([]int64(nil), req.DocumentIDs...)
	if len(req.FolderIDs) > 0 {
		expanded, err := s.dir.ExpandFolders(ctx, actor.TenantID, actor.Elevated, req.FolderIDs, req.Options.IncludeSubfolders)
		if err != nil {
			return Job{}, err
		}
		candidates = append(candidates, expanded...)
	}
	candidates = dedupIDs(candidates)
	if len(candidates) == 0 {
		return Job{}, ErrNoValidDocuments
	}

	docs, err := s.dir.DocumentsByIDs(ctx, candidates)
	if err != nil {
		return Job{}, err
	}
	byID := make(map[int64]directory.Document, len(docs))
	for _, doc := range docs {
		byID[doc.ID] = doc
	}

	var (
		kept      []int64
		totalSize int64
		skipped   = map[string]int{}
	)
	for _, id := range candidates {
		doc, ok := byID[id]
		if !ok {
			skipped["missing"]++
			continue
		}
		if req.Options.MaxFileSize > 0 && doc.Size > req.Options.MaxFileSize {
			skipped["too_large"]++
			continue
		}
		if req.Options.excludes(doc.Extension()) {
			skipped["excluded_type"]++
			continue
		}
		allowed, err := s.access.CheckAccess(ctx, permissions.ResourceDocument, doc.ID, permissions.ActionDownload, actor)
		if err != nil {
			return Job{}, err
		}
		if !allowed {
			skipped["unauthorized"]++
			continue
		}
		kept = append(kept, id)
		totalSize += doc.Size
	}
	if len(kept) == 0 {
		return Job{}, ErrNoValidDocuments
	}

	meta := map[string]any{"requested": len(candidates)}
	for reason, n := range skipped {
		meta["skipped_"+reason] = n
	}
	job := Job{
		SessionID:          uuid.NewString(),
		ArchiveID:          uuid.NewString(),
		TenantID:           actor.TenantID,
		UserID:             actor.UserID,
		DocumentIDs:        kept,
		Status:             StatusPending,
		RequestedDocuments: len(candidates),
		TotalDocuments:     len(kept),
		TotalSize:          totalSize,
		Options:            req.Options,
		Metadata:           meta,
	}
	job, err = s.store.Insert(ctx, job)
	if err != nil {
		return Job{}, err
	}

	if err := s.queue.EnqueueArchiveBuild(ctx, job.SessionID); err != nil {
		// A job nobody will ever pick up must not sit pending forever.
		_ = s.store.MarkFailed(ctx, job.ID, "enqueue: "+err.Error())
		return Job{}, err
	}
	s.recordAudit(ctx, actor, job)
	if s.logger != nil {
		s.logger.Info("archive job queued",
			slog.String("session_id", job.SessionID),
			slog.Int("documents", job.TotalDocuments),
			slog.Int64("total_size", job.TotalSize))
	}
	return job, nil
}

// Snapshot returns the polling view for a session, tenant-scoped.
func (s *Service) Snapshot(ctx context.Context, actor shared.AuthContext, sessionID string) (Snapshot, error) {
	job, err := s.store.GetBySession(ctx, sessionID, actor.TenantID, actor.Elevated)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{
		SessionID:          job.SessionID,
		ArchiveID:          job.ArchiveID,
		Status:             job.Status,
		RequestedDocuments: job.RequestedDocuments,
		TotalDocuments:     job.TotalDocuments,
		FilesProcessed:     job.FilesProcessed,
		ProgressPercent:    job.ProgressPercent,
		ErrorMessage:       job.ErrorMessage,
	}
	if job.Status == StatusProcessing && job.ProgressPercent > 0 && job.StartedAt != nil {
		elapsed := s.now().Sub(*job.StartedAt).Seconds()
		if elapsed > 0 {
			eta := elapsed * float64(100-job.ProgressPercent) / float64(job.ProgressPercent)
			snap.EstimatedTimeRemaining = &eta
		}
	}
	return snap, nil
}

// GetForWorker loads a job for queue processing, bypassing tenant scope.
func (s *Service) GetForWorker(ctx context.Context, sessionID string) (Job, error) {
	return s.store.GetForWorker(ctx, sessionID)
}

// ArchiveArtifact resolves a completed archive's file on disk together with
// the filename to serve it under.
func (s *Service) ArchiveArtifact(ctx context.Context, archiveID string) (string, int64, string, error) {
	job, err := s.store.GetByArchiveID(ctx, archiveID)
	if err != nil {
		return "", 0, "", err
	}
	if job.Status != StatusCompleted || job.FilePath == "" {
		return "", 0, "", ErrJobNotFound
	}
	prefix := strings.TrimSpace(job.Options.FilenamePrefix)
	if prefix == "" {
		prefix = "nexio-archive"
	}
	filename := fmt.Sprintf("%s-%s.zip", prefix, job.CreatedAt.Format("20060102"))
	return job.FilePath, job.FinalSize, filename, nil
}

func (s *Service) recordAudit(ctx context.Context, actor shared.AuthContext, job Job) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.UserID,
		TenantID: actor.TenantID,
		Action:   shared.AuditArchiveCreate,
		Entity:   "archive_job",
		EntityID: job.SessionID,
		Meta: map[string]any{
			"archive_id": job.ArchiveID,
			"documents":  job.TotalDocuments,
		},
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("audit archive create", slog.Any("error", err))
	}
}
