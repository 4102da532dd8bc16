package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists archive jobs and their lifecycle transitions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository wrapper.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const jobColumns = `id, session_id, archive_id, COALESCE(azienda_id, 0), utente_id, document_ids, status,
    requested_documents, total_documents, files_processed, progress_percent,
    total_size, COALESCE(final_size, 0), COALESCE(file_path, ''), COALESCE(error_message, ''),
    options, metadata, created_at, started_at, completed_at`

// Insert stores a new pending job and returns the persisted row.
func (r *Repository) Insert(ctx context.Context, job Job) (Job, error) {
	if r == nil || r.pool == nil {
		return Job{}, fmt.Errorf("archive: repository not initialised")
	}
	options, err := json.Marshal(job.Options)
	if err != nil {
		return Job{}, err
	}
	metadata, err := json.Marshal(job.Metadata)
	if err != nil {
		return Job{}, err
	}
	var tenant any
	if job.TenantID != 0 {
		tenant = job.TenantID
	}
	const insert = `INSERT INTO archive_jobs
    (session_id, archive_id, azienda_id, utente_id, document_ids, status,
     requested_documents, total_documents, total_size, options, metadata)
VALUES ($1,$2,$3,$4,$5,'pending',$6,$7,$8,$9,$10)
RETURNING id, created_at`
	err = r.pool.QueryRow(ctx, insert,
		job.SessionID, job.ArchiveID, tenant, job.UserID, job.DocumentIDs,
		job.RequestedDocuments, job.TotalDocuments, job.TotalSize, options, metadata,
	).Scan(&job.ID, &job.CreatedAt)
	if err != nil {
		return Job{}, err
	}
	job.Status = StatusPending
	return job, nil
}

// GetBySession loads a job by its public session id, scoped to the caller's
// tenant unless the caller is elevated.
func (r *Repository) GetBySession(ctx context.Context, sessionID string, tenantID int64, elevated bool) (Job, error) {
	if r == nil || r.pool == nil {
		return Job{}, fmt.Errorf("archive: repository not initialised")
	}
	query := `SELECT ` + jobColumns + `
FROM archive_jobs
WHERE session_id = $1 AND ($3 OR COALESCE(azienda_id, 0) IN (0, $2))`
	job, err := scanJob(r.pool.QueryRow(ctx, query, sessionID, tenantID, elevated))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Job{}, ErrJobNotFound
		}
		return Job{}, err
	}
	return job, nil
}

// GetForWorker loads a job without tenant scoping. The queue is trusted.
func (r *Repository) GetForWorker(ctx context.Context, sessionID string) (Job, error) {
	if r == nil || r.pool == nil {
		return Job{}, fmt.Errorf("archive: repository not initialised")
	}
	query := `SELECT ` + jobColumns + ` FROM archive_jobs WHERE session_id = $1`
	job, err := scanJob(r.pool.QueryRow(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Job{}, ErrJobNotFound
		}
		return Job{}, err
	}
	return job, nil
}

// GetByArchiveID resolves a completed job from its archive identifier.
func (r *Repository) GetByArchiveID(ctx context.Context, archiveID string) (Job, error) {
	if r == nil || r.pool == nil {
		return Job{}, fmt.Errorf("archive: repository not initialised")
	}
	query := `SELECT ` + jobColumns + ` FROM archive_jobs WHERE archive_id = $1`
	job, err := scanJob(r.pool.QueryRow(ctx, query, archiveID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Job{}, ErrJobNotFound
		}
		return Job{}, err
	}
	return job, nil
}

// MarkProcessing transitions a pending job to processing. The status guard in
// the WHERE clause makes the transition safe under duplicate delivery.
func (r *Repository) MarkProcessing(ctx context.Context, id int64) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("archive: repository not initialised")
	}
	cmd, err := r.pool.Exec(ctx, `UPDATE archive_jobs
SET status = 'processing', error_message = NULL, started_at = NOW(), updated_at = NOW()
WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvalidStatus
	}
	return nil
}

// UpdateProgress persists counters for the polling endpoint. GREATEST keeps
// progress monotonic even if updates land out of order.
func (r *Repository) UpdateProgress(ctx context.Context, id int64, filesProcessed, percent int) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("archive: repository not initialised")
	}
	_, err := r.pool.Exec(ctx, `UPDATE archive_jobs
SET files_processed = GREATEST(files_processed, $2),
    progress_percent = GREATEST(progress_percent, $3),
    updated_at = NOW()
WHERE id = $1 AND status = 'processing'`, id, filesProcessed, percent)
	return err
}

// MarkCompleted stores the artefact metadata and finishes the job.
func (r *Repository) MarkCompleted(ctx context.Context, id int64, filePath string, finalSize int64, completedAt time.Time) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("archive: repository not initialised")
	}
	cmd, err := r.pool.Exec(ctx, `UPDATE archive_jobs
SET status = 'completed', file_path = $2, final_size = $3,
    files_processed = total_documents, progress_percent = 100,
    completed_at = $4, updated_at = NOW()
WHERE id = $1 AND status = 'processing'`, id, filePath, finalSize, completedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvalidStatus
	}
	return nil
}

// MarkFailed captures the error message and switches the status to failed.
// Terminal states are preserved.
func (r *Repository) MarkFailed(ctx context.Context, id int64, msg string) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("archive: repository not initialised")
	}
	cmd, err := r.pool.Exec(ctx, `UPDATE archive_jobs
SET status = 'failed', error_message = $2, completed_at = NOW(), updated_at = NOW()
WHERE id = $1 AND status IN ('pending', 'processing')`, id, truncateError(msg))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvalidStatus
	}
	return nil
}

// StaleProcessing lists jobs stuck in processing since before the cutoff.
func (r *Repository) StaleProcessing(ctx context.Context, cutoff time.Time) ([]Job, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("archive: repository not initialised")
	}
	query := `SELECT ` + jobColumns + `
FROM archive_jobs
WHERE status = 'processing' AND started_at < $1
ORDER BY started_at`
	return r.queryJobs(ctx, query, cutoff)
}

// ExpiredArchives lists completed jobs whose artefact has outlived retention
// and has not been swept yet.
func (r *Repository) ExpiredArchives(ctx context.Context, cutoff time.Time) ([]Job, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("archive: repository not initialised")
	}
	query := `SELECT ` + jobColumns + `
FROM archive_jobs
WHERE status = 'completed' AND completed_at < $1 AND swept_at IS NULL
ORDER BY completed_at`
	return r.queryJobs(ctx, query, cutoff)
}

// MarkSwept records that a job's artefact has been removed from disk.
func (r *Repository) MarkSwept(ctx context.Context, id int64) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("archive: repository not initialised")
	}
	_, err := r.pool.Exec(ctx, `UPDATE archive_jobs SET swept_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	return err
}

func (r *Repository) queryJobs(ctx context.Context, query string, args ...any) ([]Job, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func scanJob(row interface{ Scan(dest ...any) error }) (Job, error) {
	var job Job
	var status string
	var options, metadata []byte
	var startedAt, completedAt sql.NullTime
	if err := row.Scan(
		&job.ID,
		&job.SessionID,
		&job.ArchiveID,
		&job.TenantID,
		&job.UserID,
		&job.DocumentIDs,
		&status,
		&job.RequestedDocuments,
		&job.TotalDocuments,
		&job.FilesProcessed,
		&job.ProgressPercent,
		&job.TotalSize,
		&job.FinalSize,
		&job.FilePath,
		&job.ErrorMessage,
		&options,
		&metadata,
		&job.CreatedAt,
		&startedAt,
		&completedAt,
	); err != nil {
		return Job{}, err
	}
	job.Status = NormaliseStatus(status)
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	if len(options) > 0 {
		if err := json.Unmarshal(options, &job.Options); err != nil {
			job.Options = Options{}
		}
	}
	job.Metadata = make(map[string]any)
	if len(metadata) > 0 {
		_ = json.Unmarshal(metadata, &job.Metadata)
	}
	return job, nil
}

func truncateError(msg string) string {
	msg = strings.TrimSpace(msg)
	if len(msg) > 500 {
		return msg[:500]
	}
	return msg
}
