package archive

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status captures the lifecycle of an archive job. Terminal states are never
// left.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// NormaliseStatus lowercases and trims the provided status string.
func NormaliseStatus(v string) Status {
	v = strings.TrimSpace(strings.ToLower(v))
	switch Status(v) {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return Status(v)
	default:
		return StatusPending
	}
}

// Options configure how a selection is packaged.
type Options struct {
	IncludeSubfolders bool     `json:"include_subfolders"`
	PreserveStructure bool     `json:"preserve_structure"`
	IncludeMetadata   bool     `json:"include_metadata"`
	CompressionLevel  int      `json:"compression_level"`
	MaxFileSize       int64    `json:"max_file_size,omitempty"`
	ExcludeTypes      []string `json:"exclude_types,omitempty"`
	FilenamePrefix    string   `json:"filename_prefix,omitempty"`
}

// Validate ensures the options can be processed.
func (o Options) Validate() error {
	if o.CompressionLevel < 0 || o.CompressionLevel > 9 {
		return fmt.Errorf("%w: compression level must be between 0 and 9", ErrInvalidRequest)
	}
	if o.MaxFileSize < 0 {
		return fmt.Errorf("%w: max file size must not be negative", ErrInvalidRequest)
	}
	return nil
}

// excludes reports whether a file extension is filtered out.
func (o Options) excludes(ext string) bool {
	for _, t := range o.ExcludeTypes {
		if strings.TrimPrefix(strings.ToLower(strings.TrimSpace(t)), ".") == ext {
			return true
		}
	}
	return false
}

// Job represents a persisted archive request/result.
type Job struct {
	ID                 int64
	SessionID          string
	ArchiveID          string
	TenantID           int64
	UserID             int64
	DocumentIDs        []int64
	Status             Status
	RequestedDocuments int
	TotalDocuments     int
	FilesProcessed     int
	ProgressPercent    int
	TotalSize          int64
	FinalSize          int64
	FilePath           string
	ErrorMessage       string
	Options            Options
	Metadata           map[string]any
	CreatedAt          time.Time
	StartedAt          *time.Time
	CompletedAt        *time.Time
}

// CreateRequest defines the payload accepted when creating an archive job.
type CreateRequest struct {
	DocumentIDs []int64
	FolderIDs   []int64
	Options     Options
}

// Validate ensures the creation request can be processed.
func (r CreateRequest) Validate() error {
	if len(r.DocumentIDs) == 0 && len(r.FolderIDs) == 0 {
		return fmt.Errorf("%w: at least one document or folder required", ErrInvalidRequest)
	}
	for _, id := range r.DocumentIDs {
		if id <= 0 {
			return fmt.Errorf("%w: document ids must be positive", ErrInvalidRequest)
		}
	}
	for _, id := range r.FolderIDs {
		if id <= 0 {
			return fmt.Errorf("%w: folder ids must be positive", ErrInvalidRequest)
		}
	}
	return r.Options.Validate()
}

// Snapshot is the polling view over a job's persisted state.
type Snapshot struct {
	SessionID              string
	ArchiveID              string
	Status                 Status
	RequestedDocuments     int
	TotalDocuments         int
	FilesProcessed         int
	ProgressPercent        int
	ErrorMessage           string
	EstimatedTimeRemaining *float64 // seconds; nil until progress is non-zero
}

var (
	ErrJobNotFound      = errors.New("archive: job not found")
	ErrNoValidDocuments = errors.New("archive: no valid documents after filtering")
	ErrInvalidStatus    = errors.New("archive: invalid status transition")
	ErrInvalidRequest   = errors.New("archive: invalid request")
)

// dedupIDs removes duplicates preserving first-seen order, so the archive
// entry order stays deterministic for a given request.
func dedupIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
