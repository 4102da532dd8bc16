package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskArchiveBuild packages an archive job's documents into a zip.
	TaskArchiveBuild = "archive:build"
	// TaskArchiveSweep removes expired archive artefacts from disk.
	TaskArchiveSweep = "archive:sweep"
	// TaskArchiveStale fails jobs stuck in processing past the build timeout.
	TaskArchiveStale = "archive:stale"
)

// ArchiveBuildPayload identifies the job to build.
type ArchiveBuildPayload struct {
	SessionID string `json:"session_id"`
}

// NewArchiveBuildTask constructs an Asynq task.
func NewArchiveBuildTask(payload ArchiveBuildPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskArchiveBuild, data), nil
}

// NewArchiveSweepTask constructs the periodic retention sweep task.
func NewArchiveSweepTask() *asynq.Task {
	return asynq.NewTask(TaskArchiveSweep, nil)
}

// NewArchiveStaleTask constructs the periodic stale-job reaper task.
func NewArchiveStaleTask() *asynq.Task {
	return asynq.NewTask(TaskArchiveStale, nil)
}
