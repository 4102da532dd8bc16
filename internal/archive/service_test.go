package archive

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nexio-platform/nexio/internal/directory"
	"github.com/nexio-platform/nexio/internal/permissions"
	"github.com/nexio-platform/nexio/internal/shared"
)

type stubJobStore struct {
	inserted  []Job
	failed    map[int64]string
	bySession map[string]Job
	nextID    int64
	events    *[]string
}

func newStubJobStore() *stubJobStore {
	return &stubJobStore{failed: make(map[int64]string), bySession: make(map[string]Job)}
}

func (s *stubJobStore) find(id int64) (string, Job, bool) {
	for key, job := range s.bySession {
		if job.ID == id {
			return key, job, true
		}
	}
	return "", Job{}, false
}

func (s *stubJobStore) record(event string) {
	if s.events != nil {
		*s.events = append(*s.events, event)
	}
}

func (s *stubJobStore) Insert(_ context.Context, job Job) (Job, error) {
	s.nextID++
	job.ID = s.nextID
	job.CreatedAt = time.Now()
	s.inserted = append(s.inserted, job)
	s.bySession[job.SessionID] = job
	return job, nil
}

func (s *stubJobStore) GetBySession(_ context.Context, sessionID string, tenantID int64, elevated bool) (Job, error) {
	job, ok := s.bySession[sessionID]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	if job.TenantID != 0 && job.TenantID != tenantID && !elevated {
		return Job{}, ErrJobNotFound
	}
	return job, nil
}

func (s *stubJobStore) GetForWorker(_ context.Context, sessionID string) (Job, error) {
	job, ok := s.bySession[sessionID]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return job, nil
}

func (s *stubJobStore) GetByArchiveID(_ context.Context, archiveID string) (Job, error) {
	for _, job := range s.bySession {
		if job.ArchiveID == archiveID {
			return job, nil
		}
	}
	return Job{}, ErrJobNotFound
}

func (s *stubJobStore) MarkProcessing(_ context.Context, id int64) error {
	key, job, ok := s.find(id)
	if !ok {
		return ErrJobNotFound
	}
	if job.Status != StatusPending {
		return ErrInvalidStatus
	}
	now := time.Now()
	job.Status = StatusProcessing
	job.StartedAt = &now
	s.bySession[key] = job
	s.record("processing")
	return nil
}

func (s *stubJobStore) UpdateProgress(_ context.Context, id int64, filesProcessed, percent int) error {
	key, job, ok := s.find(id)
	if !ok {
		return ErrJobNotFound
	}
	if filesProcessed > job.FilesProcessed {
		job.FilesProcessed = filesProcessed
	}
	if percent > job.ProgressPercent {
		job.ProgressPercent = percent
	}
	s.bySession[key] = job
	return nil
}

func (s *stubJobStore) MarkCompleted(_ context.Context, id int64, filePath string, finalSize int64, completedAt time.Time) error {
	key, job, ok := s.find(id)
	if !ok {
		return ErrJobNotFound
	}
	if job.Status != StatusProcessing {
		return ErrInvalidStatus
	}
	job.Status = StatusCompleted
	job.FilePath = filePath
	job.FinalSize = finalSize
	job.FilesProcessed = job.TotalDocuments
	job.ProgressPercent = 100
	job.CompletedAt = &completedAt
	s.bySession[key] = job
	s.record("completed")
	return nil
}

func (s *stubJobStore) MarkFailed(_ context.Context, id int64, msg string) error {
	s.failed[id] = msg
	if key, job, ok := s.find(id); ok {
		job.Status = StatusFailed
		job.ErrorMessage = msg
		s.bySession[key] = job
	}
	s.record("failed")
	return nil
}

type stubDirectory struct {
	docs     map[int64]directory.Document
	expanded []int64
}

func (s *stubDirectory) ExpandFolders(_ context.Context, tenantID int64, elevated bool, folderIDs []int64, includeSubfolders bool) ([]int64, error) {
	return s.expanded, nil
}

func (s *stubDirectory) DocumentsByIDs(_ context.Context, ids []int64) ([]directory.Document, error) {
	var docs []directory.Document
	for _, id := range ids {
		if doc, ok := s.docs[id]; ok {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func (s *stubDirectory) FilesForArchive(_ context.Context, docs []directory.Document, preserveStructure bool) ([]directory.File, error) {
	files := make([]directory.File, 0, len(docs))
	for _, doc := range docs {
		files = append(files, directory.File{DocumentID: doc.ID, Name: doc.Name, DiskPath: doc.FilePath, Size: doc.Size})
	}
	return files, nil
}

type stubAccess struct {
	denied map[int64]bool
}

func (s *stubAccess) CheckAccess(_ context.Context, _ permissions.ResourceType, resourceID int64, _ permissions.Action, _ shared.AuthContext) (bool, error) {
	return !s.denied[resourceID], nil
}

type stubQueue struct {
	enqueued []string
	err      error
}

func (s *stubQueue) EnqueueArchiveBuild(_ context.Context, sessionID string) error {
	if s.err != nil {
		return s.err
	}
	s.enqueued = append(s.enqueued, sessionID)
	return nil
}

func testActor() shared.AuthContext {
	return shared.AuthContext{UserID: 5, TenantID: 1, Role: "utente"}
}

func doc(id int64, name string, size int64) directory.Document {
	return directory.Document{ID: id, TenantID: 1, Name: name, FilePath: "/data/" + name, Size: size}
}

func newTestService(store *stubJobStore, dir *stubDirectory, access *stubAccess, queue *stubQueue) *Service {
	return NewService(store, dir, access, queue, nil, nil)
}

func TestCreateDeduplicatesSelection(t *testing.T) {
	store := newStubJobStore()
	dir := &stubDirectory{
		docs:     map[int64]directory.Document{10: doc(10, "a.pdf", 5), 11: doc(11, "b.pdf", 7)},
		expanded: []int64{11, 10},
	}
	svc := newTestService(store, dir, &stubAccess{}, &stubQueue{})

	job, err := svc.Create(context.Background(), testActor(), CreateRequest{
		DocumentIDs: []int64{10, 10, 11},
		FolderIDs:   []int64{1},
		Options:     Options{CompressionLevel: 6},
	})
	require.NoError(t, err)
	require.Equal(t, []int64{10, 11}, job.DocumentIDs)
	require.Equal(t, 2, job.TotalDocuments)
	require.Equal(t, int64(12), job.TotalSize)
	require.Equal(t, StatusPending, job.Status)
	require.NotEmpty(t, job.SessionID)
	require.NotEmpty(t, job.ArchiveID)
	require.NotEqual(t, job.SessionID, job.ArchiveID)
}

func TestCreateFiltersBySizeAndType(t *testing.T) {
	store := newStubJobStore()
	dir := &stubDirectory{docs: map[int64]directory.Document{
		10: doc(10, "small.pdf", 100),
		11: doc(11, "huge.bin", 10_000),
		12: doc(12, "notes.tmp", 50),
	}}
	svc := newTestService(store, dir, &stubAccess{}, &stubQueue{})

	job, err := svc.Create(context.Background(), testActor(), CreateRequest{
		DocumentIDs: []int64{10, 11, 12},
		Options:     Options{CompressionLevel: 6, MaxFileSize: 1000, ExcludeTypes: []string{".tmp"}},
	})
	require.NoError(t, err)
	require.Equal(t, []int64{10}, job.DocumentIDs)
	require.Equal(t, 3, job.RequestedDocuments)
	require.Equal(t, 1, job.TotalDocuments)
	require.Equal(t, 1, job.Metadata["skipped_too_large"])
	require.Equal(t, 1, job.Metadata["skipped_excluded_type"])
}

func TestCreateDropsUnauthorizedDocumentsSilently(t *testing.T) {
	store := newStubJobStore()
	dir := &stubDirectory{docs: map[int64]directory.Document{
		10: doc(10, "mine.pdf", 5),
		11: doc(11, "secret.pdf", 5),
	}}
	svc := newTestService(store, dir, &stubAccess{denied: map[int64]bool{11: true}}, &stubQueue{})

	job, err := svc.Create(context.Background(), testActor(), CreateRequest{
		DocumentIDs: []int64{10, 11},
		Options:     Options{CompressionLevel: 6},
	})
	require.NoError(t, err)
	require.Equal(t, []int64{10}, job.DocumentIDs)
	require.Equal(t, 1, job.Metadata["skipped_unauthorized"])
}

func TestCreateFailsWhenNothingSurvivesFiltering(t *testing.T) {
	store := newStubJobStore()
	dir := &stubDirectory{docs: map[int64]directory.Document{10: doc(10, "secret.pdf", 5)}}
	svc := newTestService(store, dir, &stubAccess{denied: map[int64]bool{10: true}}, &stubQueue{})

	_, err := svc.Create(context.Background(), testActor(), CreateRequest{
		DocumentIDs: []int64{10},
		Options:     Options{CompressionLevel: 6},
	})
	require.ErrorIs(t, err, ErrNoValidDocuments)
	require.Empty(t, store.inserted)
}

func TestCreateRejectsEmptySelection(t *testing.T) {
	svc := newTestService(newStubJobStore(), &stubDirectory{}, &stubAccess{}, &stubQueue{})
	_, err := svc.Create(context.Background(), testActor(), CreateRequest{})
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestCreateRejectsBadCompressionLevel(t *testing.T) {
	svc := newTestService(newStubJobStore(), &stubDirectory{}, &stubAccess{}, &stubQueue{})
	_, err := svc.Create(context.Background(), testActor(), CreateRequest{
		DocumentIDs: []int64{10},
		Options:     Options{CompressionLevel: 12},
	})
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestCreateRejectsNonPositiveIDs(t *testing.T) {
	svc := newTestService(newStubJobStore(), &stubDirectory{}, &stubAccess{}, &stubQueue{})
	_, err := svc.Create(context.Background(), testActor(), CreateRequest{
		DocumentIDs: []int64{0},
		Options:     Options{CompressionLevel: 6},
	})
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestCreateMarksJobFailedWhenEnqueueFails(t *testing.T) {
	store := newStubJobStore()
	dir := &stubDirectory{docs: map[int64]directory.Document{10: doc(10, "a.pdf", 5)}}
	queue := &stubQueue{err: errors.New("queue down")}
	svc := newTestService(store, dir, &stubAccess{}, queue)

	_, err := svc.Create(context.Background(), testActor(), CreateRequest{
		DocumentIDs: []int64{10},
		Options:     Options{CompressionLevel: 6},
	})
	require.Error(t, err)
	require.Len(t, store.inserted, 1)
	require.Contains(t, store.failed[store.inserted[0].ID], "enqueue")
}

func TestSnapshotEstimatesTimeRemaining(t *testing.T) {
	store := newStubJobStore()
	started := time.Now().Add(-30 * time.Second)
	store.bySession["s1"] = Job{
		SessionID:       "s1",
		TenantID:        1,
		Status:          StatusProcessing,
		TotalDocuments:  10,
		FilesProcessed:  5,
		ProgressPercent: 50,
		StartedAt:       &started,
	}
	svc := newTestService(store, &stubDirectory{}, &stubAccess{}, &stubQueue{})

	snap, err := svc.Snapshot(context.Background(), testActor(), "s1")
	require.NoError(t, err)
	require.NotNil(t, snap.EstimatedTimeRemaining)
	// Half done after ~30s: roughly 30s to go.
	require.InDelta(t, 30, *snap.EstimatedTimeRemaining, 5)
}

func TestSnapshotHasNoEstimateAtZeroProgress(t *testing.T) {
	store := newStubJobStore()
	started := time.Now()
	store.bySession["s1"] = Job{
		SessionID: "s1",
		TenantID:  1,
		Status:    StatusProcessing,
		StartedAt: &started,
	}
	svc := newTestService(store, &stubDirectory{}, &stubAccess{}, &stubQueue{})

	snap, err := svc.Snapshot(context.Background(), testActor(), "s1")
	require.NoError(t, err)
	require.Nil(t, snap.EstimatedTimeRemaining)
}

func TestSnapshotIsTenantScoped(t *testing.T) {
	store := newStubJobStore()
	store.bySession["s1"] = Job{SessionID: "s1", TenantID: 2, Status: StatusPending}
	svc := newTestService(store, &stubDirectory{}, &stubAccess{}, &stubQueue{})

	_, err := svc.Snapshot(context.Background(), testActor(), "s1")
	require.ErrorIs(t, err, ErrJobNotFound)

	elevated := testActor()
	elevated.Elevated = true
	snap, err := svc.Snapshot(context.Background(), elevated, "s1")
	require.NoError(t, err)
	require.Equal(t, StatusPending, snap.Status)
}
