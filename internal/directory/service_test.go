package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubStore struct {
	documents map[int64]Document
	folders   map[int64]Folder
	byFolder  map[int64][]int64
	children  map[int64][]int64
}

func newStubStore() *stubStore {
	return &stubStore{
		documents: make(map[int64]Document),
		folders:   make(map[int64]Folder),
		byFolder:  make(map[int64][]int64),
		children:  make(map[int64][]int64),
	}
}

func (s *stubStore) GetDocument(_ context.Context, id int64) (Document, error) {
	doc, ok := s.documents[id]
	if !ok {
		return Document{}, ErrDocumentNotFound
	}
	return doc, nil
}

func (s *stubStore) DocumentsByIDs(_ context.Context, ids []int64) ([]Document, error) {
	var docs []Document
	for _, id := range ids {
		if doc, ok := s.documents[id]; ok {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func (s *stubStore) ListDocuments(_ context.Context, tenantID int64, elevated bool, limit, offset int) ([]Document, error) {
	return nil, nil
}

func (s *stubStore) DocumentIDsInFolder(_ context.Context, folderID int64) ([]int64, error) {
	return s.byFolder[folderID], nil
}

func (s *stubStore) SubfolderIDs(_ context.Context, folderID int64) ([]int64, error) {
	return s.children[folderID], nil
}

func (s *stubStore) GetFolder(_ context.Context, id int64) (Folder, error) {
	folder, ok := s.folders[id]
	if !ok {
		return Folder{}, ErrFolderNotFound
	}
	return folder, nil
}

func TestExpandFoldersWalksSubtree(t *testing.T) {
	store := newStubStore()
	// projects(1) -> reports(2), archive(3); docs spread across all three.
	store.folders[1] = Folder{ID: 1, TenantID: 1, Name: "projects"}
	store.folders[2] = Folder{ID: 2, TenantID: 1, Name: "reports"}
	store.folders[3] = Folder{ID: 3, TenantID: 1, Name: "archive"}
	store.children[1] = []int64{2, 3}
	store.byFolder[1] = []int64{10}
	store.byFolder[2] = []int64{11, 12}
	store.byFolder[3] = []int64{13}

	svc := NewService(store)
	ids, err := svc.ExpandFolders(context.Background(), 1, false, []int64{1}, true)
	require.NoError(t, err)
	require.Equal(t, []int64{10, 11, 12, 13}, ids)
}

func TestExpandFoldersWithoutSubfoldersStopsAtTopLevel(t *testing.T) {
	store := newStubStore()
	store.folders[1] = Folder{ID: 1, TenantID: 1, Name: "projects"}
	store.folders[2] = Folder{ID: 2, TenantID: 1, Name: "reports"}
	store.children[1] = []int64{2}
	store.byFolder[1] = []int64{10}
	store.byFolder[2] = []int64{11}

	svc := NewService(store)
	ids, err := svc.ExpandFolders(context.Background(), 1, false, []int64{1}, false)
	require.NoError(t, err)
	require.Equal(t, []int64{10}, ids)
}

func TestExpandFoldersSkipsForeignTenant(t *testing.T) {
	store := newStubStore()
	store.folders[1] = Folder{ID: 1, TenantID: 1, Name: "mine"}
	store.folders[2] = Folder{ID: 2, TenantID: 2, Name: "theirs"}
	store.byFolder[1] = []int64{10}
	store.byFolder[2] = []int64{20}

	svc := NewService(store)
	ids, err := svc.ExpandFolders(context.Background(), 1, false, []int64{1, 2}, true)
	require.NoError(t, err)
	require.Equal(t, []int64{10}, ids)

	// Elevated callers cross tenants.
	ids, err = svc.ExpandFolders(context.Background(), 1, true, []int64{1, 2}, true)
	require.NoError(t, err)
	require.Equal(t, []int64{10, 20}, ids)
}

func TestExpandFoldersTerminatesOnCycle(t *testing.T) {
	store := newStubStore()
	store.folders[1] = Folder{ID: 1, TenantID: 1, Name: "a"}
	store.folders[2] = Folder{ID: 2, TenantID: 1, Name: "b"}
	store.children[1] = []int64{2}
	store.children[2] = []int64{1}
	store.byFolder[1] = []int64{10}
	store.byFolder[2] = []int64{11}

	svc := NewService(store)
	ids, err := svc.ExpandFolders(context.Background(), 1, false, []int64{1}, true)
	require.NoError(t, err)
	require.Equal(t, []int64{10, 11}, ids)
}

func TestExpandFoldersIgnoresMissingFolder(t *testing.T) {
	store := newStubStore()
	store.folders[1] = Folder{ID: 1, TenantID: 1, Name: "present"}
	store.byFolder[1] = []int64{10}

	svc := NewService(store)
	ids, err := svc.ExpandFolders(context.Background(), 1, false, []int64{99, 1}, true)
	require.NoError(t, err)
	require.Equal(t, []int64{10}, ids)
}

func TestFilesForArchivePreservesStructure(t *testing.T) {
	store := newStubStore()
	root := int64(1)
	sub := int64(2)
	store.folders[root] = Folder{ID: root, TenantID: 1, Name: "progetti"}
	store.folders[sub] = Folder{ID: sub, TenantID: 1, Name: "relazioni", ParentID: &root}
	store.documents[10] = Document{ID: 10, TenantID: 1, FolderID: &sub, Name: "q1.pdf", FilePath: "/data/q1.pdf", Size: 5}
	store.documents[11] = Document{ID: 11, TenantID: 1, Name: "loose.txt", FilePath: "/data/loose.txt", Size: 3}

	svc := NewService(store)
	docs := []Document{store.documents[10], store.documents[11]}

	files, err := svc.FilesForArchive(context.Background(), docs, true)
	require.NoError(t, err)
	require.Len(t, files, 2)
	require.Equal(t, "progetti/relazioni", files[0].RelativeDir)
	require.Equal(t, "", files[1].RelativeDir)

	flat, err := svc.FilesForArchive(context.Background(), docs, false)
	require.NoError(t, err)
	require.Equal(t, "", flat[0].RelativeDir)
}
