package directory

import (
	"context"
	"errors"
	"path"
)

// Store is the persistence surface the service relies on.
type Store interface {
	GetDocument(ctx context.Context, id int64) (Document, error)
	DocumentsByIDs(ctx context.Context, ids []int64) ([]Document, error)
	ListDocuments(ctx context.Context, tenantID int64, elevated bool, limit, offset int) ([]Document, error)
	DocumentIDsInFolder(ctx context.Context, folderID int64) ([]int64, error)
	SubfolderIDs(ctx context.Context, folderID int64) ([]int64, error)
	GetFolder(ctx context.Context, id int64) (Folder, error)
}

// Service answers document/folder queries for the rest of the platform.
type Service struct {
	store Store
}

// NewService constructs a Service instance.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// GetDocument loads a single document.
func (s *Service) GetDocument(ctx context.Context, id int64) (Document, error) {
	return s.store.GetDocument(ctx, id)
}

// DocumentsByIDs loads metadata for the given ids.
func (s *Service) DocumentsByIDs(ctx context.Context, ids []int64) ([]Document, error) {
	return s.store.DocumentsByIDs(ctx, ids)
}

// ListDocuments returns tenant-scoped documents.
func (s *Service) ListDocuments(ctx context.Context, tenantID int64, elevated bool, limit, offset int) ([]Document, error) {
	return s.store.ListDocuments(ctx, tenantID, elevated, limit, offset)
}

// DocumentIDsInFolder lists direct children of a folder.
func (s *Service) DocumentIDsInFolder(ctx context.Context, folderID int64) ([]int64, error) {
	return s.store.DocumentIDsInFolder(ctx, folderID)
}

type frame struct {
	folderID int64
	depth    int
}

// ExpandFolders resolves a folder selection into the contained document ids,
// depth-first. Folders outside the caller's tenant are skipped silently, the
// same way unauthorized documents are dropped later in the pipeline. The walk
// is bounded by MaxFolderDepth and a visited set, so it terminates even if the
// tree invariant is violated.
func (s *Service) ExpandFolders(ctx context.Context, tenantID int64, elevated bool, folderIDs []int64, includeSubfolders bool) ([]int64, error) {
	visited := make(map[int64]struct{}, len(folderIDs))
	stack := make([]frame, 0, len(folderIDs))
	for i := len(folderIDs) - 1; i >= 0; i-- {
		stack = append(stack, frame{folderID: folderIDs[i], depth: 0})
	}

	var docIDs []int64
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, seen := visited[top.folderID]; seen {
			continue
		}
		visited[top.folderID] = struct{}{}

		folder, err := s.store.GetFolder(ctx, top.folderID)
		if err != nil {
			if errors.Is(err, ErrFolderNotFound) {
				continue
			}
			return nil, err
		}
		if folder.TenantID != 0 && folder.TenantID != tenantID && !elevated {
			continue
		}

		ids, err := s.store.DocumentIDsInFolder(ctx, folder.ID)
		if err != nil {
			return nil, err
		}
		docIDs = append(docIDs, ids...)

		if !includeSubfolders || top.depth >= MaxFolderDepth {
			continue
		}
		children, err := s.store.SubfolderIDs(ctx, folder.ID)
		if err != nil {
			return nil, err
		}
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, frame{folderID: children[i], depth: top.depth + 1})
		}
	}
	return docIDs, nil
}

// FolderLineage reconstructs the folder names from root to the given folder.
func (s *Service) FolderLineage(ctx context.Context, folderID int64) ([]string, error) {
	var names []string
	id := folderID
	for depth := 0; depth < MaxFolderDepth; depth++ {
		folder, err := s.store.GetFolder(ctx, id)
		if err != nil {
			if errors.Is(err, ErrFolderNotFound) {
				break
			}
			return nil, err
		}
		names = append([]string{folder.Name}, names...)
		if folder.ParentID == nil {
			break
		}
		id = *folder.ParentID
	}
	return names, nil
}

// FilesForArchive maps documents to archive entries, reconstructing folder
// paths when structure preservation is requested. Lineages are memoised per
// folder because sibling documents share them.
func (s *Service) FilesForArchive(ctx context.Context, docs []Document, preserveStructure bool) ([]File, error) {
	lineages := make(map[int64]string)
	files := make([]File, 0, len(docs))
	for _, doc := range docs {
		file := File{
			DocumentID: doc.ID,
			Name:       doc.Name,
			DiskPath:   doc.FilePath,
			Size:       doc.Size,
		}
		if preserveStructure && doc.FolderID != nil {
			dir, ok := lineages[*doc.FolderID]
			if !ok {
				names, err := s.FolderLineage(ctx, *doc.FolderID)
				if err != nil {
					return nil, err
				}
				dir = path.Join(names...)
				lineages[*doc.FolderID] = dir
			}
			file.RelativeDir = dir
		}
		files = append(files, file)
	}
	return files, nil
}
