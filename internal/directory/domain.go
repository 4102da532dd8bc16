package directory

import (
	"errors"
	"path/filepath"
	"strings"
	"time"
)

// MaxFolderDepth bounds every walk over the cartelle tree. The tree invariant
// says there are no cycles, but expansion and lineage reconstruction must
// terminate even on corrupted data.
const MaxFolderDepth = 32

// Document is a stored file row from documenti.
type Document struct {
	ID        int64
	TenantID  int64 // azienda_id; 0 means global
	FolderID  *int64
	Name      string
	FilePath  string
	MimeType  string
	Size      int64
	CreatedBy int64
	Locked    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Extension returns the lowercase file extension without the leading dot.
func (d Document) Extension() string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(d.Name)), ".")
}

// Folder is a row from cartelle. Folders nest through ParentID and share their
// azienda_id with everything beneath them.
type Folder struct {
	ID        int64
	TenantID  int64
	ParentID  *int64
	Name      string
	CreatedBy int64
	CreatedAt time.Time
}

// File describes a document resolved for archiving: where its bytes live and
// where it should sit inside the zip.
type File struct {
	DocumentID  int64
	Name        string
	DiskPath    string
	Size        int64
	RelativeDir string
}

var (
	ErrDocumentNotFound = errors.New("directory: document not found")
	ErrFolderNotFound   = errors.New("directory: folder not found")
)
