package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists documents and folders.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository wrapper.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const documentColumns = `id, COALESCE(azienda_id, 0), cartella_id, nome, file_path, COALESCE(mime_type,''), dimensione, creato_da, bloccato, created_at, updated_at`

// GetDocument loads a document by id.
func (r *Repository) GetDocument(ctx context.Context, id int64) (Document, error) {
	if r == nil || r.pool == nil {
		return Document{}, fmt.Errorf("directory: repository not initialised")
	}
	query := `SELECT ` + documentColumns + ` FROM documenti WHERE id = $1`
	doc, err := scanDocument(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, ErrDocumentNotFound
		}
		return Document{}, err
	}
	return doc, nil
}

// DocumentsByIDs returns metadata for the given ids. Missing ids are simply
// absent from the result; callers treat that as a silent drop.
func (r *Repository) DocumentsByIDs(ctx context.Context, ids []int64) ([]Document, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("directory: repository not initialised")
	}
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + documentColumns + ` FROM documenti WHERE id = ANY($1)`
	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// ListDocuments returns tenant-scoped documents ordered by recency.
func (r *Repository) ListDocuments(ctx context.Context, tenantID int64, elevated bool, limit, offset int) ([]Document, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("directory: repository not initialised")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + documentColumns + ` FROM documenti
WHERE ($2 OR azienda_id = $1)
ORDER BY created_at DESC
LIMIT $3 OFFSET $4`
	rows, err := r.pool.Query(ctx, query, tenantID, elevated, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// DocumentIDsInFolder lists direct child document ids of a folder.
func (r *Repository) DocumentIDsInFolder(ctx context.Context, folderID int64) ([]int64, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("directory: repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id FROM documenti WHERE cartella_id = $1 ORDER BY id`, folderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SubfolderIDs lists direct child folder ids.
func (r *Repository) SubfolderIDs(ctx context.Context, folderID int64) ([]int64, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("directory: repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id FROM cartelle WHERE parent_id = $1 ORDER BY id`, folderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetFolder loads a folder by id.
func (r *Repository) GetFolder(ctx context.Context, id int64) (Folder, error) {
	if r == nil || r.pool == nil {
		return Folder{}, fmt.Errorf("directory: repository not initialised")
	}
	const query = `SELECT id, COALESCE(azienda_id, 0), parent_id, nome, creato_da, created_at FROM cartelle WHERE id = $1`
	var folder Folder
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&folder.ID,
		&folder.TenantID,
		&folder.ParentID,
		&folder.Name,
		&folder.CreatedBy,
		&folder.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Folder{}, ErrFolderNotFound
		}
		return Folder{}, err
	}
	return folder, nil
}

func scanDocument(row pgx.Row) (Document, error) {
	var doc Document
	err := row.Scan(
		&doc.ID,
		&doc.TenantID,
		&doc.FolderID,
		&doc.Name,
		&doc.FilePath,
		&doc.MimeType,
		&doc.Size,
		&doc.CreatedBy,
		&doc.Locked,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	return doc, err
}
