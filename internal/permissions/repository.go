package permissions

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists permission grants and resolves resource metadata.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository wrapper.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ResourceMeta loads the evaluator's view of a resource. The boolean reports
// existence; a missing resource is not an error.
func (r *Repository) ResourceMeta(ctx context.Context, resourceType ResourceType, id int64) (ResourceMeta, bool, error) {
	if r == nil || r.pool == nil {
		return ResourceMeta{}, false, fmt.Errorf("permissions: repository not initialised")
	}
	var query string
	switch resourceType {
	case ResourceDocument:
		query = `SELECT COALESCE(azienda_id, 0), creato_da, cartella_id, bloccato FROM documenti WHERE id = $1`
	case ResourceFolder:
		query = `SELECT COALESCE(azienda_id, 0), creato_da, parent_id, FALSE FROM cartelle WHERE id = $1`
	default:
		return ResourceMeta{}, false, ErrInvalidArgument
	}
	var meta ResourceMeta
	err := r.pool.QueryRow(ctx, query, id).Scan(&meta.TenantID, &meta.CreatedBy, &meta.FolderID, &meta.Locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ResourceMeta{}, false, nil
		}
		return ResourceMeta{}, false, err
	}
	return meta, true, nil
}

// GrantsForUser loads every explicit grant held by a user.
func (r *Repository) GrantsForUser(ctx context.Context, userID int64) ([]Grant, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("permissions: repository not initialised")
	}
	const query = `SELECT user_id, resource_type, resource_id, permission_kind, granted_by, granted_at
FROM permission_grants WHERE user_id = $1`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var grants []Grant
	for rows.Next() {
		var g Grant
		if err := rows.Scan(&g.UserID, &g.ResourceType, &g.ResourceID, &g.Action, &g.GrantedBy, &g.GrantedAt); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// Insert stores a grant. Re-granting an existing permission is a no-op, which
// keeps grants additive and idempotent.
func (r *Repository) Insert(ctx context.Context, g Grant) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("permissions: repository not initialised")
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO permission_grants (user_id, resource_type, resource_id, permission_kind, granted_by, granted_at)
VALUES ($1, $2, $3, $4, $5, NOW())`, g.UserID, string(g.ResourceType), g.ResourceID, string(g.Action), g.GrantedBy)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil
		}
		return err
	}
	return nil
}

// Delete removes a grant, reporting whether a row existed.
func (r *Repository) Delete(ctx context.Context, userID int64, resourceType ResourceType, resourceID int64, action Action) (bool, error) {
	if r == nil || r.pool == nil {
		return false, fmt.Errorf("permissions: repository not initialised")
	}
	cmd, err := r.pool.Exec(ctx, `DELETE FROM permission_grants
WHERE user_id = $1 AND resource_type = $2 AND resource_id = $3 AND permission_kind = $4`,
		userID, string(resourceType), resourceID, string(action))
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

// FolderParent resolves a folder's parent id. The boolean reports folder
// existence.
func (r *Repository) FolderParent(ctx context.Context, folderID int64) (*int64, bool, error) {
	if r == nil || r.pool == nil {
		return nil, false, fmt.Errorf("permissions: repository not initialised")
	}
	var parent *int64
	err := r.pool.QueryRow(ctx, `SELECT parent_id FROM cartelle WHERE id = $1`, folderID).Scan(&parent)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return parent, true, nil
}
