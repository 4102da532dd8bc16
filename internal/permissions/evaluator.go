package permissions

import (
	"context"

	"github.com/nexio-platform/nexio/internal/shared"
)

// maxInheritDepth bounds the ancestor walk during grant inheritance.
const maxInheritDepth = 32

// Store is the persistence surface the evaluator relies on.
type Store interface {
	ResourceMeta(ctx context.Context, resourceType ResourceType, id int64) (ResourceMeta, bool, error)
	GrantsForUser(ctx context.Context, userID int64) ([]Grant, error)
	FolderParent(ctx context.Context, folderID int64) (*int64, bool, error)
}

// Evaluator answers "can user U perform action A on resource R" by combining
// tenant isolation, creator ownership, role defaults, explicit grants, and
// folder-tree inheritance. It has no side effects; "not found" and "not
// permitted" are both a false result, never an error.
type Evaluator struct {
	store Store
	cache *Cache
}

// NewEvaluator constructs an Evaluator instance.
func NewEvaluator(store Store, cache *Cache) *Evaluator {
	return &Evaluator{store: store, cache: cache}
}

type grantKey struct {
	resourceType ResourceType
	resourceID   int64
	action       Action
}

// CheckAccess resolves the effective permission for one (actor, resource,
// action) triple. Only a malformed resource id is an error.
func (e *Evaluator) CheckAccess(ctx context.Context, resourceType ResourceType, resourceID int64, action Action, actor shared.AuthContext) (bool, error) {
	if resourceID <= 0 {
		return false, ErrInvalidArgument
	}
	if resourceType != ResourceDocument && resourceType != ResourceFolder {
		return false, ErrInvalidArgument
	}

	meta, exists, err := e.store.ResourceMeta(ctx, resourceType, resourceID)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}

	// Tenant isolation is absolute for non-elevated callers.
	if meta.TenantID != 0 && meta.TenantID != actor.TenantID && !actor.Elevated {
		return false, nil
	}

	// Creators keep full control of what they made, except destructive or
	// administrative actions on locked resources.
	if meta.CreatedBy == actor.UserID {
		if !(meta.Locked && (action == ActionDelete || action == ActionManagePermissions)) {
			return true, nil
		}
	}

	if RoleAllows(actor.Role, action) {
		return true, nil
	}

	grants, err := e.grantSet(ctx, actor.UserID)
	if err != nil {
		return false, err
	}
	if _, ok := grants[grantKey{resourceType, resourceID, action}]; ok {
		return true, nil
	}

	// Folder grants flow down to nested documents and subfolders. First match
	// wins; the walk is depth-bounded regardless of data integrity.
	start := meta.FolderID
	for depth := 0; start != nil && depth < maxInheritDepth; depth++ {
		folderID := *start
		if _, ok := grants[grantKey{ResourceFolder, folderID, action}]; ok {
			return true, nil
		}
		parent, exists, err := e.store.FolderParent(ctx, folderID)
		if err != nil {
			return false, err
		}
		if !exists {
			break
		}
		start = parent
	}

	return false, nil
}

// EffectiveActions reports every action the actor may perform on the resource.
func (e *Evaluator) EffectiveActions(ctx context.Context, resourceType ResourceType, resourceID int64, actor shared.AuthContext) ([]Action, error) {
	var allowed []Action
	for _, action := range Actions() {
		ok, err := e.CheckAccess(ctx, resourceType, resourceID, action, actor)
		if err != nil {
			return nil, err
		}
		if ok {
			allowed = append(allowed, action)
		}
	}
	return allowed, nil
}

func (e *Evaluator) grantSet(ctx context.Context, userID int64) (map[grantKey]struct{}, error) {
	loader := func(ctx context.Context) ([]Grant, error) {
		return e.store.GrantsForUser(ctx, userID)
	}
	var (
		grants []Grant
		err    error
	)
	if e.cache != nil {
		grants, err = e.cache.Grants(ctx, userID, loader)
	} else {
		grants, err = loader(ctx)
	}
	if err != nil {
		return nil, err
	}
	set := make(map[grantKey]struct{}, len(grants))
	for _, g := range grants {
		set[grantKey{g.ResourceType, g.ResourceID, g.Action}] = struct{}{}
	}
	return set, nil
}
