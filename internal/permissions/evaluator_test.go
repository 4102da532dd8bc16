package permissions

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/nexio-platform/nexio/internal/auth"
	"github.com/nexio-platform/nexio/internal/shared"
)

type stubStore struct {
	meta    map[string]ResourceMeta
	grants  map[int64][]Grant
	parents map[int64]*int64
}

func newStubStore() *stubStore {
	return &stubStore{
		meta:    make(map[string]ResourceMeta),
		grants:  make(map[int64][]Grant),
		parents: make(map[int64]*int64),
	}
}

func metaKey(rt ResourceType, id int64) string {
	return fmt.Sprintf("%s:%d", rt, id)
}

func (s *stubStore) put(rt ResourceType, id int64, meta ResourceMeta) {
	s.meta[metaKey(rt, id)] = meta
}

func (s *stubStore) ResourceMeta(_ context.Context, rt ResourceType, id int64) (ResourceMeta, bool, error) {
	meta, ok := s.meta[metaKey(rt, id)]
	return meta, ok, nil
}

func (s *stubStore) GrantsForUser(_ context.Context, userID int64) ([]Grant, error) {
	return s.grants[userID], nil
}

func (s *stubStore) FolderParent(_ context.Context, folderID int64) (*int64, bool, error) {
	parent, ok := s.parents[folderID]
	return parent, ok, nil
}

func actor(userID, tenantID int64, role string) shared.AuthContext {
	return shared.AuthContext{
		UserID:   userID,
		TenantID: tenantID,
		Role:     role,
		Elevated: role == auth.RoleSuperAdmin,
	}
}

func TestCheckAccessRejectsInvalidResourceID(t *testing.T) {
	eval := NewEvaluator(newStubStore(), nil)
	_, err := eval.CheckAccess(context.Background(), ResourceDocument, 0, ActionView, actor(1, 1, auth.RoleAdmin))
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = eval.CheckAccess(context.Background(), ResourceDocument, -4, ActionView, actor(1, 1, auth.RoleAdmin))
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCheckAccessMissingResourceIsDenied(t *testing.T) {
	eval := NewEvaluator(newStubStore(), nil)
	ok, err := eval.CheckAccess(context.Background(), ResourceDocument, 99, ActionView, actor(1, 1, auth.RoleAdmin))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCheckAccessTenantIsolation(t *testing.T) {
	store := newStubStore()
	store.put(ResourceDocument, 10, ResourceMeta{TenantID: 2, CreatedBy: 7})
	eval := NewEvaluator(store, nil)

	// An admin from another tenant is denied despite role defaults.
	ok, err := eval.CheckAccess(context.Background(), ResourceDocument, 10, ActionView, actor(1, 1, auth.RoleAdmin))
	require.NoError(t, err)
	require.False(t, ok)

	// A super admin crosses tenants.
	ok, err = eval.CheckAccess(context.Background(), ResourceDocument, 10, ActionView, actor(1, 1, auth.RoleSuperAdmin))
	require.NoError(t, err)
	require.True(t, ok)

	// Global resources (tenant 0) are visible to any admin.
	store.put(ResourceDocument, 11, ResourceMeta{TenantID: 0, CreatedBy: 7})
	ok, err = eval.CheckAccess(context.Background(), ResourceDocument, 11, ActionView, actor(1, 1, auth.RoleAdmin))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCheckAccessCreatorBypass(t *testing.T) {
	store := newStubStore()
	store.put(ResourceDocument, 10, ResourceMeta{TenantID: 1, CreatedBy: 5})
	eval := NewEvaluator(store, nil)
	creator := actor(5, 1, auth.RoleStandardUser)

	for _, action := range Actions() {
		ok, err := eval.CheckAccess(context.Background(), ResourceDocument, 10, action, creator)
		require.NoError(t, err)
		require.True(t, ok, "creator should hold %s", action)
	}

	// Locked resources keep the creator out of delete and manage_permissions.
	store.put(ResourceDocument, 11, ResourceMeta{TenantID: 1, CreatedBy: 5, Locked: true})
	ok, err := eval.CheckAccess(context.Background(), ResourceDocument, 11, ActionDelete, creator)
	require.NoError(t, err)
	require.False(t, ok)
	ok, err = eval.CheckAccess(context.Background(), ResourceDocument, 11, ActionManagePermissions, creator)
	require.NoError(t, err)
	require.False(t, ok)
	ok, err = eval.CheckAccess(context.Background(), ResourceDocument, 11, ActionDownload, creator)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCheckAccessRoleDefaults(t *testing.T) {
	store := newStubStore()
	store.put(ResourceDocument, 10, ResourceMeta{TenantID: 1, CreatedBy: 99})
	eval := NewEvaluator(store, nil)

	ok, err := eval.CheckAccess(context.Background(), ResourceDocument, 10, ActionDownload, actor(1, 1, auth.RoleSpecialUser))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = eval.CheckAccess(context.Background(), ResourceDocument, 10, ActionDelete, actor(1, 1, auth.RoleSpecialUser))
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = eval.CheckAccess(context.Background(), ResourceDocument, 10, ActionView, actor(1, 1, auth.RoleStandardUser))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCheckAccessExplicitGrant(t *testing.T) {
	store := newStubStore()
	store.put(ResourceDocument, 10, ResourceMeta{TenantID: 1, CreatedBy: 99})
	store.grants[3] = []Grant{
		{UserID: 3, ResourceType: ResourceDocument, ResourceID: 10, Action: ActionDownload},
	}
	eval := NewEvaluator(store, nil)
	user := actor(3, 1, auth.RoleStandardUser)

	ok, err := eval.CheckAccess(context.Background(), ResourceDocument, 10, ActionDownload, user)
	require.NoError(t, err)
	require.True(t, ok)

	// The grant covers exactly one action.
	ok, err = eval.CheckAccess(context.Background(), ResourceDocument, 10, ActionDelete, user)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCheckAccessFolderInheritance(t *testing.T) {
	store := newStubStore()
	// root(1) -> mid(2) -> leaf(3), document 10 inside leaf.
	root := int64(1)
	mid := int64(2)
	leaf := int64(3)
	store.parents[root] = nil
	store.parents[mid] = &root
	store.parents[leaf] = &mid
	store.put(ResourceDocument, 10, ResourceMeta{TenantID: 1, CreatedBy: 99, FolderID: &leaf})
	store.grants[3] = []Grant{
		{UserID: 3, ResourceType: ResourceFolder, ResourceID: root, Action: ActionView},
	}
	eval := NewEvaluator(store, nil)
	user := actor(3, 1, auth.RoleStandardUser)

	ok, err := eval.CheckAccess(context.Background(), ResourceDocument, 10, ActionView, user)
	require.NoError(t, err)
	require.True(t, ok)

	// No grant anywhere on the chain for download.
	ok, err = eval.CheckAccess(context.Background(), ResourceDocument, 10, ActionDownload, user)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCheckAccessInheritanceWalkIsBounded(t *testing.T) {
	store := newStubStore()
	// Two folders pointing at each other; corrupted data must not hang.
	a := int64(1)
	b := int64(2)
	store.parents[a] = &b
	store.parents[b] = &a
	store.put(ResourceDocument, 10, ResourceMeta{TenantID: 1, CreatedBy: 99, FolderID: &a})
	eval := NewEvaluator(store, nil)

	ok, err := eval.CheckAccess(context.Background(), ResourceDocument, 10, ActionView, actor(3, 1, auth.RoleStandardUser))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGrantBecomesVisibleAfterInvalidation(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := newStubStore()
	store.put(ResourceDocument, 10, ResourceMeta{TenantID: 1, CreatedBy: 99})
	cache := NewCache(client, time.Minute)
	eval := NewEvaluator(store, cache)
	user := actor(3, 1, auth.RoleStandardUser)

	ok, err := eval.CheckAccess(context.Background(), ResourceDocument, 10, ActionDownload, user)
	require.NoError(t, err)
	require.False(t, ok)

	// The grant lands in the store but the cached (empty) set still answers.
	store.grants[3] = []Grant{
		{UserID: 3, ResourceType: ResourceDocument, ResourceID: 10, Action: ActionDownload},
	}
	ok, err = eval.CheckAccess(context.Background(), ResourceDocument, 10, ActionDownload, user)
	require.NoError(t, err)
	require.False(t, ok)

	// Invalidation makes it visible immediately.
	require.NoError(t, cache.Invalidate(context.Background(), 3))
	ok, err = eval.CheckAccess(context.Background(), ResourceDocument, 10, ActionDownload, user)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEffectiveActions(t *testing.T) {
	store := newStubStore()
	store.put(ResourceDocument, 10, ResourceMeta{TenantID: 1, CreatedBy: 99})
	store.grants[3] = []Grant{
		{UserID: 3, ResourceType: ResourceDocument, ResourceID: 10, Action: ActionView},
		{UserID: 3, ResourceType: ResourceDocument, ResourceID: 10, Action: ActionDownload},
	}
	eval := NewEvaluator(store, nil)

	actions, err := eval.EffectiveActions(context.Background(), ResourceDocument, 10, actor(3, 1, auth.RoleStandardUser))
	require.NoError(t, err)
	require.Equal(t, []Action{ActionView, ActionDownload}, actions)
}
