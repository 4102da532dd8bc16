package permissions

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/nexio-platform/nexio/internal/shared"
)

// MutationStore is the write surface for grant management.
type MutationStore interface {
	Store
	Insert(ctx context.Context, g Grant) error
	Delete(ctx context.Context, userID int64, resourceType ResourceType, resourceID int64, action Action) (bool, error)
}

// Service orchestrates grant mutations: authorization, persistence, cache
// invalidation, and auditing.
type Service struct {
	store     MutationStore
	evaluator *Evaluator
	cache     *Cache
	audit     *shared.AuditLogger
	logger    *slog.Logger
}

// NewService constructs a Service instance.
func NewService(store MutationStore, evaluator *Evaluator, cache *Cache, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{store: store, evaluator: evaluator, cache: cache, audit: audit, logger: logger}
}

// GrantRequest describes a grant or revoke operation.
type GrantRequest struct {
	UserID       int64
	ResourceType ResourceType
	ResourceID   int64
	Action       Action
}

// Grant adds an explicit permission. The actor must hold manage_permissions on
// the target resource. The cache entry for the grantee is invalidated before
// the call returns.
func (s *Service) Grant(ctx context.Context, actor shared.AuthContext, req GrantRequest) error {
	if req.UserID <= 0 || req.ResourceID <= 0 {
		return ErrInvalidArgument
	}
	ok, err := s.evaluator.CheckAccess(ctx, req.ResourceType, req.ResourceID, ActionManagePermissions, actor)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAuthorized
	}
	grant := Grant{
		UserID:       req.UserID,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		Action:       req.Action,
		GrantedBy:    actor.UserID,
	}
	if err := s.store.Insert(ctx, grant); err != nil {
		return err
	}
	if err := s.cache.Invalidate(ctx, req.UserID); err != nil {
		return err
	}
	s.recordAudit(ctx, actor, shared.AuditPermissionGrant, req)
	return nil
}

// Revoke removes an explicit permission under the same authorization rule as
// Grant. Revoking an absent grant is not an error.
func (s *Service) Revoke(ctx context.Context, actor shared.AuthContext, req GrantRequest) error {
	if req.UserID <= 0 || req.ResourceID <= 0 {
		return ErrInvalidArgument
	}
	ok, err := s.evaluator.CheckAccess(ctx, req.ResourceType, req.ResourceID, ActionManagePermissions, actor)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAuthorized
	}
	removed, err := s.store.Delete(ctx, req.UserID, req.ResourceType, req.ResourceID, req.Action)
	if err != nil {
		return err
	}
	if err := s.cache.Invalidate(ctx, req.UserID); err != nil {
		return err
	}
	if removed {
		s.recordAudit(ctx, actor, shared.AuditPermissionRevoke, req)
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actor shared.AuthContext, action string, req GrantRequest) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.UserID,
		TenantID: actor.TenantID,
		Action:   action,
		Entity:   string(req.ResourceType),
		EntityID: strconv.FormatInt(req.ResourceID, 10),
		Meta: map[string]any{
			"grantee": req.UserID,
			"kind":    string(req.Action),
		},
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("audit grant mutation", slog.Any("error", err))
	}
}
