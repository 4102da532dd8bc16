package permissions

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/nexio-platform/nexio/internal/platform/httpx"
	"github.com/nexio-platform/nexio/internal/shared"
)

// Handler exposes grant management and effective-permission queries.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	evaluator *Evaluator
	validator *validator.Validate
}

// NewHandler constructs a Handler value.
func NewHandler(logger *slog.Logger, service *Service, evaluator *Evaluator) *Handler {
	return &Handler{logger: logger, service: service, evaluator: evaluator, validator: validator.New()}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/grants", h.grant)
	r.Delete("/grants", h.revoke)
	r.Get("/effective", h.effective)
}

type grantPayload struct {
	UserID       int64  `json:"user_id" validate:"required,gt=0"`
	ResourceType string `json:"resource_type" validate:"required"`
	ResourceID   int64  `json:"resource_id" validate:"required,gt=0"`
	Action       string `json:"action" validate:"required"`
}

func (h *Handler) grant(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.service.Grant)
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.service.Revoke)
}

func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, actor shared.AuthContext, req GrantRequest) error) {
	actor, ok := shared.AuthFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var payload grantPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	req, err := parseGrantPayload(payload)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := op(r.Context(), actor, req); err != nil {
		switch {
		case errors.Is(err, ErrInvalidArgument):
			httpx.RespondError(w, httpx.ErrValidation)
		case errors.Is(err, ErrNotAuthorized):
			httpx.RespondError(w, httpx.ErrForbidden)
		default:
			h.logger.Error("grant mutation", slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.OK(w, nil)
}

func (h *Handler) effective(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.AuthFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	resourceType, err := ParseResourceType(r.URL.Query().Get("resource_type"))
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	resourceID, err := strconv.ParseInt(r.URL.Query().Get("resource_id"), 10, 64)
	if err != nil || resourceID <= 0 {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	actions, err := h.evaluator.EffectiveActions(r.Context(), resourceType, resourceID, actor)
	if err != nil {
		if errors.Is(err, ErrInvalidArgument) {
			httpx.RespondError(w, httpx.ErrValidation)
			return
		}
		h.logger.Error("effective permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, map[string]any{
		"resource_type": resourceType,
		"resource_id":   resourceID,
		"actions":       actions,
	})
}

func parseGrantPayload(p grantPayload) (GrantRequest, error) {
	resourceType, err := ParseResourceType(p.ResourceType)
	if err != nil {
		return GrantRequest{}, err
	}
	action, err := ParseAction(p.Action)
	if err != nil {
		return GrantRequest{}, err
	}
	return GrantRequest{
		UserID:       p.UserID,
		ResourceType: resourceType,
		ResourceID:   p.ResourceID,
		Action:       action,
	}, nil
}
