package directory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nexio-platform/nexio/internal/platform/httpx"
	"github.com/nexio-platform/nexio/internal/shared"
)

// Handler exposes read endpoints over documents and folders.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler value.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/documents", h.listDocuments)
	r.Get("/folders/{id}/documents", h.folderDocuments)
}

type documentView struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	MimeType  string `json:"mime_type,omitempty"`
	Size      int64  `json:"size"`
	FolderID  *int64 `json:"folder_id,omitempty"`
	CreatedBy int64  `json:"created_by"`
}

func (h *Handler) listDocuments(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.AuthFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	docs, err := h.service.ListDocuments(r.Context(), actor.TenantID, actor.Elevated, limit, offset)
	if err != nil {
		h.logger.Error("list documents", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, map[string]any{"documents": toViews(docs)})
}

func (h *Handler) folderDocuments(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.AuthFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	folderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || folderID <= 0 {
		httpx.RespondError(w, httpx.ErrInvalidArgument)
		return
	}
	folder, err := h.service.store.GetFolder(r.Context(), folderID)
	if err != nil {
		if errors.Is(err, ErrFolderNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		h.logger.Error("get folder", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if folder.TenantID != 0 && folder.TenantID != actor.TenantID && !actor.Elevated {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	ids, err := h.service.DocumentIDsInFolder(r.Context(), folderID)
	if err != nil {
		h.logger.Error("folder documents", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	docs, err := h.service.DocumentsByIDs(r.Context(), ids)
	if err != nil {
		h.logger.Error("folder documents meta", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, map[string]any{"folder_id": folderID, "documents": toViews(docs)})
}

func toViews(docs []Document) []documentView {
	views := make([]documentView, 0, len(docs))
	for _, doc := range docs {
		views = append(views, documentView{
			ID:        doc.ID,
			Name:      doc.Name,
			MimeType:  doc.MimeType,
			Size:      doc.Size,
			FolderID:  doc.FolderID,
			CreatedBy: doc.CreatedBy,
		})
	}
	return views
}
