package download

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nexio-platform/nexio/internal/observability"
	"github.com/nexio-platform/nexio/internal/platform/httpx"
	"github.com/nexio-platform/nexio/internal/shared"
)

// ArchiveSource resolves a completed archive's artefact on disk.
type ArchiveSource interface {
	ArchiveArtifact(ctx context.Context, archiveID string) (path string, size int64, filename string, err error)
}

// Handler streams completed archives against single-use tokens.
type Handler struct {
	logger   *slog.Logger
	store    *Store
	archives ArchiveSource
	audit    *shared.AuditLogger
	metrics  *observability.Metrics
}

// NewHandler constructs a Handler value.
func NewHandler(logger *slog.Logger, store *Store, archives ArchiveSource, audit *shared.AuditLogger, metrics *observability.Metrics) *Handler {
	return &Handler{logger: logger, store: store, archives: archives, audit: audit, metrics: metrics}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/download-zip", h.download)
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.AuthFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	value := strings.TrimSpace(r.URL.Query().Get("token"))
	if value == "" {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}

	token, err := h.store.Redeem(r.Context(), value, actor)
	if err != nil {
		switch {
		case errors.Is(err, ErrTokenNotFound):
			h.metrics.TokenRedeemed("not_found")
			httpx.RespondError(w, httpx.ErrNotFound)
		case errors.Is(err, ErrTokenExpired):
			h.metrics.TokenRedeemed("expired")
			httpx.RespondError(w, httpx.ErrExpired)
		case errors.Is(err, ErrTokenUsed):
			h.metrics.TokenRedeemed("used")
			httpx.RespondError(w, httpx.ErrExpired)
		default:
			h.logger.Error("redeem token", slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}
	h.metrics.TokenRedeemed("ok")

	path, size, filename, err := h.archives.ArchiveArtifact(r.Context(), token.ArchiveID)
	if err != nil {
		h.logger.Error("resolve archive artefact", slog.String("archive_id", token.ArchiveID), slog.Any("error", err))
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		h.logger.Error("open archive artefact", slog.String("archive_id", token.ArchiveID), slog.Any("error", err))
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if info.Size() != size {
		h.logger.Warn("archive size drifted from record",
			slog.String("archive_id", token.ArchiveID),
			slog.Int64("recorded", size),
			slog.Int64("on_disk", info.Size()))
	}

	h.recordAudit(r.Context(), actor, token)

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	// ServeContent handles Range and conditional requests.
	http.ServeContent(w, r, filename, info.ModTime(), f)
}

func (h *Handler) recordAudit(ctx context.Context, actor shared.AuthContext, token Token) {
	if h.audit == nil {
		return
	}
	err := h.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.UserID,
		TenantID: actor.TenantID,
		Action:   shared.AuditTokenRedeem,
		Entity:   "archive",
		EntityID: token.ArchiveID,
		Meta:     map[string]any{"issued_to": token.UserID},
	})
	if err != nil && h.logger != nil {
		h.logger.Warn("audit token redeem", slog.Any("error", err))
	}
}
