package archivehttp

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/nexio-platform/nexio/internal/archive"
	"github.com/nexio-platform/nexio/internal/download"
	"github.com/nexio-platform/nexio/internal/platform/httpx"
	"github.com/nexio-platform/nexio/internal/shared"
)

// Handler wires HTTP endpoints for requesting archives and polling progress.
type Handler struct {
	logger    *slog.Logger
	service   *archive.Service
	tokens    *download.Store
	validator *validator.Validate
}

// NewHandler constructs a Handler value.
func NewHandler(logger *slog.Logger, service *archive.Service, tokens *download.Store) *Handler {
	return &Handler{logger: logger, service: service, tokens: tokens, validator: validator.New()}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/download-multiple", h.create)
	r.Get("/download-progress", h.progress)
}

type createPayload struct {
	DocumentIDs       []int64  `json:"document_ids" validate:"omitempty,dive,gt=0"`
	FolderIDs         []int64  `json:"folder_ids" validate:"omitempty,dive,gt=0"`
	IncludeSubfolders bool     `json:"include_subfolders"`
	PreserveStructure bool     `json:"preserve_structure"`
	IncludeMetadata   bool     `json:"include_metadata"`
	CompressionLevel  *int     `json:"compression_level" validate:"omitempty,gte=0,lte=9"`
	MaxFileSize       int64    `json:"max_file_size" validate:"omitempty,gt=0"`
	ExcludeTypes      []string `json:"exclude_types"`
	FilenamePrefix    string   `json:"filename_prefix" validate:"omitempty,max=100"`
}

type createResponse struct {
	SessionID      string `json:"session_id"`
	ArchiveID      string `json:"archive_id"`
	Status         string `json:"status"`
	TotalDocuments int    `json:"total_documents"`
	TotalSize      int64  `json:"total_size"`
	ProgressURL    string `json:"progress_url"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.AuthFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var payload createPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}

	level := 6
	if payload.CompressionLevel != nil {
		level = *payload.CompressionLevel
	}
	req := archive.CreateRequest{
		DocumentIDs: payload.DocumentIDs,
		FolderIDs:   payload.FolderIDs,
		Options: archive.Options{
			IncludeSubfolders: payload.IncludeSubfolders,
			PreserveStructure: payload.PreserveStructure,
			IncludeMetadata:   payload.IncludeMetadata,
			CompressionLevel:  level,
			MaxFileSize:       payload.MaxFileSize,
			ExcludeTypes:      payload.ExcludeTypes,
			FilenamePrefix:    strings.TrimSpace(payload.FilenamePrefix),
		},
	}

	job, err := h.service.Create(r.Context(), actor, req)
	if err != nil {
		switch {
		case errors.Is(err, archive.ErrInvalidRequest):
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		case errors.Is(err, archive.ErrNoValidDocuments):
			httpx.Problem(w, http.StatusBadRequest, "No Valid Documents",
				"none of the selected documents can be archived")
		default:
			h.logger.Error("create archive job", slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}

	httpx.Created(w, createResponse{
		SessionID:      job.SessionID,
		ArchiveID:      job.ArchiveID,
		Status:         string(job.Status),
		TotalDocuments: job.TotalDocuments,
		TotalSize:      job.TotalSize,
		ProgressURL:    "/download-progress?session_id=" + job.SessionID,
	})
}

type progressResponse struct {
	SessionID              string        `json:"session_id"`
	Status                 string        `json:"status"`
	RequestedDocuments     int           `json:"requested_documents"`
	TotalDocuments         int           `json:"total_documents"`
	FilesProcessed         int           `json:"files_processed"`
	ProgressPercent        int           `json:"progress_percent"`
	EstimatedTimeRemaining *float64      `json:"estimated_time_remaining,omitempty"`
	ErrorMessage           string        `json:"error_message,omitempty"`
	Download               *downloadInfo `json:"download,omitempty"`
}

type downloadInfo struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *Handler) progress(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.AuthFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}

	snap, err := h.service.Snapshot(r.Context(), actor, sessionID)
	if err != nil {
		if errors.Is(err, archive.ErrJobNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		h.logger.Error("archive progress", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	resp := progressResponse{
		SessionID:              snap.SessionID,
		Status:                 string(snap.Status),
		RequestedDocuments:     snap.RequestedDocuments,
		TotalDocuments:         snap.TotalDocuments,
		FilesProcessed:         snap.FilesProcessed,
		ProgressPercent:        snap.ProgressPercent,
		EstimatedTimeRemaining: snap.EstimatedTimeRemaining,
		ErrorMessage:           snap.ErrorMessage,
	}
	if snap.Status == archive.StatusCompleted {
		token, ok, err := h.tokens.LiveToken(r.Context(), snap.ArchiveID)
		if err != nil {
			h.logger.Error("load download token", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		if ok {
			resp.Download = &downloadInfo{
				URL:       "/download-zip?token=" + token.Value,
				ExpiresAt: token.ExpiresAt,
			}
		}
	}
	httpx.OK(w, resp)
}
