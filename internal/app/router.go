package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	archivehttp "github.com/nexio-platform/nexio/internal/archive/http"
	"github.com/nexio-platform/nexio/internal/auth"
	"github.com/nexio-platform/nexio/internal/directory"
	"github.com/nexio-platform/nexio/internal/download"
	"github.com/nexio-platform/nexio/internal/observability"
	"github.com/nexio-platform/nexio/internal/permissions"
	"github.com/nexio-platform/nexio/internal/shared"
	"github.com/nexio-platform/nexio/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager

	AuthHandler        *auth.Handler
	DirectoryHandler   *directory.Handler
	PermissionsHandler *permissions.Handler
	ArchiveHandler     *archivehttp.Handler
	DownloadHandler    *download.Handler
	JobHandler         *jobs.Handler

	AuthMiddleware permissions.Middleware
	Metrics        *observability.Metrics
}

// NewRouter constructs the chi.Router with platform defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)

	// Everything below requires an authenticated session.
	r.Group(func(r chi.Router) {
		r.Use(params.AuthMiddleware.RequireAuth)
		if params.DirectoryHandler != nil {
			params.DirectoryHandler.MountRoutes(r)
		}
		if params.PermissionsHandler != nil {
			r.Route("/permissions", params.PermissionsHandler.MountRoutes)
		}
		if params.ArchiveHandler != nil {
			params.ArchiveHandler.MountRoutes(r)
		}
		if params.DownloadHandler != nil {
			params.DownloadHandler.MountRoutes(r)
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
