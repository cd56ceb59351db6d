package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/meridianhq/meridian/internal/auth"
	"github.com/meridianhq/meridian/internal/loader"
	"github.com/meridianhq/meridian/internal/marketplace"
	"github.com/meridianhq/meridian/internal/observability"
	"github.com/meridianhq/meridian/internal/rbac"
	"github.com/meridianhq/meridian/internal/registry"
	"github.com/meridianhq/meridian/internal/shared"
	"github.com/meridianhq/meridian/internal/tenants"
	"github.com/meridianhq/meridian/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	RBACMiddleware rbac.Middleware

	AuthHandler        *auth.Handler
	RegistryHandler    *registry.Handler
	MarketplaceHandler *marketplace.Handler
	TenantsHandler     *tenants.Handler
	NavHandler         *loader.NavHandler
	JobHandler         *jobs.Handler

	Routes  *loader.RouteTable
	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router with portal defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)
	r.Use(params.RBACMiddleware.ResolvePrincipal)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/csrf", func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		token, err := params.CSRFManager.EnsureToken(r.Context(), sess)
		if err != nil {
			params.Logger.Error("issue csrf token", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token":"` + token + `"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)
	if params.RegistryHandler != nil {
		r.Route("/api/plugins", params.RegistryHandler.MountRoutes)
	}
	if params.MarketplaceHandler != nil {
		r.Route("/api/marketplace", params.MarketplaceHandler.MountRoutes)
	}
	if params.TenantsHandler != nil {
		r.Route("/api/tenants", params.TenantsHandler.MountRoutes)
	}
	if params.NavHandler != nil {
		r.Route("/api/nav", params.NavHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	// Plugin-contributed routes live behind the swappable route table so a
	// registry refresh can replace them without rebuilding this router.
	if params.Routes != nil {
		r.Mount("/plugins", http.StripPrefix("/plugins", params.Routes))
	}

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
