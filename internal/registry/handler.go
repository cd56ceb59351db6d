package registry

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meridianhq/meridian/internal/entitlement"
	"github.com/meridianhq/meridian/internal/platform/httpx"
	"github.com/meridianhq/meridian/internal/rbac"
)

// Reloader re-merges plugin contributions after the registry changes. The
// loader satisfies this.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Handler exposes the registry over HTTP.
type Handler struct {
	logger   *slog.Logger
	registry *Registry
	reloader Reloader
	rbac     rbac.Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, reg *Registry, reloader Reloader, rbacMW rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, registry: reg, reloader: reloader, rbac: rbacMW}
}

// MountRoutes registers registry routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAuthenticated)
		r.Get("/", h.list)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require("plugins", "manage"))
		r.Post("/refresh", h.refreshAll)
		r.Post("/{pluginID}/refresh", h.refreshOne)
	})
}

type pluginView struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version"`
	Status  string `json:"status"`
	Enabled bool   `json:"enabled"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	principal, _ := rbac.PrincipalFromContext(r.Context())

	plugins := h.registry.Plugins()
	views := make([]pluginView, len(plugins))
	for i, p := range plugins {
		status := entitlement.StatusDisabled
		if state, ok := h.registry.State(principal.TenantID, p.ID); ok {
			status = state.Status
		}
		views[i] = pluginView{
			ID:      p.ID,
			Name:    p.Name,
			Version: p.Version,
			Status:  string(status),
			Enabled: h.registry.IsEnabled(principal.TenantID, p.ID),
		}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"phase":   h.registry.Phase().String(),
		"plugins": views,
	})
}

func (h *Handler) refreshAll(w http.ResponseWriter, r *http.Request) {
	h.refresh(w, r, "")
}

func (h *Handler) refreshOne(w http.ResponseWriter, r *http.Request) {
	h.refresh(w, r, chi.URLParam(r, "pluginID"))
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request, pluginID string) {
	if err := h.registry.Refresh(r.Context(), pluginID); err != nil {
		h.logger.Error("refresh registry",
			slog.String("plugin_id", pluginID),
			slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Registry Unavailable", "")
		return
	}
	if h.reloader != nil {
		if err := h.reloader.Reload(r.Context()); err != nil {
			h.logger.Error("reload contributions", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"phase": h.registry.Phase().String(),
	})
}
