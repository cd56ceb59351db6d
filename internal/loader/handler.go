package loader

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meridianhq/meridian/internal/entitlement"
	"github.com/meridianhq/meridian/internal/platform/httpx"
	"github.com/meridianhq/meridian/internal/rbac"
)

// NavHandler serves the merged, entitlement-filtered navigation model.
type NavHandler struct {
	nav  *Navigation
	gate *entitlement.Gate
	rbac rbac.Middleware
}

// NewNavHandler builds a NavHandler instance.
func NewNavHandler(nav *Navigation, gate *entitlement.Gate, rbacMW rbac.Middleware) *NavHandler {
	return &NavHandler{nav: nav, gate: gate, rbac: rbacMW}
}

// MountRoutes registers navigation routes.
func (h *NavHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAuthenticated)
		r.Get("/", h.menu)
	})
}

func (h *NavHandler) menu(w http.ResponseWriter, r *http.Request) {
	principal, _ := rbac.PrincipalFromContext(r.Context())
	entries := h.nav.Visible(r.Context(), h.gate, principal, principal.TenantID)
	httpx.JSON(w, http.StatusOK, map[string]any{"menu": entries})
}
