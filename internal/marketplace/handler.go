package marketplace

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meridianhq/meridian/internal/entitlement"
	"github.com/meridianhq/meridian/internal/platform/httpx"
	"github.com/meridianhq/meridian/internal/rbac"
	"github.com/meridianhq/meridian/internal/shared"
)

// OnUpgrade is the upgrade-initiation callback. The actual billing effect
// is owned by an external collaborator; this boundary only hands over the
// requested tier.
type OnUpgrade func(ctx context.Context, tenantID int64, pluginID, tierID string) error

// Handler exposes the marketplace endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	onUpgrade OnUpgrade
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbacMW rbac.Middleware, onUpgrade OnUpgrade) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbacMW, onUpgrade: onUpgrade}
}

// MountRoutes registers marketplace routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAuthenticated)
		r.Get("/", h.catalog)
		r.Get("/upgrade-target", h.upgradeTarget)
		r.Post("/upgrade", h.requestUpgrade)
	})
}

func (h *Handler) catalog(w http.ResponseWriter, r *http.Request) {
	listings, err := h.service.Catalog(r.Context())
	if err != nil {
		h.logger.Error("load marketplace catalog", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Marketplace Unavailable", "")
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	pg := shared.NewPagination(page, perPage, len(listings))

	start := (pg.Page - 1) * pg.PerPage
	if start > len(listings) {
		start = len(listings)
	}
	end := start + pg.PerPage
	if end > len(listings) {
		end = len(listings)
	}

	views := make([]ListingView, 0, end-start)
	for _, l := range listings[start:end] {
		views = append(views, toListingView(l))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"plugins": views, "pagination": pg})
}

func (h *Handler) upgradeTarget(w http.ResponseWriter, r *http.Request) {
	principal, _ := rbac.PrincipalFromContext(r.Context())
	pluginID := r.URL.Query().Get("plugin")
	feature := r.URL.Query().Get("feature")
	if pluginID == "" || feature == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "plugin and feature query parameters are required")
		return
	}

	target, err := h.service.UpgradeTarget(r.Context(), principal.TenantID, pluginID, entitlement.FeatureKey(feature))
	if err != nil {
		if errors.Is(err, ErrUnknownPlugin) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		h.logger.Error("resolve upgrade target", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Marketplace Unavailable", "")
		return
	}
	if target == nil {
		// Plugin has no tiers at all; nothing to offer.
		httpx.JSON(w, http.StatusOK, map[string]any{"upgrade": nil})
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"upgrade": toTierView(*target)})
}

type upgradeRequest struct {
	PluginID string `json:"plugin_id"`
	TierID   string `json:"tier_id"`
}

func (h *Handler) requestUpgrade(w http.ResponseWriter, r *http.Request) {
	principal, _ := rbac.PrincipalFromContext(r.Context())

	var req upgradeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.PluginID == "" || req.TierID == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "plugin_id and tier_id are required")
		return
	}

	// The tier must exist in the plugin's listing before the request is
	// handed to billing.
	tiers, err := h.service.Tiers(r.Context(), req.PluginID)
	if err != nil {
		if errors.Is(err, ErrUnknownPlugin) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		h.logger.Error("load tiers for upgrade", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Marketplace Unavailable", "")
		return
	}
	known := false
	for _, t := range tiers {
		if t.ID == req.TierID {
			known = true
			break
		}
	}
	if !known {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown tier")
		return
	}

	if h.onUpgrade != nil {
		if err := h.onUpgrade(r.Context(), principal.TenantID, req.PluginID, req.TierID); err != nil {
			h.logger.Error("upgrade callback", slog.Any("error", err))
			httpx.Problem(w, http.StatusBadGateway, "Upgrade Failed", "")
			return
		}
	}
	httpx.JSON(w, http.StatusAccepted, map[string]any{
		"status":  "requested",
		"tier_id": req.TierID,
	})
}
