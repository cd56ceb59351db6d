package tenants

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meridianhq/meridian/internal/platform/httpx"
	"github.com/meridianhq/meridian/internal/rbac"
)

// Handler exposes tenant administration endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbacMW rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbacMW}
}

// MountRoutes registers tenant routes. All of them are admin-only.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require("tenants", "manage"))
		r.Post("/", h.create)
		r.Get("/{tenantID}", h.get)
		r.Get("/{tenantID}/subscriptions", h.listSubscriptions)
		r.Put("/{tenantID}/subscriptions/{pluginID}", h.setTier)
	})
}

type createRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	tenant, err := h.service.CreateTenant(r.Context(), req.Name, req.Slug)
	if err != nil {
		if errors.Is(err, ErrSlugTaken) {
			httpx.RespondError(w, httpx.ErrDuplicate)
			return
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	httpx.JSON(w, http.StatusCreated, tenant)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	tenant, err := h.service.GetTenant(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrTenantNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		h.logger.Error("load tenant", slog.Int64("tenant_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tenant)
}

func (h *Handler) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	subs, err := h.service.Subscriptions(r.Context(), id)
	if err != nil {
		h.logger.Error("list subscriptions", slog.Int64("tenant_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if subs == nil {
		subs = []Subscription{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"subscriptions": subs})
}

type setTierRequest struct {
	TierID string `json:"tier_id"`
}

func (h *Handler) setTier(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	pluginID := chi.URLParam(r, "pluginID")

	var req setTierRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.TierID == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "tier_id is required")
		return
	}
	if err := h.service.SetTier(r.Context(), id, pluginID, req.TierID); err != nil {
		switch {
		case errors.Is(err, ErrTenantNotFound):
			httpx.RespondError(w, httpx.ErrNotFound)
		case errors.Is(err, ErrUnknownTier):
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown tier")
		default:
			h.logger.Error("set tier",
				slog.Int64("tenant_id", id),
				slog.String("plugin_id", pluginID),
				slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "assigned"})
}

func (h *Handler) tenantID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "tenantID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid tenant id")
		return 0, false
	}
	return id, true
}
