package marketplace

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/meridianhq/meridian/internal/rbac"
	"github.com/meridianhq/meridian/internal/shared"
)

func newHandlerRouter(t *testing.T, onUpgrade OnUpgrade) chi.Router {
	t.Helper()
	source := &stubSource{listings: []Listing{blogListing()}}
	svc := newCachedService(t, source, stubAssignments{tierID: "free"})
	handler := NewHandler(nil, svc, rbac.Middleware{}, onUpgrade)

	r := chi.NewRouter()
	r.Route("/marketplace", handler.MountRoutes)
	return r
}

func asTenantUser(req *http.Request) *http.Request {
	principal := rbac.NewPrincipal(7, 1, 3, false, nil)
	return req.WithContext(rbac.ContextWithPrincipal(req.Context(), principal))
}

func TestCatalogEndpoint(t *testing.T) {
	r := newHandlerRouter(t, nil)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, asTenantUser(httptest.NewRequest(http.MethodGet, "/marketplace/", nil)))
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Plugins    []ListingView     `json:"plugins"`
		Pagination shared.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Plugins, 1)
	require.Equal(t, "Blog", body.Plugins[0].Name)
	require.Len(t, body.Plugins[0].Tiers, 3)
	require.Equal(t, 1, body.Pagination.Total)
	require.Equal(t, 1, body.Pagination.Page)
}

func TestCatalogRequiresAuthentication(t *testing.T) {
	r := newHandlerRouter(t, nil)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/marketplace/", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestUpgradeTargetEndpoint(t *testing.T) {
	r := newHandlerRouter(t, nil)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, asTenantUser(httptest.NewRequest(http.MethodGet, "/marketplace/upgrade-target?plugin="+blogID+"&feature=b", nil)))
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Upgrade *TierView `json:"upgrade"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.NotNil(t, body.Upgrade)
	require.Equal(t, "enterprise", body.Upgrade.TierID)
}

func TestUpgradeTargetMissingParams(t *testing.T) {
	r := newHandlerRouter(t, nil)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, asTenantUser(httptest.NewRequest(http.MethodGet, "/marketplace/upgrade-target?plugin="+blogID, nil)))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRequestUpgradeInvokesCallback(t *testing.T) {
	var gotTenant int64
	var gotTier string
	r := newHandlerRouter(t, func(ctx context.Context, tenantID int64, pluginID, tierID string) error {
		gotTenant = tenantID
		gotTier = tierID
		return nil
	})

	payload := `{"plugin_id": "` + blogID + `", "tier_id": "pro"}`
	req := httptest.NewRequest(http.MethodPost, "/marketplace/upgrade", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, asTenantUser(req))
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Equal(t, int64(1), gotTenant)
	require.Equal(t, "pro", gotTier)
}

func TestRequestUpgradeUnknownTier(t *testing.T) {
	called := false
	r := newHandlerRouter(t, func(ctx context.Context, tenantID int64, pluginID, tierID string) error {
		called = true
		return nil
	})

	payload := `{"plugin_id": "` + blogID + `", "tier_id": "platinum"}`
	req := httptest.NewRequest(http.MethodPost, "/marketplace/upgrade", strings.NewReader(payload))

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, asTenantUser(req))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.False(t, called)
}
