package tenants

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
)

func newHandlerRouter(t *testing.T) (chi.Router, *Service) {
	t.Helper()
	svc := NewService(newMemoryRepo(), blogCatalog(), nil)
	handler := NewHandler(nil, svc, rbac.Middleware{Evaluator: rbac.NewEvaluator()})

	r := chi.NewRouter()
	r.Route("/tenants", handler.MountRoutes)
	return r, svc
}

func asAdmin(req *http.Request) *http.Request {
	principal := rbac.NewPrincipal(1, 0, 1, true, nil)
	return req.WithContext(rbac.ContextWithPrincipal(req.Context(), principal))
}

func asOperator(req *http.Request) *http.Request {
	grants := []rbac.Permission{{Resource: "plugins", Action: "read"}}
	principal := rbac.NewPrincipal(2, 1, 3, false, grants)
	return req.WithContext(rbac.ContextWithPrincipal(req.Context(), principal))
}

func TestCreateTenantEndpoint(t *testing.T) {
	r, _ := newHandlerRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/tenants/", strings.NewReader(`{"name": "Acme", "slug": "acme"}`))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, asAdmin(req))
	require.Equal(t, http.StatusCreated, rr.Code)

	var tenant Tenant
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &tenant))
	require.Equal(t, "acme", tenant.Slug)
	require.True(t, tenant.IsActive)
}

func TestCreateTenantDuplicateSlugConflicts(t *testing.T) {
	r, _ := newHandlerRouter(t)

	for i, want := range []int{http.StatusCreated, http.StatusConflict} {
		req := httptest.NewRequest(http.MethodPost, "/tenants/", strings.NewReader(`{"name": "Acme", "slug": "acme"}`))
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, asAdmin(req))
		require.Equal(t, want, rr.Code, "request %d", i)
	}
}

func TestTenantRoutesRequireManagePermission(t *testing.T) {
	r, _ := newHandlerRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/tenants/1/subscriptions", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, asOperator(req))
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestSetTierEndpoint(t *testing.T) {
	r, svc := newHandlerRouter(t)
	tenant, err := svc.CreateTenant(context.Background(), "Acme", "acme")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, "/tenants/1/subscriptions/"+blogID, strings.NewReader(`{"tier_id": "pro"}`))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, asAdmin(req))
	require.Equal(t, http.StatusOK, rr.Code)

	tier, err := svc.CurrentTierID(context.Background(), tenant.ID, blogID)
	require.NoError(t, err)
	require.Equal(t, "pro", tier)
}

func TestSetTierUnknownTenant(t *testing.T) {
	r, _ := newHandlerRouter(t)

	req := httptest.NewRequest(http.MethodPut, "/tenants/42/subscriptions/"+blogID, strings.NewReader(`{"tier_id": "pro"}`))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, asAdmin(req))
	require.Equal(t, http.StatusNotFound, rr.Code)
}
