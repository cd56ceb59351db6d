package loader

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridianhq/meridian/internal/entitlement"
	"github.com/meridianhq/meridian/internal/rbac"
)

const (
	blogID = "550e8400-e29b-41d4-a716-446655440001"
	shopID = "550e8400-e29b-41d4-a716-446655440002"
	crmID  = "550e8400-e29b-41d4-a716-446655440003"
)

type stubCatalog struct {
	ready   bool
	plugins []entitlement.Plugin
	enabled map[string]bool
}

func (s *stubCatalog) Ready() bool                        { return s.ready }
func (s *stubCatalog) Plugins() []entitlement.Plugin      { return s.plugins }
func (s *stubCatalog) EnabledForAny(pluginID string) bool { return s.enabled[pluginID] }

func (s *stubCatalog) IsEnabled(tenantID int64, pluginID string) bool {
	return s.enabled[pluginID]
}

type stubBundle struct {
	id       string
	routes   []RouteDef
	menu     []MenuEntry
	routeErr error
	menuErr  error
}

func (b *stubBundle) PluginID() string { return b.id }

func (b *stubBundle) Routes() ([]RouteDef, error) {
	if b.routeErr != nil {
		return nil, b.routeErr
	}
	return b.routes, nil
}

func (b *stubBundle) Menu() ([]MenuEntry, error) {
	if b.menuErr != nil {
		return nil, b.menuErr
	}
	return b.menu, nil
}

type stubUpgrades struct {
	tier *entitlement.Tier
}

func (s stubUpgrades) UpgradeTarget(ctx context.Context, tenantID int64, pluginID string, feature entitlement.FeatureKey) (*entitlement.Tier, error) {
	return s.tier, nil
}

type stubTierSource struct {
	tier *entitlement.Tier
}

func (s stubTierSource) CurrentTier(ctx context.Context, tenantID int64, pluginID string) (*entitlement.Tier, error) {
	return s.tier, nil
}

func okHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}
}

func newCatalog(enabled map[string]bool) *stubCatalog {
	plugins := []entitlement.Plugin{
		{ID: blogID, Name: "Blog", Version: "1.0.0"},
		{ID: shopID, Name: "Shop", Version: "2.0.0"},
		{ID: crmID, Name: "CRM", Version: "0.3.0"},
	}
	return &stubCatalog{ready: true, plugins: plugins, enabled: enabled}
}

func newLoader(catalog *stubCatalog, tiers entitlement.TierSource, upgrades UpgradeSource, bundles ...Bundle) (*Loader, *RouteTable, *Navigation) {
	gate := entitlement.NewGate(catalog, rbac.NewEvaluator(), tiers, nil, nil)
	routes := NewRouteTable()
	nav := NewNavigation()
	l := New(NewStaticSource(bundles...), catalog, gate, upgrades, routes, nav, nil, nil)
	return l, routes, nav
}

func blogBundle() *stubBundle {
	return &stubBundle{
		id: blogID,
		routes: []RouteDef{
			{Method: http.MethodGet, Pattern: "/posts", Resource: "blog", Action: "read", Handler: okHandler("posts")},
		},
		menu: []MenuEntry{
			{Title: "Blog", Path: "/plugins/" + blogID + "/posts", Resource: "blog", Action: "read", Order: 10},
		},
	}
}

func shopBundle() *stubBundle {
	return &stubBundle{
		id: shopID,
		routes: []RouteDef{
			{Method: http.MethodGet, Pattern: "/orders", Resource: "shop", Action: "read", Handler: okHandler("orders")},
		},
		menu: []MenuEntry{
			{Title: "Shop", Path: "/plugins/" + shopID + "/orders", Resource: "shop", Action: "read", Order: 20},
		},
	}
}

func authedRequest(t *testing.T, method, target string, grants ...rbac.Permission) *http.Request {
	t.Helper()
	principal := rbac.NewPrincipal(7, 1, 3, false, grants)
	req := httptest.NewRequest(method, target, nil)
	return req.WithContext(rbac.ContextWithPrincipal(req.Context(), principal))
}

func TestLoadRequiresReadyRegistry(t *testing.T) {
	catalog := newCatalog(map[string]bool{blogID: true})
	catalog.ready = false
	l, _, _ := newLoader(catalog, nil, nil, blogBundle())

	_, err := l.Load(context.Background(), Options{})
	require.ErrorIs(t, err, ErrRegistryNotReady)
	require.False(t, l.Loaded())
}

func TestLoadMergesEnabledPluginsOnly(t *testing.T) {
	catalog := newCatalog(map[string]bool{blogID: true, shopID: false})
	l, routes, _ := newLoader(catalog, nil, nil, blogBundle(), shopBundle())

	report, err := l.Load(context.Background(), Options{})
	require.NoError(t, err)
	require.Equal(t, []string{blogID}, report.Loaded)
	require.Contains(t, report.Skipped, shopID)
	require.Contains(t, report.Skipped, crmID)
	require.True(t, l.Loaded())

	rr := httptest.NewRecorder()
	routes.ServeHTTP(rr, authedRequest(t, http.MethodGet, "/"+blogID+"/posts", rbac.Permission{Resource: "blog", Action: "read"}))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "posts", rr.Body.String())

	rr = httptest.NewRecorder()
	routes.ServeHTTP(rr, authedRequest(t, http.MethodGet, "/"+shopID+"/orders", rbac.Permission{Resource: "shop", Action: "read"}))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestLoadIsIdempotent(t *testing.T) {
	catalog := newCatalog(map[string]bool{blogID: true, shopID: true})
	l, routes, nav := newLoader(catalog, nil, nil, blogBundle(), shopBundle())

	first, err := l.Load(context.Background(), Options{})
	require.NoError(t, err)
	second, err := l.Load(context.Background(), Options{})
	require.NoError(t, err)
	require.Equal(t, first.Loaded, second.Loaded)

	// Menu entries do not accumulate across loads.
	require.Len(t, nav.Entries(), 2)

	rr := httptest.NewRecorder()
	routes.ServeHTTP(rr, authedRequest(t, http.MethodGet, "/"+blogID+"/posts", rbac.Permission{Resource: "blog", Action: "read"}))
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestLoadReflectsStateChanges(t *testing.T) {
	catalog := newCatalog(map[string]bool{blogID: true, shopID: true})
	l, routes, nav := newLoader(catalog, nil, nil, blogBundle(), shopBundle())

	_, err := l.Load(context.Background(), Options{})
	require.NoError(t, err)
	require.Len(t, nav.Entries(), 2)

	// Shop gets disabled; the next merge replaces its contribution.
	catalog.enabled[shopID] = false
	report, err := l.Load(context.Background(), Options{})
	require.NoError(t, err)
	require.Equal(t, []string{blogID}, report.Loaded)
	require.Len(t, nav.Entries(), 1)

	rr := httptest.NewRecorder()
	routes.ServeHTTP(rr, authedRequest(t, http.MethodGet, "/"+shopID+"/orders", rbac.Permission{Resource: "shop", Action: "read"}))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestLoadIsolatesFailingContribution(t *testing.T) {
	broken := &stubBundle{id: shopID, routeErr: errors.New("bad manifest")}
	catalog := newCatalog(map[string]bool{blogID: true, shopID: true})
	l, routes, _ := newLoader(catalog, nil, nil, blogBundle(), broken)

	report, err := l.Load(context.Background(), Options{})
	require.NoError(t, err)
	require.Equal(t, []string{blogID}, report.Loaded)
	require.Contains(t, report.Errors, shopID)

	rr := httptest.NewRecorder()
	routes.ServeHTTP(rr, authedRequest(t, http.MethodGet, "/"+blogID+"/posts", rbac.Permission{Resource: "blog", Action: "read"}))
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestLoadRejectsMalformedRouteDefs(t *testing.T) {
	malformed := &stubBundle{
		id: shopID,
		routes: []RouteDef{
			{Method: "YEET", Pattern: "/orders", Handler: okHandler("x")},
		},
	}
	catalog := newCatalog(map[string]bool{shopID: true})
	l, _, _ := newLoader(catalog, nil, nil, malformed)

	report, err := l.Load(context.Background(), Options{})
	require.NoError(t, err)
	require.Contains(t, report.Errors, shopID)
}

func TestGuardDeniesWithoutPrincipal(t *testing.T) {
	catalog := newCatalog(map[string]bool{blogID: true})
	l, routes, _ := newLoader(catalog, nil, nil, blogBundle())
	_, err := l.Load(context.Background(), Options{})
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	routes.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/"+blogID+"/posts", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestGuardDeniesWithoutPermission(t *testing.T) {
	catalog := newCatalog(map[string]bool{blogID: true})
	l, routes, _ := newLoader(catalog, nil, nil, blogBundle())
	_, err := l.Load(context.Background(), Options{})
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	routes.ServeHTTP(rr, authedRequest(t, http.MethodGet, "/"+blogID+"/posts"))
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestGuardSurfacesUpgradeTarget(t *testing.T) {
	gated := &stubBundle{
		id: blogID,
		routes: []RouteDef{
			{Method: http.MethodGet, Pattern: "/stats", Resource: "blog", Action: "read", Feature: "blog.advanced-stats", Handler: okHandler("stats")},
		},
	}
	catalog := newCatalog(map[string]bool{blogID: true})
	pro := &entitlement.Tier{ID: "pro", Name: "Pro", Position: 1, Features: []entitlement.FeatureKey{"blog.advanced-stats"}}
	free := &entitlement.Tier{ID: "free", Name: "Free", Position: 0}
	l, routes, _ := newLoader(catalog, stubTierSource{tier: free}, stubUpgrades{tier: pro}, gated)
	_, err := l.Load(context.Background(), Options{})
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	routes.ServeHTTP(rr, authedRequest(t, http.MethodGet, "/"+blogID+"/stats", rbac.Permission{Resource: "blog", Action: "read"}))
	require.Equal(t, http.StatusForbidden, rr.Code)

	var body struct {
		Upgrade struct {
			TierID   string `json:"tier_id"`
			TierName string `json:"tier_name"`
		} `json:"upgrade"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "pro", body.Upgrade.TierID)
	require.Equal(t, "Pro", body.Upgrade.TierName)
}

func TestLazyLoadBuildsOnFirstRequest(t *testing.T) {
	built := 0
	lazy := &stubBundle{
		id: blogID,
		routes: []RouteDef{
			{Method: http.MethodGet, Pattern: "/posts", Resource: "blog", Action: "read", Handler: func(w http.ResponseWriter, r *http.Request) {
				built++
				_, _ = w.Write([]byte("lazy"))
			}},
		},
	}
	catalog := newCatalog(map[string]bool{blogID: true})
	l, routes, _ := newLoader(catalog, nil, nil, lazy)

	report, err := l.Load(context.Background(), Options{Lazy: true})
	require.NoError(t, err)
	require.Equal(t, []string{blogID}, report.Loaded)
	require.Zero(t, built)

	rr := httptest.NewRecorder()
	routes.ServeHTTP(rr, authedRequest(t, http.MethodGet, "/"+blogID+"/posts", rbac.Permission{Resource: "blog", Action: "read"}))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 1, built)
}

func TestNavigationVisibleFiltersThroughGate(t *testing.T) {
	catalog := newCatalog(map[string]bool{blogID: true, shopID: true})
	l, _, nav := newLoader(catalog, nil, nil, blogBundle(), shopBundle())
	_, err := l.Load(context.Background(), Options{})
	require.NoError(t, err)

	gate := entitlement.NewGate(catalog, rbac.NewEvaluator(), nil, nil, nil)
	reader := rbac.NewPrincipal(7, 1, 3, false, []rbac.Permission{{Resource: "blog", Action: "read"}})

	visible := nav.Visible(context.Background(), gate, reader, 1)
	require.Len(t, visible, 1)
	require.Equal(t, "Blog", visible[0].Title)

	admin := rbac.NewPrincipal(1, 1, 1, true, nil)
	visible = nav.Visible(context.Background(), gate, admin, 1)
	require.Len(t, visible, 2)
}
