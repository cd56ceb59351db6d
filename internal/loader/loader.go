package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/meridianhq/meridian/internal/entitlement"
	"github.com/meridianhq/meridian/internal/observability"
	"github.com/meridianhq/meridian/internal/platform/httpx"
	"github.com/meridianhq/meridian/internal/rbac"
)

// ErrRegistryNotReady indicates Load was called before the plugin registry
// finished initializing.
var ErrRegistryNotReady = errors.New("loader: plugin registry not ready")

// PluginCatalog is the slice of the registry the loader needs.
type PluginCatalog interface {
	Ready() bool
	Plugins() []entitlement.Plugin
	EnabledForAny(pluginID string) bool
}

// UpgradeSource resolves the tier a denied tenant should be offered.
// Satisfied by the marketplace service.
type UpgradeSource interface {
	UpgradeTarget(ctx context.Context, tenantID int64, pluginID string, feature entitlement.FeatureKey) (*entitlement.Tier, error)
}

// Options tunes one Load call.
type Options struct {
	// Source overrides the loader's configured bundle source.
	Source Source
	// Lazy defers building each plugin's sub-router until its first
	// request. Contribution failures then surface as 503s on that
	// plugin's routes instead of entries in the load report.
	Lazy bool
}

// LoadReport summarizes one merge.
type LoadReport struct {
	Loaded  []string
	Skipped []string
	Errors  map[string]error
}

// Loader merges plugin contributions into the route table and navigation
// model. Loads are serialized; each one replaces the previous contribution
// of every plugin it covers, so repeated loads never duplicate entries.
type Loader struct {
	source  Source
	catalog PluginCatalog
	gate    *entitlement.Gate
	upgrade UpgradeSource
	routes  *RouteTable
	nav     *Navigation
	logger  *slog.Logger
	metrics *observability.Metrics

	mu       sync.Mutex
	loaded   bool
	lastOpts Options
}

// New constructs a Loader publishing into the given route table and
// navigation model.
func New(source Source, catalog PluginCatalog, gate *entitlement.Gate, upgrade UpgradeSource, routes *RouteTable, nav *Navigation, logger *slog.Logger, metrics *observability.Metrics) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		source:  source,
		catalog: catalog,
		gate:    gate,
		upgrade: upgrade,
		routes:  routes,
		nav:     nav,
		logger:  logger,
		metrics: metrics,
	}
}

// Loaded reports whether at least one merge completed.
func (l *Loader) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded
}

// Load resolves contributions for every plugin the registry knows and has
// enabled somewhere, then publishes the merged route table and menu in one
// swap. One plugin failing to resolve excludes only that plugin; the rest
// of the merge proceeds.
func (l *Loader) Load(ctx context.Context, opts Options) (LoadReport, error) {
	if !l.catalog.Ready() {
		return LoadReport{}, ErrRegistryNotReady
	}
	source := l.source
	if opts.Source != nil {
		source = opts.Source
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastOpts = opts

	bundles, err := source.Bundles(ctx)
	if err != nil {
		return LoadReport{}, fmt.Errorf("loader: enumerate bundles: %w", err)
	}
	byID := make(map[string]Bundle, len(bundles))
	for _, b := range bundles {
		byID[b.PluginID()] = b
	}

	report := LoadReport{Errors: make(map[string]error)}
	mux := chi.NewRouter()
	var menu []MenuEntry

	for _, plugin := range l.catalog.Plugins() {
		if !l.catalog.EnabledForAny(plugin.ID) {
			report.Skipped = append(report.Skipped, plugin.ID)
			continue
		}
		bundle, ok := byID[plugin.ID]
		if !ok {
			report.Skipped = append(report.Skipped, plugin.ID)
			continue
		}
		entries, err := l.mergeBundle(mux, bundle, opts.Lazy)
		if err != nil {
			l.logger.Warn("plugin contribution failed, excluding plugin",
				slog.String("plugin_id", plugin.ID), slog.Any("error", err))
			report.Errors[plugin.ID] = err
			continue
		}
		menu = append(menu, entries...)
		report.Loaded = append(report.Loaded, plugin.ID)
	}
	sort.Strings(report.Loaded)
	sort.Strings(report.Skipped)

	l.routes.publish(mux)
	l.nav.publish(menu)
	l.loaded = true
	if l.metrics != nil {
		l.metrics.LoaderMerge(len(report.Errors))
	}
	l.logger.Info("plugin contributions merged",
		slog.Int("loaded", len(report.Loaded)),
		slog.Int("skipped", len(report.Skipped)),
		slog.Int("failed", len(report.Errors)))
	return report, nil
}

// Reload repeats the previous merge with the same options, picking up
// registry state changes.
func (l *Loader) Reload(ctx context.Context) error {
	l.mu.Lock()
	opts := l.lastOpts
	l.mu.Unlock()
	_, err := l.Load(ctx, opts)
	return err
}

// mergeBundle mounts one bundle's routes under the plugin id and returns its
// menu entries. Route resolution errors leave the shared mux untouched
// because each plugin gets its own sub-router.
func (l *Loader) mergeBundle(mux *chi.Mux, bundle Bundle, lazy bool) ([]MenuEntry, error) {
	menu, err := bundle.Menu()
	if err != nil {
		return nil, fmt.Errorf("resolve menu: %w", err)
	}
	for i := range menu {
		menu[i].PluginID = bundle.PluginID()
	}

	mount := "/" + bundle.PluginID()
	if lazy {
		lazySub := &lazyRouter{build: func() (http.Handler, error) { return l.buildSubRouter(bundle) }, logger: l.logger}
		mux.Mount(mount, lazySub)
		return menu, nil
	}
	sub, err := l.buildSubRouter(bundle)
	if err != nil {
		return nil, err
	}
	mux.Mount(mount, sub)
	return menu, nil
}

func (l *Loader) buildSubRouter(bundle Bundle) (handler http.Handler, err error) {
	routes, err := bundle.Routes()
	if err != nil {
		return nil, fmt.Errorf("resolve routes: %w", err)
	}
	// chi panics on malformed patterns; convert that into a per-plugin
	// resolution failure instead of taking the merge down.
	defer func() {
		if rec := recover(); rec != nil {
			handler = nil
			err = fmt.Errorf("mount routes: %v", rec)
		}
	}()

	sub := chi.NewRouter()
	for _, def := range routes {
		if err := validateRoute(def); err != nil {
			return nil, err
		}
		sub.Method(def.Method, def.Pattern, l.guard(bundle.PluginID(), def))
	}
	return sub, nil
}

func validateRoute(def RouteDef) error {
	switch def.Method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return fmt.Errorf("route %q: unsupported method %q", def.Pattern, def.Method)
	}
	if !strings.HasPrefix(def.Pattern, "/") {
		return fmt.Errorf("route %q: pattern must start with /", def.Pattern)
	}
	if def.Handler == nil {
		return fmt.Errorf("route %q: nil handler", def.Pattern)
	}
	return nil
}

// guard wraps a plugin handler with the entitlement gate. Reaching a gated
// route without entitlement answers 403 carrying the upgrade target when the
// denial is tier-based and an upgrade exists.
func (l *Loader) guard(pluginID string, def RouteDef) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := rbac.PrincipalFromContext(r.Context())
		if !ok {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		allowed := l.gate.CanAccess(r.Context(), entitlement.AccessRequest{
			Principal: principal,
			TenantID:  principal.TenantID,
			PluginID:  pluginID,
			Resource:  def.Resource,
			Action:    def.Action,
			Feature:   def.Feature,
		})
		if !allowed {
			l.respondDenied(w, r, principal.TenantID, pluginID, def.Feature)
			return
		}
		def.Handler(w, r)
	})
}

func (l *Loader) respondDenied(w http.ResponseWriter, r *http.Request, tenantID int64, pluginID string, feature entitlement.FeatureKey) {
	if feature == "" || l.upgrade == nil {
		httpx.RespondError(w, httpx.ErrForbidden)
		return
	}
	target, err := l.upgrade.UpgradeTarget(r.Context(), tenantID, pluginID, feature)
	if err != nil || target == nil {
		httpx.RespondError(w, httpx.ErrForbidden)
		return
	}
	httpx.JSON(w, http.StatusForbidden, map[string]any{
		"title":  "Upgrade Required",
		"status": http.StatusForbidden,
		"detail": fmt.Sprintf("feature %q requires the %s tier", feature, target.Name),
		"upgrade": map[string]any{
			"tier_id":   target.ID,
			"tier_name": target.Name,
			"feature":   feature,
		},
	})
}

// lazyRouter builds its delegate on first use.
type lazyRouter struct {
	once   sync.Once
	build  func() (http.Handler, error)
	logger *slog.Logger
	h      http.Handler
	err    error
}

func (lr *lazyRouter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	lr.once.Do(func() {
		lr.h, lr.err = lr.build()
		if lr.err != nil && lr.logger != nil {
			lr.logger.Error("lazy plugin mount failed", slog.Any("error", lr.err))
		}
	})
	if lr.err != nil || lr.h == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Plugin Unavailable", "")
		return
	}
	lr.h.ServeHTTP(w, r)
}
