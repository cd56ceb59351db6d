// Package registry maintains the process-wide table of known plugins and
// their per-tenant lifecycle state. It is the single source of truth for
// "is plugin X enabled for tenant T".
package registry

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/meridianhq/meridian/internal/entitlement"
	"github.com/meridianhq/meridian/internal/observability"
)

// Phase is the registry lifecycle state.
type Phase int32

const (
	PhaseUninitialized Phase = iota
	PhaseInitializing
	PhaseReady
	PhaseFailed
)

// String returns the phase name for logs and the admin API.
func (p Phase) String() string {
	switch p {
	case PhaseInitializing:
		return "initializing"
	case PhaseReady:
		return "ready"
	case PhaseFailed:
		return "failed"
	default:
		return "uninitialized"
	}
}

// snapshot is an immutable view of the catalog. Readers load it atomically;
// writers build a replacement and swap the pointer, so no reader ever sees a
// partially-updated table.
type snapshot struct {
	plugins map[string]entitlement.Plugin
	ordered []entitlement.Plugin
	states  map[int64]map[string]entitlement.PluginState
}

var emptySnapshot = &snapshot{
	plugins: map[string]entitlement.Plugin{},
	states:  map[int64]map[string]entitlement.PluginState{},
}

// Registry owns plugin lifecycle state. Construct with New; the zero value is
// not usable.
type Registry struct {
	client      CatalogClient
	logger      *slog.Logger
	metrics     *observability.Metrics
	initTimeout time.Duration

	group singleflight.Group
	phase atomic.Int32
	snap  atomic.Pointer[snapshot]

	mu       sync.Mutex // serializes snapshot replacement
	initErr  error
	initDone atomic.Bool
}

// Options tunes a Registry.
type Options struct {
	Logger      *slog.Logger
	Metrics     *observability.Metrics
	InitTimeout time.Duration
}

// New constructs a Registry in the Uninitialized phase.
func New(client CatalogClient, opts Options) *Registry {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.InitTimeout <= 0 {
		opts.InitTimeout = 10 * time.Second
	}
	r := &Registry{
		client:      client,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		initTimeout: opts.InitTimeout,
	}
	r.snap.Store(emptySnapshot)
	return r
}

// Phase reports the current lifecycle phase.
func (r *Registry) Phase() Phase {
	return Phase(r.phase.Load())
}

// Ready reports whether initialization completed successfully.
func (r *Registry) Ready() bool {
	return r.Phase() == PhaseReady
}

// Initialize fetches the plugin catalog once. Idempotent: calls after a
// completed attempt return the stored outcome immediately, and concurrent
// calls join the in-flight fetch instead of starting another one. A failed
// initialization leaves an empty, fail-closed table; the portal keeps
// running without plugin contributions.
func (r *Registry) Initialize(ctx context.Context) error {
	if r.initDone.Load() {
		return r.initErr
	}
	_, err, _ := r.group.Do("initialize", func() (interface{}, error) {
		if r.initDone.Load() {
			return nil, r.initErr
		}
		r.phase.Store(int32(PhaseInitializing))

		fetchCtx, cancel := context.WithTimeout(ctx, r.initTimeout)
		defer cancel()

		catalog, err := r.client.FetchCatalog(fetchCtx)
		if err != nil {
			r.logger.Warn("plugin catalog unavailable, registry degrades to empty",
				slog.Any("error", err))
			r.mu.Lock()
			r.snap.Store(emptySnapshot)
			r.initErr = err
			r.mu.Unlock()
			r.phase.Store(int32(PhaseFailed))
			r.initDone.Store(true)
			r.observeInit("failed")
			return nil, err
		}

		r.mu.Lock()
		r.snap.Store(buildSnapshot(catalog))
		r.initErr = nil
		r.mu.Unlock()
		r.phase.Store(int32(PhaseReady))
		r.initDone.Store(true)
		r.observeInit("ready")
		r.logger.Info("plugin registry initialized",
			slog.Int("plugins", len(catalog.Plugins)))
		return nil, nil
	})
	return err
}

// IsEnabled reports whether the plugin is enabled for the tenant. Pure
// lookup on the current snapshot; any plugin with no known state is disabled
// (fail-closed), including while uninitialized or after a failed
// initialization.
func (r *Registry) IsEnabled(tenantID int64, pluginID string) bool {
	snap := r.snap.Load()
	if states, ok := snap.states[tenantID]; ok {
		if st, ok := states[pluginID]; ok {
			return st.Enabled()
		}
	}
	// Deployment-wide records live under tenant 0.
	if tenantID != 0 {
		if states, ok := snap.states[0]; ok {
			if st, ok := states[pluginID]; ok {
				return st.Enabled()
			}
		}
	}
	return false
}

// State returns the stored state for (tenant, plugin) with the same fallback
// as IsEnabled. The second result is false when no record exists.
func (r *Registry) State(tenantID int64, pluginID string) (entitlement.PluginState, bool) {
	snap := r.snap.Load()
	if states, ok := snap.states[tenantID]; ok {
		if st, ok := states[pluginID]; ok {
			return st, true
		}
	}
	if tenantID != 0 {
		if states, ok := snap.states[0]; ok {
			if st, ok := states[pluginID]; ok {
				return st, true
			}
		}
	}
	return entitlement.PluginState{}, false
}

// EnabledForAny reports whether at least one tenant has the plugin enabled.
// The loader uses this to decide which contributions to merge; per-tenant
// gating stays with the entitlement gate.
func (r *Registry) EnabledForAny(pluginID string) bool {
	snap := r.snap.Load()
	for _, states := range snap.states {
		if st, ok := states[pluginID]; ok && st.Enabled() {
			return true
		}
	}
	return false
}

// Plugins lists the published plugins in stable id order.
func (r *Registry) Plugins() []entitlement.Plugin {
	snap := r.snap.Load()
	out := make([]entitlement.Plugin, len(snap.ordered))
	copy(out, snap.ordered)
	return out
}

// Plugin looks up one published plugin by id.
func (r *Registry) Plugin(pluginID string) (entitlement.Plugin, bool) {
	p, ok := r.snap.Load().plugins[pluginID]
	return p, ok
}

// Refresh re-fetches state for one plugin (non-empty id) or the whole
// catalog. Concurrent Refresh calls for the same key collapse into one
// fetch. The table is replaced wholesale, never mutated in place, so
// readers racing a refresh observe either the old or the new snapshot.
func (r *Registry) Refresh(ctx context.Context, pluginID string) error {
	if !r.initDone.Load() {
		return ErrNotReady
	}
	key := "refresh:" + pluginID
	_, err, _ := r.group.Do(key, func() (interface{}, error) {
		catalog, err := r.client.FetchCatalog(ctx)
		if err != nil {
			return nil, err
		}
		fresh := buildSnapshot(catalog)

		r.mu.Lock()
		defer r.mu.Unlock()
		if pluginID == "" {
			r.snap.Store(fresh)
		} else {
			r.snap.Store(spliceSnapshot(r.snap.Load(), fresh, pluginID))
		}
		// A refresh after a failed init recovers the registry.
		r.phase.Store(int32(PhaseReady))
		r.initErr = nil
		return nil, nil
	})
	return err
}

func (r *Registry) observeInit(outcome string) {
	if r.metrics != nil {
		r.metrics.RegistryInit(outcome)
	}
}

func buildSnapshot(catalog Catalog) *snapshot {
	snap := &snapshot{
		plugins: make(map[string]entitlement.Plugin, len(catalog.Plugins)),
		ordered: make([]entitlement.Plugin, len(catalog.Plugins)),
		states:  make(map[int64]map[string]entitlement.PluginState, len(catalog.States)),
	}
	copy(snap.ordered, catalog.Plugins)
	sort.Slice(snap.ordered, func(i, j int) bool { return snap.ordered[i].ID < snap.ordered[j].ID })
	for _, p := range snap.ordered {
		snap.plugins[p.ID] = p
	}
	for tenant, states := range catalog.States {
		copied := make(map[string]entitlement.PluginState, len(states))
		for id, st := range states {
			copied[id] = st
		}
		snap.states[tenant] = copied
	}
	return snap
}

// spliceSnapshot copies old and replaces only pluginID's plugin record and
// state rows with those from fresh.
func spliceSnapshot(old, fresh *snapshot, pluginID string) *snapshot {
	next := &snapshot{
		plugins: make(map[string]entitlement.Plugin, len(old.plugins)),
		states:  make(map[int64]map[string]entitlement.PluginState, len(old.states)),
	}
	for id, p := range old.plugins {
		if id != pluginID {
			next.plugins[id] = p
		}
	}
	if p, ok := fresh.plugins[pluginID]; ok {
		next.plugins[pluginID] = p
	}
	next.ordered = make([]entitlement.Plugin, 0, len(next.plugins))
	for _, p := range next.plugins {
		next.ordered = append(next.ordered, p)
	}
	sort.Slice(next.ordered, func(i, j int) bool { return next.ordered[i].ID < next.ordered[j].ID })

	tenants := make(map[int64]struct{}, len(old.states))
	for t := range old.states {
		tenants[t] = struct{}{}
	}
	for t := range fresh.states {
		tenants[t] = struct{}{}
	}
	for t := range tenants {
		merged := make(map[string]entitlement.PluginState)
		for id, st := range old.states[t] {
			if id != pluginID {
				merged[id] = st
			}
		}
		if st, ok := fresh.states[t][pluginID]; ok {
			merged[pluginID] = st
		}
		if len(merged) > 0 {
			next.states[t] = merged
		}
	}
	return next
}
