package entitlement

import (
	"context"
	"log/slog"

	"github.com/meridianhq/meridian/internal/observability"
	"github.com/meridianhq/meridian/internal/rbac"
)

// PluginChecker answers enablement lookups; satisfied by the plugin registry.
type PluginChecker interface {
	IsEnabled(tenantID int64, pluginID string) bool
}

// PermissionChecker answers permission lookups; satisfied by rbac.Evaluator.
type PermissionChecker interface {
	HasPermission(p rbac.Principal, resource, action string) bool
}

// TierSource resolves the tenant's current tier for a plugin. A nil tier
// means the tenant is unentitled (free). Satisfied by the tenants service.
type TierSource interface {
	CurrentTier(ctx context.Context, tenantID int64, pluginID string) (*Tier, error)
}

// AccessRequest carries everything needed for one gate decision.
type AccessRequest struct {
	Principal rbac.Principal
	TenantID  int64
	// PluginID is optional; empty skips the enablement check (non-plugin
	// portal features).
	PluginID string
	Resource string
	Action   string
	// Feature is optional; empty skips the tier check.
	Feature FeatureKey
}

// Gate composes plugin enablement, permission, and tier-feature checks into
// a single decision. Navigation filtering and route guards both go through
// here so the two can never drift apart.
type Gate struct {
	plugins PluginChecker
	perms   PermissionChecker
	tiers   TierSource
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewGate constructs a Gate. tiers may be nil when no tier data is served,
// in which case any feature-gated request is denied.
func NewGate(plugins PluginChecker, perms PermissionChecker, tiers TierSource, logger *slog.Logger, metrics *observability.Metrics) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{plugins: plugins, perms: perms, tiers: tiers, logger: logger, metrics: metrics}
}

// CanAccess runs the ordered short-circuit rule set: plugin enabled, then
// permission, then tier feature. Each check failing denies; only all three
// passing allows. Lookups that error deny (fail-closed) rather than
// propagate.
func (g *Gate) CanAccess(ctx context.Context, req AccessRequest) bool {
	if req.PluginID != "" && !g.plugins.IsEnabled(req.TenantID, req.PluginID) {
		return g.decide(false, "plugin")
	}
	if !g.perms.HasPermission(req.Principal, req.Resource, req.Action) {
		return g.decide(false, "permission")
	}
	if req.Feature != "" {
		tier, err := g.currentTier(ctx, req.TenantID, req.PluginID)
		if err != nil {
			g.logger.Warn("tier lookup failed, denying",
				slog.Int64("tenant_id", req.TenantID),
				slog.String("plugin_id", req.PluginID),
				slog.Any("error", err))
			return g.decide(false, "tier")
		}
		if tier == nil || !tier.HasFeature(req.Feature) {
			return g.decide(false, "tier")
		}
	}
	return g.decide(true, "allowed")
}

func (g *Gate) currentTier(ctx context.Context, tenantID int64, pluginID string) (*Tier, error) {
	if g.tiers == nil {
		return nil, nil
	}
	return g.tiers.CurrentTier(ctx, tenantID, pluginID)
}

func (g *Gate) decide(allowed bool, stage string) bool {
	if g.metrics != nil {
		g.metrics.GateDecision(allowed, stage)
	}
	return allowed
}
