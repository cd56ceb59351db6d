package marketplace

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/meridianhq/meridian/internal/entitlement"
)

// CatalogSource fetches listings; implemented by Client, stubbed in tests.
type CatalogSource interface {
	FetchCatalog(ctx context.Context) ([]Listing, error)
}

// TierAssignments resolves the tenant's current tier id for a plugin. An
// empty id means free/unentitled. Satisfied by the tenants service.
type TierAssignments interface {
	CurrentTierID(ctx context.Context, tenantID int64, pluginID string) (string, error)
}

// Service serves the tier catalog, backed by the marketplace API through a
// Redis cache, and answers the tier questions the entitlement gate and the
// upgrade prompt need.
type Service struct {
	source      CatalogSource
	cache       *Cache
	assignments TierAssignments
	logger      *slog.Logger
}

// NewService constructs a Service.
func NewService(source CatalogSource, cache *Cache, assignments TierAssignments, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{source: source, cache: cache, assignments: assignments, logger: logger}
}

// Catalog returns all listings, served from cache when warm.
func (s *Service) Catalog(ctx context.Context) ([]Listing, error) {
	key, err := s.cache.BuildKey(ctx, "marketplace", "catalog")
	if err != nil {
		return nil, err
	}
	var listings []Listing
	err = s.cache.FetchJSON(ctx, key, &listings, func(ctx context.Context) (interface{}, error) {
		return s.source.FetchCatalog(ctx)
	})
	if err != nil {
		return nil, err
	}
	return listings, nil
}

// Listing returns one plugin's marketplace entry.
func (s *Service) Listing(ctx context.Context, pluginID string) (Listing, error) {
	listings, err := s.Catalog(ctx)
	if err != nil {
		return Listing{}, err
	}
	for _, l := range listings {
		if l.ID == pluginID {
			return l, nil
		}
	}
	return Listing{}, fmt.Errorf("%w: %s", ErrUnknownPlugin, pluginID)
}

// Tiers returns the ordered tier sequence for a plugin.
func (s *Service) Tiers(ctx context.Context, pluginID string) ([]entitlement.Tier, error) {
	listing, err := s.Listing(ctx, pluginID)
	if err != nil {
		return nil, err
	}
	return listing.Tiers, nil
}

// CurrentTier implements entitlement.TierSource: the tenant's assigned tier
// for the plugin, or nil when the tenant holds none.
func (s *Service) CurrentTier(ctx context.Context, tenantID int64, pluginID string) (*entitlement.Tier, error) {
	tierID, err := s.assignments.CurrentTierID(ctx, tenantID, pluginID)
	if err != nil {
		return nil, err
	}
	if tierID == "" {
		return nil, nil
	}
	tiers, err := s.Tiers(ctx, pluginID)
	if err != nil {
		return nil, err
	}
	for _, t := range tiers {
		if t.ID == tierID {
			tier := t
			return &tier, nil
		}
	}
	// The assignment references a tier the catalog no longer lists;
	// treat as unentitled rather than fail the gate.
	s.logger.Warn("assigned tier missing from catalog",
		slog.Int64("tenant_id", tenantID),
		slog.String("plugin_id", pluginID),
		slog.String("tier_id", tierID))
	return nil, nil
}

// UpgradeTarget resolves the tier that would unlock the feature for the
// tenant, per the upgrade resolver rules. Implements loader.UpgradeSource.
func (s *Service) UpgradeTarget(ctx context.Context, tenantID int64, pluginID string, feature entitlement.FeatureKey) (*entitlement.Tier, error) {
	tiers, err := s.Tiers(ctx, pluginID)
	if err != nil {
		return nil, err
	}
	currentID, err := s.assignments.CurrentTierID(ctx, tenantID, pluginID)
	if err != nil {
		return nil, err
	}
	return entitlement.ResolveUpgradeTarget(tiers, currentID, feature), nil
}

// Invalidate drops cached catalog data; the next read re-fetches.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}
