package tenants

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/meridianhq/meridian/internal/entitlement"
)

// ErrUnknownTier is returned when a tier assignment names a tier the
// plugin's listing does not offer.
var ErrUnknownTier = errors.New("tenants: unknown tier")

// TierCatalog supplies the tiers a plugin offers. The marketplace service
// satisfies this.
type TierCatalog interface {
	Tiers(ctx context.Context, pluginID string) ([]entitlement.Tier, error)
}

// Assignments adapts the repository to the marketplace's tier lookup so the
// two services can be wired without a dependency cycle.
type Assignments struct {
	repo Repository
}

// NewAssignments builds the adapter.
func NewAssignments(repo Repository) Assignments {
	return Assignments{repo: repo}
}

// CurrentTierID reports the tenant's assigned tier for a plugin, "" when
// unsubscribed.
func (a Assignments) CurrentTierID(ctx context.Context, tenantID int64, pluginID string) (string, error) {
	return a.repo.SubscriptionTier(ctx, tenantID, pluginID)
}

// Service owns tenant and subscription operations.
type Service struct {
	repo    Repository
	catalog TierCatalog
	logger  *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, catalog TierCatalog, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, catalog: catalog, logger: logger}
}

// CreateTenant registers a new workspace.
func (s *Service) CreateTenant(ctx context.Context, name, slug string) (Tenant, error) {
	name = strings.TrimSpace(name)
	slug = strings.ToLower(strings.TrimSpace(slug))
	if name == "" || slug == "" {
		return Tenant{}, fmt.Errorf("tenants: name and slug are required")
	}
	return s.repo.CreateTenant(ctx, name, slug)
}

// GetTenant loads one tenant.
func (s *Service) GetTenant(ctx context.Context, id int64) (Tenant, error) {
	return s.repo.GetTenant(ctx, id)
}

// Subscriptions lists the tenant's tier assignments across plugins.
func (s *Service) Subscriptions(ctx context.Context, tenantID int64) ([]Subscription, error) {
	return s.repo.Subscriptions(ctx, tenantID)
}

// CurrentTierID reports the tenant's assigned tier for a plugin, "" when
// unsubscribed.
func (s *Service) CurrentTierID(ctx context.Context, tenantID int64, pluginID string) (string, error) {
	return s.repo.SubscriptionTier(ctx, tenantID, pluginID)
}

// SetTier assigns a tier to the tenant for one plugin. The tier must exist
// in the plugin's listing.
func (s *Service) SetTier(ctx context.Context, tenantID int64, pluginID, tierID string) error {
	if _, err := s.repo.GetTenant(ctx, tenantID); err != nil {
		return err
	}
	tiers, err := s.catalog.Tiers(ctx, pluginID)
	if err != nil {
		return fmt.Errorf("tenants: load tiers for %s: %w", pluginID, err)
	}
	known := false
	for _, t := range tiers {
		if t.ID == tierID {
			known = true
			break
		}
	}
	if !known {
		return ErrUnknownTier
	}
	if err := s.repo.UpsertSubscription(ctx, tenantID, pluginID, tierID); err != nil {
		return err
	}
	s.logger.Info("tier assigned",
		slog.Int64("tenant_id", tenantID),
		slog.String("plugin_id", pluginID),
		slog.String("tier_id", tierID))
	return nil
}
