// Package entitlement holds the tier and plugin data model plus the access
// decision logic built on top of it.
package entitlement

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// PluginStatus describes the lifecycle state of a plugin for one tenant.
type PluginStatus string

const (
	StatusEnabled  PluginStatus = "enabled"
	StatusDisabled PluginStatus = "disabled"
	StatusError    PluginStatus = "error"
)

// ParsePluginStatus maps the wire representation onto a PluginStatus.
// Unknown values degrade to StatusDisabled so a misbehaving backend can
// never switch a plugin on by accident.
func ParsePluginStatus(raw string) PluginStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(StatusEnabled):
		return StatusEnabled
	case string(StatusError):
		return StatusError
	default:
		return StatusDisabled
	}
}

// Plugin identifies an optional feature module. Immutable once published;
// created by the out-of-band publishing pipeline and read-only here.
type Plugin struct {
	ID      string
	Name    string
	Version string
}

// PluginState is the per (tenant, plugin) lifecycle record. Owned by the
// registry; everything else reads it through snapshots.
type PluginState struct {
	PluginID string
	Status   PluginStatus
}

// Enabled reports whether the state allows the plugin to run.
func (s PluginState) Enabled() bool {
	return s.Status == StatusEnabled
}

// FeatureKey identifies a gated capability, e.g. "blog.unlimited-posts".
// Opaque beyond equality.
type FeatureKey string

// Tier is one subscription level of a plugin. Tiers of a plugin form a total
// order by Position; feature sets must grow monotonically along that order.
type Tier struct {
	ID       string
	Name     string
	Position int
	Features []FeatureKey

	// Pricing facets, display only. Nil means the facet is not offered.
	PriceMonthly  *float64
	PriceYearly   *float64
	PriceLifetime *float64
}

// HasFeature reports whether the tier unlocks the given feature.
func (t Tier) HasFeature(key FeatureKey) bool {
	for _, f := range t.Features {
		if f == key {
			return true
		}
	}
	return false
}

// ErrTierOrder indicates a tier list that violates the monotonicity
// invariant: a higher tier dropped a feature a lower tier grants.
var ErrTierOrder = errors.New("entitlement: tier feature sets must be monotonically non-decreasing")

// NormalizeTiers sorts tiers by position, de-duplicates each feature list
// preserving first occurrence, and validates the monotonicity invariant.
// The returned slice is a copy; the input is not mutated.
func NormalizeTiers(tiers []Tier) ([]Tier, error) {
	out := make([]Tier, len(tiers))
	copy(out, tiers)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })

	for i := range out {
		out[i].Features = dedupeFeatures(out[i].Features)
	}

	for i := 1; i < len(out); i++ {
		for _, f := range out[i-1].Features {
			if !out[i].HasFeature(f) {
				return nil, fmt.Errorf("%w: tier %q drops feature %q held by tier %q",
					ErrTierOrder, out[i].ID, f, out[i-1].ID)
			}
		}
	}
	return out, nil
}

func dedupeFeatures(features []FeatureKey) []FeatureKey {
	seen := make(map[FeatureKey]struct{}, len(features))
	out := make([]FeatureKey, 0, len(features))
	for _, f := range features {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
