package entitlement

// ResolveUpgradeTarget computes the tier a tenant should move to in order to
// unlock the given feature. tiers must already be normalized (sorted by
// position, monotonic). The current tier id may be empty or unknown, which is
// treated as sitting below the lowest tier.
//
// The first tier strictly above the current position whose feature set
// contains the key wins. When no higher tier names the feature the highest
// tier is suggested as a last resort; monotonicity guarantees it is a
// superset of everything below. Returns nil only when the plugin defines no
// tiers at all.
func ResolveUpgradeTarget(tiers []Tier, currentTierID string, feature FeatureKey) *Tier {
	if len(tiers) == 0 {
		return nil
	}

	current := -1
	for i, t := range tiers {
		if t.ID == currentTierID {
			current = i
			break
		}
	}

	for i := current + 1; i < len(tiers); i++ {
		if tiers[i].HasFeature(feature) {
			t := tiers[i]
			return &t
		}
	}

	top := tiers[len(tiers)-1]
	return &top
}
