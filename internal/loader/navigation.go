package loader

import (
	"context"
	"sort"
	"sync/atomic"

	"github.com/meridianhq/meridian/internal/entitlement"
	"github.com/meridianhq/meridian/internal/rbac"
)

// Navigation is the plugin-contributed part of the menu model. Like the
// route table it publishes whole snapshots: readers see either the previous
// merge or the new one.
type Navigation struct {
	entries atomic.Pointer[[]MenuEntry]
}

// NewNavigation builds an empty navigation model.
func NewNavigation() *Navigation {
	n := &Navigation{}
	empty := []MenuEntry{}
	n.entries.Store(&empty)
	return n
}

// publish swaps in the merged entry list, sorted by order then title.
func (n *Navigation) publish(entries []MenuEntry) {
	sorted := make([]MenuEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Order != sorted[j].Order {
			return sorted[i].Order < sorted[j].Order
		}
		return sorted[i].Title < sorted[j].Title
	})
	n.entries.Store(&sorted)
}

// Entries returns the full merged entry list, unfiltered.
func (n *Navigation) Entries() []MenuEntry {
	stored := *n.entries.Load()
	out := make([]MenuEntry, len(stored))
	copy(out, stored)
	return out
}

// Visible filters the merged entries through the entitlement gate for the
// given principal, hiding anything the user cannot reach.
func (n *Navigation) Visible(ctx context.Context, gate *entitlement.Gate, principal rbac.Principal, tenantID int64) []MenuEntry {
	visible := make([]MenuEntry, 0)
	for _, e := range n.Entries() {
		ok := gate.CanAccess(ctx, entitlement.AccessRequest{
			Principal: principal,
			TenantID:  tenantID,
			PluginID:  e.PluginID,
			Resource:  e.Resource,
			Action:    e.Action,
			Feature:   e.Feature,
		})
		if ok {
			visible = append(visible, e)
		}
	}
	return visible
}
