// Package tenants manages workspace tenants and their per-plugin tier
// subscriptions.
package tenants

import "time"

// Tenant is a single workspace on the deployment.
type Tenant struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	IsActive bool   `json:"is_active"`
}

// Subscription binds a tenant to a pricing tier of one plugin.
type Subscription struct {
	TenantID  int64     `json:"tenant_id"`
	PluginID  string    `json:"plugin_id"`
	TierID    string    `json:"tier_id"`
	UpdatedAt time.Time `json:"updated_at"`
}
