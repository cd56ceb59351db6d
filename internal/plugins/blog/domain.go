// Package blog is the built-in blog plugin. It contributes routes and menu
// entries through the plugin loader like any external plugin would.
package blog

import "time"

// Post is a single blog entry scoped to a tenant.
type Post struct {
	ID        int64     `json:"id"`
	TenantID  int64     `json:"tenant_id"`
	AuthorID  int64     `json:"author_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Stats aggregates per-tenant posting activity.
type Stats struct {
	TotalPosts int64      `json:"total_posts"`
	LastPosted *time.Time `json:"last_posted,omitempty"`
}
