// Package loader performs the one-time, idempotent activation of plugin
// bundles: resolving each enabled plugin's route and menu contributions and
// merging them into the portal's route table and navigation model.
package loader

import (
	"context"
	"net/http"

	"github.com/meridianhq/meridian/internal/entitlement"
)

// RouteDef is one route contributed by a plugin. Pattern is relative to the
// plugin mount point. Resource/Action and the optional Feature feed the
// entitlement gate guarding the route.
type RouteDef struct {
	Method   string
	Pattern  string
	Resource string
	Action   string
	Feature  entitlement.FeatureKey
	Handler  http.HandlerFunc
}

// MenuEntry is one navigation item contributed by a plugin. Entries carry
// the same gate inputs as routes so menu filtering and route guarding can
// never diverge.
type MenuEntry struct {
	PluginID string `json:"plugin_id"`
	Title    string `json:"title"`
	Path     string `json:"path"`
	Icon     string `json:"icon,omitempty"`
	Order    int    `json:"order"`

	Resource string                 `json:"-"`
	Action   string                 `json:"-"`
	Feature  entitlement.FeatureKey `json:"-"`
}

// Bundle is a plugin's contribution package. Plugins are trusted code built
// into the binary; the bundle only describes what they add to the portal.
type Bundle interface {
	// PluginID returns the stable plugin id this bundle belongs to.
	PluginID() string
	// Routes resolves the contributed route definitions.
	Routes() ([]RouteDef, error)
	// Menu resolves the contributed navigation entries.
	Menu() ([]MenuEntry, error)
}

// Source enumerates available bundles.
type Source interface {
	Bundles(ctx context.Context) ([]Bundle, error)
}

// StaticSource serves a fixed bundle list; plugins bundled with the binary
// register here at wiring time.
type StaticSource struct {
	bundles []Bundle
}

// NewStaticSource builds a Source over the given bundles.
func NewStaticSource(bundles ...Bundle) *StaticSource {
	return &StaticSource{bundles: bundles}
}

// Bundles returns the registered bundles.
func (s *StaticSource) Bundles(ctx context.Context) ([]Bundle, error) {
	out := make([]Bundle, len(s.bundles))
	copy(out, s.bundles)
	return out, nil
}
