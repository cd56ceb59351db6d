package loader

import (
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"

	"github.com/meridianhq/meridian/internal/platform/httpx"
)

// RouteTable is the swappable mount point for plugin routes. It serves the
// most recently published merge; until the first merge completes it answers
// 404 for everything, so consumers see either no plugin routes or the full
// consistent set, never a partial one.
type RouteTable struct {
	handler atomic.Pointer[http.Handler]
}

// NewRouteTable builds an empty table.
func NewRouteTable() *RouteTable {
	t := &RouteTable{}
	var empty http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.RespondError(w, httpx.ErrNotFound)
	})
	t.handler.Store(&empty)
	return t
}

// ServeHTTP delegates to the current published handler.
func (t *RouteTable) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	(*t.handler.Load()).ServeHTTP(w, r)
}

// publish atomically swaps in a freshly built router.
func (t *RouteTable) publish(mux *chi.Mux) {
	var h http.Handler = mux
	t.handler.Store(&h)
}
