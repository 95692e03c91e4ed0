// Package routetable is the consuming side of the registry: an in-memory
// routing table kept current by subscribing to route announcements and
// reconciling against the registry's listing.
package routetable

import (
	"sort"
	"strings"
	"sync"

	"github.com/randalmurphal/nexusmesh/pkg/nexusmesh"
)

type entry struct {
	route nexusmesh.Route
	seq   uint64
}

// Table is a concurrency-safe path -> route map with prefix lookup.
type Table struct {
	mu     sync.RWMutex
	routes map[string]entry
	seq    uint64
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{routes: make(map[string]entry)}
}

// Seq returns the sequence number of the latest change.
func (t *Table) Seq() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.seq
}

// Upsert stores route, replacing any route with the same path.
func (t *Table) Upsert(route nexusmesh.Route) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	t.routes[route.Path] = entry{route: copyRoute(route), seq: t.seq}
}

// Apply decodes an announcement payload and upserts it.
func (t *Table) Apply(payload []byte) (nexusmesh.Route, error) {
	route, err := nexusmesh.DecodeRoute(payload)
	if err != nil {
		return nexusmesh.Route{}, err
	}
	t.Upsert(route)
	return route, nil
}

// Sync upserts a listing taken after sequence since. Paths changed after
// since keep their newer value. Routes absent from the listing are kept,
// since routes are never deleted. Returns the number of routes applied.
func (t *Table) Sync(routes []nexusmesh.Route, since uint64) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	applied := 0
	for _, route := range routes {
		if cur, ok := t.routes[route.Path]; ok && cur.seq > since {
			continue
		}
		t.seq++
		t.routes[route.Path] = entry{route: copyRoute(route), seq: t.seq}
		applied++
	}
	return applied
}

// Lookup returns the route whose path is the longest prefix of
// requestPath, and requestPath with that prefix removed ("/" when nothing
// remains).
func (t *Table) Lookup(requestPath string) (route nexusmesh.Route, rest string, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	best := -1
	for path, e := range t.routes {
		if len(path) > best && strings.HasPrefix(requestPath, path) {
			best = len(path)
			route = e.route
		}
	}
	if best < 0 {
		return nexusmesh.Route{}, "", false
	}

	rest = strings.TrimPrefix(requestPath, route.Path)
	if rest == "" {
		rest = "/"
	}
	return copyRoute(route), rest, true
}

// Get returns the route registered for exactly path.
func (t *Table) Get(path string) (nexusmesh.Route, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.routes[path]
	if !ok {
		return nexusmesh.Route{}, false
	}
	return copyRoute(e.route), true
}

// Routes returns every route, sorted by path.
func (t *Table) Routes() []nexusmesh.Route {
	t.mu.RLock()
	defer t.mu.RUnlock()

	routes := make([]nexusmesh.Route, 0, len(t.routes))
	for _, e := range t.routes {
		routes = append(routes, copyRoute(e.route))
	}
	sort.Slice(routes, func(i, j int) bool {
		return routes[i].Path < routes[j].Path
	})
	return routes
}

// Len returns the number of routes.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.routes)
}

func copyRoute(r nexusmesh.Route) nexusmesh.Route {
	return nexusmesh.Route{
		Path:     r.Path,
		Backends: append([]string(nil), r.Backends...),
	}
}
