package ratelimit

import (
	"github.com/example/multitenant-api/domain/ratelimit"
)

// RouteRule is the per-route configuration the calling framework
// supplies: an override limit that fully replaces the catalog for that
// route, or a flag to skip limiting entirely.
type RouteRule struct {
	Override *ratelimit.Config
	Skip     bool
}

// RouteTable is a static table of per-route rate-limit configuration,
// built once at startup and passed by reference into the request
// pipeline. Lookups key on "METHOD path".
type RouteTable struct {
	entries map[string]RouteRule
}

// NewRouteTable creates an empty route table.
func NewRouteTable() *RouteTable {
	return &RouteTable{entries: make(map[string]RouteRule)}
}

// SetOverride installs an override config for one route. The override
// replaces, rather than augments, the catalog's matched rules.
func (t *RouteTable) SetOverride(method, path string, cfg ratelimit.Config) {
	t.entries[routeKey(method, path)] = RouteRule{Override: &cfg}
}

// SetSkip marks one route as exempt from rate limiting.
func (t *RouteTable) SetSkip(method, path string) {
	t.entries[routeKey(method, path)] = RouteRule{Skip: true}
}

// Lookup returns the route's configuration, if any.
func (t *RouteTable) Lookup(method, path string) (RouteRule, bool) {
	rr, ok := t.entries[routeKey(method, path)]
	return rr, ok
}

func routeKey(method, path string) string {
	return method + " " + path
}
