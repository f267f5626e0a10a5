package kour

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
)

// Supported HTTP methods. Anything else is rejected at registration and
// answered with 404 at dispatch.
const (
	MethodGet     = "GET"
	MethodPost    = "POST"
	MethodPut     = "PUT"
	MethodDelete  = "DELETE"
	MethodPatch   = "PATCH"
	MethodOptions = "OPTIONS"
	MethodHead    = "HEAD"
)

var supportedMethods = []string{
	MethodGet, MethodPost, MethodPut, MethodDelete, MethodPatch, MethodOptions, MethodHead,
}

// IsSupportedMethod reports whether method is one of the seven recognized methods.
func IsSupportedMethod(method string) bool {
	for _, m := range supportedMethods {
		if m == method {
			return true
		}
	}
	return false
}

// Route is a registered path pattern, method and handler.
type Route struct {
	Path    string
	Method  string
	Handler *Handler
}

// Router stores routes in a segment trie. Routes are added during setup;
// once the router is sealed by the first served request it is read-only.
type Router struct {
	prefix string
	root   *node

	// routes keeps registration order for listing and mounting.
	routes []*Route
	sealed atomic.Bool
}

// NewRouter creates a router whose routes are all registered under prefix.
func NewRouter(prefix ...string) *Router {
	r := &Router{root: newNode("", false)}
	if len(prefix) > 0 {
		r.prefix = strings.TrimRight(prefix[0], "/")
	}
	return r
}

// Prefix returns the path prefix applied to every route of this router.
func (r *Router) Prefix() string {
	return r.prefix
}

// AddRoute registers fn for method at path (joined with the router prefix).
func (r *Router) AddRoute(path, method string, fn any, opts ...RouteOption) error {
	if r.sealed.Load() {
		return ErrRouterSealed
	}
	if !IsSupportedMethod(method) {
		return fmt.Errorf("%w: %q", ErrInvalidMethod, method)
	}

	h, err := NewHandler(method, fn, opts...)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	r.add(&Route{Path: r.prefix + path, Method: method, Handler: h})
	return nil
}

func (r *Router) add(route *Route) {
	r.root.insert(route.Path, route.Method, route)

	for i, existing := range r.routes {
		if existing.Method == route.Method && existing.Path == route.Path {
			r.routes[i] = route
			return
		}
	}
	r.routes = append(r.routes, route)
}

func (r *Router) mustAdd(path, method string, fn any, opts []RouteOption) {
	if err := r.AddRoute(path, method, fn, opts...); err != nil {
		panic(err)
	}
}

// GET registers a GET route. It panics on an invalid handler.
func (r *Router) GET(path string, fn any, opts ...RouteOption) {
	r.mustAdd(path, MethodGet, fn, opts)
}

// POST registers a POST route answering 201 by default.
func (r *Router) POST(path string, fn any, opts ...RouteOption) {
	r.mustAdd(path, MethodPost, fn, opts)
}

// PUT registers a PUT route.
func (r *Router) PUT(path string, fn any, opts ...RouteOption) {
	r.mustAdd(path, MethodPut, fn, opts)
}

// DELETE registers a DELETE route answering 204 by default.
func (r *Router) DELETE(path string, fn any, opts ...RouteOption) {
	r.mustAdd(path, MethodDelete, fn, opts)
}

// PATCH registers a PATCH route.
func (r *Router) PATCH(path string, fn any, opts ...RouteOption) {
	r.mustAdd(path, MethodPatch, fn, opts)
}

// OPTIONS registers an OPTIONS route.
func (r *Router) OPTIONS(path string, fn any, opts ...RouteOption) {
	r.mustAdd(path, MethodOptions, fn, opts)
}

// HEAD registers a HEAD route.
func (r *Router) HEAD(path string, fn any, opts ...RouteOption) {
	r.mustAdd(path, MethodHead, fn, opts)
}

// Mount merges other's routes into r under prefix. The full path of each
// merged route is r's prefix, then prefix, then other's prefix, then the route path.
func (r *Router) Mount(prefix string, other *Router) error {
	if r.sealed.Load() {
		return ErrRouterSealed
	}
	for _, route := range other.routes {
		local := strings.TrimPrefix(route.Path, other.prefix)
		r.add(&Route{
			Path:    r.prefix + prefix + other.prefix + local,
			Method:  route.Method,
			Handler: route.Handler,
		})
	}
	return nil
}

// Exists reports whether a route resolves for path and method.
func (r *Router) Exists(path, method string) bool {
	route, _ := r.root.lookup(path, method)
	return route != nil
}

// Route resolves path and method to a route and its path parameters.
func (r *Router) Route(path, method string) (*Route, map[string]string) {
	return r.root.lookup(path, method)
}

// AllowedMethods lists the methods registered for path in registration order.
func (r *Router) AllowedMethods(path string) []string {
	return r.root.allowedMethods(path)
}

// Routes returns every registered route sorted by path then method order.
func (r *Router) Routes() []*Route {
	routes := make([]*Route, len(r.routes))
	copy(routes, r.routes)
	sort.SliceStable(routes, func(i, j int) bool {
		if routes[i].Path != routes[j].Path {
			return routes[i].Path < routes[j].Path
		}
		return methodRank(routes[i].Method) < methodRank(routes[j].Method)
	})
	return routes
}

func methodRank(method string) int {
	for i, m := range supportedMethods {
		if m == method {
			return i
		}
	}
	return len(supportedMethods)
}

// Seal forbids further registration. Serving seals the router automatically.
func (r *Router) Seal() {
	r.sealed.Store(true)
}

// Sealed reports whether the router is read-only.
func (r *Router) Sealed() bool {
	return r.sealed.Load()
}
