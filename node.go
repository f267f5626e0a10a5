package kour

import "strings"

// node is one path segment in the routing trie.
// Literal children are kept ahead of the wildcard child, and a node has at
// most one wildcard child: a later wildcard at the same position reuses it.
type node struct {
	part     string
	children []*node
	wild     bool

	// routes maps a method to the route terminating here.
	routes map[string]*Route

	// methods keeps the registration order of routes' keys.
	methods []string
}

func newNode(part string, wild bool) *node {
	return &node{part: part, wild: wild}
}

// insert registers route under pattern for method. Re-registering the same
// method and pattern replaces the previous route.
func (n *node) insert(pattern, method string, route *Route) {
	current := n
	for _, seg := range splitPath(pattern) {
		if isWildSegment(seg) {
			current = current.wildChild()
		} else {
			current = current.literalChild(seg)
		}
	}

	if current.routes == nil {
		current.routes = make(map[string]*Route)
	}
	if _, ok := current.routes[method]; !ok {
		current.methods = append(current.methods, method)
	}
	current.routes[method] = route
}

// literalChild returns the literal child for seg, creating it when missing.
func (n *node) literalChild(seg string) *node {
	for _, child := range n.children {
		if !child.wild && child.part == seg {
			return child
		}
	}

	child := newNode(seg, false)
	// Keep literals ahead of the wildcard.
	if len(n.children) > 0 && n.children[len(n.children)-1].wild {
		last := len(n.children) - 1
		n.children = append(n.children[:last], child, n.children[last])
		return child
	}
	n.children = append(n.children, child)
	return child
}

// wildChild returns the single wildcard child, creating it when missing.
func (n *node) wildChild() *node {
	if len(n.children) > 0 && n.children[len(n.children)-1].wild {
		return n.children[len(n.children)-1]
	}
	child := newNode("", true)
	n.children = append(n.children, child)
	return child
}

// match returns the child to follow for seg: an exact literal, else the wildcard.
func (n *node) match(seg string) *node {
	var wild *node
	for _, child := range n.children {
		if child.wild {
			wild = child
			continue
		}
		if child.part == seg {
			return child
		}
	}
	return wild
}

// search walks the trie for path and returns the terminal node, or nil when
// the path leaves the trie or stops short of a node holding routes.
func (n *node) search(path string) *node {
	current := n
	for _, seg := range splitPath(path) {
		current = current.match(seg)
		if current == nil {
			return nil
		}
	}
	if len(current.routes) == 0 {
		return nil
	}
	return current
}

// lookup resolves path and method to a route and its path parameters.
func (n *node) lookup(path, method string) (*Route, map[string]string) {
	terminal := n.search(path)
	if terminal == nil {
		return nil, nil
	}
	route, ok := terminal.routes[method]
	if !ok {
		return nil, nil
	}
	return route, extractParams(route.Path, path)
}

// allowedMethods lists the methods registered at the node path resolves to.
func (n *node) allowedMethods(path string) []string {
	terminal := n.search(path)
	if terminal == nil {
		return nil
	}
	methods := make([]string, len(terminal.methods))
	copy(methods, terminal.methods)
	return methods
}

// extractParams replays the registered pattern against path and collects the
// values at wildcard positions, keyed by the variable name.
func extractParams(pattern, path string) map[string]string {
	params := make(map[string]string)
	patternSegs := splitPath(pattern)
	pathSegs := splitPath(path)
	for i, seg := range patternSegs {
		if i >= len(pathSegs) {
			break
		}
		if name, ok := wildName(seg); ok {
			params[name] = pathSegs[i]
		}
	}
	return params
}

// splitPath splits a path into segments, dropping empty ones.
func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	segs := parts[:0]
	for _, p := range parts {
		if p != "" {
			segs = append(segs, p)
		}
	}
	return segs
}

// isWildSegment reports whether seg is a variable: ":id" or "{id}".
func isWildSegment(seg string) bool {
	_, ok := wildName(seg)
	return ok
}

// wildName returns the variable name of a wildcard segment.
func wildName(seg string) (string, bool) {
	switch {
	case len(seg) > 1 && seg[0] == ':':
		return seg[1:], true
	case len(seg) > 2 && seg[0] == '{' && seg[len(seg)-1] == '}':
		return seg[1 : len(seg)-1], true
	}
	return "", false
}
