package gateway

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Router resolves (path, method) pairs to route matches. Lookups are pure
// in-memory work, no I/O on the hot path.
type Router interface {
	// Register adds a route. Duplicate ids are rejected.
	Register(route RouteConfig) error
	// Resolve returns the best match for a path and method, ErrNoRoute
	// when no pattern matches, or ErrMethodNotAllowed when a pattern
	// matches but its method set does not.
	Resolve(path, method string) (*RouteMatch, error)
	// Routes returns registered routes sorted by descending priority.
	Routes() []RouteConfig
	// Deregister removes a route by id.
	Deregister(routeID string) error
}

// TemplateRouter matches {name} path templates segment by segment. Higher
// priority routes win; equal priorities keep registration order.
type TemplateRouter struct {
	mu             sync.RWMutex
	routes         []templateRoute
	defaultTimeout time.Duration
}

type templateRoute struct {
	config   RouteConfig
	segments []string
	seq      int
}

// NewTemplateRouter creates a router. defaultTimeout fills RouteMatch
// timeouts for routes that set none.
func NewTemplateRouter(defaultTimeout time.Duration) *TemplateRouter {
	return &TemplateRouter{defaultTimeout: defaultTimeout}
}

// Register adds a route.
func (r *TemplateRouter) Register(route RouteConfig) error {
	if err := route.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.routes {
		if existing.config.ID == route.ID {
			return &DuplicateRouteError{RouteID: route.ID}
		}
	}
	r.routes = append(r.routes, templateRoute{
		config:   route,
		segments: splitPath(route.PathPattern),
		seq:      len(r.routes),
	})
	r.sortLocked()
	return nil
}

// Deregister removes a route by id.
func (r *TemplateRouter) Deregister(routeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.routes {
		if existing.config.ID == routeID {
			r.routes = append(r.routes[:i], r.routes[i+1:]...)
			return nil
		}
	}
	return &InvalidRouteError{RouteID: routeID, Reason: "route is not registered"}
}

// Routes returns the registered routes in evaluation order.
func (r *TemplateRouter) Routes() []RouteConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RouteConfig, len(r.routes))
	for i, tr := range r.routes {
		out[i] = tr.config
	}
	return out
}

// Resolve finds the highest-priority route matching path and method.
func (r *TemplateRouter) Resolve(path, method string) (*RouteMatch, error) {
	method = strings.ToUpper(method)
	segments := splitPath(path)

	r.mu.RLock()
	defer r.mu.RUnlock()

	pathMatched := false
	for _, tr := range r.routes {
		params, ok := matchSegments(tr.segments, segments)
		if !ok {
			continue
		}
		pathMatched = true
		if !methodAllowed(tr.config.Methods, method) {
			continue
		}
		timeout := tr.config.Timeout
		if timeout <= 0 {
			timeout = r.defaultTimeout
		}
		return &RouteMatch{
			RouteID:    tr.config.ID,
			BackendID:  tr.config.BackendID,
			PathParams: params,
			TimeoutMS:  timeout.Milliseconds(),
		}, nil
	}
	if pathMatched {
		return nil, ErrMethodNotAllowed
	}
	return nil, ErrNoRoute
}

// sortLocked orders routes by descending priority, registration order
// breaking ties.
func (r *TemplateRouter) sortLocked() {
	sort.SliceStable(r.routes, func(i, j int) bool {
		if r.routes[i].config.Priority != r.routes[j].config.Priority {
			return r.routes[i].config.Priority > r.routes[j].config.Priority
		}
		return r.routes[i].seq < r.routes[j].seq
	})
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// matchSegments binds {name} template segments against path segments.
func matchSegments(pattern, path []string) (map[string]string, bool) {
	if len(pattern) != len(path) {
		return nil, false
	}
	params := map[string]string{}
	for i, seg := range pattern {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			params[seg[1:len(seg)-1]] = path[i]
			continue
		}
		if seg != path[i] {
			return nil, false
		}
	}
	return params, true
}

func methodAllowed(methods []string, method string) bool {
	if len(methods) == 0 {
		return true
	}
	for _, m := range methods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}
