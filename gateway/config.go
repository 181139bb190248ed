package gateway

import (
	"strings"
	"time"
)

// DefaultRequestTimeout applies when a config does not set one.
const DefaultRequestTimeout = 30 * time.Second

// RateLimitConfig describes a token bucket: a sustained refill rate and a
// burst capacity that must be at least the rate.
type RateLimitConfig struct {
	RatePerSecond int `json:"rate_per_second" mapstructure:"rate_per_second"`
	Burst         int `json:"burst" mapstructure:"burst"`
}

func (c RateLimitConfig) validate() error {
	if c.Burst < c.RatePerSecond {
		return ErrBurstBelowRate
	}
	return nil
}

// RouteConfig maps a path template plus method set to a backend.
//
// Path templates accept {name} segments:
//
//	/v1/chat/completions
//	/v1/models/{model_id}
//	/v1/agents/{agent_id}/invoke
type RouteConfig struct {
	// ID is the unique stable route identifier.
	ID string `json:"id" mapstructure:"id"`
	// PathPattern is the URL template. Must begin with a slash.
	PathPattern string `json:"path_pattern" mapstructure:"path_pattern"`
	// Methods restricts the accepted HTTP verbs. Empty accepts all.
	Methods []string `json:"methods,omitempty" mapstructure:"methods"`
	// BackendID names the backend this route forwards to.
	BackendID string `json:"backend_id" mapstructure:"backend_id"`
	// Timeout overrides the gateway default when non-zero.
	Timeout time.Duration `json:"timeout,omitempty" mapstructure:"timeout_ms"`
	// Priority orders overlapping patterns, higher first.
	Priority int `json:"priority,omitempty" mapstructure:"priority"`
}

// NewRoute creates a route accepting all methods with the gateway default
// timeout.
func NewRoute(id, pathPattern, backendID string) RouteConfig {
	return RouteConfig{ID: id, PathPattern: pathPattern, BackendID: backendID}
}

// WithMethods restricts the route to the given HTTP verbs.
func (r RouteConfig) WithMethods(methods ...string) RouteConfig {
	r.Methods = make([]string, len(methods))
	for i, m := range methods {
		r.Methods[i] = strings.ToUpper(m)
	}
	return r
}

// WithTimeout sets a per-route timeout.
func (r RouteConfig) WithTimeout(d time.Duration) RouteConfig {
	r.Timeout = d
	return r
}

// WithPriority sets the routing priority, higher evaluated first.
func (r RouteConfig) WithPriority(p int) RouteConfig {
	r.Priority = p
	return r
}

func (r RouteConfig) validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return &InvalidRouteError{RouteID: r.ID, Reason: "route id is empty"}
	}
	if strings.TrimSpace(r.PathPattern) == "" {
		return &InvalidRouteError{RouteID: r.ID, Reason: "path pattern is empty"}
	}
	if !strings.HasPrefix(r.PathPattern, "/") {
		return &InvalidRouteError{RouteID: r.ID, Reason: "path pattern must start with /"}
	}
	return nil
}

// GatewayConfig aggregates routes, backends, and global settings. Validate
// is the single gate before any runtime resource is built.
type GatewayConfig struct {
	// ID uniquely identifies this gateway instance.
	ID string `json:"id" mapstructure:"id"`
	// Routes are the routing rules.
	Routes []RouteConfig `json:"routes" mapstructure:"routes"`
	// Backends are the forwarding targets.
	Backends []CapabilityDescriptor `json:"backends" mapstructure:"backends"`
	// FilterChain names the filters applied to every request, in order.
	// Nil means no chain; a declared chain must not be empty.
	FilterChain []string `json:"filter_chain,omitempty" mapstructure:"filter_chain"`
	// RequestTimeout is the global default per-request deadline.
	RequestTimeout time.Duration `json:"request_timeout" mapstructure:"request_timeout_ms"`
	// RateLimit optionally throttles admissions.
	RateLimit *RateLimitConfig `json:"rate_limit,omitempty" mapstructure:"rate_limit"`
}

// NewGatewayConfig creates a config with the default request timeout.
func NewGatewayConfig(id string) GatewayConfig {
	return GatewayConfig{ID: id, RequestTimeout: DefaultRequestTimeout}
}

// WithRoute appends a route.
func (c GatewayConfig) WithRoute(route RouteConfig) GatewayConfig {
	c.Routes = append(c.Routes, route)
	return c
}

// WithBackend appends a backend descriptor.
func (c GatewayConfig) WithBackend(backend CapabilityDescriptor) GatewayConfig {
	c.Backends = append(c.Backends, backend)
	return c
}

// WithFilterChain sets the ordered filter names.
func (c GatewayConfig) WithFilterChain(names ...string) GatewayConfig {
	c.FilterChain = names
	return c
}

// WithRequestTimeout sets the global request deadline.
func (c GatewayConfig) WithRequestTimeout(d time.Duration) GatewayConfig {
	c.RequestTimeout = d
	return c
}

// WithRateLimit sets the admission rate limit.
func (c GatewayConfig) WithRateLimit(ratePerSecond, burst int) GatewayConfig {
	c.RateLimit = &RateLimitConfig{RatePerSecond: ratePerSecond, Burst: burst}
	return c
}

// Validate checks every structural invariant and returns the first
// violation. Checks run in a fixed order: gateway identity, route and
// backend presence, timeout, per-backend sanity and uniqueness, per-route
// sanity, uniqueness, and backend references, filter chain, rate limit.
func (c GatewayConfig) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return ErrEmptyGatewayID
	}
	if len(c.Routes) == 0 {
		return ErrNoRoutes
	}
	if len(c.Backends) == 0 {
		return ErrNoBackends
	}
	if c.RequestTimeout <= 0 {
		return ErrZeroTimeout
	}

	backendIDs := make(map[string]bool, len(c.Backends))
	for _, b := range c.Backends {
		if err := b.validate(); err != nil {
			return err
		}
		if backendIDs[b.ID] {
			return &DuplicateBackendError{BackendID: b.ID}
		}
		backendIDs[b.ID] = true
	}

	routeIDs := make(map[string]bool, len(c.Routes))
	for _, r := range c.Routes {
		if err := r.validate(); err != nil {
			return err
		}
		if routeIDs[r.ID] {
			return &DuplicateRouteError{RouteID: r.ID}
		}
		routeIDs[r.ID] = true
		if !backendIDs[r.BackendID] {
			return &UnknownBackendError{RouteID: r.ID, BackendID: r.BackendID}
		}
	}

	if c.FilterChain != nil && len(c.FilterChain) == 0 {
		return ErrEmptyFilterChain
	}
	if c.RateLimit != nil {
		if err := c.RateLimit.validate(); err != nil {
			return err
		}
	}
	return nil
}
