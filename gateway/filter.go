package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"golang.org/x/time/rate"

	"github.com/mofa-org/mofa-go/core"
)

// Well-known filter order slots. Any int is accepted; these mark the
// standard phases. Equal orders keep registration order.
const (
	OrderPreAuth     = 0
	OrderAuth        = 100
	OrderRateLimit   = 200
	OrderTransform   = 300
	OrderLogging     = 400
	OrderPostProcess = 500
)

// FilterAction tells the chain what to do after a filter ran. A nil
// ShortCircuit continues to the next filter.
type FilterAction struct {
	ShortCircuit *GatewayResponse
}

// Continue passes the request to the next filter or the backend.
func Continue() FilterAction { return FilterAction{} }

// ShortCircuit stops the chain and returns the response immediately.
func ShortCircuit(resp *GatewayResponse) FilterAction {
	return FilterAction{ShortCircuit: resp}
}

// Filter is one stage in the gateway pipeline. Implementations must be
// safe for concurrent use.
type Filter interface {
	// Name identifies the filter in config and logs.
	Name() string
	// Order positions the filter in the chain, lower first.
	Order() int
	// Apply runs on the request path. It may mutate the context.
	Apply(ctx context.Context, gc *GatewayContext) (FilterAction, error)
	// OnResponse runs on the response path, in reverse chain order.
	OnResponse(ctx context.Context, gc *GatewayContext, resp *GatewayResponse) error
}

// FilterChain is an ordered set of filters. Request-path execution runs
// ascending by order; the response path runs descending.
type FilterChain struct {
	filters []Filter
}

// NewFilterChain sorts the given filters into a chain.
func NewFilterChain(filters ...Filter) *FilterChain {
	sorted := append([]Filter(nil), filters...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Order() < sorted[j].Order()
	})
	return &FilterChain{filters: sorted}
}

// Filters returns the chain in request-path order.
func (c *FilterChain) Filters() []Filter { return c.filters }

// Apply runs the request path. A short-circuit response stops the chain
// and is returned; a filter error stops the chain and is wrapped with the
// filter's name.
func (c *FilterChain) Apply(ctx context.Context, gc *GatewayContext) (*GatewayResponse, error) {
	for _, f := range c.filters {
		action, err := f.Apply(ctx, gc)
		if err != nil {
			return nil, core.WrapError(core.KindOf(err), err, "filter %s", f.Name())
		}
		if action.ShortCircuit != nil {
			return action.ShortCircuit, nil
		}
	}
	return nil, nil
}

// OnResponse runs the response path in reverse order.
func (c *FilterChain) OnResponse(ctx context.Context, gc *GatewayContext, resp *GatewayResponse) error {
	for i := len(c.filters) - 1; i >= 0; i-- {
		f := c.filters[i]
		if err := f.OnResponse(ctx, gc, resp); err != nil {
			return core.WrapError(core.KindOf(err), err, "filter %s", f.Name())
		}
	}
	return nil
}

// BaseFilter provides no-op defaults so filters only implement the hooks
// they need.
type BaseFilter struct{}

// OnResponse does nothing.
func (BaseFilter) OnResponse(context.Context, *GatewayContext, *GatewayResponse) error {
	return nil
}

// RateLimitFilter throttles admissions with a token bucket. Requests
// beyond the burst are rejected with a backpressure error, which the HTTP
// adapter maps to 429.
type RateLimitFilter struct {
	BaseFilter
	limiter *rate.Limiter
}

// NewRateLimitFilter builds a filter from a validated rate-limit config.
func NewRateLimitFilter(config RateLimitConfig) *RateLimitFilter {
	return &RateLimitFilter{
		limiter: rate.NewLimiter(rate.Limit(config.RatePerSecond), config.Burst),
	}
}

func (f *RateLimitFilter) Name() string { return "rate_limit" }

func (f *RateLimitFilter) Order() int { return OrderRateLimit }

// Apply admits the request if a token is available.
func (f *RateLimitFilter) Apply(_ context.Context, gc *GatewayContext) (FilterAction, error) {
	if !f.limiter.Allow() {
		return FilterAction{}, core.NewError(core.KindBackpressure, "request %s rejected by rate limit", gc.Request.ID)
	}
	return Continue(), nil
}

// HealthGateFilter rejects requests whose matched backend is unhealthy.
// It runs after routing, so it requires the context to carry a match.
type HealthGateFilter struct {
	BaseFilter
	registry *CapabilityRegistry
}

// NewHealthGateFilter builds a health gate over a registry.
func NewHealthGateFilter(registry *CapabilityRegistry) *HealthGateFilter {
	return &HealthGateFilter{registry: registry}
}

func (f *HealthGateFilter) Name() string { return "health_gate" }

func (f *HealthGateFilter) Order() int { return OrderPostProcess }

// Apply checks the matched backend's last-known health.
func (f *HealthGateFilter) Apply(_ context.Context, gc *GatewayContext) (FilterAction, error) {
	if gc.Match == nil {
		return Continue(), nil
	}
	backend, ok := f.registry.Lookup(gc.Match.BackendID)
	if !ok {
		return FilterAction{}, core.NewError(core.KindBackendUnavailable, "backend %s is not registered", gc.Match.BackendID)
	}
	if backend.Health.State == HealthUnhealthy {
		return FilterAction{}, core.NewError(core.KindBackendUnavailable, "backend %s is unhealthy: %s", backend.ID, backend.Health.Reason)
	}
	return Continue(), nil
}

// HeaderAuthFilter resolves the auth principal from a request header.
// When Required is set, requests without the header are short-circuited
// with 401.
type HeaderAuthFilter struct {
	BaseFilter
	// Header is the lowercased header name carrying the principal.
	Header string
	// Required rejects requests missing the header.
	Required bool
}

func (f *HeaderAuthFilter) Name() string { return "header_auth" }

func (f *HeaderAuthFilter) Order() int { return OrderAuth }

// Apply binds the header value as the principal.
func (f *HeaderAuthFilter) Apply(_ context.Context, gc *GatewayContext) (FilterAction, error) {
	principal, ok := gc.Request.Headers[f.Header]
	if !ok || principal == "" {
		if f.Required {
			resp := NewGatewayResponse(http.StatusUnauthorized, "").
				WithBody([]byte(fmt.Sprintf("missing %s header", f.Header)))
			return ShortCircuit(resp), nil
		}
		return Continue(), nil
	}
	gc.Principal = principal
	return Continue(), nil
}
