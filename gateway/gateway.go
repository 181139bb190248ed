package gateway

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mofa-org/mofa-go/core"
	"github.com/mofa-org/mofa-go/logging"
)

// Invoker forwards a routed request to its backend. Implementations own
// the protocol (HTTP proxy, LLM client, MCP call); the kernel only routes.
type Invoker interface {
	Invoke(ctx context.Context, backend CapabilityDescriptor, match *RouteMatch, req *GatewayRequest) (*GatewayResponse, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, backend CapabilityDescriptor, match *RouteMatch, req *GatewayRequest) (*GatewayResponse, error)

// Invoke calls the function.
func (f InvokerFunc) Invoke(ctx context.Context, backend CapabilityDescriptor, match *RouteMatch, req *GatewayRequest) (*GatewayResponse, error) {
	return f(ctx, backend, match, req)
}

// Options configures a gateway.
type Options struct {
	// Logger receives request diagnostics.
	Logger logging.Logger
	// Filters is the set of available filters. When the config names a
	// filter chain, filters are selected from this set by name in chain
	// order; otherwise all of them run sorted by order slot.
	Filters []Filter
	// Invoker forwards matched requests to backends.
	Invoker Invoker
	// Registerer receives the prometheus collectors; nil disables export.
	Registerer prometheus.Registerer
}

// Gateway is a validated, compiled gateway kernel. It binds no sockets;
// HTTPAdapter or any other front drives Handle.
type Gateway struct {
	config   GatewayConfig
	router   *TemplateRouter
	registry *CapabilityRegistry
	chain    *FilterChain
	invoker  Invoker
	logger   logging.Logger

	requestsCtr *prometheus.CounterVec
}

// NewGateway validates the config and compiles the runtime pieces. Nothing
// is allocated before validation passes.
func NewGateway(config GatewayConfig, optFns ...func(o *Options)) (*Gateway, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	router := NewTemplateRouter(config.RequestTimeout)
	for _, route := range config.Routes {
		if err := router.Register(route); err != nil {
			return nil, err
		}
	}

	registry := NewCapabilityRegistry()
	for _, backend := range config.Backends {
		if err := registry.Register(backend); err != nil {
			return nil, err
		}
	}

	available := append([]Filter(nil), opts.Filters...)
	if config.RateLimit != nil {
		available = append(available, NewRateLimitFilter(*config.RateLimit))
	}
	chain, err := bindFilterChain(config, available)
	if err != nil {
		return nil, err
	}

	g := &Gateway{
		config:   config,
		router:   router,
		registry: registry,
		chain:    chain,
		invoker:  opts.Invoker,
		logger:   opts.Logger,
		requestsCtr: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mofa", Subsystem: "gateway", Name: "requests_total",
			Help:        "Requests by route and outcome.",
			ConstLabels: prometheus.Labels{"gateway": config.ID},
		}, []string{"route", "status"}),
	}
	if opts.Registerer != nil {
		opts.Registerer.MustRegister(g.requestsCtr)
	}
	return g, nil
}

// bindFilterChain resolves configured filter names against the available
// set, or takes all available filters when no chain is configured.
func bindFilterChain(config GatewayConfig, available []Filter) (*FilterChain, error) {
	if config.FilterChain == nil {
		return NewFilterChain(available...), nil
	}
	byName := make(map[string]Filter, len(available))
	for _, f := range available {
		byName[f.Name()] = f
	}
	selected := make([]Filter, 0, len(config.FilterChain))
	for _, name := range config.FilterChain {
		f, ok := byName[name]
		if !ok {
			return nil, core.NewError(core.KindConfiguration, "filter chain names unknown filter %s", name)
		}
		selected = append(selected, f)
	}
	return NewFilterChain(selected...), nil
}

// Config returns the validated configuration.
func (g *Gateway) Config() GatewayConfig { return g.config }

// Router returns the compiled router.
func (g *Gateway) Router() Router { return g.router }

// Registry returns the capability registry, shared with the health loop.
func (g *Gateway) Registry() *CapabilityRegistry { return g.registry }

// Chain returns the bound filter chain.
func (g *Gateway) Chain() *FilterChain { return g.chain }

// Handle drives one request through the kernel: filter chain, route
// lookup, health gate, backend invocation, response filters.
func (g *Gateway) Handle(ctx context.Context, req *GatewayRequest) (*GatewayResponse, error) {
	gc := NewGatewayContext(req)

	short, err := g.chain.Apply(ctx, gc)
	if err != nil {
		g.count("", err)
		return nil, err
	}
	if short != nil {
		g.requestsCtr.WithLabelValues("", strconv.Itoa(short.Status)).Inc()
		return short, nil
	}

	match, err := g.router.Resolve(req.Path, req.Method)
	if err != nil {
		g.count("", err)
		g.logger.Debug("no route", "gateway", g.config.ID, "path", req.Path, "method", req.Method)
		return nil, err
	}
	gc.Match = match

	backend, ok := g.registry.Lookup(match.BackendID)
	if !ok {
		err := core.NewError(core.KindInternal, "route %s resolved to unregistered backend %s", match.RouteID, match.BackendID)
		g.count(match.RouteID, err)
		return nil, err
	}
	if backend.Health.State == HealthUnhealthy {
		err := core.NewError(core.KindBackendUnavailable, "backend %s is unhealthy: %s", backend.ID, backend.Health.Reason)
		g.count(match.RouteID, err)
		return nil, err
	}

	if g.invoker == nil {
		err := core.NewError(core.KindConfiguration, "gateway %s has no invoker", g.config.ID)
		g.count(match.RouteID, err)
		return nil, err
	}

	invokeCtx := ctx
	if match.TimeoutMS > 0 {
		var cancel context.CancelFunc
		invokeCtx, cancel = context.WithTimeout(ctx, time.Duration(match.TimeoutMS)*time.Millisecond)
		defer cancel()
	}

	started := time.Now()
	resp, err := g.invoker.Invoke(invokeCtx, backend, match, req)
	if err != nil {
		if invokeCtx.Err() == context.DeadlineExceeded {
			err = core.WrapError(core.KindTimeout, err, "backend %s deadline exceeded", backend.ID)
		}
		g.count(match.RouteID, err)
		g.logger.Warn("backend call failed", "gateway", g.config.ID, "route", match.RouteID, "backend", backend.ID, "error", err)
		return nil, err
	}
	resp.BackendID = backend.ID
	resp.LatencyMS = time.Since(started).Milliseconds()

	if err := g.chain.OnResponse(ctx, gc, resp); err != nil {
		g.count(match.RouteID, err)
		return nil, err
	}

	g.requestsCtr.WithLabelValues(match.RouteID, strconv.Itoa(resp.Status)).Inc()
	return resp, nil
}

func (g *Gateway) count(route string, err error) {
	g.requestsCtr.WithLabelValues(route, strconv.Itoa(core.KindOf(err).HTTPStatus())).Inc()
}
