package gateway

import "strings"

// GatewayRequest is an inbound request flowing through the gateway. Header
// names are lowercased on insertion.
type GatewayRequest struct {
	// ID correlates the request across logs and traces.
	ID string
	// Path is the request path, e.g. /v1/chat/completions.
	Path string
	// Method is the uppercase HTTP verb.
	Method string
	// Headers are the request headers, names lowercased.
	Headers map[string]string
	// Body carries the raw request bytes.
	Body []byte
	// Metadata is free-form data attached by filters.
	Metadata map[string]any
}

// NewGatewayRequest creates a request with the given id, path, and method.
func NewGatewayRequest(id, path, method string) *GatewayRequest {
	return &GatewayRequest{
		ID:       id,
		Path:     path,
		Method:   strings.ToUpper(method),
		Headers:  map[string]string{},
		Metadata: map[string]any{},
	}
}

// WithHeader attaches a header, lowercasing its name.
func (r *GatewayRequest) WithHeader(key, value string) *GatewayRequest {
	r.Headers[strings.ToLower(key)] = value
	return r
}

// WithBody sets the request body.
func (r *GatewayRequest) WithBody(body []byte) *GatewayRequest {
	r.Body = body
	return r
}

// GatewayResponse is what a backend produced for a request.
type GatewayResponse struct {
	// Status is the HTTP status code.
	Status int
	// Headers are the response headers, names lowercased.
	Headers map[string]string
	// Body carries the raw response bytes.
	Body []byte
	// BackendID identifies which backend answered.
	BackendID string
	// LatencyMS is the gateway-observed round trip in milliseconds.
	LatencyMS int64
}

// NewGatewayResponse creates a response with the given status and backend.
func NewGatewayResponse(status int, backendID string) *GatewayResponse {
	return &GatewayResponse{
		Status:    status,
		Headers:   map[string]string{},
		BackendID: backendID,
	}
}

// WithHeader attaches a header, lowercasing its name.
func (r *GatewayResponse) WithHeader(key, value string) *GatewayResponse {
	r.Headers[strings.ToLower(key)] = value
	return r
}

// WithBody sets the response body.
func (r *GatewayResponse) WithBody(body []byte) *GatewayResponse {
	r.Body = body
	return r
}

// RouteMatch is the result of a successful route lookup.
type RouteMatch struct {
	// RouteID is the matched route.
	RouteID string
	// BackendID is the backend the route forwards to.
	BackendID string
	// PathParams binds {name} template segments to path values.
	PathParams map[string]string
	// TimeoutMS is the effective timeout for this request, the route's own
	// value or the gateway default.
	TimeoutMS int64
}

// GatewayContext flows through the filter chain for one request. Filters
// mutate it so downstream filters see upstream decisions.
type GatewayContext struct {
	// Request is the inbound request.
	Request *GatewayRequest
	// Match is set once routing has happened.
	Match *RouteMatch
	// Principal is the identity resolved by an auth filter, if any.
	Principal string
	// Attributes is free-form filter-to-filter state.
	Attributes map[string]any
}

// NewGatewayContext creates a fresh context for a request.
func NewGatewayContext(req *GatewayRequest) *GatewayContext {
	return &GatewayContext{Request: req, Attributes: map[string]any{}}
}
