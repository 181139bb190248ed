package gateway

import (
	"fmt"

	"github.com/mofa-org/mofa-go/core"
)

// Parameterless validation failures. Compare with errors.Is.
var (
	// ErrEmptyGatewayID rejects a blank gateway identifier.
	ErrEmptyGatewayID = core.NewError(core.KindConfiguration, "gateway id is empty")
	// ErrNoRoutes rejects a config without any routes.
	ErrNoRoutes = core.NewError(core.KindConfiguration, "gateway declares no routes")
	// ErrNoBackends rejects a config without any backends.
	ErrNoBackends = core.NewError(core.KindConfiguration, "gateway declares no backends")
	// ErrZeroTimeout rejects a zero global request timeout.
	ErrZeroTimeout = core.NewError(core.KindConfiguration, "gateway request timeout is zero")
	// ErrEmptyFilterChain rejects a declared but empty filter chain.
	ErrEmptyFilterChain = core.NewError(core.KindConfiguration, "filter chain is declared but empty")
	// ErrBurstBelowRate rejects a rate limit whose burst is below its rate.
	ErrBurstBelowRate = core.NewError(core.KindConfiguration, "rate limit burst is below the sustained rate")

	// ErrNoRoute is returned when no route pattern matches a request path.
	ErrNoRoute = core.NewError(core.KindRouting, "no route matches the request path")
	// ErrMethodNotAllowed is returned when a path matches but its method
	// set does not.
	ErrMethodNotAllowed = core.NewError(core.KindRouting, "route does not accept the request method")
)

// errInvalidConfig anchors the parameterized validation errors in the
// taxonomy; unwrapping to it makes core.KindOf classify them as
// configuration failures.
var errInvalidConfig = core.NewError(core.KindConfiguration, "invalid gateway configuration")

// DuplicateBackendError reports two backends sharing one id.
type DuplicateBackendError struct {
	BackendID string
}

func (e *DuplicateBackendError) Error() string {
	return fmt.Sprintf("duplicate backend id %s", e.BackendID)
}

func (e *DuplicateBackendError) Unwrap() error { return errInvalidConfig }

// DuplicateRouteError reports two routes sharing one id.
type DuplicateRouteError struct {
	RouteID string
}

func (e *DuplicateRouteError) Error() string {
	return fmt.Sprintf("duplicate route id %s", e.RouteID)
}

func (e *DuplicateRouteError) Unwrap() error { return errInvalidConfig }

// UnknownBackendError reports a route forwarding to an undeclared backend.
type UnknownBackendError struct {
	RouteID   string
	BackendID string
}

func (e *UnknownBackendError) Error() string {
	return fmt.Sprintf("route %s forwards to unknown backend %s", e.RouteID, e.BackendID)
}

func (e *UnknownBackendError) Unwrap() error { return errInvalidConfig }

// InvalidRouteError reports a route failing its own sanity checks.
type InvalidRouteError struct {
	RouteID string
	Reason  string
}

func (e *InvalidRouteError) Error() string {
	return fmt.Sprintf("route %s: %s", e.RouteID, e.Reason)
}

func (e *InvalidRouteError) Unwrap() error { return errInvalidConfig }

// InvalidBackendError reports a backend failing its own sanity checks.
type InvalidBackendError struct {
	BackendID string
	Reason    string
}

func (e *InvalidBackendError) Error() string {
	return fmt.Sprintf("backend %s: %s", e.BackendID, e.Reason)
}

func (e *InvalidBackendError) Unwrap() error { return errInvalidConfig }

// BackendNotFoundError reports a registry operation on an absent backend.
type BackendNotFoundError struct {
	BackendID string
}

func (e *BackendNotFoundError) Error() string {
	return fmt.Sprintf("backend %s is not registered", e.BackendID)
}
