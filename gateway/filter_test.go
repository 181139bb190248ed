package gateway

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mofa-org/mofa-go/core"
)

type recordingFilter struct {
	BaseFilter
	name   string
	order  int
	log    *[]string
	action FilterAction
	err    error
}

func (f *recordingFilter) Name() string { return f.name }

func (f *recordingFilter) Order() int { return f.order }

func (f *recordingFilter) Apply(_ context.Context, _ *GatewayContext) (FilterAction, error) {
	*f.log = append(*f.log, f.name)
	return f.action, f.err
}

func (f *recordingFilter) OnResponse(_ context.Context, _ *GatewayContext, _ *GatewayResponse) error {
	*f.log = append(*f.log, f.name+":resp")
	return nil
}

func TestFilterChainRunsInOrderSlots(t *testing.T) {
	var log []string
	chain := NewFilterChain(
		&recordingFilter{name: "logging", order: OrderLogging, log: &log},
		&recordingFilter{name: "pre", order: OrderPreAuth, log: &log},
		&recordingFilter{name: "auth", order: OrderAuth, log: &log},
	)

	gc := NewGatewayContext(NewGatewayRequest("r1", "/x", http.MethodGet))
	short, err := chain.Apply(context.Background(), gc)
	require.NoError(t, err)
	assert.Nil(t, short)
	assert.Equal(t, []string{"pre", "auth", "logging"}, log)
}

func TestFilterChainEqualOrderKeepsRegistration(t *testing.T) {
	var log []string
	chain := NewFilterChain(
		&recordingFilter{name: "a", order: OrderAuth, log: &log},
		&recordingFilter{name: "b", order: OrderAuth, log: &log},
	)

	gc := NewGatewayContext(NewGatewayRequest("r1", "/x", http.MethodGet))
	_, err := chain.Apply(context.Background(), gc)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, log)
}

func TestFilterChainShortCircuit(t *testing.T) {
	var log []string
	reject := NewGatewayResponse(http.StatusForbidden, "").WithBody([]byte("denied"))
	chain := NewFilterChain(
		&recordingFilter{name: "gate", order: OrderAuth, log: &log, action: ShortCircuit(reject)},
		&recordingFilter{name: "after", order: OrderTransform, log: &log},
	)

	gc := NewGatewayContext(NewGatewayRequest("r1", "/x", http.MethodGet))
	short, err := chain.Apply(context.Background(), gc)
	require.NoError(t, err)
	require.NotNil(t, short)
	assert.Equal(t, http.StatusForbidden, short.Status)
	assert.Equal(t, []string{"gate"}, log, "downstream filter must not run")
}

func TestFilterChainErrorNamesFilter(t *testing.T) {
	var log []string
	chain := NewFilterChain(&recordingFilter{
		name:  "broken",
		order: OrderAuth,
		log:   &log,
		err:   core.NewError(core.KindExecution, "boom"),
	})

	gc := NewGatewayContext(NewGatewayRequest("r1", "/x", http.MethodGet))
	_, err := chain.Apply(context.Background(), gc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "filter broken")
	assert.Equal(t, core.KindExecution, core.KindOf(err))
}

func TestFilterChainResponsePathReversed(t *testing.T) {
	var log []string
	chain := NewFilterChain(
		&recordingFilter{name: "first", order: OrderPreAuth, log: &log},
		&recordingFilter{name: "last", order: OrderLogging, log: &log},
	)

	gc := NewGatewayContext(NewGatewayRequest("r1", "/x", http.MethodGet))
	resp := NewGatewayResponse(http.StatusOK, "b")
	require.NoError(t, chain.OnResponse(context.Background(), gc, resp))
	assert.Equal(t, []string{"last:resp", "first:resp"}, log)
}

func TestRateLimitFilterRejectsBeyondBurst(t *testing.T) {
	f := NewRateLimitFilter(RateLimitConfig{RatePerSecond: 1, Burst: 2})
	gc := NewGatewayContext(NewGatewayRequest("r1", "/x", http.MethodGet))

	for i := 0; i < 2; i++ {
		action, err := f.Apply(context.Background(), gc)
		require.NoError(t, err)
		assert.Nil(t, action.ShortCircuit)
	}

	_, err := f.Apply(context.Background(), gc)
	require.Error(t, err)
	assert.Equal(t, core.KindBackpressure, core.KindOf(err))
	assert.Equal(t, http.StatusTooManyRequests, core.KindOf(err).HTTPStatus())
}

func TestHealthGateFilter(t *testing.T) {
	registry := NewCapabilityRegistry()
	require.NoError(t, registry.Register(NewBackend("up", BackendHTTP, "http://up.internal")))
	require.NoError(t, registry.Register(NewBackend("down", BackendHTTP, "http://down.internal")))
	require.NoError(t, registry.UpdateHealth("down", Unhealthy("connect refused")))

	f := NewHealthGateFilter(registry)

	gc := NewGatewayContext(NewGatewayRequest("r1", "/x", http.MethodGet))
	gc.Match = &RouteMatch{RouteID: "r", BackendID: "up"}
	_, err := f.Apply(context.Background(), gc)
	assert.NoError(t, err)

	gc.Match.BackendID = "down"
	_, err = f.Apply(context.Background(), gc)
	require.Error(t, err)
	assert.Equal(t, core.KindBackendUnavailable, core.KindOf(err))

	// No match yet means nothing to gate.
	gc.Match = nil
	_, err = f.Apply(context.Background(), gc)
	assert.NoError(t, err)
}

func TestHeaderAuthFilter(t *testing.T) {
	f := &HeaderAuthFilter{Header: "x-api-key", Required: true}

	gc := NewGatewayContext(NewGatewayRequest("r1", "/x", http.MethodGet).WithHeader("X-Api-Key", "caller-1"))
	action, err := f.Apply(context.Background(), gc)
	require.NoError(t, err)
	assert.Nil(t, action.ShortCircuit)
	assert.Equal(t, "caller-1", gc.Principal)

	anon := NewGatewayContext(NewGatewayRequest("r2", "/x", http.MethodGet))
	action, err = f.Apply(context.Background(), anon)
	require.NoError(t, err)
	require.NotNil(t, action.ShortCircuit)
	assert.Equal(t, http.StatusUnauthorized, action.ShortCircuit.Status)

	optional := &HeaderAuthFilter{Header: "x-api-key"}
	action, err = optional.Apply(context.Background(), anon)
	require.NoError(t, err)
	assert.Nil(t, action.ShortCircuit)
	assert.Empty(t, anon.Principal)
}
