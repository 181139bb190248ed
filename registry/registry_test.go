package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mofa-org/mofa-go/core"
)

// stubAgent is a minimal agent for registry tests.
type stubAgent struct {
	md core.AgentMetadata
}

func newStubAgent(id string, tags, strategies []string) *stubAgent {
	return &stubAgent{md: core.AgentMetadata{
		ID:   id,
		Name: id,
		Capabilities: core.AgentCapabilities{
			Tags:                tags,
			ReasoningStrategies: strategies,
		},
	}}
}

func (a *stubAgent) ID() string                  { return a.md.ID }
func (a *stubAgent) Metadata() core.AgentMetadata { return a.md }
func (a *stubAgent) Initialize(context.Context) error { return nil }
func (a *stubAgent) Execute(_ context.Context, req core.AgentMessage) (core.AgentMessage, error) {
	return core.NewTaskResponse(req.TaskID, req.Content, core.TaskStatusSuccess), nil
}
func (a *stubAgent) HandleMessage(context.Context, core.AgentMessage) error { return nil }
func (a *stubAgent) Shutdown(context.Context) error                         { return nil }

type stubFactory struct{}

func (stubFactory) Kind() string { return "stub" }
func (stubFactory) Create(_ context.Context, cfg map[string]any) (core.Agent, error) {
	id, _ := cfg["id"].(string)
	if id == "" {
		return nil, core.NewError(core.KindConfiguration, "missing id")
	}
	return newStubAgent(id, nil, nil), nil
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(newStubAgent("a1", nil, nil)))

	got, ok := r.Get("a1")
	require.True(t, ok)
	assert.Equal(t, "a1", got.ID())

	md, ok := r.Metadata("a1")
	require.True(t, ok)
	assert.Equal(t, "a1", md.Name)

	state, ok := r.State("a1")
	require.True(t, ok)
	assert.Equal(t, core.PhaseCreated, state.Phase)

	assert.Equal(t, 1, r.Count())
	assert.Equal(t, []string{"a1"}, r.List())
}

func TestRegistry_DuplicateRegistrationFails(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(newStubAgent("a1", nil, nil)))

	err := r.Register(newStubAgent("a1", nil, nil))
	require.Error(t, err)
	assert.Equal(t, core.KindConfiguration, core.KindOf(err))
}

func TestRegistry_Deregister(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(newStubAgent("a1", []string{"nlp"}, nil)))
	require.NoError(t, r.Deregister("a1"))

	_, ok := r.Get("a1")
	assert.False(t, ok)
	assert.Empty(t, r.FindByTag("nlp"))

	err := r.Deregister("a1")
	require.Error(t, err)
	assert.Equal(t, core.KindRouting, core.KindOf(err))
}

func TestRegistry_StateTransitions(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(newStubAgent("a1", nil, nil)))

	require.NoError(t, r.SetState("a1", core.AgentState{Phase: core.PhaseInitializing}))
	require.NoError(t, r.SetState("a1", core.AgentState{Phase: core.PhaseReady}))
	require.NoError(t, r.SetState("a1", core.AgentState{Phase: core.PhaseBusy}))
	require.NoError(t, r.SetState("a1", core.AgentState{Phase: core.PhaseReady}))

	// Ready cannot jump straight to Shutdown.
	err := r.SetState("a1", core.AgentState{Phase: core.PhaseShutdown})
	require.Error(t, err)
	assert.Equal(t, core.KindInternal, core.KindOf(err))

	require.NoError(t, r.SetState("a1", core.AgentState{Phase: core.PhaseShuttingDown}))
	require.NoError(t, r.SetState("a1", core.AgentState{Phase: core.PhaseShutdown}))

	snap := r.HealthSnapshot()
	assert.Equal(t, core.PhaseShutdown, snap["a1"].Phase)
}

func TestRegistry_SetPhase(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(newStubAgent("a1", nil, nil)))

	require.NoError(t, r.SetPhase("a1", core.PhaseInitializing))
	require.NoError(t, r.SetPhase("a1", core.PhaseReady))

	state, ok := r.State("a1")
	require.True(t, ok)
	assert.Equal(t, core.PhaseReady, state.Phase)
	assert.Empty(t, state.Reason)

	require.NoError(t, r.SetState("a1", core.StateError("broker unreachable")))
	state, _ = r.State("a1")
	assert.Equal(t, core.PhaseError, state.Phase)
	assert.Equal(t, "broker unreachable", state.Reason)

	err := r.SetPhase("ghost", core.PhaseReady)
	require.Error(t, err)
	assert.Equal(t, core.KindRouting, core.KindOf(err))
}

func TestRegistry_CapabilityIndex(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(newStubAgent("a1", []string{"nlp", "vision"}, []string{"cot"})))
	require.NoError(t, r.Register(newStubAgent("a2", []string{"nlp"}, []string{"react"})))
	require.NoError(t, r.Register(newStubAgent("a3", []string{"vision"}, []string{"cot"})))

	assert.Equal(t, []string{"a1", "a2"}, r.FindByTag("nlp"))
	assert.Equal(t, []string{"a1"}, r.FindByTags([]string{"nlp", "vision"}))
	assert.Empty(t, r.FindByTags(nil))
	assert.Equal(t, []string{"a1", "a3"}, r.FindByStrategy("cot"))
	assert.Empty(t, r.FindByTag("audio"))
}

func TestRegistry_FactoryCreation(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterFactory(stubFactory{}))

	err := r.RegisterFactory(stubFactory{})
	require.Error(t, err)

	agent, err := r.Create(context.Background(), "stub", map[string]any{"id": "made"})
	require.NoError(t, err)
	assert.Equal(t, "made", agent.ID())

	_, err = r.Create(context.Background(), "unknown", nil)
	require.Error(t, err)
	assert.Equal(t, core.KindConfiguration, core.KindOf(err))
}

func TestRegistry_ExecuteSerialized(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(newStubAgent("a1", nil, nil)))

	var mu sync.Mutex
	active := 0
	maxActive := 0

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := r.ExecuteSerialized("a1", func(core.Agent) error {
				mu.Lock()
				active++
				if active > maxActive {
					maxActive = active
				}
				mu.Unlock()

				time.Sleep(2 * time.Millisecond)

				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive, "calls for one agent id must be serialised")
}
