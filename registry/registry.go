package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mofa-org/mofa-go/core"
	"github.com/mofa-org/mofa-go/logging"
)

// entry pairs a registered agent with its bookkeeping.
type entry struct {
	agent        core.Agent
	metadata     core.AgentMetadata
	state        core.AgentState
	registeredAt time.Time
	// execMu serialises Execute and HandleMessage for this agent id.
	execMu *sync.Mutex
}

// Options configures an AgentRegistry.
type Options struct {
	// Logger receives registration and lifecycle diagnostics.
	Logger logging.Logger
}

// AgentRegistry owns the agent handles: a reader-writer-locked map from
// agent id to agent, a capability index for discovery and a factory table
// for creation by kind.
type AgentRegistry struct {
	mu        sync.RWMutex
	agents    map[string]*entry
	index     *capabilityIndex
	factories map[string]core.AgentFactory
	logger    logging.Logger
}

// New creates an empty registry.
func New(optFns ...func(o *Options)) *AgentRegistry {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &AgentRegistry{
		agents:    map[string]*entry{},
		index:     newCapabilityIndex(),
		factories: map[string]core.AgentFactory{},
		logger:    opts.Logger,
	}
}

// Register adds an agent in the Created state. Registering an id twice is a
// configuration error.
func (r *AgentRegistry) Register(agent core.Agent) error {
	md := agent.Metadata()
	if md.ID == "" {
		return core.NewError(core.KindConfiguration, "agent metadata missing id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[md.ID]; exists {
		return core.NewError(core.KindConfiguration, "agent %s already registered", md.ID)
	}
	r.agents[md.ID] = &entry{
		agent:        agent,
		metadata:     md,
		state:        core.StateCreated(),
		registeredAt: time.Now(),
		execMu:       &sync.Mutex{},
	}
	r.index.add(md.ID, md.Capabilities)
	r.logger.Debug("agent registered", "agent_id", md.ID)
	return nil
}

// Deregister removes an agent and its index entries.
func (r *AgentRegistry) Deregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[id]; !exists {
		return core.NewError(core.KindRouting, "agent %s not registered", id)
	}
	delete(r.agents, id)
	r.index.remove(id)
	r.logger.Debug("agent deregistered", "agent_id", id)
	return nil
}

// Get returns the agent handle for an id.
func (r *AgentRegistry) Get(id string) (core.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.agents[id]
	if !ok {
		return nil, false
	}
	return e.agent, true
}

// Has reports whether an agent id is registered.
func (r *AgentRegistry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.agents[id]
	return ok
}

// Metadata returns the stored metadata for an id.
func (r *AgentRegistry) Metadata(id string) (core.AgentMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.agents[id]
	if !ok {
		return core.AgentMetadata{}, false
	}
	return e.metadata, true
}

// List returns all registered agent ids, sorted for determinism.
func (r *AgentRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of registered agents.
func (r *AgentRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// State returns the lifecycle state for an id.
func (r *AgentRegistry) State(id string) (core.AgentState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.agents[id]
	if !ok {
		return core.AgentState{}, false
	}
	return e.state, true
}

// SetState transitions an agent's lifecycle state, enforcing the transition
// table.
func (r *AgentRegistry) SetState(id string, target core.AgentState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.agents[id]
	if !ok {
		return core.NewError(core.KindRouting, "agent %s not registered", id)
	}
	if !e.state.CanTransitionTo(target.Phase) {
		return core.NewError(core.KindInternal, "agent %s cannot transition %s -> %s", id, e.state.Phase, target.Phase)
	}
	e.state = target
	return nil
}

// SetPhase transitions an agent to a phase with no reason attached.
// Shorthand for SetState with a bare AgentState.
func (r *AgentRegistry) SetPhase(id string, phase core.AgentPhase) error {
	return r.SetState(id, core.AgentState{Phase: phase})
}

// HealthSnapshot returns the lifecycle state of every registered agent.
func (r *AgentRegistry) HealthSnapshot() map[string]core.AgentState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]core.AgentState, len(r.agents))
	for id, e := range r.agents {
		out[id] = e.state
	}
	return out
}

// FindByTag returns the ids of agents carrying the tag, sorted.
func (r *AgentRegistry) FindByTag(tag string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.index.findByTag(tag)
}

// FindByTags returns the ids of agents carrying every listed tag.
func (r *AgentRegistry) FindByTags(tags []string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.index.findByTags(tags)
}

// FindByStrategy returns the ids of agents advertising the reasoning
// strategy.
func (r *AgentRegistry) FindByStrategy(strategy string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.index.findByStrategy(strategy)
}

// RegisterFactory installs a factory for its kind. Re-registering a kind is
// a configuration error.
func (r *AgentRegistry) RegisterFactory(f core.AgentFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[f.Kind()]; exists {
		return core.NewError(core.KindConfiguration, "factory for kind %s already registered", f.Kind())
	}
	r.factories[f.Kind()] = f
	return nil
}

// Create builds an agent via the factory registered for kind. The agent is
// not registered; callers decide whether to Register it.
func (r *AgentRegistry) Create(ctx context.Context, kind string, cfg map[string]any) (core.Agent, error) {
	r.mu.RLock()
	f, ok := r.factories[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, core.NewError(core.KindConfiguration, "no factory for agent kind %s", kind)
	}
	return f.Create(ctx, cfg)
}

// ExecuteSerialized runs fn while holding the agent's per-id execution lock,
// guaranteeing that Execute and HandleMessage never run concurrently for a
// single agent.
func (r *AgentRegistry) ExecuteSerialized(id string, fn func(agent core.Agent) error) error {
	r.mu.RLock()
	e, ok := r.agents[id]
	r.mu.RUnlock()
	if !ok {
		return core.NewError(core.KindRouting, "agent %s not registered", id)
	}
	e.execMu.Lock()
	defer e.execMu.Unlock()
	return fn(e.agent)
}
