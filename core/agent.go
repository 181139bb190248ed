package core

import (
	"context"
)

// Agent is the unit of autonomous work addressable by id. The runtime
// guarantees that Execute and HandleMessage are serialised per agent id; a
// single agent never observes two concurrent calls.
//
// Implementations must:
//   - Respect context cancellation for graceful shutdown
//   - Return taxonomy errors (core.Error) for failures callers branch on
//   - Treat HandleMessage as the inbox: messages arrive in send order
type Agent interface {
	// ID returns the unique agent identifier.
	ID() string
	// Metadata describes the agent for registry and routing decisions.
	Metadata() AgentMetadata
	// Initialize prepares the agent for work. Called once before Ready.
	Initialize(ctx context.Context) error
	// Execute performs a task and returns its response.
	Execute(ctx context.Context, req AgentMessage) (AgentMessage, error)
	// HandleMessage processes a non-task message from the bus.
	HandleMessage(ctx context.Context, msg AgentMessage) error
	// Shutdown releases resources. Called once during drain.
	Shutdown(ctx context.Context) error
}

// AgentMetadata identifies and describes an agent.
type AgentMetadata struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Description  string            `json:"description,omitempty"`
	Version      string            `json:"version,omitempty"`
	Capabilities AgentCapabilities `json:"capabilities"`
}

// AgentCapabilities advertises what an agent can do; the registry indexes
// tags and reasoning strategies for discovery.
type AgentCapabilities struct {
	Tags                []string `json:"tags,omitempty"`
	ReasoningStrategies []string `json:"reasoning_strategies,omitempty"`
	InputTypes          []string `json:"input_types,omitempty"`
	OutputTypes         []string `json:"output_types,omitempty"`
	SupportsStreaming   bool     `json:"supports_streaming,omitempty"`
	SupportsTools       bool     `json:"supports_tools,omitempty"`
	SupportsVision      bool     `json:"supports_vision,omitempty"`
}

// HasTag reports whether the capability set carries the given tag.
func (c AgentCapabilities) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// AgentState is the lifecycle state machine position of an agent.
type AgentState struct {
	Phase AgentPhase `json:"phase"`
	// Reason carries the error description when Phase is PhaseError.
	Reason string `json:"reason,omitempty"`
}

// AgentPhase enumerates the lifecycle phases.
type AgentPhase string

const (
	// PhaseCreated is the initial phase after construction.
	PhaseCreated AgentPhase = "created"
	// PhaseInitializing means Initialize is in progress.
	PhaseInitializing AgentPhase = "initializing"
	// PhaseReady means the agent accepts work.
	PhaseReady AgentPhase = "ready"
	// PhaseBusy means a task is executing.
	PhaseBusy AgentPhase = "busy"
	// PhasePaused means the agent is suspended and resumable.
	PhasePaused AgentPhase = "paused"
	// PhaseShuttingDown means drain is in progress.
	PhaseShuttingDown AgentPhase = "shutting_down"
	// PhaseShutdown is a terminal phase.
	PhaseShutdown AgentPhase = "shutdown"
	// PhaseError is a terminal phase carrying a reason.
	PhaseError AgentPhase = "error"
)

// StateCreated is the initial state for a newly registered agent.
func StateCreated() AgentState { return AgentState{Phase: PhaseCreated} }

// StateError builds the error state with a reason.
func StateError(reason string) AgentState { return AgentState{Phase: PhaseError, Reason: reason} }

// CanTransitionTo reports whether the lifecycle permits moving to the target
// phase. ShuttingDown and Error are reachable from any non-terminal phase.
func (s AgentState) CanTransitionTo(target AgentPhase) bool {
	if s.Phase == target {
		return false
	}
	switch target {
	case PhaseError:
		return s.Phase != PhaseShutdown
	case PhaseShuttingDown:
		return s.Phase != PhaseShutdown
	case PhaseShutdown:
		return s.Phase == PhaseShuttingDown
	}
	switch s.Phase {
	case PhaseCreated:
		return target == PhaseInitializing
	case PhaseInitializing:
		return target == PhaseReady
	case PhaseReady:
		return target == PhaseBusy || target == PhasePaused
	case PhaseBusy:
		return target == PhaseReady
	case PhasePaused:
		return target == PhaseReady
	default:
		return false
	}
}

// IsActive reports whether the agent can accept or is doing work.
func (s AgentState) IsActive() bool {
	return s.Phase == PhaseReady || s.Phase == PhaseBusy
}

// IsTerminal reports whether the agent has stopped for good. An errored
// agent is terminal for scheduling purposes but may still be shut down.
func (s AgentState) IsTerminal() bool {
	return s.Phase == PhaseShutdown || s.Phase == PhaseError
}

// AgentFactory constructs agents of one kind from opaque configuration. The
// registry dispatches Create calls by kind.
type AgentFactory interface {
	// Kind names the agent family this factory builds, e.g. "echo".
	Kind() string
	// Create builds a new agent from the given configuration values.
	Create(ctx context.Context, cfg map[string]any) (Agent, error)
}
