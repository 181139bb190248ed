package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAgentState_TransitionTable(t *testing.T) {
	allowed := []struct{ from, to AgentPhase }{
		{PhaseCreated, PhaseInitializing},
		{PhaseInitializing, PhaseReady},
		{PhaseReady, PhaseBusy},
		{PhaseBusy, PhaseReady},
		{PhaseReady, PhasePaused},
		{PhasePaused, PhaseReady},
		{PhaseReady, PhaseShuttingDown},
		{PhaseBusy, PhaseShuttingDown},
		{PhaseError, PhaseShuttingDown},
		{PhaseShuttingDown, PhaseShutdown},
		{PhaseCreated, PhaseError},
		{PhaseBusy, PhaseError},
	}
	for _, tr := range allowed {
		assert.True(t, AgentState{Phase: tr.from}.CanTransitionTo(tr.to), "%s -> %s should be allowed", tr.from, tr.to)
	}

	denied := []struct{ from, to AgentPhase }{
		{PhaseCreated, PhaseReady},
		{PhaseReady, PhaseInitializing},
		{PhaseShutdown, PhaseReady},
		{PhaseShutdown, PhaseError},
		{PhaseShutdown, PhaseShuttingDown},
		{PhaseReady, PhaseShutdown},
		{PhasePaused, PhaseBusy},
	}
	for _, tr := range denied {
		assert.False(t, AgentState{Phase: tr.from}.CanTransitionTo(tr.to), "%s -> %s should be denied", tr.from, tr.to)
	}
}

func TestAgentState_Predicates(t *testing.T) {
	assert.True(t, AgentState{Phase: PhaseReady}.IsActive())
	assert.True(t, AgentState{Phase: PhaseBusy}.IsActive())
	assert.False(t, AgentState{Phase: PhasePaused}.IsActive())

	assert.True(t, AgentState{Phase: PhaseShutdown}.IsTerminal())
	assert.True(t, StateError("boom").IsTerminal())
	assert.False(t, StateCreated().IsTerminal())
}

func TestAgentCapabilities_HasTag(t *testing.T) {
	c := AgentCapabilities{Tags: []string{"nlp", "vision"}}
	assert.True(t, c.HasTag("nlp"))
	assert.False(t, c.HasTag("audio"))
}
