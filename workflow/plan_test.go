package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanLinearOrder(t *testing.T) {
	g := NewWorkflowGraph("wf").
		AddStart("start").
		AddTask("fetch", passthrough).
		AddTask("render", passthrough).
		AddEnd("end").
		AddEdge("start", "fetch").
		AddEdge("fetch", "render").
		AddEdge("render", "end")

	order, err := Plan(g)
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "fetch", "render", "end"}, order)
}

func TestPlanDiamondKeepsDeclarationOrder(t *testing.T) {
	g := NewWorkflowGraph("wf").
		AddStart("start").
		AddParallel("fork").
		AddTask("left", passthrough).
		AddTask("right", passthrough).
		AddJoin("join", "left", "right").
		AddEnd("end").
		AddEdge("start", "fork").
		AddEdge("fork", "left").
		AddEdge("fork", "right").
		AddEdge("left", "join").
		AddEdge("right", "join").
		AddEdge("join", "end")

	order, err := Plan(g)
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "fork", "left", "right", "join", "end"}, order)
}

func TestPlanSkipsLoopBackEdge(t *testing.T) {
	g := NewWorkflowGraph("wf").
		AddStart("start").
		AddLoop("more", func(_ *State) bool { return true }, 2).
		AddTask("body", passthrough).
		AddEnd("end").
		AddEdge("start", "more").
		AddConditionalEdge("more", "body", "true").
		AddEdge("body", "more").
		AddConditionalEdge("more", "end", "false")

	order, err := Plan(g)
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "more", "body", "end"}, order)
}

func TestPlanRejectsInvalidGraph(t *testing.T) {
	g := NewWorkflowGraph("wf").
		AddTask("work", passthrough).
		AddEnd("end").
		AddEdge("work", "end")

	_, err := Plan(g)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one start")
}
