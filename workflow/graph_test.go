package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mofa-org/mofa-go/core"
)

func passthrough(_ context.Context, _ *NodeContext) (Command, error) {
	return NewCommand(), nil
}

func TestWorkflowGraphValidate(t *testing.T) {
	tests := []struct {
		name    string
		build   func() *WorkflowGraph
		wantErr string
	}{
		{
			name: "valid linear graph",
			build: func() *WorkflowGraph {
				return NewWorkflowGraph("wf").
					AddStart("start").
					AddTask("work", passthrough).
					AddEnd("end").
					AddEdge("start", "work").
					AddEdge("work", "end")
			},
		},
		{
			name: "no start node",
			build: func() *WorkflowGraph {
				return NewWorkflowGraph("wf").
					AddTask("work", passthrough).
					AddEnd("end").
					AddEdge("work", "end")
			},
			wantErr: "exactly one start",
		},
		{
			name: "two start nodes",
			build: func() *WorkflowGraph {
				return NewWorkflowGraph("wf").
					AddStart("a").
					AddStart("b").
					AddEnd("end").
					AddEdge("a", "end").
					AddEdge("b", "end")
			},
			wantErr: "exactly one start",
		},
		{
			name: "edge to undeclared node",
			build: func() *WorkflowGraph {
				return NewWorkflowGraph("wf").
					AddStart("start").
					AddEnd("end").
					AddEdge("start", "ghost")
			},
			wantErr: "undeclared node ghost",
		},
		{
			name: "end not reachable",
			build: func() *WorkflowGraph {
				return NewWorkflowGraph("wf").
					AddStart("start").
					AddTask("work", passthrough).
					AddEnd("end").
					AddEdge("start", "work").
					AddEdge("end", "work")
			},
			wantErr: "no end node reachable",
		},
		{
			name: "cycle without loop node",
			build: func() *WorkflowGraph {
				return NewWorkflowGraph("wf").
					AddStart("start").
					AddTask("a", passthrough).
					AddTask("b", passthrough).
					AddEnd("end").
					AddEdge("start", "a").
					AddEdge("a", "b").
					AddEdge("b", "a").
					AddEdge("a", "end")
			},
			wantErr: "does not pass through a loop node",
		},
		{
			name: "cycle bounded by loop node is fine",
			build: func() *WorkflowGraph {
				return NewWorkflowGraph("wf").
					AddStart("start").
					AddLoop("more", func(_ *State) bool { return false }, 5).
					AddTask("body", passthrough).
					AddEnd("end").
					AddEdge("start", "more").
					AddConditionalEdge("more", "body", "true").
					AddEdge("body", "more").
					AddConditionalEdge("more", "end", "false")
			},
		},
		{
			name: "join waits for non-predecessor",
			build: func() *WorkflowGraph {
				return NewWorkflowGraph("wf").
					AddStart("start").
					AddParallel("fan").
					AddTask("a", passthrough).
					AddTask("b", passthrough).
					AddJoin("join", "a", "start").
					AddEnd("end").
					AddEdge("start", "fan").
					AddEdge("fan", "a").
					AddEdge("fan", "b").
					AddEdge("a", "join").
					AddEdge("b", "join").
					AddEdge("join", "end")
			},
			wantErr: "not a predecessor",
		},
		{
			name: "parallel without outgoing edges",
			build: func() *WorkflowGraph {
				return NewWorkflowGraph("wf").
					AddStart("start").
					AddParallel("fan").
					AddEnd("end").
					AddEdge("start", "fan").
					AddEdge("start", "end")
			},
			wantErr: "no outgoing edges",
		},
		{
			name: "loop without iteration cap",
			build: func() *WorkflowGraph {
				return NewWorkflowGraph("wf").
					AddStart("start").
					AddLoop("more", func(_ *State) bool { return false }, 0).
					AddEnd("end").
					AddEdge("start", "more").
					AddConditionalEdge("more", "end", "false")
			},
			wantErr: "explicit iteration cap",
		},
		{
			name: "condition without predicate",
			build: func() *WorkflowGraph {
				return NewWorkflowGraph("wf").
					AddStart("start").
					AddCondition("check", nil).
					AddEnd("end").
					AddEdge("start", "check").
					AddConditionalEdge("check", "end", "true")
			},
			wantErr: "no predicate",
		},
		{
			name: "task without function",
			build: func() *WorkflowGraph {
				return NewWorkflowGraph("wf").
					AddStart("start").
					AddTask("work", nil).
					AddEnd("end").
					AddEdge("start", "work").
					AddEdge("work", "end")
			},
			wantErr: "no function",
		},
		{
			name: "invalid sub-workflow rejected",
			build: func() *WorkflowGraph {
				sub := NewWorkflowGraph("sub").AddEnd("end")
				return NewWorkflowGraph("wf").
					AddStart("start").
					AddSubWorkflow("inner", sub).
					AddEnd("end").
					AddEdge("start", "inner").
					AddEdge("inner", "end")
			},
			wantErr: "exactly one start",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.build().Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Equal(t, core.KindConfiguration, core.KindOf(err))
		})
	}
}

func TestWorkflowGraphOutgoingKeepsDeclarationOrder(t *testing.T) {
	g := NewWorkflowGraph("wf").
		AddStart("start").
		AddTask("a", passthrough).
		AddTask("b", passthrough).
		AddEnd("end").
		AddEdge("start", "a").
		AddEdge("start", "b").
		AddEdge("a", "end").
		AddEdge("b", "end")

	edges := g.Outgoing("start")
	require.Len(t, edges, 2)
	assert.Equal(t, "a", edges[0].To)
	assert.Equal(t, "b", edges[1].To)
}

func TestWorkflowGraphNodeTuning(t *testing.T) {
	g := NewWorkflowGraph("wf").
		AddStart("start").
		AddTask("work", passthrough).
		AddEnd("end").
		AddEdge("start", "work").
		AddEdge("work", "end").
		WithNodeRetry("work", RetryConfig{MaxAttempts: 3, Policy: FixedBackoff(0)}).
		WithNodeBreaker("work", DefaultCircuitBreakerConfig())

	require.NoError(t, g.Validate())
	n, ok := g.Node("work")
	require.True(t, ok)
	assert.Equal(t, 3, n.Retry.MaxAttempts)
	require.NotNil(t, n.Breaker)
	assert.Equal(t, 5, n.Breaker.FailureThreshold)
}
