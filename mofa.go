// Package mofa provides a high-level façade over the runtime orchestrator
// and the subsystems it binds: the agent bus, the message graph router, the
// workflow executor and the gateway. Most applications interact with this
// package by:
//  1. Creating a Mofa via New() (optionally with a loaded config file)
//  2. Adding agents, message graphs and workflows
//  3. Calling Start, then submitting work through the task, dispatch and
//     workflow entry points
//
// The façade delegates to runtime.Orchestrator while keeping setup concise.
// All defaults are safe for local development and testing; production
// deployments typically supply a config file, a structured logger and a
// prometheus registerer.
package mofa

import (
	"context"

	"github.com/mofa-org/mofa-go/core"
	"github.com/mofa-org/mofa-go/msggraph"
	"github.com/mofa-org/mofa-go/runtime"
	"github.com/mofa-org/mofa-go/workflow"
)

// Options is an alias for the orchestrator options so callers configure
// everything through one type.
type Options = runtime.Options

// Mofa is the high-level façade aggregating the orchestrated subsystems.
type Mofa struct {
	orchestrator *runtime.Orchestrator
}

// New creates a Mofa instance with optional overrides.
func New(optFns ...func(o *Options)) *Mofa {
	return &Mofa{orchestrator: runtime.New(optFns...)}
}

// Orchestrator exposes the underlying orchestrator for advanced wiring.
func (m *Mofa) Orchestrator() *runtime.Orchestrator { return m.orchestrator }

// AddAgent queues an agent for registration during Start.
func (m *Mofa) AddAgent(agent core.Agent) error { return m.orchestrator.AddAgent(agent) }

// AddMessageGraph queues a message graph for compilation during Start.
func (m *Mofa) AddMessageGraph(g *msggraph.Graph) error { return m.orchestrator.AddMessageGraph(g) }

// AddWorkflow queues a workflow graph for validation during Start.
func (m *Mofa) AddWorkflow(g *workflow.WorkflowGraph) error { return m.orchestrator.AddWorkflow(g) }

// Start validates every configuration and brings the runtime up.
func (m *Mofa) Start(ctx context.Context) error { return m.orchestrator.Start(ctx) }

// Stop drains in-flight work and shuts the runtime down.
func (m *Mofa) Stop(ctx context.Context) error { return m.orchestrator.Stop(ctx) }

// ExecuteTask runs a task on one agent and returns its response.
func (m *Mofa) ExecuteTask(ctx context.Context, agentID string, msg core.AgentMessage) (core.AgentMessage, error) {
	return m.orchestrator.ExecuteTask(ctx, agentID, msg)
}

// DispatchEnvelope routes an envelope through a registered message graph.
func (m *Mofa) DispatchEnvelope(ctx context.Context, graphID string, env *core.Envelope) (*msggraph.DispatchReport, error) {
	return m.orchestrator.DispatchEnvelope(ctx, graphID, env)
}

// RunWorkflow executes a registered workflow to completion or pause.
func (m *Mofa) RunWorkflow(ctx context.Context, workflowID string, input workflow.Value) (*workflow.WorkflowRecord, error) {
	return m.orchestrator.RunWorkflow(ctx, workflowID, input)
}

// ResumeWorkflow continues a paused workflow with human input.
func (m *Mofa) ResumeWorkflow(ctx context.Context, workflowID string, wfctx *workflow.WorkflowContext, nodeID string, value workflow.Value) (*workflow.WorkflowRecord, error) {
	return m.orchestrator.ResumeWorkflow(ctx, workflowID, wfctx, nodeID, value)
}
