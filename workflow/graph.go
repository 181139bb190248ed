package workflow

import (
	"context"
	"time"

	"github.com/mofa-org/mofa-go/core"
)

// WorkflowNodeKind enumerates the compute node kinds.
type WorkflowNodeKind string

const (
	NodeStart       WorkflowNodeKind = "start"
	NodeEnd         WorkflowNodeKind = "end"
	NodeTask        WorkflowNodeKind = "task"
	NodeLlmAgent    WorkflowNodeKind = "llm_agent"
	NodeCondition   WorkflowNodeKind = "condition"
	NodeParallel    WorkflowNodeKind = "parallel"
	NodeJoin        WorkflowNodeKind = "join"
	NodeLoop        WorkflowNodeKind = "loop"
	NodeTransform   WorkflowNodeKind = "transform"
	NodeSubWorkflow WorkflowNodeKind = "sub_workflow"
	NodeWait        WorkflowNodeKind = "wait"
)

// NodeContext is what a node function sees when it runs.
type NodeContext struct {
	// ExecutionID identifies the run; pair with NodeID and Attempt to
	// idempotent-key side effects.
	ExecutionID string
	// NodeID is the executing node.
	NodeID string
	// Attempt counts from 1 across retries.
	Attempt int
	// Input is the value bound from the predecessor's output.
	Input Value
	// State is the shared execution state.
	State *State
}

// NodeFunc is the body of a Task or Transform node.
type NodeFunc func(ctx context.Context, nc *NodeContext) (Command, error)

// StatePredicate evaluates workflow state, used by Condition and Loop
// nodes and by conditional edges.
type StatePredicate func(s *State) bool

// WorkflowNode is one vertex of a workflow graph.
type WorkflowNode struct {
	ID   string
	Kind WorkflowNodeKind

	// Fn is set for Task and Transform nodes.
	Fn NodeFunc
	// Predicate is set for Condition and Loop nodes.
	Predicate StatePredicate
	// AgentID is set for LlmAgent nodes.
	AgentID string
	// Sub is the nested graph for SubWorkflow nodes.
	Sub *WorkflowGraph
	// EventType names the human input a Wait node pauses for.
	EventType string
	// WaitFor lists the predecessors a Join node blocks on.
	WaitFor []string
	// MaxIterations caps a Loop node; validation requires it explicitly.
	MaxIterations int

	// Retry bounds re-execution on retryable failure.
	Retry RetryConfig
	// Timeout bounds one attempt; zero inherits the executor default.
	Timeout time.Duration
	// Breaker optionally guards the node with a circuit breaker.
	Breaker *CircuitBreakerConfig
}

// WorkflowEdge connects two nodes. An empty Condition is an unconditional
// edge; a non-empty one names a registered predicate and doubles as the
// route label for Command.Route tie-breaking.
type WorkflowEdge struct {
	From      string
	To        string
	Condition string
}

// WorkflowGraph is the mutable builder form of a workflow. Validate checks
// its invariants; the Executor refuses unvalidated graphs.
type WorkflowGraph struct {
	id         string
	nodes      map[string]*WorkflowNode
	nodeOrder  []string
	edges      []WorkflowEdge
	predicates map[string]StatePredicate
	validated  bool
}

// NewWorkflowGraph creates an empty workflow graph.
func NewWorkflowGraph(id string) *WorkflowGraph {
	return &WorkflowGraph{
		id:         id,
		nodes:      map[string]*WorkflowNode{},
		predicates: map[string]StatePredicate{},
	}
}

// ID returns the graph identifier.
func (g *WorkflowGraph) ID() string { return g.id }

func (g *WorkflowGraph) add(n *WorkflowNode) *WorkflowGraph {
	if _, exists := g.nodes[n.ID]; !exists {
		g.nodeOrder = append(g.nodeOrder, n.ID)
	}
	g.nodes[n.ID] = n
	g.validated = false
	return g
}

// AddStart adds the entry node.
func (g *WorkflowGraph) AddStart(id string) *WorkflowGraph {
	return g.add(&WorkflowNode{ID: id, Kind: NodeStart})
}

// AddEnd adds a terminal node.
func (g *WorkflowGraph) AddEnd(id string) *WorkflowGraph {
	return g.add(&WorkflowNode{ID: id, Kind: NodeEnd})
}

// AddTask adds a task node running fn.
func (g *WorkflowGraph) AddTask(id string, fn NodeFunc) *WorkflowGraph {
	return g.add(&WorkflowNode{ID: id, Kind: NodeTask, Fn: fn})
}

// AddTransform adds a pure transformation node.
func (g *WorkflowGraph) AddTransform(id string, fn NodeFunc) *WorkflowGraph {
	return g.add(&WorkflowNode{ID: id, Kind: NodeTransform, Fn: fn})
}

// AddLlmAgent adds a node that dispatches its input to a registered agent.
func (g *WorkflowGraph) AddLlmAgent(id, agentID string) *WorkflowGraph {
	return g.add(&WorkflowNode{ID: id, Kind: NodeLlmAgent, AgentID: agentID})
}

// AddCondition adds a branching node; its outgoing edges carry "true" and
// "false" conditions.
func (g *WorkflowGraph) AddCondition(id string, pred StatePredicate) *WorkflowGraph {
	return g.add(&WorkflowNode{ID: id, Kind: NodeCondition, Predicate: pred})
}

// AddParallel adds a fan-out node; all outgoing edges run concurrently.
func (g *WorkflowGraph) AddParallel(id string) *WorkflowGraph {
	return g.add(&WorkflowNode{ID: id, Kind: NodeParallel})
}

// AddJoin adds a barrier node that waits for the listed predecessors.
func (g *WorkflowGraph) AddJoin(id string, waitFor ...string) *WorkflowGraph {
	return g.add(&WorkflowNode{ID: id, Kind: NodeJoin, WaitFor: waitFor})
}

// AddLoop adds an iteration node. The body is the cycle back to this node;
// edges labelled "true" continue the body, the rest exit. MaxIterations is
// mandatory.
func (g *WorkflowGraph) AddLoop(id string, pred StatePredicate, maxIterations int) *WorkflowGraph {
	return g.add(&WorkflowNode{ID: id, Kind: NodeLoop, Predicate: pred, MaxIterations: maxIterations})
}

// AddSubWorkflow adds a node that runs a nested graph with a fresh context.
func (g *WorkflowGraph) AddSubWorkflow(id string, sub *WorkflowGraph) *WorkflowGraph {
	return g.add(&WorkflowNode{ID: id, Kind: NodeSubWorkflow, Sub: sub})
}

// AddWait adds a pause node waiting for human input of the given event
// type. On resume the injected value is bound to "<event_type>_feedback".
func (g *WorkflowGraph) AddWait(id, eventType string) *WorkflowGraph {
	return g.add(&WorkflowNode{ID: id, Kind: NodeWait, EventType: eventType})
}

// AddEdge adds an unconditional edge.
func (g *WorkflowGraph) AddEdge(from, to string) *WorkflowGraph {
	g.edges = append(g.edges, WorkflowEdge{From: from, To: to})
	g.validated = false
	return g
}

// AddConditionalEdge adds an edge taken when the named predicate holds or
// when a command routes to its label.
func (g *WorkflowGraph) AddConditionalEdge(from, to, condition string) *WorkflowGraph {
	g.edges = append(g.edges, WorkflowEdge{From: from, To: to, Condition: condition})
	g.validated = false
	return g
}

// RegisterPredicate installs a named predicate for conditional edges.
func (g *WorkflowGraph) RegisterPredicate(name string, pred StatePredicate) *WorkflowGraph {
	g.predicates[name] = pred
	return g
}

// WithNodeRetry sets a node's retry config.
func (g *WorkflowGraph) WithNodeRetry(id string, retry RetryConfig) *WorkflowGraph {
	if n, ok := g.nodes[id]; ok {
		n.Retry = retry
	}
	return g
}

// WithNodeTimeout bounds one attempt of a node.
func (g *WorkflowGraph) WithNodeTimeout(id string, timeout time.Duration) *WorkflowGraph {
	if n, ok := g.nodes[id]; ok {
		n.Timeout = timeout
	}
	return g
}

// WithNodeBreaker guards a node with a circuit breaker.
func (g *WorkflowGraph) WithNodeBreaker(id string, config CircuitBreakerConfig) *WorkflowGraph {
	if n, ok := g.nodes[id]; ok {
		n.Breaker = &config
	}
	return g
}

// Node returns a node by id.
func (g *WorkflowGraph) Node(id string) (*WorkflowNode, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// NodeIDs returns node ids in declaration order.
func (g *WorkflowGraph) NodeIDs() []string {
	return append([]string(nil), g.nodeOrder...)
}

// Outgoing returns the edges leaving a node in declaration order.
func (g *WorkflowGraph) Outgoing(id string) []WorkflowEdge {
	var out []WorkflowEdge
	for _, e := range g.edges {
		if e.From == id {
			out = append(out, e)
		}
	}
	return out
}

// StartNode returns the graph's start node id.
func (g *WorkflowGraph) StartNode() (string, bool) {
	for _, id := range g.nodeOrder {
		if g.nodes[id].Kind == NodeStart {
			return id, true
		}
	}
	return "", false
}

// Validate checks the workflow invariants: exactly one start node, at
// least one end node reachable from it, edges referencing declared nodes,
// no cycle that bypasses a Loop node, Join barriers naming real
// predecessors, Parallel nodes with at least one outgoing edge, and Loop
// nodes carrying an explicit iteration cap.
func (g *WorkflowGraph) Validate() error {
	starts := 0
	for _, id := range g.nodeOrder {
		if g.nodes[id].Kind == NodeStart {
			starts++
		}
	}
	if starts != 1 {
		return core.NewError(core.KindConfiguration, "workflow %s: want exactly one start node, have %d", g.id, starts)
	}

	for _, e := range g.edges {
		if _, ok := g.nodes[e.From]; !ok {
			return core.NewError(core.KindConfiguration, "workflow %s: edge from undeclared node %s", g.id, e.From)
		}
		if _, ok := g.nodes[e.To]; !ok {
			return core.NewError(core.KindConfiguration, "workflow %s: edge to undeclared node %s", g.id, e.To)
		}
	}

	start, _ := g.StartNode()
	reachable := g.reachableFrom(start)
	endReachable := false
	for id := range reachable {
		if g.nodes[id].Kind == NodeEnd {
			endReachable = true
			break
		}
	}
	if !endReachable {
		return core.NewError(core.KindConfiguration, "workflow %s: no end node reachable from %s", g.id, start)
	}

	if err := g.checkCycles(); err != nil {
		return err
	}

	preds := g.predecessors()
	for _, id := range g.nodeOrder {
		n := g.nodes[id]
		switch n.Kind {
		case NodeJoin:
			for _, dep := range n.WaitFor {
				if _, ok := g.nodes[dep]; !ok {
					return core.NewError(core.KindConfiguration, "workflow %s: join %s waits for undeclared node %s", g.id, id, dep)
				}
				if !preds[id][dep] {
					return core.NewError(core.KindConfiguration, "workflow %s: join %s waits for %s which is not a predecessor", g.id, id, dep)
				}
			}
		case NodeParallel:
			if len(g.Outgoing(id)) == 0 {
				return core.NewError(core.KindConfiguration, "workflow %s: parallel node %s has no outgoing edges", g.id, id)
			}
		case NodeLoop:
			if n.MaxIterations < 1 {
				return core.NewError(core.KindConfiguration, "workflow %s: loop node %s requires an explicit iteration cap", g.id, id)
			}
			if n.Predicate == nil {
				return core.NewError(core.KindConfiguration, "workflow %s: loop node %s has no predicate", g.id, id)
			}
		case NodeCondition:
			if n.Predicate == nil {
				return core.NewError(core.KindConfiguration, "workflow %s: condition node %s has no predicate", g.id, id)
			}
		case NodeTask, NodeTransform:
			if n.Fn == nil {
				return core.NewError(core.KindConfiguration, "workflow %s: node %s has no function", g.id, id)
			}
		case NodeSubWorkflow:
			if n.Sub == nil {
				return core.NewError(core.KindConfiguration, "workflow %s: sub-workflow node %s has no graph", g.id, id)
			}
			if err := n.Sub.Validate(); err != nil {
				return err
			}
		}
	}

	g.validated = true
	return nil
}

// reachableFrom walks edges forward from a node.
func (g *WorkflowGraph) reachableFrom(start string) map[string]bool {
	seen := map[string]bool{}
	stack := []string{start}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true
		for _, e := range g.Outgoing(id) {
			stack = append(stack, e.To)
		}
	}
	return seen
}

// predecessors maps each node to the set of nodes with an edge into it.
func (g *WorkflowGraph) predecessors() map[string]map[string]bool {
	preds := map[string]map[string]bool{}
	for _, e := range g.edges {
		if preds[e.To] == nil {
			preds[e.To] = map[string]bool{}
		}
		preds[e.To][e.From] = true
	}
	return preds
}

// checkCycles rejects any strongly connected component that does not pass
// through a Loop node. Cycles are intentional only when a Loop bounds them.
func (g *WorkflowGraph) checkCycles() error {
	index := 0
	indices := map[string]int{}
	lowlink := map[string]int{}
	onStack := map[string]bool{}
	var stack []string

	var strongconnect func(v string) error
	strongconnect = func(v string) error {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, e := range g.Outgoing(v) {
			w := e.To
			if _, seen := indices[w]; !seen {
				if err := strongconnect(w); err != nil {
					return err
				}
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] && indices[w] < lowlink[v] {
				lowlink[v] = indices[w]
			}
		}

		if lowlink[v] == indices[v] {
			var component []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				component = append(component, w)
				if w == v {
					break
				}
			}
			if err := g.checkComponent(component); err != nil {
				return err
			}
		}
		return nil
	}

	for _, id := range g.nodeOrder {
		if _, seen := indices[id]; !seen {
			if err := strongconnect(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkComponent flags a cyclic component with no Loop node. A single node
// is cyclic only when it has a self-edge.
func (g *WorkflowGraph) checkComponent(component []string) error {
	cyclic := len(component) > 1
	if !cyclic {
		for _, e := range g.Outgoing(component[0]) {
			if e.To == component[0] {
				cyclic = true
				break
			}
		}
	}
	if !cyclic {
		return nil
	}
	for _, id := range component {
		if g.nodes[id].Kind == NodeLoop {
			return nil
		}
	}
	return core.NewError(core.KindConfiguration, "workflow %s: cycle through %v does not pass through a loop node", g.id, component)
}
