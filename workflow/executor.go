package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/mofa-org/mofa-go/core"
	"github.com/mofa-org/mofa-go/logging"
)

// DefaultMaxSteps bounds node executions per run when no explicit limit is
// configured.
const DefaultMaxSteps = 100

// AgentResolver looks up agents for LlmAgent nodes. The agent registry
// satisfies it.
type AgentResolver interface {
	Get(id string) (core.Agent, bool)
}

// ExecutorOptions configures a workflow executor.
type ExecutorOptions struct {
	// Logger receives execution diagnostics.
	Logger logging.Logger
	// Agents resolves LlmAgent node references; nil fails those nodes.
	Agents AgentResolver
	// MaxSteps bounds node executions per run.
	MaxSteps int
	// StepTimeout bounds one node attempt when the node sets no timeout.
	StepTimeout time.Duration
	// ContinueOnError keeps the run alive past failed branches.
	ContinueOnError bool
	// EmitTrace includes state-update events in the trace.
	EmitTrace bool
	// Registerer receives the prometheus collectors; nil disables export.
	Registerer prometheus.Registerer
}

// WorkflowRecord is what callers receive for one execution.
type WorkflowRecord struct {
	ExecutionID string
	Status      Status
	Context     *WorkflowContext
	Output      Value
	Events      []ExecutionEvent
	Err         error
}

// Executor evaluates validated workflow graphs.
type Executor struct {
	logger          logging.Logger
	agents          AgentResolver
	maxSteps        int
	stepTimeout     time.Duration
	continueOnError bool
	emitTrace       bool
	sleep           func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker

	executionsCtr *prometheus.CounterVec
	retriesCtr    prometheus.Counter
}

// NewExecutor creates a workflow executor.
func NewExecutor(optFns ...func(o *ExecutorOptions)) *Executor {
	opts := ExecutorOptions{
		Logger:    logging.NoOpLogger{},
		MaxSteps:  DefaultMaxSteps,
		EmitTrace: true,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxSteps < 1 {
		opts.MaxSteps = DefaultMaxSteps
	}

	e := &Executor{
		logger:          opts.Logger,
		agents:          opts.Agents,
		maxSteps:        opts.MaxSteps,
		stepTimeout:     opts.StepTimeout,
		continueOnError: opts.ContinueOnError,
		emitTrace:       opts.EmitTrace,
		sleep:           sleepCtx,
		breakers:        map[string]*CircuitBreaker{},
		executionsCtr: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mofa", Subsystem: "workflow", Name: "executions_total",
			Help: "Workflow executions by terminal status.",
		}, []string{"status"}),
		retriesCtr: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mofa", Subsystem: "workflow", Name: "node_retries_total",
			Help: "Node retry attempts across all executions.",
		}),
	}
	if opts.Registerer != nil {
		opts.Registerer.MustRegister(e.executionsCtr, e.retriesCtr)
	}
	return e
}

// branch is one unit of frontier work: a node about to run with its input.
type branch struct {
	nodeID   string
	from     string
	input    Value
	branchID string
}

// runState is the bookkeeping shared by one run's rounds.
type runState struct {
	mu           sync.Mutex
	loopCounts   map[string]int
	joinArrivals map[string]map[string]Value
	endOutput    Value
	endReached   bool
	returned     bool
	firstErr     error
}

func newRunState() *runState {
	return &runState{
		loopCounts:   map[string]int{},
		joinArrivals: map[string]map[string]Value{},
		endOutput:    Null(),
	}
}

func (rs *runState) fail(err error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.firstErr == nil {
		rs.firstErr = err
	}
}

func (rs *runState) recordEnd(output Value) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if !rs.endReached {
		rs.endReached = true
		rs.endOutput = output
	}
}

// Execute runs the graph from its start node with the input bound to state
// key "input". A Wait node returns a Paused record; terminal runs return
// Completed, Failed, or Cancelled records. The error mirrors Record.Err.
func (e *Executor) Execute(ctx context.Context, g *WorkflowGraph, input Value) (*WorkflowRecord, error) {
	if !g.validated {
		if err := g.Validate(); err != nil {
			return nil, err
		}
	}

	wfctx := NewWorkflowContext(g.id)
	wfctx.State().Set("input", input)
	wfctx.emit(newEvent(EventWorkflowStarted, wfctx.ExecutionID()))
	e.logger.Info("workflow started", "workflow", g.id, "execution_id", wfctx.ExecutionID())

	start, _ := g.StartNode()
	return e.run(ctx, g, wfctx, newRunState(), []branch{{nodeID: start, input: input}})
}

// ExecuteUntilWait is Execute; the name documents the caller's intent to
// drive a human-in-the-loop graph up to its first Wait node.
func (e *Executor) ExecuteUntilWait(ctx context.Context, g *WorkflowGraph, input Value) (*WorkflowRecord, error) {
	return e.Execute(ctx, g, input)
}

// ResumeWithHumanInput rehydrates a paused context, binds value to the
// waiting node's "<event_type>_feedback" state key and as its output, and
// continues execution from its successors.
func (e *Executor) ResumeWithHumanInput(ctx context.Context, g *WorkflowGraph, wfctx *WorkflowContext, nodeID string, value Value) (*WorkflowRecord, error) {
	if !g.validated {
		if err := g.Validate(); err != nil {
			return nil, err
		}
	}
	if wfctx.Status() != StatusPaused {
		return nil, core.NewError(core.KindExecution, "execution %s is %s, not paused", wfctx.ExecutionID(), wfctx.Status())
	}
	if wfctx.LastWaitingNode() != nodeID {
		return nil, core.NewError(core.KindExecution, "execution %s is waiting at %s, not %s", wfctx.ExecutionID(), wfctx.LastWaitingNode(), nodeID)
	}
	n, ok := g.Node(nodeID)
	if !ok || n.Kind != NodeWait {
		return nil, core.NewError(core.KindConfiguration, "workflow %s: %s is not a wait node", g.id, nodeID)
	}

	wfctx.State().Set(n.EventType+"_feedback", value)
	wfctx.clearWaiting()

	ev := newEvent(EventNodeCompleted, wfctx.ExecutionID())
	ev.NodeID = nodeID
	wfctx.emit(ev)
	e.logger.Info("workflow resumed", "workflow", g.id, "execution_id", wfctx.ExecutionID(), "node", nodeID)

	var next []branch
	for _, edge := range e.routeEdges(g, wfctx, nodeID, "") {
		next = append(next, branch{nodeID: edge.To, from: nodeID, input: value})
	}

	// Carry the loop counters and pending join arrivals across the pause;
	// otherwise every loop would be granted its full iteration budget again.
	rs := newRunState()
	if loops, joins := wfctx.progress(); loops != nil || joins != nil {
		if loops != nil {
			rs.loopCounts = loops
		}
		if joins != nil {
			rs.joinArrivals = joins
		}
	}
	return e.run(ctx, g, wfctx, rs, next)
}

// Cancel marks an execution cancelled; the run observes it at the next
// node boundary.
func (e *Executor) Cancel(wfctx *WorkflowContext) {
	wfctx.setStatus(StatusCancelled)
}

func (e *Executor) run(ctx context.Context, g *WorkflowGraph, wfctx *WorkflowContext, rs *runState, frontier []branch) (*WorkflowRecord, error) {
	steps := 0
	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return e.finishCancelled(g, wfctx, err)
		}
		if wfctx.Status() == StatusCancelled {
			return e.finishCancelled(g, wfctx, core.NewError(core.KindCancelled, "execution %s cancelled", wfctx.ExecutionID()))
		}

		steps += len(frontier)
		if steps > e.maxSteps {
			err := core.NewError(core.KindExecution, "workflow %s exceeded %d steps", g.id, e.maxSteps)
			return e.finishFailed(g, wfctx, err)
		}

		next := make([][]branch, len(frontier))
		group, gctx := errgroup.WithContext(ctx)
		for i, br := range frontier {
			group.Go(func() error {
				out, err := e.step(gctx, g, wfctx, rs, br)
				if err != nil {
					if e.continueOnError {
						e.logger.Warn("branch failed, continuing", "workflow", g.id, "node", br.nodeID, "error", err)
						return nil
					}
					rs.fail(err)
					return nil
				}
				next[i] = out
				return nil
			})
		}
		_ = group.Wait()

		rs.mu.Lock()
		failed := rs.firstErr
		returned := rs.returned
		rs.mu.Unlock()
		if failed != nil {
			return e.finishFailed(g, wfctx, failed)
		}
		if wfctx.Status() == StatusPaused {
			return e.finishPaused(g, wfctx, rs), nil
		}
		if returned {
			break
		}

		frontier = frontier[:0]
		for _, out := range next {
			frontier = append(frontier, out...)
		}
	}

	return e.finishCompleted(g, wfctx, rs), nil
}

// step executes one frontier branch and returns the branches it spawns.
func (e *Executor) step(ctx context.Context, g *WorkflowGraph, wfctx *WorkflowContext, rs *runState, br branch) ([]branch, error) {
	n, ok := g.Node(br.nodeID)
	if !ok {
		return nil, core.NewError(core.KindRouting, "workflow %s: no node %s", g.id, br.nodeID)
	}

	switch n.Kind {
	case NodeStart:
		return e.fanOut(g, wfctx, n.ID, "", br.input), nil

	case NodeEnd:
		rs.recordEnd(br.input)
		return nil, nil

	case NodeWait:
		wfctx.setWaiting(n.ID, br.input)
		ev := newEvent(EventWorkflowPaused, wfctx.ExecutionID())
		ev.NodeID = n.ID
		ev.Detail = n.EventType
		wfctx.emit(ev)
		return nil, nil

	case NodeCondition:
		route := "false"
		if n.Predicate(wfctx.State()) {
			route = "true"
		}
		ev := newEvent(EventBranchDecision, wfctx.ExecutionID())
		ev.NodeID = n.ID
		ev.Detail = route
		wfctx.emit(ev)
		return e.fanOut(g, wfctx, n.ID, route, br.input), nil

	case NodeParallel:
		ev := newEvent(EventParallelGroupStarted, wfctx.ExecutionID())
		ev.NodeID = n.ID
		wfctx.emit(ev)
		return e.fanOut(g, wfctx, n.ID, "", br.input), nil

	case NodeJoin:
		released, output := e.arriveAtJoin(rs, n, br)
		if !released {
			return nil, nil
		}
		ev := newEvent(EventParallelGroupCompleted, wfctx.ExecutionID())
		ev.NodeID = n.ID
		wfctx.emit(ev)
		return e.fanOut(g, wfctx, n.ID, "", output), nil

	case NodeLoop:
		rs.mu.Lock()
		iter := rs.loopCounts[n.ID]
		body := iter < n.MaxIterations && n.Predicate(wfctx.State())
		if body {
			rs.loopCounts[n.ID]++
		}
		rs.mu.Unlock()
		route := "false"
		if body {
			route = "true"
		}
		ev := newEvent(EventBranchDecision, wfctx.ExecutionID())
		ev.NodeID = n.ID
		ev.Detail = fmt.Sprintf("%s iteration=%d", route, iter)
		wfctx.emit(ev)
		return e.fanOut(g, wfctx, n.ID, route, br.input), nil

	case NodeSubWorkflow:
		rec, err := e.Execute(ctx, n.Sub, br.input)
		if err != nil {
			return nil, core.WrapError(core.KindExecution, err, "sub-workflow %s at node %s", n.Sub.ID(), n.ID)
		}
		if rec.Status != StatusCompleted {
			return nil, core.NewError(core.KindExecution, "sub-workflow %s at node %s finished %s", n.Sub.ID(), n.ID, rec.Status)
		}
		return e.fanOut(g, wfctx, n.ID, "", rec.Output), nil

	default: // Task, Transform, LlmAgent
		cmd, err := e.runNodeBody(ctx, g, wfctx, n, br)
		if err != nil {
			return nil, err
		}
		return e.applyCommand(g, wfctx, rs, n, br, cmd)
	}
}

// arriveAtJoin records one arrival and reports whether the barrier is
// complete. The released output maps each awaited predecessor to the value
// it arrived with.
func (e *Executor) arriveAtJoin(rs *runState, n *WorkflowNode, br branch) (bool, Value) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	arrivals := rs.joinArrivals[n.ID]
	if arrivals == nil {
		arrivals = map[string]Value{}
		rs.joinArrivals[n.ID] = arrivals
	}
	arrivals[br.from] = br.input

	for _, dep := range n.WaitFor {
		if _, ok := arrivals[dep]; !ok {
			return false, Null()
		}
	}
	out := make(map[string]Value, len(n.WaitFor))
	for _, dep := range n.WaitFor {
		out[dep] = arrivals[dep]
	}
	delete(rs.joinArrivals, n.ID)
	return true, MapValue(out)
}

// applyCommand applies a node command's updates and resolves its control
// flow into next branches.
func (e *Executor) applyCommand(g *WorkflowGraph, wfctx *WorkflowContext, rs *runState, n *WorkflowNode, br branch, cmd Command) ([]branch, error) {
	for _, u := range cmd.Updates {
		if err := wfctx.State().Apply(u); err != nil {
			return nil, core.WrapError(core.KindExecution, err, "node %s state update", n.ID)
		}
		if e.emitTrace {
			ev := newEvent(EventStateUpdated, wfctx.ExecutionID())
			ev.NodeID = n.ID
			ev.Detail = u.Key
			wfctx.emit(ev)
		}
	}

	output := cmd.Output
	if output.IsNull() {
		output = br.input
	}

	switch cmd.Control {
	case ControlReturn:
		ret := output
		if v, ok := wfctx.State().Get("output"); ok {
			ret = v
		}
		rs.mu.Lock()
		rs.returned = true
		if !rs.endReached {
			rs.endReached = true
			rs.endOutput = ret
		}
		rs.mu.Unlock()
		return nil, nil

	case ControlGoto:
		if _, ok := g.Node(cmd.Target); !ok {
			return nil, core.NewError(core.KindRouting, "workflow %s: goto undeclared node %s", g.id, cmd.Target)
		}
		return []branch{{nodeID: cmd.Target, from: n.ID, input: output}}, nil

	case ControlSend:
		out := make([]branch, 0, len(cmd.Sends))
		for _, s := range cmd.Sends {
			if _, ok := g.Node(s.Target); !ok {
				return nil, core.NewError(core.KindRouting, "workflow %s: send to undeclared node %s", g.id, s.Target)
			}
			ev := newEvent(EventBranchDecision, wfctx.ExecutionID())
			ev.NodeID = n.ID
			ev.Detail = "send " + s.Target
			wfctx.emit(ev)
			out = append(out, branch{nodeID: s.Target, from: n.ID, input: s.Input, branchID: s.BranchID})
		}
		return out, nil

	default:
		return e.fanOut(g, wfctx, n.ID, cmd.Route, output), nil
	}
}

// fanOut resolves the outgoing edges of a node into next branches, using
// the route tie-break: a matching conditional edge wins, then the first
// conditional edge whose predicate holds, then every unconditional edge.
func (e *Executor) fanOut(g *WorkflowGraph, wfctx *WorkflowContext, from, route string, input Value) []branch {
	edges := e.routeEdges(g, wfctx, from, route)
	out := make([]branch, 0, len(edges))
	for _, edge := range edges {
		out = append(out, branch{nodeID: edge.To, from: from, input: input})
	}
	return out
}

func (e *Executor) routeEdges(g *WorkflowGraph, wfctx *WorkflowContext, from, route string) []WorkflowEdge {
	edges := g.Outgoing(from)
	if route != "" {
		for _, edge := range edges {
			if edge.Condition == route {
				return []WorkflowEdge{edge}
			}
		}
	}
	for _, edge := range edges {
		if edge.Condition == "" {
			continue
		}
		if pred, ok := g.predicates[edge.Condition]; ok && pred(wfctx.State()) {
			return []WorkflowEdge{edge}
		}
	}
	var out []WorkflowEdge
	for _, edge := range edges {
		if edge.Condition == "" {
			out = append(out, edge)
		}
	}
	return out
}

// runNodeBody executes a Task, Transform, or LlmAgent body under the
// node's retry policy, circuit breaker, and timeout.
func (e *Executor) runNodeBody(ctx context.Context, g *WorkflowGraph, wfctx *WorkflowContext, n *WorkflowNode, br branch) (Command, error) {
	breaker := e.breakerFor(g, n)
	attempts := n.Retry.maxAttempts()

	ev := newEvent(EventNodeStarted, wfctx.ExecutionID())
	ev.NodeID = n.ID
	ev.Attempt = 1
	wfctx.emit(ev)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if breaker != nil && !breaker.Allow() {
			lastErr = core.NewError(core.KindExecution, "node %s circuit open", n.ID)
			break
		}

		cmd, err := e.invoke(ctx, wfctx, n, br, attempt)
		if err == nil {
			if breaker != nil {
				breaker.RecordSuccess()
			}
			done := newEvent(EventNodeCompleted, wfctx.ExecutionID())
			done.NodeID = n.ID
			done.Attempt = attempt
			wfctx.emit(done)
			return cmd, nil
		}
		if breaker != nil {
			breaker.RecordFailure()
		}
		lastErr = err

		if attempt >= attempts || !core.IsRetryable(err) {
			break
		}
		retry := newEvent(EventNodeRetrying, wfctx.ExecutionID())
		retry.NodeID = n.ID
		retry.Attempt = attempt + 1
		retry.Detail = err.Error()
		wfctx.emit(retry)
		e.retriesCtr.Inc()
		e.logger.Warn("node retrying", "workflow", g.id, "node", n.ID, "attempt", attempt+1, "error", err)
		if serr := e.sleep(ctx, n.Retry.Policy.Delay(attempt-1)); serr != nil {
			lastErr = serr
			break
		}
	}

	failed := newEvent(EventNodeFailed, wfctx.ExecutionID())
	failed.NodeID = n.ID
	failed.Detail = lastErr.Error()
	wfctx.emit(failed)
	return Command{}, core.WrapError(core.KindExecution, lastErr, "node %s failed", n.ID)
}

// invoke runs one attempt of a node body with its timeout applied.
func (e *Executor) invoke(ctx context.Context, wfctx *WorkflowContext, n *WorkflowNode, br branch, attempt int) (Command, error) {
	timeout := n.Timeout
	if timeout == 0 {
		timeout = e.stepTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	nc := &NodeContext{
		ExecutionID: wfctx.ExecutionID(),
		NodeID:      n.ID,
		Attempt:     attempt,
		Input:       br.input,
		State:       wfctx.State(),
	}

	if n.Kind == NodeLlmAgent {
		return e.invokeAgent(ctx, nc, n)
	}

	cmd, err := n.Fn(ctx, nc)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return Command{}, core.WrapError(core.KindTimeout, err, "node %s timed out", n.ID)
	}
	return cmd, err
}

// invokeAgent dispatches the node input to a registered agent as a task
// request and binds the response as the node output.
func (e *Executor) invokeAgent(ctx context.Context, nc *NodeContext, n *WorkflowNode) (Command, error) {
	if e.agents == nil {
		return Command{}, core.NewError(core.KindConfiguration, "node %s: no agent resolver configured", n.ID)
	}
	agent, ok := e.agents.Get(n.AgentID)
	if !ok {
		return Command{}, core.NewError(core.KindDispatch, "node %s: agent %s not registered", n.ID, n.AgentID)
	}

	content, err := json.Marshal(nc.Input)
	if err != nil {
		return Command{}, core.WrapError(core.KindExecution, err, "node %s: encode agent input", n.ID)
	}
	taskID := nc.ExecutionID + "/" + n.ID
	resp, err := agent.Execute(ctx, core.NewTaskRequest(taskID, content))
	if err != nil {
		return Command{}, core.WrapError(core.KindExecution, err, "node %s: agent %s", n.ID, n.AgentID)
	}
	if resp.Status == core.TaskStatusFailure {
		return Command{}, core.NewError(core.KindExecution, "node %s: agent %s reported failure", n.ID, n.AgentID)
	}

	output := StringValue(string(resp.Result))
	return NewCommand().Update(n.ID, output).WithOutput(output), nil
}

func (e *Executor) breakerFor(g *WorkflowGraph, n *WorkflowNode) *CircuitBreaker {
	if n.Breaker == nil {
		return nil
	}
	key := g.id + "/" + n.ID
	e.mu.Lock()
	defer e.mu.Unlock()
	cb, ok := e.breakers[key]
	if !ok {
		cb = NewCircuitBreaker(*n.Breaker)
		e.breakers[key] = cb
	}
	return cb
}

func (e *Executor) finishCompleted(g *WorkflowGraph, wfctx *WorkflowContext, rs *runState) *WorkflowRecord {
	rs.mu.Lock()
	output := rs.endOutput
	rs.mu.Unlock()
	if output.IsNull() {
		if v, ok := wfctx.State().Get("output"); ok {
			output = v
		}
	}
	wfctx.setStatus(StatusCompleted)
	wfctx.emit(newEvent(EventWorkflowCompleted, wfctx.ExecutionID()))
	e.executionsCtr.WithLabelValues(string(StatusCompleted)).Inc()
	e.logger.Info("workflow completed", "workflow", g.id, "execution_id", wfctx.ExecutionID())
	return &WorkflowRecord{
		ExecutionID: wfctx.ExecutionID(),
		Status:      StatusCompleted,
		Context:     wfctx,
		Output:      output,
		Events:      wfctx.Events(),
	}
}

func (e *Executor) finishPaused(g *WorkflowGraph, wfctx *WorkflowContext, rs *runState) *WorkflowRecord {
	rs.mu.Lock()
	wfctx.setProgress(copyLoopCounts(rs.loopCounts), copyJoinArrivals(rs.joinArrivals))
	rs.mu.Unlock()
	e.executionsCtr.WithLabelValues(string(StatusPaused)).Inc()
	e.logger.Info("workflow paused", "workflow", g.id, "execution_id", wfctx.ExecutionID(), "node", wfctx.LastWaitingNode())
	return &WorkflowRecord{
		ExecutionID: wfctx.ExecutionID(),
		Status:      StatusPaused,
		Context:     wfctx,
		Output:      Null(),
		Events:      wfctx.Events(),
	}
}

func (e *Executor) finishFailed(g *WorkflowGraph, wfctx *WorkflowContext, err error) (*WorkflowRecord, error) {
	wfctx.setStatus(StatusFailed)
	ev := newEvent(EventWorkflowFailed, wfctx.ExecutionID())
	ev.Detail = err.Error()
	wfctx.emit(ev)
	e.executionsCtr.WithLabelValues(string(StatusFailed)).Inc()
	e.logger.Error("workflow failed", "workflow", g.id, "execution_id", wfctx.ExecutionID(), "error", err)
	return &WorkflowRecord{
		ExecutionID: wfctx.ExecutionID(),
		Status:      StatusFailed,
		Context:     wfctx,
		Output:      Null(),
		Events:      wfctx.Events(),
		Err:         err,
	}, err
}

func (e *Executor) finishCancelled(g *WorkflowGraph, wfctx *WorkflowContext, cause error) (*WorkflowRecord, error) {
	reason := "cancelled"
	if errors.Is(cause, context.DeadlineExceeded) {
		reason = "timeout"
	}
	wfctx.setStatus(StatusCancelled)
	ev := newEvent(EventWorkflowFailed, wfctx.ExecutionID())
	ev.Detail = reason
	wfctx.emit(ev)
	e.executionsCtr.WithLabelValues(string(StatusCancelled)).Inc()
	e.logger.Warn("workflow cancelled", "workflow", g.id, "execution_id", wfctx.ExecutionID(), "reason", reason)
	err := core.WrapError(core.KindCancelled, cause, "execution %s %s", wfctx.ExecutionID(), reason)
	return &WorkflowRecord{
		ExecutionID: wfctx.ExecutionID(),
		Status:      StatusCancelled,
		Context:     wfctx,
		Output:      Null(),
		Events:      wfctx.Events(),
		Err:         err,
	}, err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
