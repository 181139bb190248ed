package runtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/mofa-org/mofa-go/bus"
	"github.com/mofa-org/mofa-go/config"
	"github.com/mofa-org/mofa-go/core"
	"github.com/mofa-org/mofa-go/gateway"
	"github.com/mofa-org/mofa-go/logging"
	"github.com/mofa-org/mofa-go/msggraph"
	"github.com/mofa-org/mofa-go/registry"
	"github.com/mofa-org/mofa-go/workflow"
)

// SenderID is the bus identity the orchestrator dispatches and broadcasts
// under.
const SenderID = "runtime"

// State enumerates the orchestrator lifecycle.
type State int

const (
	// StateCreated is the initial state after New.
	StateCreated State = iota
	// StateStarting means Start is building subsystems.
	StateStarting
	// StateReady means work is admitted.
	StateReady
	// StateDraining means Stop is waiting for in-flight work.
	StateDraining
	// StateStopped is terminal.
	StateStopped
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Options holds dependency and configuration overrides passed to New().
type Options struct {
	// Logger receives lifecycle and loop diagnostics.
	Logger logging.Logger
	// Config carries the bus, workflow and gateway sections. Nil uses the
	// defaults.
	Config *config.Config
	// Gateway overrides the config file's gateway section.
	Gateway *gateway.GatewayConfig
	// GatewayInvoker carries requests to resolved backends.
	GatewayInvoker gateway.Invoker
	// GatewayFilters are the filters available to the gateway's chain.
	GatewayFilters []gateway.Filter
	// DrainTimeout bounds the wait for in-flight work during Stop.
	DrainTimeout time.Duration
	// AgentShutdownTimeout bounds each agent's Shutdown call.
	AgentShutdownTimeout time.Duration
	// Prober checks backend health in the background; nil disables the
	// probe loop.
	Prober HealthProber
	// HealthProbeInterval is the probe loop tick.
	HealthProbeInterval time.Duration
	// IdleTimeout evicts agents without work for this long; zero disables
	// eviction.
	IdleTimeout time.Duration
	// MetricsInterval is the collector tick.
	MetricsInterval time.Duration
	// Registerer receives the prometheus collectors; nil disables export.
	Registerer prometheus.Registerer
}

// Orchestrator binds the bus, registry, graphs, workflow executor and
// gateway into one lifecycle. Public methods are safe for concurrent use.
type Orchestrator struct {
	logger               logging.Logger
	baseLogger           logging.Logger
	cfg                  *config.Config
	gatewayCfg           *gateway.GatewayConfig
	gatewayInvoker       gateway.Invoker
	gatewayFilters       []gateway.Filter
	drainTimeout         time.Duration
	agentShutdownTimeout time.Duration
	prober               HealthProber
	probeInterval        time.Duration
	idleTimeout          time.Duration
	metricsInterval      time.Duration
	registerer           prometheus.Registerer

	mu             sync.Mutex
	state          State
	pendingAgents  []core.Agent
	pendingGraphs  []*msggraph.Graph
	pendingFlows   []*workflow.WorkflowGraph
	lastActive     map[string]time.Time

	bus          *bus.AgentBus
	registry     *registry.AgentRegistry
	graphs       map[string]*msggraph.Executor
	workflows    map[string]*workflow.WorkflowGraph
	workflowExec *workflow.Executor
	gateway      *gateway.Gateway

	inflight      sync.WaitGroup
	inflightCount atomic.Int64

	loopCancel context.CancelFunc
	loops      *errgroup.Group

	agentsGauge   *prometheus.GaugeVec
	busGauge      *prometheus.GaugeVec
	inflightGauge prometheus.Gauge
	tasksCtr      *prometheus.CounterVec
}

// componentLogger scopes a logger to one subsystem. A plain Logger passes
// through unchanged; a MofaLogger gets the component attached to every
// entry it emits.
func componentLogger(base logging.Logger, component string) logging.Logger {
	if ml, ok := base.(*logging.MofaLogger); ok {
		return ml.WithComponent(component)
	}
	return base
}

// New constructs an Orchestrator with optional overrides. Nothing is
// allocated until Start.
func New(optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		Logger:               logging.NoOpLogger{},
		DrainTimeout:         10 * time.Second,
		AgentShutdownTimeout: 5 * time.Second,
		HealthProbeInterval:  30 * time.Second,
		MetricsInterval:      15 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	gwCfg := opts.Gateway
	if gwCfg == nil {
		gwCfg = opts.Config.Gateway
	}

	o := &Orchestrator{
		logger:               componentLogger(opts.Logger, "runtime"),
		baseLogger:           opts.Logger,
		cfg:                  opts.Config,
		gatewayCfg:           gwCfg,
		gatewayInvoker:       opts.GatewayInvoker,
		gatewayFilters:       opts.GatewayFilters,
		drainTimeout:         opts.DrainTimeout,
		agentShutdownTimeout: opts.AgentShutdownTimeout,
		prober:               opts.Prober,
		probeInterval:        opts.HealthProbeInterval,
		idleTimeout:          opts.IdleTimeout,
		metricsInterval:      opts.MetricsInterval,
		registerer:           opts.Registerer,
		state:                StateCreated,
		lastActive:           map[string]time.Time{},
		graphs:               map[string]*msggraph.Executor{},
		workflows:            map[string]*workflow.WorkflowGraph{},
	}
	o.initMetrics(opts.Registerer)
	return o
}

func (o *Orchestrator) initMetrics(reg prometheus.Registerer) {
	o.agentsGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "mofa", Subsystem: "runtime", Name: "agents",
		Help: "Registered agents by lifecycle phase.",
	}, []string{"phase"})
	o.busGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "mofa", Subsystem: "runtime", Name: "bus_messages",
		Help: "Cumulative bus message counts by outcome.",
	}, []string{"outcome"})
	o.inflightGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mofa", Subsystem: "runtime", Name: "inflight_operations",
		Help: "Operations admitted and not yet finished.",
	})
	o.tasksCtr = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mofa", Subsystem: "runtime", Name: "tasks_total",
		Help: "Tasks executed through the orchestrator by status.",
	}, []string{"status"})
	if reg != nil {
		reg.MustRegister(o.agentsGauge, o.busGauge, o.inflightGauge, o.tasksCtr)
	}
}

// AddAgent queues an agent for registration during Start.
func (o *Orchestrator) AddAgent(agent core.Agent) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateCreated {
		return core.NewError(core.KindConfiguration, "agents must be added before start")
	}
	o.pendingAgents = append(o.pendingAgents, agent)
	return nil
}

// AddMessageGraph queues a message graph for compilation during Start.
func (o *Orchestrator) AddMessageGraph(g *msggraph.Graph) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateCreated {
		return core.NewError(core.KindConfiguration, "message graphs must be added before start")
	}
	o.pendingGraphs = append(o.pendingGraphs, g)
	return nil
}

// AddWorkflow queues a workflow graph for validation during Start.
func (o *Orchestrator) AddWorkflow(g *workflow.WorkflowGraph) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateCreated {
		return core.NewError(core.KindConfiguration, "workflows must be added before start")
	}
	o.pendingFlows = append(o.pendingFlows, g)
	return nil
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Bus returns the agent bus; nil before Start.
func (o *Orchestrator) Bus() *bus.AgentBus { return o.bus }

// Registry returns the agent registry; nil before Start.
func (o *Orchestrator) Registry() *registry.AgentRegistry { return o.registry }

// Gateway returns the gateway; nil before Start or when none is configured.
func (o *Orchestrator) Gateway() *gateway.Gateway { return o.gateway }

// Start validates every configuration, then builds the subsystems in order:
// bus, registry with initialized agents, message graph executors, workflow
// executor, gateway, background loops. The first failure aborts the start
// and tears down what was built.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.state != StateCreated {
		o.mu.Unlock()
		return core.NewError(core.KindConfiguration, "orchestrator already started")
	}
	o.state = StateStarting
	o.mu.Unlock()

	if err := o.start(ctx); err != nil {
		o.teardown()
		o.mu.Lock()
		o.state = StateStopped
		o.mu.Unlock()
		return err
	}

	o.mu.Lock()
	o.state = StateReady
	o.mu.Unlock()
	o.logger.Info("runtime ready",
		"agents", o.registry.Count(),
		"message_graphs", len(o.graphs),
		"workflows", len(o.workflows),
		"gateway", o.gateway != nil)
	return nil
}

func (o *Orchestrator) start(ctx context.Context) error {
	// Every config validates before the first resource exists.
	busCfg, err := o.cfg.Bus.BusConfig()
	if err != nil {
		return err
	}
	if o.gatewayCfg != nil {
		if err := o.gatewayCfg.Validate(); err != nil {
			return err
		}
	}
	for _, g := range o.pendingFlows {
		if err := g.Validate(); err != nil {
			return err
		}
	}

	o.bus = bus.New(func(bo *bus.Options) {
		bo.Config = busCfg
		bo.Logger = componentLogger(o.baseLogger, "bus")
		bo.Registerer = o.registerer
	})

	o.registry = registry.New(func(ro *registry.Options) {
		ro.Logger = componentLogger(o.baseLogger, "registry")
	})
	now := time.Now()
	for _, agent := range o.pendingAgents {
		if err := o.bringUp(ctx, agent); err != nil {
			return err
		}
		o.lastActive[agent.ID()] = now
	}

	for _, g := range o.pendingGraphs {
		compiled, err := g.Compile()
		if err != nil {
			return err
		}
		o.graphs[compiled.ID()] = msggraph.NewExecutor(compiled, o.bus, func(eo *msggraph.ExecutorOptions) {
			eo.SenderID = SenderID
			eo.Directory = o.registry
			eo.Logger = componentLogger(o.baseLogger, "msggraph")
			eo.Registerer = o.registerer
		})
	}

	for _, g := range o.pendingFlows {
		o.workflows[g.ID()] = g
	}
	o.workflowExec = workflow.NewExecutor(func(wo *workflow.ExecutorOptions) {
		o.cfg.Workflow.ExecutorOptions()(wo)
		wo.Logger = componentLogger(o.baseLogger, "workflow")
		wo.Agents = o.registry
		wo.Registerer = o.registerer
	})

	if o.gatewayCfg != nil {
		gw, err := gateway.NewGateway(*o.gatewayCfg, func(gwo *gateway.Options) {
			gwo.Logger = componentLogger(o.baseLogger, "gateway")
			gwo.Invoker = o.gatewayInvoker
			gwo.Filters = o.gatewayFilters
			gwo.Registerer = o.registerer
		})
		if err != nil {
			return err
		}
		o.gateway = gw
	}

	o.spawnLoops()
	return nil
}

// bringUp registers an agent with the registry and the bus, then runs its
// Initialize under the lifecycle transitions.
func (o *Orchestrator) bringUp(ctx context.Context, agent core.Agent) error {
	if err := o.registry.Register(agent); err != nil {
		return err
	}
	meta := agent.Metadata()
	if err := o.bus.RegisterChannel(meta, bus.Broadcast()); err != nil {
		return err
	}
	if err := o.bus.RegisterChannel(meta, bus.PointToPoint(SenderID)); err != nil {
		return err
	}

	id := agent.ID()
	if err := o.registry.SetPhase(id, core.PhaseInitializing); err != nil {
		return err
	}
	if err := agent.Initialize(ctx); err != nil {
		_ = o.registry.SetState(id, core.StateError(err.Error()))
		return core.WrapError(core.KindConfiguration, err, "agent %s failed to initialize", id)
	}
	return o.registry.SetPhase(id, core.PhaseReady)
}

func (o *Orchestrator) teardown() {
	if o.loopCancel != nil {
		o.loopCancel()
		_ = o.loops.Wait()
		o.loopCancel = nil
	}
	if o.bus != nil {
		o.bus.Close()
	}
}

// Stop drains the orchestrator: admissions are rejected immediately,
// in-flight work gets the drain deadline, the shutdown event is broadcast,
// and each agent's Shutdown runs under the per-agent timeout. Stragglers
// are logged and marked errored, never waited on.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	switch o.state {
	case StateStopped:
		o.mu.Unlock()
		return nil
	case StateReady:
	default:
		o.mu.Unlock()
		return core.NewError(core.KindConfiguration, "orchestrator is not running")
	}
	o.state = StateDraining
	o.mu.Unlock()

	o.drain(ctx)

	if err := o.bus.SendMessage(ctx, SenderID, bus.Broadcast(), core.NewShutdownEvent()); err != nil {
		o.logger.Warn("shutdown broadcast failed", "error", err)
	}

	o.shutdownAgents(ctx)
	o.teardown()

	o.mu.Lock()
	o.state = StateStopped
	o.mu.Unlock()
	o.logger.Info("runtime stopped")
	return nil
}

func (o *Orchestrator) drain(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		o.inflight.Wait()
		close(done)
	}()
	timer := time.NewTimer(o.drainTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		o.logger.Warn("drain deadline exceeded", "inflight", o.inflightCount.Load())
	case <-ctx.Done():
		o.logger.Warn("drain cancelled", "inflight", o.inflightCount.Load())
	}
}

func (o *Orchestrator) shutdownAgents(ctx context.Context) {
	var wg sync.WaitGroup
	for _, id := range o.registry.List() {
		agent, ok := o.registry.Get(id)
		if !ok {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.shutdownAgent(ctx, id, agent)
		}()
	}
	wg.Wait()
}

func (o *Orchestrator) shutdownAgent(ctx context.Context, id string, agent core.Agent) {
	_ = o.registry.SetPhase(id, core.PhaseShuttingDown)

	shutdownCtx, cancel := context.WithTimeout(ctx, o.agentShutdownTimeout)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- agent.Shutdown(shutdownCtx) }()

	select {
	case err := <-done:
		if err != nil {
			o.logger.Warn("agent shutdown failed", "agent", id, "error", err)
			_ = o.registry.SetState(id, core.StateError(err.Error()))
			return
		}
		_ = o.registry.SetPhase(id, core.PhaseShutdown)
	case <-shutdownCtx.Done():
		o.logger.Warn("agent shutdown timed out, abandoning", "agent", id)
		_ = o.registry.SetState(id, core.StateError("shutdown timed out"))
	}
}

// admit gates an operation on the ready state and counts it as in-flight.
func (o *Orchestrator) admit() (func(), error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateReady {
		return nil, core.NewError(core.KindBackendUnavailable, "runtime is %s, not accepting work", o.state)
	}
	o.inflight.Add(1)
	o.inflightCount.Add(1)
	return func() {
		o.inflightCount.Add(-1)
		o.inflight.Done()
	}, nil
}

func (o *Orchestrator) touch(agentID string) {
	o.mu.Lock()
	o.lastActive[agentID] = time.Now()
	o.mu.Unlock()
}

// ExecuteTask runs a task on one agent, serialised against every other call
// for the same agent id.
func (o *Orchestrator) ExecuteTask(ctx context.Context, agentID string, msg core.AgentMessage) (core.AgentMessage, error) {
	done, err := o.admit()
	if err != nil {
		return core.AgentMessage{}, err
	}
	defer done()
	o.touch(agentID)

	var resp core.AgentMessage
	err = o.registry.ExecuteSerialized(agentID, func(agent core.Agent) error {
		r, execErr := agent.Execute(ctx, msg)
		resp = r
		return execErr
	})
	if err != nil {
		o.tasksCtr.WithLabelValues("failure").Inc()
		return core.AgentMessage{}, err
	}
	o.tasksCtr.WithLabelValues("success").Inc()
	return resp, nil
}

// DeliverMessage hands a fire-and-forget message to one agent under the
// same per-agent serialisation as ExecuteTask.
func (o *Orchestrator) DeliverMessage(ctx context.Context, agentID string, msg core.AgentMessage) error {
	done, err := o.admit()
	if err != nil {
		return err
	}
	defer done()
	o.touch(agentID)

	return o.registry.ExecuteSerialized(agentID, func(agent core.Agent) error {
		return agent.HandleMessage(ctx, msg)
	})
}

// DispatchEnvelope routes an envelope through a compiled message graph.
func (o *Orchestrator) DispatchEnvelope(ctx context.Context, graphID string, env *core.Envelope) (*msggraph.DispatchReport, error) {
	done, err := o.admit()
	if err != nil {
		return nil, err
	}
	defer done()

	exec, ok := o.graphs[graphID]
	if !ok {
		return nil, core.NewError(core.KindRouting, "message graph %s not registered", graphID)
	}
	return exec.Execute(ctx, env)
}

// RunWorkflow executes a registered workflow graph to completion or pause.
func (o *Orchestrator) RunWorkflow(ctx context.Context, workflowID string, input workflow.Value) (*workflow.WorkflowRecord, error) {
	done, err := o.admit()
	if err != nil {
		return nil, err
	}
	defer done()

	g, ok := o.workflows[workflowID]
	if !ok {
		return nil, core.NewError(core.KindRouting, "workflow %s not registered", workflowID)
	}
	return o.workflowExec.Execute(ctx, g, input)
}

// ResumeWorkflow continues a paused workflow with human input.
func (o *Orchestrator) ResumeWorkflow(ctx context.Context, workflowID string, wfctx *workflow.WorkflowContext, nodeID string, value workflow.Value) (*workflow.WorkflowRecord, error) {
	done, err := o.admit()
	if err != nil {
		return nil, err
	}
	defer done()

	g, ok := o.workflows[workflowID]
	if !ok {
		return nil, core.NewError(core.KindRouting, "workflow %s not registered", workflowID)
	}
	return o.workflowExec.ResumeWithHumanInput(ctx, g, wfctx, nodeID, value)
}
