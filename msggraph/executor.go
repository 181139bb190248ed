package msggraph

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/mofa-org/mofa-go/bus"
	"github.com/mofa-org/mofa-go/core"
	"github.com/mofa-org/mofa-go/logging"
)

const (
	// HeaderDeadLetterReason carries why an envelope was dead-lettered.
	HeaderDeadLetterReason = "x-mofa-dead-letter-reason"
	// HeaderDeadLetterFrom carries the node the envelope came from.
	HeaderDeadLetterFrom = "x-mofa-dead-letter-from"

	// ReasonNoRoute: a routing node had outgoing edges but none matched.
	ReasonNoRoute = "no_route"
	// ReasonAgentNotRegistered: an agent node's target is absent.
	ReasonAgentNotRegistered = "agent_not_registered"
	// ReasonHopLimitExceeded: traversal exceeded the graph's max hops.
	ReasonHopLimitExceeded = "hop_limit_exceeded"
	// ReasonBusSendFailed: the bus rejected the dispatch.
	ReasonBusSendFailed = "bus_send_failed"
	// ReasonBackpressure: the target node's concurrency cap was exhausted.
	ReasonBackpressure = "backpressure"

	// ExecutorSenderID is the bus sender id the executor dispatches under.
	ExecutorSenderID = "message_graph_executor"

	// RoutedEventName is the custom event wrapping a routed envelope.
	RoutedEventName = "graph.route"

	// DefaultNodeCapacity is the per-node concurrent dispatch cap.
	DefaultNodeCapacity = 64
)

// AgentDirectory answers whether an agent id is currently registered. The
// agent registry satisfies it.
type AgentDirectory interface {
	Has(id string) bool
}

// NodeVisit records one edge traversal.
type NodeVisit struct {
	From           string
	To             string
	HopCount       int
	Mode           DeliveryMode
	DeliveredToBus bool
}

// DeadLetterRecord describes one dead-lettered envelope, including whether
// the dead-letter delivery itself succeeded.
type DeadLetterRecord struct {
	From           string
	DeadLetterNode string
	Reason         string
	Envelope       *core.Envelope
	Delivered      bool
	DeliveryError  string
}

// DispatchReport summarises one execution.
type DispatchReport struct {
	GraphID     string
	Trace       []NodeVisit
	DeadLetters []DeadLetterRecord
}

// TotalDispatched counts edge traversals that reached the bus.
func (r *DispatchReport) TotalDispatched() int {
	n := 0
	for _, v := range r.Trace {
		if v.DeliveredToBus {
			n++
		}
	}
	return n
}

// TotalDeadLetters counts dead-lettered envelopes.
func (r *DispatchReport) TotalDeadLetters() int { return len(r.DeadLetters) }

// ExecutorOptions configures a message graph executor.
type ExecutorOptions struct {
	// SenderID is the bus sender the executor dispatches under.
	SenderID string
	// DefaultNodeCapacity caps concurrent dispatches per node.
	DefaultNodeCapacity int
	// Directory, when set, lets the executor distinguish unregistered
	// agents from transient bus failures.
	Directory AgentDirectory
	// Logger receives dispatch diagnostics.
	Logger logging.Logger
	// Registerer receives the prometheus collectors; nil disables export.
	Registerer prometheus.Registerer
}

// Executor dispatches envelopes through a compiled graph over the bus.
type Executor struct {
	graph    *CompiledGraph
	bus      *bus.AgentBus
	senderID string
	dir      AgentDirectory
	logger   logging.Logger

	streamSeq atomic.Uint64

	mu     sync.Mutex
	limits map[string]chan struct{}

	dispatchedCtr   prometheus.Counter
	deadLetteredCtr prometheus.Counter
}

// NewExecutor creates an executor for a compiled graph.
func NewExecutor(graph *CompiledGraph, b *bus.AgentBus, optFns ...func(o *ExecutorOptions)) *Executor {
	opts := ExecutorOptions{
		SenderID:            ExecutorSenderID,
		DefaultNodeCapacity: DefaultNodeCapacity,
		Logger:              logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	limits := map[string]chan struct{}{}
	for id, n := range graph.nodes {
		if n.Kind == NodeRouter {
			continue
		}
		limits[id] = make(chan struct{}, opts.DefaultNodeCapacity)
	}

	e := &Executor{
		graph:    graph,
		bus:      b,
		senderID: opts.SenderID,
		dir:      opts.Directory,
		logger:   opts.Logger,
		limits:   limits,
		dispatchedCtr: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mofa", Subsystem: "msggraph", Name: "dispatched_total",
			Help:        "Edge dispatches delivered to the bus.",
			ConstLabels: prometheus.Labels{"graph": graph.ID()},
		}),
		deadLetteredCtr: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mofa", Subsystem: "msggraph", Name: "dead_letters_total",
			Help:        "Envelopes routed to the dead-letter node.",
			ConstLabels: prometheus.Labels{"graph": graph.ID()},
		}),
	}
	if opts.Registerer != nil {
		opts.Registerer.MustRegister(e.dispatchedCtr, e.deadLetteredCtr)
	}
	return e
}

// SetNodeCapacity replaces the concurrency cap for one node. Routers carry
// no cap.
func (e *Executor) SetNodeCapacity(nodeID string, capacity int) error {
	n, ok := e.graph.node(nodeID)
	if !ok {
		return core.NewError(core.KindConfiguration, "graph %s: no node %s", e.graph.ID(), nodeID)
	}
	if n.Kind == NodeRouter {
		return core.NewError(core.KindConfiguration, "graph %s: router %s carries no capacity", e.graph.ID(), nodeID)
	}
	if capacity < 1 {
		return core.NewError(core.KindConfiguration, "graph %s: capacity %d below 1", e.graph.ID(), capacity)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.limits[nodeID]) != 0 {
		return core.NewError(core.KindConfiguration, "graph %s: node %s capacity in use", e.graph.ID(), nodeID)
	}
	e.limits[nodeID] = make(chan struct{}, capacity)
	return nil
}

// pendingRoute is one frontier item: an envelope positioned at a node.
type pendingRoute struct {
	nodeID   string
	envelope *core.Envelope
}

// routeOutcome accumulates the results of expanding one frontier item.
type routeOutcome struct {
	next        []pendingRoute
	trace       []NodeVisit
	deadLetters []DeadLetterRecord
}

// Execute dispatches the envelope through the graph starting at every entry
// point, breadth-first. Routing failures dead-letter and never abort the
// run; only a failure on the dead-letter path itself is fatal.
func (e *Executor) Execute(ctx context.Context, env *core.Envelope) (*DispatchReport, error) {
	report := &DispatchReport{GraphID: e.graph.ID()}

	frontier := make([]pendingRoute, 0, len(e.graph.EntryPoints()))
	for _, id := range e.graph.EntryPoints() {
		frontier = append(frontier, pendingRoute{nodeID: id, envelope: env.Clone()})
	}

	for len(frontier) > 0 {
		outcomes := make([]routeOutcome, len(frontier))
		g, gctx := errgroup.WithContext(ctx)
		for i, pending := range frontier {
			g.Go(func() error {
				out, err := e.routeFromNode(gctx, pending)
				if err != nil {
					return err
				}
				outcomes[i] = out
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return report, err
		}

		frontier = frontier[:0]
		for _, out := range outcomes {
			report.Trace = append(report.Trace, out.trace...)
			report.DeadLetters = append(report.DeadLetters, out.deadLetters...)
			frontier = append(frontier, out.next...)
		}
	}

	e.dispatchedCtr.Add(float64(report.TotalDispatched()))
	e.deadLetteredCtr.Add(float64(report.TotalDeadLetters()))
	e.logger.Debug("graph execution finished", "graph", e.graph.ID(),
		"dispatched", report.TotalDispatched(), "dead_letters", report.TotalDeadLetters())
	return report, nil
}

func (e *Executor) routeFromNode(ctx context.Context, pending pendingRoute) (routeOutcome, error) {
	var out routeOutcome

	matched := e.graph.matchedEdges(pending.nodeID, pending.envelope)
	if len(matched) == 0 {
		// Leaf nodes terminate silently; nodes with unmatched outgoing
		// edges dead-letter.
		if !e.graph.hasOutgoing(pending.nodeID) {
			return out, nil
		}
		rec, err := e.routeToDeadLetter(ctx, pending.nodeID, pending.envelope, ReasonNoRoute)
		if err != nil {
			return out, err
		}
		out.deadLetters = append(out.deadLetters, rec)
		return out, nil
	}

	for _, edge := range matched {
		next := pending.envelope.Clone()
		next.HopCount++

		if next.HopCount > e.graph.MaxHops() {
			rec, err := e.routeToDeadLetter(ctx, edge.From, next, ReasonHopLimitExceeded)
			if err != nil {
				return out, err
			}
			out.deadLetters = append(out.deadLetters, rec)
			continue
		}

		delivered, reason, dispatchErr := e.dispatchToNode(ctx, edge.To, edge.Policy.Mode, next)
		if dispatchErr != nil {
			rec, err := e.routeToDeadLetter(ctx, edge.From, next, reason)
			if err != nil {
				return out, err
			}
			out.deadLetters = append(out.deadLetters, rec)
			continue
		}

		out.trace = append(out.trace, NodeVisit{
			From:           edge.From,
			To:             edge.To,
			HopCount:       next.HopCount,
			Mode:           edge.Policy.Mode,
			DeliveredToBus: delivered,
		})
		out.next = append(out.next, pendingRoute{nodeID: edge.To, envelope: next})
	}
	return out, nil
}

// dispatchToNode sends the envelope to a node's bus address. Routers pass
// through without touching the bus. The returned reason classifies a
// failure for dead-lettering.
func (e *Executor) dispatchToNode(ctx context.Context, nodeID string, mode DeliveryMode, env *core.Envelope) (delivered bool, reason string, err error) {
	n, ok := e.graph.node(nodeID)
	if !ok {
		return false, ReasonBusSendFailed, core.NewError(core.KindInternal, "graph %s: no node %s", e.graph.ID(), nodeID)
	}
	if n.Kind == NodeRouter {
		return false, "", nil
	}

	if n.Kind == NodeAgent && e.dir != nil && !e.dir.Has(n.Ref) {
		return false, ReasonAgentNotRegistered, core.NewError(core.KindDispatch, "agent %s not registered", n.Ref)
	}

	release, ok := e.acquireNodePermit(nodeID)
	if !ok {
		return false, ReasonBackpressure, core.NewError(core.KindBackpressure, "node %s at capacity", nodeID)
	}
	defer release()

	busMode, msg, buildErr := e.buildBusDispatch(n, mode, env)
	if buildErr != nil {
		return false, ReasonBusSendFailed, buildErr
	}

	if sendErr := e.bus.SendMessage(ctx, e.senderID, busMode, msg); sendErr != nil {
		return false, ReasonBusSendFailed, sendErr
	}
	return true, "", nil
}

// buildBusDispatch maps a node and delivery mode to a bus mode and message.
// Streams carry a stream chunk with a monotonic per-executor sequence;
// everything else carries the envelope as a graph.route custom event.
func (e *Executor) buildBusDispatch(n Node, mode DeliveryMode, env *core.Envelope) (bus.ChannelMode, core.AgentMessage, error) {
	var busMode bus.ChannelMode
	switch mode {
	case DeliverBroadcast:
		busMode = bus.Broadcast()
	case DeliverPubSub:
		busMode = bus.PubSub(n.Ref)
	default: // DeliverDirect
		switch n.Kind {
		case NodeAgent:
			busMode = bus.PointToPoint(n.Ref)
		default:
			busMode = bus.PubSub(n.Ref)
		}
	}

	if n.Kind == NodeStream {
		return busMode, core.NewStreamMessage(n.Ref, e.streamSeq.Add(1), env.Payload), nil
	}

	payload, err := env.MarshalDurable()
	if err != nil {
		return busMode, core.AgentMessage{}, err
	}
	return busMode, core.NewCustomEvent(RoutedEventName, payload), nil
}

// routeToDeadLetter stamps the reason headers and delivers the envelope to
// the dead-letter node. A missing dead-letter node and a send failure on
// the dead-letter path itself are both fatal to the whole dispatch; the
// dead-letter queue is the last resort, so losing an envelope there cannot
// be reported as success.
func (e *Executor) routeToDeadLetter(ctx context.Context, from string, env *core.Envelope, reason string) (DeadLetterRecord, error) {
	dlq := e.graph.DeadLetterNode()
	if dlq == "" {
		return DeadLetterRecord{}, core.NewError(core.KindRouting, "graph %s: no dead-letter node for %s from %s", e.graph.ID(), reason, from)
	}

	env = env.Clone()
	env.WithHeader(HeaderDeadLetterReason, reason)
	env.WithHeader(HeaderDeadLetterFrom, from)

	rec := DeadLetterRecord{From: from, DeadLetterNode: dlq, Reason: reason, Envelope: env}
	if dlq == from {
		rec.DeliveryError = "dead-letter source is dead-letter node"
		return rec, nil
	}

	if _, _, err := e.dispatchToNode(ctx, dlq, DeliverDirect, env); err != nil {
		rec.DeliveryError = err.Error()
		e.logger.Error("dead-letter delivery failed", "graph", e.graph.ID(), "from", from, "reason", reason, "error", err)
		return rec, core.WrapError(core.KindDispatch, err, "graph %s: dead-letter delivery to %s failed", e.graph.ID(), dlq)
	}
	rec.Delivered = true
	return rec, nil
}

func (e *Executor) acquireNodePermit(nodeID string) (func(), bool) {
	e.mu.Lock()
	sem := e.limits[nodeID]
	e.mu.Unlock()
	if sem == nil {
		return func() {}, true
	}
	select {
	case sem <- struct{}{}:
		return func() { <-sem }, true
	default:
		return nil, false
	}
}
