package msggraph

import (
	"time"

	"github.com/mofa-org/mofa-go/core"
)

// DefaultMaxHops bounds envelope traversal when a graph does not set its
// own limit.
const DefaultMaxHops = 32

// NodeKind enumerates the message graph node kinds.
type NodeKind int

const (
	// NodeTopic is a named pub-sub topic; entry points are usually topics.
	NodeTopic NodeKind = iota
	// NodeRouter evaluates its outgoing edge rules; first match wins.
	NodeRouter
	// NodeAgent dispatches to a registered agent over the bus.
	NodeAgent
	// NodeStream dispatches stream chunks to a pub-sub stream.
	NodeStream
	// NodeDeadLetter is a sink absorbing undeliverable envelopes.
	NodeDeadLetter
)

// String returns the string representation of the node kind.
func (k NodeKind) String() string {
	switch k {
	case NodeTopic:
		return "topic"
	case NodeRouter:
		return "router"
	case NodeAgent:
		return "agent"
	case NodeStream:
		return "stream"
	case NodeDeadLetter:
		return "dead_letter"
	default:
		return "unknown"
	}
}

// Node is one vertex of the message graph. Ref carries the topic name,
// agent id or stream id depending on the kind.
type Node struct {
	ID   string
	Kind NodeKind
	Ref  string
}

// RuleKind discriminates route rules.
type RuleKind int

const (
	// RuleAlways matches every envelope.
	RuleAlways RuleKind = iota
	// RuleHeaderEquals matches when a header has an exact value.
	RuleHeaderEquals
	// RuleMessageType matches on the envelope's message type.
	RuleMessageType
	// RulePredicate matches when a registered predicate returns true.
	RulePredicate
)

// RouteRule decides whether an edge accepts an envelope.
type RouteRule struct {
	Kind RuleKind
	// Key and Value parameterise HeaderEquals.
	Key   string
	Value string
	// Type parameterises MessageType.
	Type string
	// PredicateID names a predicate registered on the graph.
	PredicateID string
}

// Always matches every envelope.
func Always() RouteRule { return RouteRule{Kind: RuleAlways} }

// HeaderEquals matches envelopes whose header key equals value.
func HeaderEquals(key, value string) RouteRule {
	return RouteRule{Kind: RuleHeaderEquals, Key: key, Value: value}
}

// MessageType matches envelopes carrying the given message type.
func MessageType(t string) RouteRule { return RouteRule{Kind: RuleMessageType, Type: t} }

// Predicate matches when the named registered predicate returns true.
func Predicate(id string) RouteRule { return RouteRule{Kind: RulePredicate, PredicateID: id} }

// PredicateFunc evaluates an envelope against application logic.
type PredicateFunc func(env *core.Envelope) bool

// DeliveryMode selects the bus mode an edge dispatch uses.
type DeliveryMode int

const (
	// DeliverDirect uses point-to-point for agents and pub-sub for topics
	// and streams.
	DeliverDirect DeliveryMode = iota
	// DeliverPubSub forces pub-sub addressing.
	DeliverPubSub
	// DeliverBroadcast reaches every broadcast subscriber.
	DeliverBroadcast
)

// DeliveryPolicy configures how an edge's dispatch behaves.
type DeliveryPolicy struct {
	Mode DeliveryMode
	// MaxRetries bounds redelivery attempts on bus send failure.
	MaxRetries int
	// Timeout bounds one dispatch; zero means no bound.
	Timeout time.Duration
}

// Edge connects two nodes with a rule and a delivery policy.
type Edge struct {
	From   string
	To     string
	Rule   RouteRule
	Policy DeliveryPolicy
}

// Graph is the mutable builder form of a message graph. Compile validates
// it and returns the immutable executable form.
type Graph struct {
	id             string
	maxHops        int
	nodes          map[string]Node
	nodeOrder      []string
	edges          []Edge
	predicates     map[string]PredicateFunc
	deadLetterNode string
}

// NewGraph creates an empty graph with the default hop limit.
func NewGraph(id string) *Graph {
	return &Graph{
		id:         id,
		maxHops:    DefaultMaxHops,
		nodes:      map[string]Node{},
		predicates: map[string]PredicateFunc{},
	}
}

// SetMaxHops bounds envelope traversal.
func (g *Graph) SetMaxHops(n int) *Graph {
	g.maxHops = n
	return g
}

// AddTopic adds a topic node whose pub-sub topic is the node id.
func (g *Graph) AddTopic(id string) *Graph { return g.addNode(Node{ID: id, Kind: NodeTopic, Ref: id}) }

// AddRouter adds a router node.
func (g *Graph) AddRouter(id string) *Graph { return g.addNode(Node{ID: id, Kind: NodeRouter}) }

// AddAgent adds an agent node dispatching to the given agent id.
func (g *Graph) AddAgent(id, agentID string) *Graph {
	return g.addNode(Node{ID: id, Kind: NodeAgent, Ref: agentID})
}

// AddStream adds a stream node dispatching to the given stream id.
func (g *Graph) AddStream(id, streamID string) *Graph {
	return g.addNode(Node{ID: id, Kind: NodeStream, Ref: streamID})
}

// AddDeadLetterNode adds an explicit dead-letter sink node.
func (g *Graph) AddDeadLetterNode(id string) *Graph {
	return g.addNode(Node{ID: id, Kind: NodeDeadLetter, Ref: id})
}

func (g *Graph) addNode(n Node) *Graph {
	if _, exists := g.nodes[n.ID]; !exists {
		g.nodeOrder = append(g.nodeOrder, n.ID)
	}
	g.nodes[n.ID] = n
	return g
}

// AddEdge connects from to to under the given rule with the default
// delivery policy.
func (g *Graph) AddEdge(from, to string, rule RouteRule) *Graph {
	return g.AddEdgeWithPolicy(from, to, rule, DeliveryPolicy{})
}

// AddEdgeWithPolicy connects from to to with an explicit delivery policy.
func (g *Graph) AddEdgeWithPolicy(from, to string, rule RouteRule, policy DeliveryPolicy) *Graph {
	g.edges = append(g.edges, Edge{From: from, To: to, Rule: rule, Policy: policy})
	return g
}

// RegisterPredicate installs a named predicate for Predicate rules.
func (g *Graph) RegisterPredicate(id string, fn PredicateFunc) *Graph {
	g.predicates[id] = fn
	return g
}

// SetDeadLetter designates the node absorbing undeliverable envelopes.
func (g *Graph) SetDeadLetter(nodeID string) *Graph {
	g.deadLetterNode = nodeID
	return g
}

// Validate checks the graph invariants without compiling.
func (g *Graph) Validate() error {
	if g.maxHops < 1 {
		return core.NewError(core.KindConfiguration, "graph %s: max hops %d below 1", g.id, g.maxHops)
	}
	for _, e := range g.edges {
		if _, ok := g.nodes[e.From]; !ok {
			return core.NewError(core.KindConfiguration, "graph %s: edge references missing node %s", g.id, e.From)
		}
		if _, ok := g.nodes[e.To]; !ok {
			return core.NewError(core.KindConfiguration, "graph %s: edge references missing node %s", g.id, e.To)
		}
		if e.Rule.Kind == RulePredicate {
			if _, ok := g.predicates[e.Rule.PredicateID]; !ok {
				return core.NewError(core.KindConfiguration, "graph %s: edge %s->%s references unknown predicate %q", g.id, e.From, e.To, e.Rule.PredicateID)
			}
		}
	}

	entries := g.entryPoints()
	if len(entries) == 0 {
		return core.NewError(core.KindConfiguration, "graph %s: no entry points", g.id)
	}
	for _, id := range entries {
		kind := g.nodes[id].Kind
		if kind != NodeTopic && kind != NodeRouter {
			return core.NewError(core.KindConfiguration, "graph %s: entry point %s must be a topic or router, got %s", g.id, id, kind)
		}
	}

	deadLetterKinds := 0
	for _, id := range g.nodeOrder {
		if g.nodes[id].Kind == NodeDeadLetter {
			deadLetterKinds++
		}
	}
	if deadLetterKinds > 1 {
		return core.NewError(core.KindConfiguration, "graph %s: more than one dead-letter node", g.id)
	}
	if g.deadLetterNode != "" {
		n, ok := g.nodes[g.deadLetterNode]
		if !ok {
			return core.NewError(core.KindConfiguration, "graph %s: dead-letter node %s not declared", g.id, g.deadLetterNode)
		}
		if n.Kind != NodeTopic && n.Kind != NodeDeadLetter {
			return core.NewError(core.KindConfiguration, "graph %s: dead-letter node %s must be a topic, got %s", g.id, g.deadLetterNode, n.Kind)
		}
	}
	return nil
}

// entryPoints returns node ids with no incoming edges, in declaration
// order. The dead-letter sink is never an entry point.
func (g *Graph) entryPoints() []string {
	hasIncoming := map[string]bool{}
	for _, e := range g.edges {
		hasIncoming[e.To] = true
	}
	var out []string
	for _, id := range g.nodeOrder {
		if hasIncoming[id] {
			continue
		}
		if id == g.deadLetterNode || g.nodes[id].Kind == NodeDeadLetter {
			continue
		}
		out = append(out, id)
	}
	return out
}

// Compile validates the graph and freezes it into its executable form.
func (g *Graph) Compile() (*CompiledGraph, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	adjacency := map[string][]Edge{}
	for _, e := range g.edges {
		adjacency[e.From] = append(adjacency[e.From], e)
	}
	nodes := make(map[string]Node, len(g.nodes))
	for id, n := range g.nodes {
		nodes[id] = n
	}
	predicates := make(map[string]PredicateFunc, len(g.predicates))
	for id, fn := range g.predicates {
		predicates[id] = fn
	}

	deadLetter := g.deadLetterNode
	if deadLetter == "" {
		for _, id := range g.nodeOrder {
			if nodes[id].Kind == NodeDeadLetter {
				deadLetter = id
				break
			}
		}
	}

	return &CompiledGraph{
		id:             g.id,
		maxHops:        g.maxHops,
		nodes:          nodes,
		adjacency:      adjacency,
		entryPoints:    g.entryPoints(),
		predicates:     predicates,
		deadLetterNode: deadLetter,
	}, nil
}

// CompiledGraph is the immutable, validated form of a message graph.
type CompiledGraph struct {
	id             string
	maxHops        int
	nodes          map[string]Node
	adjacency      map[string][]Edge
	entryPoints    []string
	predicates     map[string]PredicateFunc
	deadLetterNode string
}

// ID returns the graph identifier.
func (c *CompiledGraph) ID() string { return c.id }

// MaxHops returns the hop limit.
func (c *CompiledGraph) MaxHops() int { return c.maxHops }

// EntryPoints returns the entry node ids.
func (c *CompiledGraph) EntryPoints() []string { return c.entryPoints }

// DeadLetterNode returns the designated dead-letter node id, or empty.
func (c *CompiledGraph) DeadLetterNode() string { return c.deadLetterNode }

// node returns the node for an id.
func (c *CompiledGraph) node(id string) (Node, bool) {
	n, ok := c.nodes[id]
	return n, ok
}

// matches evaluates a rule against an envelope.
func (c *CompiledGraph) matches(rule RouteRule, env *core.Envelope) bool {
	switch rule.Kind {
	case RuleAlways:
		return true
	case RuleHeaderEquals:
		v, ok := env.Header(rule.Key)
		return ok && v == rule.Value
	case RuleMessageType:
		return env.MessageType == rule.Type
	case RulePredicate:
		fn, ok := c.predicates[rule.PredicateID]
		return ok && fn(env)
	default:
		return false
	}
}

// matchedEdges returns the edges an envelope takes out of a node. Routers
// take the first matching edge only; every other node kind fans out along
// all matching edges.
func (c *CompiledGraph) matchedEdges(nodeID string, env *core.Envelope) []Edge {
	edges := c.adjacency[nodeID]
	if c.nodes[nodeID].Kind == NodeRouter {
		for _, e := range edges {
			if c.matches(e.Rule, env) {
				return []Edge{e}
			}
		}
		return nil
	}
	var out []Edge
	for _, e := range edges {
		if c.matches(e.Rule, env) {
			out = append(out, e)
		}
	}
	return out
}

// hasOutgoing reports whether any edge leaves the node.
func (c *CompiledGraph) hasOutgoing(nodeID string) bool {
	return len(c.adjacency[nodeID]) > 0
}
