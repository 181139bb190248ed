package workflow

import "github.com/mofa-org/mofa-go/core"

// Plan returns the graph's nodes in topological order for inspection and
// debugging. Back edges that close a Loop cycle are skipped, so a valid
// graph always yields a full ordering; any other cycle is an error. Nodes
// with equal depth keep declaration order.
func Plan(g *WorkflowGraph) ([]string, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	indegree := map[string]int{}
	outgoing := map[string][]string{}
	for _, id := range g.nodeOrder {
		indegree[id] = 0
	}
	for _, e := range g.edges {
		if isLoopBackEdge(g, e) {
			continue
		}
		outgoing[e.From] = append(outgoing[e.From], e.To)
		indegree[e.To]++
	}

	frontier := make([]string, 0, len(g.nodeOrder))
	for _, id := range g.nodeOrder {
		if indegree[id] == 0 {
			frontier = append(frontier, id)
		}
	}

	order := make([]string, 0, len(g.nodeOrder))
	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]
		order = append(order, id)
		for _, to := range outgoing[id] {
			indegree[to]--
			if indegree[to] == 0 {
				frontier = append(frontier, to)
			}
		}
	}

	if len(order) != len(g.nodeOrder) {
		return nil, core.NewError(core.KindConfiguration, "workflow %s: cycle not closed by a loop node", g.id)
	}
	return order, nil
}

// isLoopBackEdge reports whether an edge re-enters a Loop node from inside
// its own body. Such edges close the iteration cycle and are excluded from
// topological planning.
func isLoopBackEdge(g *WorkflowGraph, e WorkflowEdge) bool {
	n, ok := g.nodes[e.To]
	if !ok || n.Kind != NodeLoop {
		return false
	}
	return g.reachableFrom(e.To)[e.From]
}
