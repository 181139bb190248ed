// Package msggraph implements the declarative message graph: a validated
// topology of topics, routers, agents and streams with rule-carrying edges,
// dead-letter fallback and hop accounting. Graphs are compiled once; the
// executor dispatches envelopes through the compiled form over the agent
// bus.
package msggraph
