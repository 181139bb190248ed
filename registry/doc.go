// Package registry provides the thread-safe agent registry: registration
// and discovery of agents by id, tag or reasoning strategy, factory-based
// creation, and lifecycle state tracking with transition enforcement.
package registry
