// Package core provides the foundational domain types shared by every
// subsystem of the runtime. It defines the core abstractions for:
//
//   - Envelope (typed, correlatable, TTL-bearing message wrapper)
//   - AgentMessage (the sum of message kinds agents exchange)
//   - Agents (identity, capabilities, lifecycle state machine)
//   - Error (taxonomised error kinds with wrapping support)
//
// The package intentionally keeps implementation concerns (bus delivery,
// routing, workflow execution, gateway fronting) out of scope, exposing small
// types and interfaces so subsystems can interoperate without depending on
// each other. All exported identifiers include concise documentation to aid
// discoverability and external consumption.
package core
