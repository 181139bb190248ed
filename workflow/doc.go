// Package workflow evaluates directed graphs of typed compute nodes under
// shared, versioned state. Nodes return commands combining state updates
// with a control-flow directive, so a single return value both mutates
// state and decides where execution goes next.
//
// A graph is built with WorkflowGraph, validated, then run by an Executor.
// Wait nodes pause the run and hand a serialisable snapshot back to the
// caller; ResumeWithHumanInput rehydrates the context and continues.
// Per-node retry policies, circuit breakers, and step timeouts bound
// failure; execution events trace every transition.
package workflow
