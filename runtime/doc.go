// Package runtime assembles the subsystems into one orchestrated process.
//
// The Orchestrator owns the bus, the agent registry, the compiled message
// graphs, the workflow executor and the optional gateway. Start builds them
// in a fixed order after validating every configuration, so nothing
// allocates runtime resources behind an invalid config. Stop drains
// in-flight work up to a deadline, broadcasts the shutdown event, awaits
// each agent's Shutdown under a per-agent timeout and logs the stragglers.
//
// Between Start and Stop the orchestrator admits work through ExecuteTask,
// DeliverMessage, DispatchEnvelope and RunWorkflow. Calls for one agent id
// are serialised through the registry's per-agent locks. Background loops
// probe backend health, evict idle agents and tick the metrics collector.
package runtime
