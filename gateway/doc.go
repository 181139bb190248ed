// Package gateway validates gateway configuration and exposes the routing,
// filtering, and capability-registry contracts that front external
// protocols.
//
// GatewayConfig.Validate is the gate: no runtime resource is allocated
// before it passes. A validated config compiles into a Gateway whose
// Handle path runs the filter chain, resolves a route through path
// templates, gates on backend health, and hands the request to a pluggable
// Invoker. The kernel binds no sockets; HTTPAdapter is a separable chi
// front that maps error kinds onto HTTP status codes.
package gateway
