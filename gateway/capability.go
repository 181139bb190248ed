package gateway

import (
	"strings"
	"sync"
)

// BackendKind classifies what type of service a backend represents.
type BackendKind string

const (
	// BackendLlmOpenAI is an OpenAI completion or embedding endpoint.
	BackendLlmOpenAI BackendKind = "llm_openai"
	// BackendLlmAnthropic is an Anthropic API endpoint.
	BackendLlmAnthropic BackendKind = "llm_anthropic"
	// BackendLlmCompatible is a generic OpenAI-compatible endpoint.
	BackendLlmCompatible BackendKind = "llm_compatible"
	// BackendMcpTool is an MCP tool server.
	BackendMcpTool BackendKind = "mcp_tool"
	// BackendA2AAgent is an agent-to-agent communication target.
	BackendA2AAgent BackendKind = "a2a_agent"
	// BackendIoT is an IoT hub or device endpoint.
	BackendIoT BackendKind = "iot"
	// BackendHTTP is an arbitrary HTTP service.
	BackendHTTP BackendKind = "http"
)

// HealthState is the last-known health of a backend.
type HealthState string

const (
	// HealthHealthy means the backend responds normally.
	HealthHealthy HealthState = "healthy"
	// HealthDegraded means elevated latency or partial errors.
	HealthDegraded HealthState = "degraded"
	// HealthUnhealthy means the backend is down or erroring.
	HealthUnhealthy HealthState = "unhealthy"
	// HealthUnknown means no probe has run since registration.
	HealthUnknown HealthState = "unknown"
)

// BackendHealth pairs a health state with the probe's reason, if any.
type BackendHealth struct {
	State  HealthState `json:"state" mapstructure:"state"`
	Reason string      `json:"reason,omitempty" mapstructure:"reason"`
}

// Healthy is the normal state.
func Healthy() BackendHealth { return BackendHealth{State: HealthHealthy} }

// Degraded records partial failure with a reason.
func Degraded(reason string) BackendHealth {
	return BackendHealth{State: HealthDegraded, Reason: reason}
}

// Unhealthy records a failing backend with a reason.
func Unhealthy(reason string) BackendHealth {
	return BackendHealth{State: HealthUnhealthy, Reason: reason}
}

// Unknown is the state before the first probe.
func Unknown() BackendHealth { return BackendHealth{State: HealthUnknown} }

// CapabilityDescriptor describes one backend the gateway can forward to.
type CapabilityDescriptor struct {
	// ID is the unique stable backend identifier.
	ID string `json:"id" mapstructure:"id"`
	// Kind classifies the backend for capability matching.
	Kind BackendKind `json:"kind" mapstructure:"kind"`
	// Endpoint is the base URL the gateway forwards to.
	Endpoint string `json:"endpoint" mapstructure:"endpoint"`
	// HealthCheckPath, when set, is appended to Endpoint by the prober.
	HealthCheckPath string `json:"health_check_path,omitempty" mapstructure:"health_check_path"`
	// Metadata carries free-form labels (model names, regions).
	Metadata map[string]string `json:"metadata,omitempty" mapstructure:"metadata"`
	// Health is the last-known state, updated by the health loop.
	Health BackendHealth `json:"health" mapstructure:"health"`
}

// NewBackend creates a descriptor with unknown health.
func NewBackend(id string, kind BackendKind, endpoint string) CapabilityDescriptor {
	return CapabilityDescriptor{ID: id, Kind: kind, Endpoint: endpoint, Health: Unknown()}
}

// WithHealthCheck sets the probe path.
func (d CapabilityDescriptor) WithHealthCheck(path string) CapabilityDescriptor {
	d.HealthCheckPath = path
	return d
}

// WithMetadata attaches one metadata label.
func (d CapabilityDescriptor) WithMetadata(key, value string) CapabilityDescriptor {
	if d.Metadata == nil {
		d.Metadata = map[string]string{}
	}
	d.Metadata[key] = value
	return d
}

func (d CapabilityDescriptor) validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return &InvalidBackendError{BackendID: d.ID, Reason: "backend id is empty"}
	}
	if strings.TrimSpace(d.Endpoint) == "" {
		return &InvalidBackendError{BackendID: d.ID, Reason: "endpoint is empty"}
	}
	if !strings.HasPrefix(d.Endpoint, "http://") && !strings.HasPrefix(d.Endpoint, "https://") {
		return &InvalidBackendError{BackendID: d.ID, Reason: "endpoint must use http or https"}
	}
	return nil
}

// CapabilityRegistry is an in-memory backend directory. Safe for
// concurrent use; the health loop updates it while the request path reads.
type CapabilityRegistry struct {
	mu       sync.RWMutex
	backends map[string]CapabilityDescriptor
	order    []string
}

// NewCapabilityRegistry creates an empty registry.
func NewCapabilityRegistry() *CapabilityRegistry {
	return &CapabilityRegistry{backends: map[string]CapabilityDescriptor{}}
}

// Register adds a backend. Duplicate ids are rejected.
func (r *CapabilityRegistry) Register(descriptor CapabilityDescriptor) error {
	if err := descriptor.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.backends[descriptor.ID]; ok {
		return &DuplicateBackendError{BackendID: descriptor.ID}
	}
	r.backends[descriptor.ID] = descriptor
	r.order = append(r.order, descriptor.ID)
	return nil
}

// Deregister removes a backend by id.
func (r *CapabilityRegistry) Deregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.backends[id]; !ok {
		return &BackendNotFoundError{BackendID: id}
	}
	delete(r.backends, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Lookup returns the descriptor for an id.
func (r *CapabilityRegistry) Lookup(id string) (CapabilityDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.backends[id]
	return d, ok
}

// ListByKind returns all backends of one kind in registration order.
func (r *CapabilityRegistry) ListByKind(kind BackendKind) []CapabilityDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []CapabilityDescriptor
	for _, id := range r.order {
		if d := r.backends[id]; d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}

// ListAll returns every backend in registration order.
func (r *CapabilityRegistry) ListAll() []CapabilityDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]CapabilityDescriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.backends[id])
	}
	return out
}

// UpdateHealth records a probe result for a backend.
func (r *CapabilityRegistry) UpdateHealth(id string, health BackendHealth) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.backends[id]
	if !ok {
		return &BackendNotFoundError{BackendID: id}
	}
	d.Health = health
	r.backends[id] = d
	return nil
}
