package runtime

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mofa-org/mofa-go/core"
	"github.com/mofa-org/mofa-go/gateway"
)

// HealthProber checks one backend and reports its health. The probe loop
// feeds the result into the gateway's capability registry.
type HealthProber interface {
	Probe(ctx context.Context, backend gateway.CapabilityDescriptor) gateway.BackendHealth
}

// HealthProberFunc adapts a function to the HealthProber interface.
type HealthProberFunc func(ctx context.Context, backend gateway.CapabilityDescriptor) gateway.BackendHealth

// Probe calls f.
func (f HealthProberFunc) Probe(ctx context.Context, backend gateway.CapabilityDescriptor) gateway.BackendHealth {
	return f(ctx, backend)
}

func (o *Orchestrator) spawnLoops() {
	ctx, cancel := context.WithCancel(context.Background())
	o.loopCancel = cancel
	g, ctx := errgroup.WithContext(ctx)
	o.loops = g

	if o.prober != nil && o.gateway != nil && o.probeInterval > 0 {
		g.Go(func() error { return o.healthProbeLoop(ctx) })
	}
	if o.idleTimeout > 0 {
		g.Go(func() error { return o.idleEvictionLoop(ctx) })
	}
	if o.metricsInterval > 0 {
		g.Go(func() error { return o.metricsLoop(ctx) })
	}
}

// healthProbeLoop probes every registered backend each tick and pushes the
// result into the capability registry.
func (o *Orchestrator) healthProbeLoop(ctx context.Context) error {
	ticker := time.NewTicker(o.probeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			o.probeBackends(ctx)
		}
	}
}

func (o *Orchestrator) probeBackends(ctx context.Context) {
	reg := o.gateway.Registry()
	for _, backend := range reg.ListAll() {
		health := o.prober.Probe(ctx, backend)
		if health.State != backend.Health.State {
			o.logger.Info("backend health changed",
				"backend", backend.ID, "from", string(backend.Health.State),
				"to", string(health.State), "reason", health.Reason)
		}
		if err := reg.UpdateHealth(backend.ID, health); err != nil {
			o.logger.Warn("health update failed", "backend", backend.ID, "error", err)
		}
	}
}

// idleEvictionLoop shuts down and deregisters agents that have been idle
// past the configured timeout. Only Ready agents are evicted.
func (o *Orchestrator) idleEvictionLoop(ctx context.Context) error {
	tick := o.idleTimeout / 2
	if tick < time.Millisecond {
		tick = time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			o.evictIdleAgents(ctx)
		}
	}
}

func (o *Orchestrator) evictIdleAgents(ctx context.Context) {
	cutoff := time.Now().Add(-o.idleTimeout)

	o.mu.Lock()
	var idle []string
	for id, last := range o.lastActive {
		if last.Before(cutoff) {
			idle = append(idle, id)
		}
	}
	o.mu.Unlock()

	for _, id := range idle {
		state, ok := o.registry.State(id)
		if !ok || state.Phase != core.PhaseReady {
			continue
		}
		agent, ok := o.registry.Get(id)
		if !ok {
			continue
		}
		o.logger.Info("evicting idle agent", "agent", id)
		o.shutdownAgent(ctx, id, agent)
		if err := o.registry.Deregister(id); err != nil {
			o.logger.Warn("idle eviction deregister failed", "agent", id, "error", err)
			continue
		}
		o.mu.Lock()
		delete(o.lastActive, id)
		o.mu.Unlock()
	}
}

// metricsLoop copies bus and registry snapshots into the runtime gauges.
func (o *Orchestrator) metricsLoop(ctx context.Context) error {
	ticker := time.NewTicker(o.metricsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			o.collect()
		}
	}
}

func (o *Orchestrator) collect() {
	snap := o.bus.Metrics()
	o.busGauge.WithLabelValues("sent").Set(float64(snap.Sent))
	o.busGauge.WithLabelValues("send_errors").Set(float64(snap.SendErrors))
	o.busGauge.WithLabelValues("received").Set(float64(snap.Received))
	o.busGauge.WithLabelValues("lagged").Set(float64(snap.Lagged))
	o.busGauge.WithLabelValues("dropped").Set(float64(snap.Dropped))

	counts := map[core.AgentPhase]int{}
	for _, state := range o.registry.HealthSnapshot() {
		counts[state.Phase]++
	}
	o.agentsGauge.Reset()
	for phase, n := range counts {
		o.agentsGauge.WithLabelValues(string(phase)).Set(float64(n))
	}

	o.inflightGauge.Set(float64(o.inflightCount.Load()))
}
