package bus

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks bus activity. Counters are exported to prometheus and
// mirrored in plain atomics so tests and health snapshots can read them
// without scraping.
type Metrics struct {
	sent       atomic.Uint64
	sendErrors atomic.Uint64
	received   atomic.Uint64
	lagged     atomic.Uint64
	dropped    atomic.Uint64

	sentVec     *prometheus.CounterVec
	errorVec    *prometheus.CounterVec
	receivedVec *prometheus.CounterVec
	laggedVec   *prometheus.CounterVec
	droppedVec  *prometheus.CounterVec
	inflight    *prometheus.GaugeVec
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	Sent       uint64
	SendErrors uint64
	Received   uint64
	Lagged     uint64
	Dropped    uint64
}

// NewMetrics creates and registers the bus collectors on the given
// registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sentVec: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mofa", Subsystem: "bus", Name: "messages_sent_total",
			Help: "Messages accepted by the bus.",
		}, []string{"mode"}),
		errorVec: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mofa", Subsystem: "bus", Name: "send_errors_total",
			Help: "Sends rejected by the bus.",
		}, []string{"mode"}),
		receivedVec: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mofa", Subsystem: "bus", Name: "messages_received_total",
			Help: "Messages delivered to receivers.",
		}, []string{"mode"}),
		laggedVec: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mofa", Subsystem: "bus", Name: "lagged_messages_total",
			Help: "Messages skipped by lagging receivers.",
		}, []string{"mode"}),
		droppedVec: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mofa", Subsystem: "bus", Name: "dropped_messages_total",
			Help: "Messages evicted unread under backpressure.",
		}, []string{"mode"}),
		inflight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mofa", Subsystem: "bus", Name: "inflight_messages",
			Help: "Retained frames per channel mode.",
		}, []string{"mode"}),
	}
	if reg != nil {
		reg.MustRegister(m.sentVec, m.errorVec, m.receivedVec, m.laggedVec, m.droppedVec, m.inflight)
	}
	return m
}

func (m *Metrics) recordSend(mode ChannelMode) {
	m.sent.Add(1)
	m.sentVec.WithLabelValues(mode.Kind.String()).Inc()
}

func (m *Metrics) recordSendError(mode ChannelMode) {
	m.sendErrors.Add(1)
	m.errorVec.WithLabelValues(mode.Kind.String()).Inc()
}

func (m *Metrics) recordReceive(mode ChannelMode) {
	m.received.Add(1)
	m.receivedVec.WithLabelValues(mode.Kind.String()).Inc()
}

func (m *Metrics) recordLag(mode ChannelMode, n uint64) {
	m.lagged.Add(n)
	m.laggedVec.WithLabelValues(mode.Kind.String()).Add(float64(n))
}

func (m *Metrics) recordDropped(mode ChannelMode, n uint64) {
	m.dropped.Add(n)
	m.droppedVec.WithLabelValues(mode.Kind.String()).Add(float64(n))
}

func (m *Metrics) setInflight(mode ChannelMode, n int) {
	m.inflight.WithLabelValues(mode.Kind.String()).Set(float64(n))
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Sent:       m.sent.Load(),
		SendErrors: m.sendErrors.Load(),
		Received:   m.received.Load(),
		Lagged:     m.lagged.Load(),
		Dropped:    m.dropped.Load(),
	}
}
