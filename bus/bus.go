package bus

import (
	"context"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mofa-org/mofa-go/core"
	"github.com/mofa-org/mofa-go/logging"
)

// Options configures an AgentBus.
type Options struct {
	// Config holds the default, broadcast and per-mode channel settings.
	Config BusConfig
	// Logger receives lag and drop diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
	// Registerer receives the prometheus collectors. Defaults to a private
	// registry so multiple buses can coexist; pass
	// prometheus.DefaultRegisterer to export process-wide.
	Registerer prometheus.Registerer
}

// AgentBus is the in-process channel fabric connecting agents. Channel maps
// are guarded by a reader-writer lock; registration and unsubscription are
// the only writers.
type AgentBus struct {
	mu        sync.RWMutex
	config    BusConfig
	agents    map[string]map[ChannelMode]*channel
	topicSubs map[string]map[string]struct{}
	broadcast *channel
	metrics   *Metrics
	logger    logging.Logger
	closed    bool
}

// New creates an AgentBus with optional overrides.
func New(optFns ...func(o *Options)) *AgentBus {
	opts := Options{
		Config: DefaultBusConfig(),
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.NewRegistry()
	}

	metrics := NewMetrics(opts.Registerer)
	b := &AgentBus{
		config:    opts.Config,
		agents:    map[string]map[ChannelMode]*channel{},
		topicSubs: map[string]map[string]struct{}{},
		metrics:   metrics,
		logger:    opts.Logger,
	}
	bm := Broadcast()
	b.broadcast = newChannel(opts.Config.Resolve(bm), func(n uint64) { metrics.recordDropped(bm, n) })
	return b
}

// RegisterChannel creates the sink for the (agent, mode) pair if absent.
// Repeated registration is a no-op. For pub-sub the agent is also recorded
// as a topic subscriber; for broadcast the agent gets a cursor on the global
// channel and no per-agent entry.
func (b *AgentBus) RegisterChannel(meta core.AgentMetadata, mode ChannelMode) error {
	if meta.ID == "" {
		return core.NewError(core.KindConfiguration, "agent metadata missing id")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return core.NewError(core.KindDispatch, "bus closed")
	}

	if mode.Kind == ModeBroadcast {
		b.broadcast.subscribe(meta.ID)
		return nil
	}

	channels, ok := b.agents[meta.ID]
	if !ok {
		channels = map[ChannelMode]*channel{}
		b.agents[meta.ID] = channels
	}
	if _, exists := channels[mode]; !exists {
		m := mode
		ch := newChannel(b.config.Resolve(mode), func(n uint64) { b.metrics.recordDropped(m, n) })
		ch.subscribe(meta.ID)
		channels[mode] = ch
	}

	if mode.Kind == ModePubSub {
		subs, ok := b.topicSubs[mode.Party]
		if !ok {
			subs = map[string]struct{}{}
			b.topicSubs[mode.Party] = subs
		}
		subs[meta.ID] = struct{}{}
	}
	return nil
}

// SendMessage serialises the message and dispatches it under the given mode.
// Point-to-point requires the recipient to hold a channel paired with this
// sender; pub-sub silently skips subscribers that have gone away.
func (b *AgentBus) SendMessage(ctx context.Context, senderID string, mode ChannelMode, msg core.AgentMessage) error {
	frame, err := encodeFrame(msg)
	if err != nil {
		b.metrics.recordSendError(mode)
		return err
	}

	pri := msg.Priority()
	var sendErr error
	switch mode.Kind {
	case ModePointToPoint:
		sendErr = b.sendPointToPoint(ctx, senderID, mode.Party, frame, pri)
	case ModeBroadcast:
		sendErr = b.broadcast.send(ctx, frame, pri)
		b.metrics.setInflight(mode, b.broadcast.inflight())
	case ModePubSub:
		sendErr = b.sendPubSub(ctx, mode, frame, pri)
	default:
		sendErr = core.NewError(core.KindDispatch, "unknown channel mode")
	}

	if sendErr != nil {
		b.metrics.recordSendError(mode)
		b.logger.Warn("bus send failed", "mode", mode.String(), "sender", senderID, "error", sendErr)
		return sendErr
	}
	b.metrics.recordSend(mode)
	return nil
}

func (b *AgentBus) sendPointToPoint(ctx context.Context, senderID, receiverID string, frame []byte, pri core.Priority) error {
	b.mu.RLock()
	channels, ok := b.agents[receiverID]
	if !ok {
		b.mu.RUnlock()
		return core.NewError(core.KindDispatch, "agent %s not registered", receiverID)
	}
	ch, ok := channels[PointToPoint(senderID)]
	b.mu.RUnlock()
	if !ok {
		return core.NewError(core.KindDispatch, "receiver %s has no point-to-point channel with sender %s", receiverID, senderID)
	}
	if err := ch.send(ctx, frame, pri); err != nil {
		return err
	}
	b.metrics.setInflight(PointToPoint(senderID), ch.inflight())
	return nil
}

func (b *AgentBus) sendPubSub(ctx context.Context, mode ChannelMode, frame []byte, pri core.Priority) error {
	b.mu.RLock()
	subs, ok := b.topicSubs[mode.Party]
	if !ok || len(subs) == 0 {
		b.mu.RUnlock()
		return core.NewError(core.KindDispatch, "no subscribers for topic %s", mode.Party)
	}
	targets := make([]*channel, 0, len(subs))
	for id := range subs {
		if channels, ok := b.agents[id]; ok {
			if ch, ok := channels[mode]; ok {
				targets = append(targets, ch)
			}
		}
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		if err := ch.send(ctx, frame, pri); err != nil {
			return err
		}
	}
	return nil
}

// ReceiveMessage awaits the next message for the agent under the given mode.
// It returns nil without error when the agent holds no matching channel. Lag
// handling follows the channel's configured policy: under Error a
// backpressure error wrapping LaggedError is returned; under SkipAndContinue
// the lag is logged and counted, then the receive retries.
func (b *AgentBus) ReceiveMessage(ctx context.Context, agentID string, mode ChannelMode) (*core.AgentMessage, error) {
	ch := b.lookupChannel(agentID, mode)
	if ch == nil {
		return nil, nil
	}
	policy := b.config.Resolve(mode).LagPolicy

	for {
		frame, err := ch.receive(ctx, agentID)
		if err != nil {
			var lagged *LaggedError
			if errors.As(err, &lagged) {
				b.metrics.recordLag(mode, lagged.Count)
				if policy == LagPolicySkipAndContinue {
					b.logger.Warn("receiver lagged, skipping", "agent", agentID, "mode", mode.String(), "missed", lagged.Count)
					continue
				}
				return nil, core.WrapError(core.KindBackpressure, lagged, "receive on %s", mode)
			}
			return nil, err
		}
		msg, err := decodeFrame(frame)
		if err != nil {
			return nil, err
		}
		b.metrics.recordReceive(mode)
		return &msg, nil
	}
}

func (b *AgentBus) lookupChannel(agentID string, mode ChannelMode) *channel {
	if mode.Kind == ModeBroadcast {
		return b.broadcast
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	channels, ok := b.agents[agentID]
	if !ok {
		return nil
	}
	return channels[mode]
}

// UnsubscribeTopic removes the agent from a topic, dropping the topic entry
// when it empties. The agent's channel is closed so pending receives return.
func (b *AgentBus) UnsubscribeTopic(agentID, topic string) {
	mode := PubSub(topic)

	b.mu.Lock()
	if subs, ok := b.topicSubs[topic]; ok {
		delete(subs, agentID)
		if len(subs) == 0 {
			delete(b.topicSubs, topic)
		}
	}
	var ch *channel
	if channels, ok := b.agents[agentID]; ok {
		ch = channels[mode]
		delete(channels, mode)
	}
	b.mu.Unlock()

	if ch != nil {
		ch.close()
	}
}

// Metrics returns a snapshot of the bus counters.
func (b *AgentBus) Metrics() MetricsSnapshot {
	return b.metrics.Snapshot()
}

// Close shuts every channel; pending receives drain buffered messages and
// then fail, and further sends are rejected.
func (b *AgentBus) Close() {
	b.mu.Lock()
	b.closed = true
	channels := []*channel{b.broadcast}
	for _, m := range b.agents {
		for _, ch := range m {
			channels = append(channels, ch)
		}
	}
	b.mu.Unlock()

	for _, ch := range channels {
		ch.close()
	}
}
