package bus

import "github.com/mofa-org/mofa-go/core"

// DefaultBufferSize is the ring buffer capacity used when a channel config
// does not specify one.
const DefaultBufferSize = 256

// LagPolicy decides what a receiver does when it has fallen behind the ring
// buffer and messages were overwritten.
type LagPolicy int

const (
	// LagPolicyError surfaces a LaggedError to the caller.
	LagPolicyError LagPolicy = iota
	// LagPolicySkipAndContinue logs and counts the lag, then retries the
	// receive from the oldest retained message.
	LagPolicySkipAndContinue
)

// String returns the string representation of the lag policy.
func (p LagPolicy) String() string {
	switch p {
	case LagPolicyError:
		return "error"
	case LagPolicySkipAndContinue:
		return "skip_and_continue"
	default:
		return "unknown"
	}
}

// ParseLagPolicy parses the String form back into a lag policy. Used by the
// config layer.
func ParseLagPolicy(s string) (LagPolicy, error) {
	switch s {
	case "error":
		return LagPolicyError, nil
	case "skip_and_continue":
		return LagPolicySkipAndContinue, nil
	default:
		return 0, core.NewError(core.KindConfiguration, "unknown lag policy %q", s)
	}
}

// DropStrategy decides which message gives way when a send hits a full
// buffer.
type DropStrategy int

const (
	// DropOldest overwrites the oldest buffered message.
	DropOldest DropStrategy = iota
	// DropLowPriority evicts the lowest-priority buffered message to admit a
	// higher-priority one, and drops the new message when all buffered
	// messages are at least as important.
	DropLowPriority
	// Block makes the send wait until every subscriber has consumed the
	// oldest message.
	Block
)

// String returns the string representation of the drop strategy.
func (s DropStrategy) String() string {
	switch s {
	case DropOldest:
		return "drop_oldest"
	case DropLowPriority:
		return "drop_low_priority"
	case Block:
		return "block"
	default:
		return "unknown"
	}
}

// ParseDropStrategy parses the String form back into a drop strategy. Used
// by the config layer.
func ParseDropStrategy(s string) (DropStrategy, error) {
	switch s {
	case "drop_oldest":
		return DropOldest, nil
	case "drop_low_priority":
		return DropLowPriority, nil
	case "block":
		return Block, nil
	default:
		return 0, core.NewError(core.KindConfiguration, "unknown drop strategy %q", s)
	}
}

// ChannelConfig configures one channel's buffer and backpressure behaviour.
type ChannelConfig struct {
	// BufferSize is the ring capacity; zero means DefaultBufferSize.
	BufferSize int `mapstructure:"buffer_size"`
	// LagPolicy governs slow receivers.
	LagPolicy LagPolicy `mapstructure:"lag_policy"`
	// DropStrategy governs sends into a full buffer.
	DropStrategy DropStrategy `mapstructure:"drop_strategy"`
}

// DefaultChannelConfig returns the baseline channel configuration.
func DefaultChannelConfig() ChannelConfig {
	return ChannelConfig{BufferSize: DefaultBufferSize, LagPolicy: LagPolicyError, DropStrategy: DropOldest}
}

func (c ChannelConfig) bufferSize() int {
	if c.BufferSize <= 0 {
		return DefaultBufferSize
	}
	return c.BufferSize
}

// BusConfig holds the default channel configuration, a broadcast-specific
// slot and per-mode overrides. Resolution order is override, then broadcast
// (for the broadcast mode), then default.
type BusConfig struct {
	DefaultChannel ChannelConfig
	// Broadcast applies to the global broadcast channel when no explicit
	// override for the broadcast mode exists.
	Broadcast *ChannelConfig
	Overrides map[ChannelMode]ChannelConfig
}

// DefaultBusConfig returns a config where every mode uses the default
// channel configuration.
func DefaultBusConfig() BusConfig {
	return BusConfig{DefaultChannel: DefaultChannelConfig()}
}

// Resolve returns the channel configuration for a mode.
func (c BusConfig) Resolve(mode ChannelMode) ChannelConfig {
	if cfg, ok := c.Overrides[mode]; ok {
		return cfg
	}
	if mode.Kind == ModeBroadcast && c.Broadcast != nil {
		return *c.Broadcast
	}
	return c.DefaultChannel
}
