package config

import (
	"time"

	"github.com/mofa-org/mofa-go/bus"
	"github.com/mofa-org/mofa-go/core"
	"github.com/mofa-org/mofa-go/gateway"
	"github.com/mofa-org/mofa-go/workflow"
)

// Config is the full option surface a runtime consumes from a file.
// Sections left out of the file keep their defaults; the gateway section is
// optional and nil when absent.
type Config struct {
	Bus      BusSection             `mapstructure:"bus"`
	Workflow WorkflowSection        `mapstructure:"workflow"`
	Gateway  *gateway.GatewayConfig `mapstructure:"gateway"`
}

// BusSection mirrors bus.BusConfig with string mode keys, which is what a
// config file can express. BusConfig parses the keys.
type BusSection struct {
	DefaultChannel bus.ChannelConfig            `mapstructure:"default_channel"`
	Broadcast      *bus.ChannelConfig           `mapstructure:"broadcast"`
	Overrides      map[string]bus.ChannelConfig `mapstructure:"overrides"`
}

// BusConfig converts the section into a bus.BusConfig. Override keys use
// the mode String form ("p2p:peer", "broadcast", "pubsub:topic"); an
// unknown key is a Configuration error.
func (s BusSection) BusConfig() (bus.BusConfig, error) {
	cfg := bus.BusConfig{DefaultChannel: s.DefaultChannel, Broadcast: s.Broadcast}
	if cfg.DefaultChannel.BufferSize <= 0 {
		cfg.DefaultChannel.BufferSize = bus.DefaultBufferSize
	}
	if len(s.Overrides) > 0 {
		cfg.Overrides = make(map[bus.ChannelMode]bus.ChannelConfig, len(s.Overrides))
		for key, ch := range s.Overrides {
			mode, err := bus.ParseChannelMode(key)
			if err != nil {
				return bus.BusConfig{}, core.WrapError(core.KindConfiguration, err, "bus override %q", key)
			}
			cfg.Overrides[mode] = ch
		}
	}
	return cfg, nil
}

// RetrySection pairs an attempt budget with a delay policy.
type RetrySection struct {
	MaxAttempts int                  `mapstructure:"max_attempts"`
	Policy      workflow.RetryPolicy `mapstructure:",squash"`
}

// RetryConfig returns the attempt budget, floored to one attempt.
func (s RetrySection) RetryConfig() workflow.RetryConfig {
	if s.MaxAttempts < 1 {
		return workflow.DefaultRetryConfig()
	}
	return workflow.RetryConfig{MaxAttempts: s.MaxAttempts, Policy: s.Policy}
}

// WorkflowSection carries the recognised options for a workflow run.
type WorkflowSection struct {
	MaxIterations   int           `mapstructure:"max_iterations"`
	StepTimeout     time.Duration `mapstructure:"step_timeout_ms"`
	Retry           RetrySection  `mapstructure:"retry"`
	ContinueOnError bool          `mapstructure:"continue_on_error"`
	EmitTrace       bool          `mapstructure:"emit_trace"`
}

// ExecutorOptions returns an option function applying the section to a
// workflow executor. Zero values leave the executor defaults alone, except
// EmitTrace which the file states explicitly.
func (s WorkflowSection) ExecutorOptions() func(o *workflow.ExecutorOptions) {
	return func(o *workflow.ExecutorOptions) {
		if s.MaxIterations > 0 {
			o.MaxSteps = s.MaxIterations
		}
		if s.StepTimeout > 0 {
			o.StepTimeout = s.StepTimeout
		}
		o.ContinueOnError = s.ContinueOnError
		o.EmitTrace = s.EmitTrace
	}
}

// GatewayConfig returns the validated gateway section, or nil when the file
// has none.
func (c *Config) GatewayConfig() (*gateway.GatewayConfig, error) {
	if c.Gateway == nil {
		return nil, nil
	}
	if err := c.Gateway.Validate(); err != nil {
		return nil, err
	}
	return c.Gateway, nil
}

// Default returns the configuration an empty file decodes to.
func Default() *Config {
	return &Config{
		Bus: BusSection{DefaultChannel: bus.DefaultChannelConfig()},
		Workflow: WorkflowSection{
			MaxIterations: workflow.DefaultMaxSteps,
			EmitTrace:     true,
		},
	}
}
