// Package config loads the runtime's option surface from structured
// configuration files.
//
// A single file (YAML, TOML, JSON or INI) carries three sections: bus,
// workflow and gateway. Load reads the file through viper, decodes it into
// typed structs with mapstructure hooks (duration strings, millisecond
// integers, lag policy and drop strategy names) and leaves validation to
// the owning packages. Environment variables prefixed MOFA_ override file
// values.
//
// The sections convert into the option types the subsystems consume:
// BusSection into bus.BusConfig, WorkflowSection into workflow executor
// options, and the gateway section is a gateway.GatewayConfig decoded
// directly. Nothing here allocates runtime resources.
package config
