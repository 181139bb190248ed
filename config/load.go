package config

import (
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/ini.v1"

	"github.com/mofa-org/mofa-go/bus"
	"github.com/mofa-org/mofa-go/core"
)

// EnvPrefix is the prefix for environment variable overrides, so
// MOFA_WORKFLOW_MAX_ITERATIONS overrides workflow.max_iterations.
const EnvPrefix = "MOFA"

// Load reads a configuration file into a Config. When path is empty it
// searches for mofa.yaml in the working directory, $HOME/.mofa and
// /etc/mofa; a missing file in that case yields the defaults. The file
// format follows the extension (yaml, toml, json, ini).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	switch {
	case path == "":
		v.SetConfigName("mofa")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.mofa")
		v.AddConfigPath("/etc/mofa")
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, core.WrapError(core.KindConfiguration, err, "read config")
			}
		}
	case strings.EqualFold(filepath.Ext(path), ".ini"):
		// viper 1.20 dropped its INI decoder.
		if err := mergeINI(v, path); err != nil {
			return nil, err
		}
	default:
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, core.WrapError(core.KindConfiguration, err, "read config")
		}
	}
	return decode(v)
}

// mergeINI parses an INI file and merges it into viper as a nested map.
// Dotted section names become nested keys, so [bus.default_channel]
// lands under bus.default_channel like the other formats.
func mergeINI(v *viper.Viper, path string) error {
	f, err := ini.Load(path)
	if err != nil {
		return core.WrapError(core.KindConfiguration, err, "read config")
	}
	tree := map[string]any{}
	for _, sec := range f.Sections() {
		keys := sec.KeysHash()
		if len(keys) == 0 {
			continue
		}
		target := tree
		if sec.Name() != ini.DefaultSection {
			for _, part := range strings.Split(sec.Name(), ".") {
				child, ok := target[part].(map[string]any)
				if !ok {
					child = map[string]any{}
					target[part] = child
				}
				target = child
			}
		}
		for key, value := range keys {
			target[key] = value
		}
	}
	if err := v.MergeConfigMap(tree); err != nil {
		return core.WrapError(core.KindConfiguration, err, "read config")
	}
	return nil
}

// setDefaults registers the keys viper must know about for environment
// overrides to apply without a config file.
func setDefaults(v *viper.Viper) {
	def := Default()
	v.SetDefault("bus.default_channel.buffer_size", def.Bus.DefaultChannel.BufferSize)
	v.SetDefault("workflow.max_iterations", def.Workflow.MaxIterations)
	v.SetDefault("workflow.emit_trace", def.Workflow.EmitTrace)
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := Default()
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		millisecondsHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		lagPolicyHook(),
		dropStrategyHook(),
	))
	// INI sections and environment overrides carry scalars as strings, so
	// the decoder must coerce them.
	weak := func(dc *mapstructure.DecoderConfig) { dc.WeaklyTypedInput = true }
	if err := v.Unmarshal(cfg, hook, weak); err != nil {
		return nil, core.WrapError(core.KindConfiguration, err, "decode config")
	}
	return cfg, nil
}

// millisecondsHook reads bare numbers into time.Duration fields as
// milliseconds, matching the _ms key convention. Duration strings with a
// unit fall through to the standard string hook.
func millisecondsHook() mapstructure.DecodeHookFuncType {
	durationType := reflect.TypeOf(time.Duration(0))
	return func(from, to reflect.Type, data any) (any, error) {
		if to != durationType {
			return data, nil
		}
		switch from.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return time.Duration(reflect.ValueOf(data).Int()) * time.Millisecond, nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return time.Duration(reflect.ValueOf(data).Uint()) * time.Millisecond, nil
		case reflect.Float32, reflect.Float64:
			return time.Duration(reflect.ValueOf(data).Float() * float64(time.Millisecond)), nil
		case reflect.String:
			if ms, err := strconv.Atoi(data.(string)); err == nil {
				return time.Duration(ms) * time.Millisecond, nil
			}
			return data, nil
		default:
			return data, nil
		}
	}
}

func lagPolicyHook() mapstructure.DecodeHookFuncType {
	target := reflect.TypeOf(bus.LagPolicy(0))
	return func(from, to reflect.Type, data any) (any, error) {
		if to != target || from.Kind() != reflect.String {
			return data, nil
		}
		return bus.ParseLagPolicy(data.(string))
	}
}

func dropStrategyHook() mapstructure.DecodeHookFuncType {
	target := reflect.TypeOf(bus.DropStrategy(0))
	return func(from, to reflect.Type, data any) (any, error) {
		if to != target || from.Kind() != reflect.String {
			return data, nil
		}
		return bus.ParseDropStrategy(data.(string))
	}
}
