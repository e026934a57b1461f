// Package config loads bus configuration from defaults, an optional config
// file and SUBBUS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "SUBBUS"

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

var metricNamePart = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config is the bus configuration.
type Config struct {
	// Debug turns on diagnostic logging of subscribe, post and unsubscribe calls.
	Debug bool `mapstructure:"debug"`

	Metrics MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig controls the prometheus collectors of a bus.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Subsystem string `mapstructure:"subsystem"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Debug: false,
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "subbus",
			Subsystem: "",
		},
	}
}

// Load reads the configuration. When path is empty only defaults and the
// environment are consulted; SUBBUS_DEBUG=true enables diagnostic logging and
// SUBBUS_METRICS_NAMESPACE overrides metrics.namespace.
func Load(path string) (Config, error) {
	v := viper.New()

	def := Default()
	v.SetDefault("debug", def.Debug)
	v.SetDefault("metrics.enabled", def.Metrics.Enabled)
	v.SetDefault("metrics.namespace", def.Metrics.Namespace)
	v.SetDefault("metrics.subsystem", def.Metrics.Subsystem)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every problem with c at once.
func (c Config) Validate() error {
	var err error
	if c.Metrics.Enabled {
		if !metricNamePart.MatchString(c.Metrics.Namespace) {
			err = multierr.Append(err, fmt.Errorf("%w: metrics.namespace %q", ErrInvalidConfig, c.Metrics.Namespace))
		}
		if c.Metrics.Subsystem != "" && !metricNamePart.MatchString(c.Metrics.Subsystem) {
			err = multierr.Append(err, fmt.Errorf("%w: metrics.subsystem %q", ErrInvalidConfig, c.Metrics.Subsystem))
		}
	}
	return err
}
