package subbus

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/dshills/subbus/internal/config"
)

// Config is the bus configuration, loadable with LoadConfig.
type Config = config.Config

// LoadConfig reads a Config from defaults, an optional file at path and
// SUBBUS_* environment variables.
func LoadConfig(path string) (Config, error) {
	return config.Load(path)
}

// BusOption configures a Bus.
type BusOption func(*busConfig)

// busConfig contains configuration for the bus.
type busConfig struct {
	// logger receives diagnostic and fault logs. Nil means a development
	// logger writing to stderr.
	logger *zap.Logger

	// debug turns on diagnostic logging.
	debug bool

	// metrics controls collector naming and registration.
	metrics config.MetricsConfig

	// registerer receives the bus collectors. Nil leaves them unregistered.
	registerer prometheus.Registerer

	// faultHandler is called for every handler fault.
	faultHandler FaultHandler
}

func defaultBusConfig() busConfig {
	def := config.Default()
	return busConfig{
		debug:   def.Debug,
		metrics: def.Metrics,
	}
}

// WithLogger sets the logger. Its output is still gated by the bus level:
// warnings and errors always, debug entries only with diagnostic logging on.
func WithLogger(logger *zap.Logger) BusOption {
	return func(c *busConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDebugLogging sets the initial state of diagnostic logging.
func WithDebugLogging(enabled bool) BusOption {
	return func(c *busConfig) {
		c.debug = enabled
	}
}

// WithConfig applies a loaded configuration.
func WithConfig(cfg Config) BusOption {
	return func(c *busConfig) {
		c.debug = cfg.Debug
		c.metrics = cfg.Metrics
	}
}

// WithMetricsRegisterer registers the bus collectors with reg, unless metrics
// are disabled in the configuration.
func WithMetricsRegisterer(reg prometheus.Registerer) BusOption {
	return func(c *busConfig) {
		c.registerer = reg
	}
}

// WithFaultHandler sets a function called for every handler fault.
func WithFaultHandler(h FaultHandler) BusOption {
	return func(c *busConfig) {
		c.faultHandler = h
	}
}
