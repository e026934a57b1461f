package subbus

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides a *Bus to an fx application. The bus is configured from a
// *Config in the graph when there is one, and from LoadConfig("") otherwise.
// A *zap.Logger and a prometheus.Registerer are used when provided.
var Module = fx.Module("subbus",
	fx.Provide(ProvideBus),
	fx.Invoke(registerLifecycle),
)

// ModuleInput is the fx input of ProvideBus.
type ModuleInput struct {
	fx.In
	Config     *Config               `optional:"true"`
	Logger     *zap.Logger           `optional:"true"`
	Registerer prometheus.Registerer `optional:"true"`
	Faults     FaultHandler          `optional:"true"`
}

// ProvideBus builds the bus of an fx application.
func ProvideBus(input ModuleInput) (*Bus, error) {
	var cfg Config
	if input.Config != nil {
		cfg = *input.Config
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	} else {
		loaded, err := LoadConfig("")
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	return New(
		WithConfig(cfg),
		WithLogger(input.Logger),
		WithMetricsRegisterer(input.Registerer),
		WithFaultHandler(input.Faults),
	), nil
}

type lifecycleInput struct {
	fx.In
	LC  fx.Lifecycle
	Bus *Bus
}

// registerLifecycle releases subscriptions, buffered events and collectors
// when the application stops.
func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStop: func(context.Context) error {
			input.Bus.stop()
			return nil
		},
	})
}
