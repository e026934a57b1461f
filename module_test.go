package subbus

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func TestModule_ProvidesBus(t *testing.T) {
	t.Setenv("SUBBUS_DEBUG", "true")

	reg := prometheus.NewRegistry()
	var bus *Bus
	app := fx.New(
		Module,
		fx.NopLogger,
		fx.Supply(zap.NewNop()),
		fx.Provide(func() prometheus.Registerer { return reg }),
		fx.Populate(&bus),
	)
	require.NoError(t, app.Err())

	ctx := context.Background()
	require.NoError(t, app.Start(ctx))

	require.NotNil(t, bus)
	assert.True(t, bus.DebugLogging())

	var calls atomic.Int32
	require.NoError(t, Subscribe(bus, "id", counter[eventA](&calls)))
	Post(ctx, bus, alertWith(NeverClear, 1))
	Post(ctx, bus, eventA{})
	assert.Equal(t, int32(1), calls.Load())

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	require.NoError(t, app.Stop(ctx))

	assert.Zero(t, bus.Count())
	assert.Zero(t, bus.Pending())
	families, err = reg.Gather()
	require.NoError(t, err)
	assert.Empty(t, families)
}

func TestModule_SuppliedConfig(t *testing.T) {
	cfg := Config{Debug: false}
	cfg.Metrics.Enabled = false

	var faults atomic.Int32
	var bus *Bus
	app := fx.New(
		Module,
		fx.NopLogger,
		fx.Supply(&cfg),
		fx.Supply(FaultHandler(func(*HandlerFault) { faults.Add(1) })),
		fx.Populate(&bus),
	)
	require.NoError(t, app.Err())

	assert.False(t, bus.DebugLogging())

	require.NoError(t, Subscribe(bus, "id", func(context.Context, eventA) error { panic("boom") }))
	Post(context.Background(), bus, eventA{})
	assert.Equal(t, int32(1), faults.Load())
}

func TestModule_InvalidConfig(t *testing.T) {
	cfg := Config{}
	cfg.Metrics.Enabled = true
	cfg.Metrics.Namespace = "not-valid"

	app := fx.New(
		Module,
		fx.NopLogger,
		fx.Supply(&cfg),
		fx.Invoke(func(*Bus) {}),
	)
	assert.ErrorIs(t, app.Err(), ErrInvalidConfig)
}
