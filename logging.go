package subbus

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// levelFor returns the minimum log level of a bus with diagnostic logging
// set to debug.
func levelFor(debug bool) zapcore.Level {
	if debug {
		return zapcore.DebugLevel
	}
	return zapcore.WarnLevel
}

// newLogger returns the bus logger gated by level. A nil base gets a
// development logger on stderr.
func newLogger(base *zap.Logger, level zap.AtomicLevel) *zap.Logger {
	if base == nil {
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = level
		cfg.DisableStacktrace = true
		logger, err := cfg.Build()
		if err != nil {
			return zap.NewNop()
		}
		return logger.Named("subbus")
	}

	// IncreaseLevel refuses a level below the base core's, but only checks
	// it once, here. Raise the level for the check so the gate is always
	// installed; the base core keeps filtering below its own level.
	current := level.Level()
	level.SetLevel(zapcore.FatalLevel)
	logger := base.WithOptions(zap.IncreaseLevel(level))
	level.SetLevel(current)
	return logger.Named("subbus")
}
