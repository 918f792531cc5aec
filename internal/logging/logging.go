package logging

import (
	"hl-spot-bot/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func level(cfg config.LoggingConfig) zap.AtomicLevel {
	switch cfg.Level {
	case "debug":
		return zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "warn":
		return zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "error":
		return zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		return zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
}

func New(cfg config.LoggingConfig) *zap.Logger {
	logger, _ := build(cfg, nil)
	return logger
}

// NewWithRing builds the logger and tees every line at or above the
// configured level into ring, so the status surface can serve recent logs.
func NewWithRing(cfg config.LoggingConfig, ring *Ring) *zap.Logger {
	logger, _ := build(cfg, ring)
	return logger
}

func build(cfg config.LoggingConfig, ring *Ring) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = level(cfg)
	logger, err := zapCfg.Build()
	if err != nil {
		return zap.NewNop(), err
	}
	if ring == nil {
		return logger, nil
	}
	return logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, newRingCore(ring, zapCfg.Level))
	})), nil
}
