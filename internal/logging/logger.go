package logging

import (
	"github.com/Avi18971911/AugurSensor/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the sensor's logger. Development mode logs to the console at
// debug level with stack traces on warnings.
func New(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if cfg.Development {
		level = zapcore.DebugLevel
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapCfg.Build(zap.Fields(zap.String("logger", "sensor")))
}

// NewOrProduction falls back to zap's production logger, and to a no-op
// logger if even that fails.
func NewOrProduction(cfg config.LogConfig) *zap.Logger {
	logger, err := New(cfg)
	if err == nil {
		return logger
	}
	logger, err = zap.NewProduction()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func parseLevel(level string) (zapcore.Level, error) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel, err
	}
	return l, nil
}
