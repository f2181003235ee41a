package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Logger *zap.Logger

func init() {
	// A usable default so packages that import nbio without calling
	// InitLogger (e.g. in tests) don't dereference a nil logger.
	Logger = zap.NewNop()
}

// InitLogger builds the package-wide structured logger. Call it once before
// starting an EventLoop; tests and library embedders that don't care about
// log output can leave the zap.NewNop() default in place.
func InitLogger() error {
	config := zap.NewProductionConfig()
	config.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logger, err := config.Build()
	if err != nil {
		return err
	}
	Logger = logger
	return nil
}

// InitDevLogger builds a human-readable logger suitable for local runs and
// examples (colorized level, ISO8601 timestamps).
func InitDevLogger() error {
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logger, err := config.Build()
	if err != nil {
		return err
	}
	Logger = logger
	return nil
}
