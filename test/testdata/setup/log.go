package setup

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewTestLogger builds the logger shared by integration tests. TEST_LOG_LEVEL
// selects the level and defaults to debug.
func NewTestLogger() (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()

	level := zapcore.DebugLevel
	if value := os.Getenv("TEST_LOG_LEVEL"); value != "" {
		parsed, err := zapcore.ParseLevel(value)
		if err == nil {
			level = parsed
		}
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	cfg.EncoderConfig.TimeKey = ""
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.CallerKey = "caller"

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	return logger.Named("integration").With(zap.String("persistence", "dockertest")), nil
}
