package internal

import (
	"context"

	logutil "github.com/NYCU-SDC/summer/pkg/log"
	"go.uber.org/zap"
)

// WithContext parses the context and adds the persistence key and request source to the logger if available
func WithContext(ctx context.Context, logger *zap.Logger) *zap.Logger {
	logger = logutil.WithContext(ctx, logger)
	if ctx == nil {
		return logger
	}

	key, ok := ctx.Value(PersistenceKeyContextKey).(string)
	if ok && key != "" {
		logger = logger.With(zap.String("persistence_key", key))
	}

	source, ok := ctx.Value(RequestSourceContextKey).(string)
	if ok && source != "" {
		logger = logger.With(zap.String("request_source", source))
	}

	return logger
}
