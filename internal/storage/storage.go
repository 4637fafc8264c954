// Package storage provides the single string-keyed slot the workflow store
// persists to, with interchangeable backends and a configurable serializer.
package storage

import (
	"context"
	"fmt"

	"NYCU-SDC/workflow-editor-backend/internal"
	"NYCU-SDC/workflow-editor-backend/internal/config"

	databaseutil "github.com/NYCU-SDC/summer/pkg/database"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Slot is a string-keyed byte store. Get and Delete report
// internal.ErrSlotNotFound for a key that holds nothing.
type Slot interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Open builds the slot selected by cfg.Backend. The returned close function
// releases connections and is safe to call once.
func Open(ctx context.Context, logger *zap.Logger, cfg config.StorageConfig) (Slot, func(), error) {
	noop := func() {}

	switch cfg.Backend {
	case config.BackendMemory:
		logger.Warn("Using in-memory storage, the workflow is lost on restart")
		return NewMemory(), noop, nil

	case config.BackendFile:
		slot, err := NewFile(logger, cfg.FileDir)
		if err != nil {
			return nil, noop, err
		}
		return slot, noop, nil

	case config.BackendRedis:
		slot, err := NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, noop, err
		}
		return slot, func() {
			if err := slot.Close(); err != nil {
				logger.Error("Failed to close redis client", zap.Error(err))
			}
		}, nil

	case config.BackendPostgres:
		logger.Info("Starting database migration...")
		err := databaseutil.MigrationUp(cfg.MigrationSource, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to run database migration: %w", err)
		}

		pool, err := initDatabasePool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to initialize database pool: %w", err)
		}
		return NewPostgres(logger, pool), pool.Close, nil

	case config.BackendSQLite:
		slot, err := OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, noop, err
		}
		return slot, func() {
			if err := slot.Close(); err != nil {
				logger.Error("Failed to close sqlite database", zap.Error(err))
			}
		}, nil
	}

	return nil, noop, fmt.Errorf("%w: %q", internal.ErrUnsupportedBackend, cfg.Backend)
}

// NewSerializerFromConfig resolves the codec and compression names
func NewSerializerFromConfig(cfg config.StorageConfig) (*Serializer, error) {
	codec, err := CodecByName(cfg.Codec)
	if err != nil {
		return nil, err
	}

	compression, err := ParseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}

	return NewSerializer(codec, compression), nil
}

func initDatabasePool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}

	dbPool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	return dbPool, nil
}
