package setup

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ory/dockertest/v3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MigrationSource points at the migrations from a package under test/integration
const MigrationSource = "file://../../../internal/database/migrations"

// ResourceManager owns the containers shared by one integration test binary
type ResourceManager struct {
	mu     sync.Mutex
	logger *zap.Logger

	pool     *dockertest.Pool
	postgres *pgxpool.Pool
	redis    *redis.Client

	resources map[string]*dockertest.Resource
	cleanups  []func()
}

// SetupPostgres ensures that a PostgreSQL container is running and returns a new transaction.
//
// The transaction is rolled back when the returned cleanup function is called,
// which should typically be deferred by the caller to ensure test data is cleaned up.
//
// Usage:
//
//	tx, rollback, err := rm.SetupPostgres()
//	defer rollback()
func (r *ResourceManager) SetupPostgres() (pgx.Tx, func(), error) {
	r.mu.Lock()
	if r.postgres == nil {
		pool, resource, err := setupPostgresWithMigrations(r.pool, r.logger, MigrationSource)
		if resource != nil {
			r.resources["postgres"] = resource
		}
		if err != nil {
			r.mu.Unlock()
			return nil, nil, err
		}

		r.postgres = pool
		r.cleanups = append(r.cleanups, pool.Close)
	}
	r.mu.Unlock()

	tx, err := r.postgres.Begin(context.Background())
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		err := tx.Rollback(context.Background())
		if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			r.logger.Error("Failed to rollback transaction", zap.Error(err))
		}
	}

	return tx, cleanup, nil
}

// WithPostgresTx provides a convenient way to run a test within a PostgreSQL transaction.
//
// It automatically begins a new transaction from the shared pgx pool, passes it to the
// provided test function, and rolls it back after the function completes.
//
// This ensures isolation between tests and prevents any side effects from persisting.
//
// Usage:
//
//	func TestPostgresSlot(t *testing.T) {
//	    rm.WithPostgresTx(t, func(tx pgx.Tx) {
//	        _, err := tx.Exec(context.Background(), `INSERT INTO workflow_slots (key, value) VALUES ($1, $2)`, "workflow", []byte("{}"))
//	        require.NoError(t, err)
//	        ...
//	    })
//	}
//
// The transaction will always be rolled back, even if the test fails or panics.
func (r *ResourceManager) WithPostgresTx(t *testing.T, fn func(tx pgx.Tx)) {
	tx, cleanup, err := r.SetupPostgres()
	require.NoError(t, err)
	defer cleanup()

	fn(tx)
}

// SetupRedis ensures that a Redis container is running and returns its client.
//
// The database is flushed when the returned cleanup function is called so
// every test starts from an empty keyspace.
func (r *ResourceManager) SetupRedis() (*redis.Client, func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.redis == nil {
		client, resource, err := setupRedis(r.pool, r.logger)
		if resource != nil {
			r.resources["redis"] = resource
		}
		if err != nil {
			return nil, nil, err
		}

		r.redis = client
		r.cleanups = append(r.cleanups, func() {
			err := client.Close()
			if err != nil {
				r.logger.Error("Failed to close redis client", zap.Error(err))
			}
		})
	}

	client := r.redis
	cleanup := func() {
		err := client.FlushDB(context.Background()).Err()
		if err != nil {
			r.logger.Error("Failed to flush redis", zap.Error(err))
		}
	}

	return client, cleanup, nil
}

// Cleanup releases clients and then purges every container
func (r *ResourceManager) Cleanup() {
	for _, c := range r.cleanups {
		c()
	}

	for _, resource := range r.resources {
		err := r.pool.Purge(resource)
		if err != nil {
			r.logger.Error("Failed to purge resource", zap.Error(err))
		}
	}
}

func NewResourceManager(logger *zap.Logger) (*ResourceManager, error) {
	pool, err := dockertest.NewPool("")
	if err != nil {
		return nil, err
	}

	return &ResourceManager{
		pool:      pool,
		logger:    logger,
		resources: make(map[string]*dockertest.Resource),
		cleanups:  make([]func(), 0),
	}, nil
}
