package setup

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	databaseutil "github.com/NYCU-SDC/summer/pkg/database"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/ory/dockertest/v3"
	"go.uber.org/zap"
)

const (
	postgresUser     = "editor"
	postgresPassword = "password"
	postgresDatabase = "workflow_editor"
)

func pingPostgres(databaseURL string) error {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		_ = db.Close()
	}()

	return db.Ping()
}

func setupPostgres(pool *dockertest.Pool, logger *zap.Logger) (*pgxpool.Pool, string, *dockertest.Resource, error) {
	resource, err := runContainer(pool, logger, &dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16-alpine",
		Env: []string{
			"POSTGRES_USER=" + postgresUser,
			"POSTGRES_PASSWORD=" + postgresPassword,
			"POSTGRES_DB=" + postgresDatabase,
		},
	})
	if err != nil {
		return nil, "", nil, err
	}

	databaseURL := fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable",
		postgresUser, postgresPassword, resource.GetHostPort("5432/tcp"), postgresDatabase)
	logger.Info("Launching Postgres", zap.String("url", databaseURL))

	err = waitFor(pool, logger, "Postgres", 120*time.Second, func() error {
		return pingPostgres(databaseURL)
	})
	if err != nil {
		return nil, "", resource, err
	}

	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, "", resource, fmt.Errorf("failed to parse database url: %w", err)
	}

	dbPool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, "", resource, fmt.Errorf("failed to create database pool: %w", err)
	}

	return dbPool, databaseURL, resource, nil
}

// setupPostgresWithMigrations starts Postgres and applies the workflow_slots
// migrations from sourceURL
func setupPostgresWithMigrations(pool *dockertest.Pool, logger *zap.Logger, sourceURL string) (*pgxpool.Pool, *dockertest.Resource, error) {
	dbPool, databaseURL, resource, err := setupPostgres(pool, logger)
	if err != nil {
		return nil, resource, err
	}

	err = databaseutil.MigrationUp(sourceURL, databaseURL, logger)
	if err != nil {
		dbPool.Close()
		return nil, resource, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return dbPool, resource, nil
}
