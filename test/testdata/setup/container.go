package setup

import (
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"go.uber.org/zap"
)

// runContainer starts a throwaway container that is removed on exit
func runContainer(pool *dockertest.Pool, logger *zap.Logger, options *dockertest.RunOptions) (*dockertest.Resource, error) {
	resource, err := pool.RunWithOptions(options, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		logger.Error("Could not start resource", zap.String("repository", options.Repository), zap.Error(err))
		return nil, err
	}

	return resource, nil
}

// waitFor retries ping until it succeeds or maxWait elapses
func waitFor(pool *dockertest.Pool, logger *zap.Logger, name string, maxWait time.Duration, ping func() error) error {
	pool.MaxWait = maxWait
	retryCount := 0

	err := pool.Retry(func() error {
		err := ping()
		if err != nil {
			retryCount++
			logger.Debug(name+" not ready yet, retrying...", zap.Int("retry", retryCount))
		}
		return err
	})
	if err != nil {
		logger.Error("Could not connect to resource", zap.String("name", name), zap.Error(err))
		return err
	}

	logger.Info(name+" is ready", zap.Int("retries", retryCount))
	return nil
}
