package setup

import (
	"context"
	"fmt"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func setupRedis(pool *dockertest.Pool, logger *zap.Logger) (*redis.Client, *dockertest.Resource, error) {
	resource, err := runContainer(pool, logger, &dockertest.RunOptions{
		Repository: "redis",
		Tag:        "7-alpine",
	})
	if err != nil {
		return nil, nil, err
	}

	redisURL := fmt.Sprintf("redis://%s/0", resource.GetHostPort("6379/tcp"))
	logger.Info("Launching Redis", zap.String("url", redisURL))

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, resource, err
	}
	client := redis.NewClient(opts)

	err = waitFor(pool, logger, "Redis", 60*time.Second, func() error {
		return client.Ping(context.Background()).Err()
	})
	if err != nil {
		_ = client.Close()
		return nil, resource, err
	}

	return client, resource, nil
}
