package storage

import (
	"context"
	"errors"
	"fmt"

	"NYCU-SDC/workflow-editor-backend/internal"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "workflow-editor:"

// Redis stores slots as plain string keys without expiry
type Redis struct {
	client *redis.Client
}

// NewRedis parses redisURL and checks the connection before returning
func NewRedis(ctx context.Context, redisURL string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	_, err = client.Ping(ctx).Result()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Redis{client: client}, nil
}

func NewRedisWithClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) key(key string) string {
	return redisKeyPrefix + key
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, internal.ErrSlotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get slot %s: %w", key, err)
	}
	return value, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	err := r.client.Set(ctx, r.key(key), value, 0).Err()
	if err != nil {
		return fmt.Errorf("failed to set slot %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	removed, err := r.client.Del(ctx, r.key(key)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete slot %s: %w", key, err)
	}
	if removed == 0 {
		return internal.ErrSlotNotFound
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
