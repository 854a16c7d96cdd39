package core

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore is a Redis-backed implementation of the Memory interface.
// Keys are namespaced so several clients can share one Redis without
// collisions.
type RedisStore struct {
	client    *redis.Client
	namespace string
}

// NewRedisStore connects to Redis and verifies connectivity. An empty
// namespace selects "farmiq:cache".
func NewRedisStore(redisURL, namespace string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	if namespace == "" {
		namespace = "farmiq:cache"
	}
	return &RedisStore{client: client, namespace: namespace}, nil
}

func (r *RedisStore) namespacedKey(key string) string {
	return r.namespace + ":" + key
}

// Get retrieves a value. Missing keys yield "" without error.
func (r *RedisStore) Get(ctx context.Context, key string) (string, error) {
	value, err := r.client.Get(ctx, r.namespacedKey(key)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get: %w", err)
	}
	return value, nil
}

// Set stores a value with optional TTL (ttl <= 0 means no expiry)
func (r *RedisStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, r.namespacedKey(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes a key. Missing keys are not an error.
func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.namespacedKey(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Exists reports whether a value is stored for key
func (r *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.namespacedKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// Close releases the Redis connection
func (r *RedisStore) Close() error {
	return r.client.Close()
}

// NewCacheStore builds the Memory backend selected by the configuration,
// or nil when caching is disabled
func NewCacheStore(cfg *Config) (Memory, error) {
	if !cfg.Cache.Enabled {
		return nil, nil
	}
	switch cfg.Cache.Provider {
	case "inmemory":
		return NewMemoryStore(cfg.Cache.MaxSize), nil
	case "redis":
		return NewRedisStore(cfg.Cache.RedisURL, "")
	default:
		return nil, fmt.Errorf("%w: unknown cache provider %q",
			ErrInvalidConfiguration, cfg.Cache.Provider)
	}
}
