// Package cache provides the two-tier analysis-result cache: an in-process
// LRU in front of an optional shared Redis. Keys are the SHA-256 of the
// uploaded image payload, so identical uploads short-circuit the whole
// inference and Grad-CAM pipeline. Cache failures are never fatal.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis wraps a Redis client for analysis-result storage.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to the given Redis address.
func NewRedis(addr string, ttl time.Duration) (*Redis, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	return &Redis{client: client, ttl: ttl}, nil
}

// Key derives the cache key for an image payload.
func Key(imagePayload string) string {
	sum := sha256.Sum256([]byte(imagePayload))
	return "analysis:" + hex.EncodeToString(sum[:])
}

// Get retrieves a cached analysis document. A missing key returns ("", nil).
func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	if r == nil || r.client == nil {
		return "", nil
	}
	data, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get %s: %w", key, err)
	}
	return data, nil
}

// Set stores an analysis document with the configured TTL.
func (r *Redis) Set(ctx context.Context, key, data string) error {
	if r == nil || r.client == nil {
		return nil
	}
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	if r != nil && r.client != nil {
		return r.client.Close()
	}
	return nil
}
