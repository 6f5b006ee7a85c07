package cache

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/vaidehibh/thyroscan/internal/metrics"
)

// Tiered checks the in-process LRU first, then Redis. Either tier may be
// absent; a nil *Tiered is a valid no-op cache.
type Tiered struct {
	lru   *lru.Cache[string, string]
	redis *Redis
	log   *zap.Logger
}

// NewTiered builds the cache. redis may be nil; size must be positive.
func NewTiered(size int, redis *Redis, log *zap.Logger) (*Tiered, error) {
	l, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Tiered{lru: l, redis: redis, log: log}, nil
}

// Get looks the key up in both tiers. Redis hits are promoted into the LRU.
func (t *Tiered) Get(ctx context.Context, key string) (string, bool) {
	if t == nil {
		return "", false
	}
	if data, ok := t.lru.Get(key); ok {
		metrics.RecordCacheHit("lru")
		return data, true
	}
	data, err := t.redis.Get(ctx, key)
	if err != nil {
		t.log.Warn("redis get failed", zap.Error(err))
	}
	if data != "" {
		metrics.RecordCacheHit("redis")
		t.lru.Add(key, data)
		return data, true
	}
	metrics.RecordCacheMiss()
	return "", false
}

// Set writes the key to both tiers.
func (t *Tiered) Set(ctx context.Context, key, data string) {
	if t == nil {
		return
	}
	t.lru.Add(key, data)
	if err := t.redis.Set(ctx, key, data); err != nil {
		t.log.Warn("redis set failed", zap.Error(err))
	}
}
