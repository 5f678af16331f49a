package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKeyPrefix = "match-engine:embedding:"

// RedisCache shares embeddings across engine processes and survives restarts.
// TTL eviction keeps stale profile vectors from accumulating.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisCache {
	return &RedisCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]float32, bool) {
	payload, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("embedding cache read failed", zap.Error(err))
		}
		return nil, false
	}

	var vector []float32
	if err := json.Unmarshal(payload, &vector); err != nil {
		c.logger.Warn("embedding cache entry is corrupt", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if len(vector) == 0 {
		return nil, false
	}

	return vector, true
}

func (c *RedisCache) Put(ctx context.Context, key string, vector []float32) {
	if len(vector) == 0 {
		return
	}

	payload, err := json.Marshal(vector)
	if err != nil {
		c.logger.Warn("marshal embedding for cache", zap.Error(err))
		return
	}

	if err := c.client.Set(ctx, redisKeyPrefix+key, payload, c.ttl).Err(); err != nil {
		c.logger.Warn("embedding cache write failed", zap.Error(err))
	}
}
