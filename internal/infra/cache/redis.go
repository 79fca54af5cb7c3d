package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"schedule-builder/internal/domain"
	"schedule-builder/internal/infra/metrics"
)

// RedisCache реализует domain.Cache через Redis.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedis создаёт кэш. Ключи получают префикс prefix.
func NewRedis(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

// Once выполняет функцию, если ключ ещё не задан. Если fn вернула ошибку,
// ключ удаляется и следующий вызов повторит попытку.
func (c *RedisCache) Once(key string, ttl time.Duration, fn func() error) error {
	ctx := context.Background()
	key = c.prefix + key
	start := time.Now()
	ok, err := c.client.SetNX(ctx, key, "1", ttl).Result()
	metrics.ObserveNetworkRequest("redis", "setnx", "once", start, err)
	if err != nil {
		return domain.Transient("redis once", err)
	}
	if !ok {
		return nil
	}
	if err := fn(); err != nil {
		_ = c.client.Del(ctx, key).Err()
		return err
	}
	return nil
}

var _ domain.Cache = (*RedisCache)(nil)
