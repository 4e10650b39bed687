package infra

import (
	"context"
	"errors"
	"time"

	"user-service/users/domain"

	"github.com/redis/go-redis/v9"
)

// RedisCache implements domain.Cache on top of go-redis.
//
// go-redis checks a connection out of its pool for every command, so
// concurrent callers only contend for the pool, never for a single
// connection.
type RedisCache struct {
	rdb redis.Cmdable
}

func NewRedisCache(rdb redis.Cmdable) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (c *RedisCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	if err := validateKey("cache.get", key); err != nil {
		return false, err
	}

	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, domain.E(domain.KindCache, "cache.get", err)
	}
	if err := decode("cache.get", data, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if err := validateKey("cache.set", key); err != nil {
		return err
	}
	// redis treats a zero expiration as "keep forever".
	if ttl <= 0 {
		return c.Delete(ctx, key)
	}

	data, err := encode("cache.set", value)
	if err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		return domain.E(domain.KindCache, "cache.set", err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := validateKey("cache.delete", key); err != nil {
		return err
	}
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return domain.E(domain.KindCache, "cache.delete", err)
	}
	return nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return domain.E(domain.KindCache, "cache.ping", err)
	}
	return nil
}

var (
	_ domain.Cache  = (*RedisCache)(nil)
	_ domain.Pinger = (*RedisCache)(nil)
)
