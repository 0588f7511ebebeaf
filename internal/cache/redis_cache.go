package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"salestrack/internal/domain"
)

const storeKeyPrefix = "salestrack:store:"

type RedisStoreCache struct {
	client redis.Cmdable
}

func NewRedisStoreCache(client redis.Cmdable) *RedisStoreCache {
	return &RedisStoreCache{client: client}
}

func (c *RedisStoreCache) Get(ctx context.Context, code string) (*domain.Store, bool, error) {
	val, err := c.client.Get(ctx, storeKeyPrefix+code).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var st domain.Store
	if err := json.Unmarshal([]byte(val), &st); err != nil {
		return nil, false, err
	}
	return &st, true, nil
}

func (c *RedisStoreCache) Set(ctx context.Context, value domain.Store, ttl time.Duration) error {
	if value.Code == "" {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, storeKeyPrefix+value.Code, payload, ttl).Err()
}
