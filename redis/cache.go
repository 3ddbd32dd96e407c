package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Cache stores JSON values under a key prefix.
type Cache struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewCache(rdb redis.Cmdable, prefix string, ttl time.Duration) *Cache {
	return &Cache{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (c *Cache) key(k string) string {
	return c.prefix + k
}

// Get decodes the value at k into dst. A miss returns false and no error.
func (c *Cache) Get(ctx context.Context, k string, dst any) (bool, error) {
	raw, err := c.rdb.Get(ctx, c.key(k)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "redis get %s", k)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, errors.Wrapf(err, "decode cached %s", k)
	}
	return true, nil
}

func (c *Cache) Set(ctx context.Context, k string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode %s", k)
	}
	return errors.Wrapf(c.rdb.Set(ctx, c.key(k), raw, c.ttl).Err(), "redis set %s", k)
}

func (c *Cache) Delete(ctx context.Context, k string) error {
	return errors.Wrapf(c.rdb.Del(ctx, c.key(k)).Err(), "redis del %s", k)
}
