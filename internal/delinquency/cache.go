package delinquency

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheVersionKey = "delinquency:version"

// Cache memoises classification results in Redis. A nil cache or client
// degrades to calling the loader directly.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Key composes the cache key for a loan and as-of date under the current
// cache version.
func (c *Cache) Key(ctx context.Context, loanID int64, asOf time.Time) (string, error) {
	parts := []string{"delinquency", strconv.FormatInt(loanID, 10), asOf.Format("2006-01-02")}
	if c == nil || c.client == nil {
		return strings.Join(parts, ":"), nil
	}
	ver, err := c.version(ctx)
	if err != nil {
		return "", err
	}
	return strings.Join(append(parts, strconv.FormatInt(ver, 10)), ":"), nil
}

func (c *Cache) version(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// Fetch loads a cached result or populates it using the loader.
func (c *Cache) Fetch(ctx context.Context, key string, dest *Result, loader func(context.Context) (Result, error)) error {
	if loader == nil {
		return errors.New("delinquency: cache loader required")
	}
	if c == nil || c.client == nil {
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		*dest = value
		return nil
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return json.Unmarshal(payload, dest)
	}
	if err != redis.Nil {
		return err
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return err
	}
	*dest = value
	return nil
}

// Bump invalidates every cached classification by incrementing the version.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Err()
}
