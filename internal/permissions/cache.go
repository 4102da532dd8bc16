package permissions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Cache memoises per-user grant sets in Redis behind a version counter.
// Invalidation bumps the version before returning, so a stale entry is never
// served after a grant mutation completes. Permission reads have no eventual
// consistency window.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func versionKey(userID int64) string {
	return fmt.Sprintf("perm:ver:%d", userID)
}

// version returns the user's cache version, initialising when missing.
func (c *Cache) version(ctx context.Context, userID int64) (int64, error) {
	ver, err := c.client.Get(ctx, versionKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.Set(ctx, versionKey(userID), 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// Grants loads the user's grant set through the cache. Concurrent loads for
// the same key are coalesced with singleflight.
func (c *Cache) Grants(ctx context.Context, userID int64, loader func(context.Context) ([]Grant, error)) ([]Grant, error) {
	if loader == nil {
		return nil, errors.New("permissions: cache loader required")
	}
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	ver, err := c.version(ctx, userID)
	if err != nil {
		return loader(ctx)
	}
	key := fmt.Sprintf("perm:grants:%d:%d", userID, ver)

	result, err, _ := c.group.Do(key, func() (any, error) {
		raw, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			var grants []Grant
			if err := json.Unmarshal(raw, &grants); err == nil {
				return grants, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			return loader(ctx)
		}
		grants, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(grants); err == nil {
			_ = c.client.Set(ctx, key, data, c.ttl).Err()
		}
		return grants, nil
	})
	if err != nil {
		return nil, err
	}
	grants, _ := result.([]Grant)
	return grants, nil
}

// Invalidate discards the user's cached grant set. It must be called by every
// grant mutation before the mutation is reported successful.
func (c *Cache) Invalidate(ctx context.Context, userID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, versionKey(userID)).Err()
}
