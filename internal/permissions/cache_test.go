package permissions

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestCacheGrantsMemoisesLoader(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cache := NewCache(client, time.Minute)
	calls := 0
	loader := func(context.Context) ([]Grant, error) {
		calls++
		return []Grant{{UserID: 7, ResourceType: ResourceDocument, ResourceID: 1, Action: ActionView}}, nil
	}

	for i := 0; i < 3; i++ {
		grants, err := cache.Grants(context.Background(), 7, loader)
		require.NoError(t, err)
		require.Len(t, grants, 1)
	}
	require.Equal(t, 1, calls)
}

func TestCacheInvalidateForcesReload(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cache := NewCache(client, time.Minute)
	calls := 0
	loader := func(context.Context) ([]Grant, error) {
		calls++
		return nil, nil
	}

	_, err := cache.Grants(context.Background(), 7, loader)
	require.NoError(t, err)
	require.NoError(t, cache.Invalidate(context.Background(), 7))
	_, err = cache.Grants(context.Background(), 7, loader)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestCacheDegradesWithoutRedis(t *testing.T) {
	var cache *Cache
	grants, err := cache.Grants(context.Background(), 7, func(context.Context) ([]Grant, error) {
		return []Grant{{UserID: 7}}, nil
	})
	require.NoError(t, err)
	require.Len(t, grants, 1)
	require.NoError(t, cache.Invalidate(context.Background(), 7))
}
