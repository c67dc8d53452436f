package client

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeClockCache(staleAfter time.Duration) (*QueryCache, *time.Time) {
	cache := NewQueryCache(staleAfter)
	now := time.Now()
	cache.now = func() time.Time { return now }
	return cache, &now
}

func TestCacheFreshnessWindow(t *testing.T) {
	cache, now := newFakeClockCache(5 * time.Minute)

	cache.Set("links", []string{"a"})

	v, ok := cache.Get("links")
	assert.True(t, ok)
	assert.Equal(t, []string{"a"}, v)

	*now = now.Add(5 * time.Minute)

	_, ok = cache.Get("links")
	assert.False(t, ok)
}

func TestCacheInvalidate(t *testing.T) {
	cache, _ := newFakeClockCache(5 * time.Minute)

	cache.SetOptimistic("links", []string{"optimistic"})
	cache.Invalidate("links")

	_, ok := cache.Get("links")
	assert.False(t, ok)
}

func TestCacheMarkStaleForcesRefetch(t *testing.T) {
	cache, _ := newFakeClockCache(5 * time.Minute)

	cache.Set("links", "v1")
	cache.MarkStale("links")

	_, ok := cache.Get("links")
	assert.False(t, ok)

	fetched := 0
	v, err := cache.GetOrFetch(context.Background(), "links", func(ctx context.Context) (interface{}, error) {
		fetched++
		return "v2", nil
	})
	require.Nil(t, err)
	assert.Equal(t, "v2", v)
	assert.Equal(t, 1, fetched)
}

func TestGetOrFetchUsesFreshValue(t *testing.T) {
	cache, _ := newFakeClockCache(5 * time.Minute)

	cache.Set("links", "cached")

	fetched := 0
	v, err := cache.GetOrFetch(context.Background(), "links", func(ctx context.Context) (interface{}, error) {
		fetched++
		return "fetched", nil
	})
	require.Nil(t, err)
	assert.Equal(t, "cached", v)
	assert.Zero(t, fetched)
}

func TestGetOrFetchPropagatesError(t *testing.T) {
	cache, _ := newFakeClockCache(5 * time.Minute)

	wantErr := errors.New("network down")
	_, err := cache.GetOrFetch(context.Background(), "links", func(ctx context.Context) (interface{}, error) {
		return nil, wantErr
	})
	assert.ErrorIs(t, err, wantErr)

	// a failed fetch must not poison the cache
	_, ok := cache.Get("links")
	assert.False(t, ok)
}
