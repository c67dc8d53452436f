package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResponseCacheExpiry(t *testing.T) {
	cache := NewResponseCache(time.Minute)
	now := time.Now()
	cache.now = func() time.Time { return now }

	cache.Set("key", "value")

	got, ok := cache.Get("key")
	assert.True(t, ok)
	assert.Equal(t, "value", got)

	now = now.Add(time.Minute)

	_, ok = cache.Get("key")
	assert.False(t, ok)
}

func TestResponseCacheMiss(t *testing.T) {
	cache := NewResponseCache(time.Minute)

	_, ok := cache.Get("missing")
	assert.False(t, ok)
}
