package store

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/coocood/freecache"
)

// minCacheSize is the smallest segment size freecache accepts.
const minCacheSize = 512 * 1024

// MemoryBackend keeps entries in an in-process freecache segment.
type MemoryBackend struct {
	cache *freecache.Cache
}

// NewMemoryBackend allocates a cache of roughly sizeBytes.
func NewMemoryBackend(sizeBytes int) *MemoryBackend {
	if sizeBytes < minCacheSize {
		sizeBytes = minCacheSize
	}
	return &MemoryBackend{cache: freecache.NewCache(sizeBytes)}
}

func (b *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	value, err := b.cache.Get([]byte(key))
	if errors.Is(err, freecache.ErrNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

func (b *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	return b.cache.Set([]byte(key), value, expireSeconds(ttl))
}

func (b *MemoryBackend) Delete(_ context.Context, key string) error {
	b.cache.Del([]byte(key))
	return nil
}

// Close drops every entry.
func (b *MemoryBackend) Close() error {
	b.cache.Clear()
	return nil
}

// expireSeconds rounds ttl up to whole seconds. freecache treats 0 as
// "never expire", so anything positive maps to at least one second.
func expireSeconds(ttl time.Duration) int {
	if ttl <= 0 {
		return 1
	}
	return int(math.Ceil(ttl.Seconds()))
}
