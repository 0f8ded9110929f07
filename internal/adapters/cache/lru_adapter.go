package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/domain/providers"
)

type lruItem struct {
	value     []byte
	expiresAt time.Time
}

// LRUAdapter implements the CacheProvider interface with a bounded in-process
// cache. maxTTL caps every entry; shorter per-key expirations are honoured on read.
type LRUAdapter struct {
	lru    *expirable.LRU[string, lruItem]
	maxTTL time.Duration
	clock  func() time.Time
}

// NewLRUAdapter creates a new in-process cache holding at most size keys
func NewLRUAdapter(size int, maxTTL time.Duration) *LRUAdapter {
	if size <= 0 {
		size = 1024
	}
	return &LRUAdapter{
		lru:    expirable.NewLRU[string, lruItem](size, nil, maxTTL),
		maxTTL: maxTTL,
		clock:  time.Now,
	}
}

// Get retrieves a value from cache; absent or expired keys yield providers.ErrCacheMiss
func (a *LRUAdapter) Get(ctx context.Context, key string) ([]byte, error) {
	item, ok := a.lru.Get(key)
	if !ok {
		return nil, fmt.Errorf("key %s: %w", key, providers.ErrCacheMiss)
	}
	if !item.expiresAt.IsZero() && !a.clock().Before(item.expiresAt) {
		a.lru.Remove(key)
		return nil, fmt.Errorf("key %s: %w", key, providers.ErrCacheMiss)
	}
	return append([]byte(nil), item.value...), nil
}

// Set stores a value in cache with expiration; non-positive expirations fall
// back to the adapter's max TTL
func (a *LRUAdapter) Set(ctx context.Context, key string, value []byte, expirationSeconds int) error {
	item := lruItem{value: append([]byte(nil), value...)}
	if expirationSeconds > 0 {
		item.expiresAt = a.clock().Add(time.Duration(expirationSeconds) * time.Second)
	}
	a.lru.Add(key, item)
	return nil
}

// Delete removes a value from cache
func (a *LRUAdapter) Delete(ctx context.Context, key string) error {
	a.lru.Remove(key)
	return nil
}

// Exists checks if a live key exists in cache
func (a *LRUAdapter) Exists(ctx context.Context, key string) (bool, error) {
	if _, err := a.Get(ctx, key); err != nil {
		return false, nil
	}
	return true, nil
}

// Len returns the number of cached keys, including ones not yet purged
func (a *LRUAdapter) Len() int {
	return a.lru.Len()
}
