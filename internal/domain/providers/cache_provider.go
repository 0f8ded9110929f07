package providers

import (
	"context"
	"errors"
)

// ErrCacheMiss is returned by Get when the key is absent or expired
var ErrCacheMiss = errors.New("cache miss")

// CacheProvider stores serialized queue statistics between mutations.
// Implementations must be safe for concurrent use.
type CacheProvider interface {
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value for expirationSeconds; zero leaves expiry to the backend
	Set(ctx context.Context, key string, value []byte, expirationSeconds int) error

	// Delete is a no-op for absent keys
	Delete(ctx context.Context, key string) error

	Exists(ctx context.Context, key string) (bool, error)
}

// StatsCacheKey returns the cache key of a facility's aggregate queue statistics
func StatsCacheKey(facilityID string) string {
	return "stats:" + facilityID
}
