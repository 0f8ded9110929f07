package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/domain/providers"
)

func TestLRUAdapter_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	adapter := NewLRUAdapter(10, time.Minute)

	require.NoError(t, adapter.Set(ctx, "stats:fac-1", []byte(`{"total_waiting":3}`), 60))

	value, err := adapter.Get(ctx, "stats:fac-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"total_waiting":3}`, string(value))

	exists, err := adapter.Exists(ctx, "stats:fac-1")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, adapter.Delete(ctx, "stats:fac-1"))
	_, err = adapter.Get(ctx, "stats:fac-1")
	assert.ErrorIs(t, err, providers.ErrCacheMiss)
}

func TestLRUAdapter_PerKeyExpiration(t *testing.T) {
	ctx := context.Background()
	adapter := NewLRUAdapter(10, time.Hour)
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	adapter.clock = func() time.Time { return now }

	require.NoError(t, adapter.Set(ctx, "k", []byte("v"), 60))
	_, err := adapter.Get(ctx, "k")
	require.NoError(t, err)

	now = now.Add(61 * time.Second)
	_, err = adapter.Get(ctx, "k")
	assert.ErrorIs(t, err, providers.ErrCacheMiss)
	assert.Equal(t, 0, adapter.Len())
}

func TestLRUAdapter_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	adapter := NewLRUAdapter(2, time.Minute)

	require.NoError(t, adapter.Set(ctx, "a", []byte("1"), 60))
	require.NoError(t, adapter.Set(ctx, "b", []byte("2"), 60))
	_, err := adapter.Get(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, adapter.Set(ctx, "c", []byte("3"), 60))

	_, err = adapter.Get(ctx, "b")
	assert.ErrorIs(t, err, providers.ErrCacheMiss)
	_, err = adapter.Get(ctx, "a")
	assert.NoError(t, err)
}

func TestLRUAdapter_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	adapter := NewLRUAdapter(2, time.Minute)
	value := []byte("abc")

	require.NoError(t, adapter.Set(ctx, "k", value, 60))
	value[0] = 'z'

	got, err := adapter.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}
