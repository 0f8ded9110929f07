//go:build integration

package events

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/domain/entities"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/domain/providers"
	redisclient "github.com/gabrielamorim27310-ai/MedGo-sub000/internal/infrastructure/clients/redis"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/pkg/config"
)

func newTestRedisClient(t *testing.T) *redisclient.Client {
	t.Helper()
	port, err := strconv.Atoi(os.Getenv("TEST_REDIS_PORT"))
	if err != nil {
		port = 6379
	}
	client, err := redisclient.NewClient(&config.RedisConfig{
		Host:     os.Getenv("TEST_REDIS_HOST"),
		Port:     port,
		Password: os.Getenv("TEST_REDIS_PASSWORD"),
	})
	require.NoError(t, err)
	return client
}

func TestRedisEventBusFanoutIntegration(t *testing.T) {
	if os.Getenv("TEST_REDIS_HOST") == "" {
		t.Skip("Skipping integration test: TEST_REDIS_HOST not set")
	}

	redisClient := newTestRedisClient(t)
	defer redisClient.Close()

	bus := NewRedisEventBus(redisClient)
	defer bus.Close()

	channel := providers.GetFacilityChannel("fac-redis-1")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub1, err := bus.Subscribe(ctx, channel)
	require.NoError(t, err)
	sub2, err := bus.Subscribe(ctx, channel)
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	broadcaster := NewQueueBroadcaster(bus, 8)
	require.NoError(t, broadcaster.PublishToFacility(context.Background(), "fac-redis-1", entities.QueueEventTypeQueueUpdate, map[string]interface{}{"changed": 2}))
	require.NoError(t, broadcaster.Close(context.Background()))

	received1 := waitForEvent(t, sub1)
	received2 := waitForEvent(t, sub2)
	assert.Equal(t, received1.ID, received2.ID)
	assert.Equal(t, entities.QueueEventTypeQueueUpdate, received1.EventType)
}
