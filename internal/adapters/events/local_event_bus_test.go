package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/domain/entities"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/domain/providers"
)

func waitForEvent(t *testing.T, ch <-chan *entities.QueueEvent) *entities.QueueEvent {
	t.Helper()
	select {
	case event := <-ch:
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestLocalEventBus_FanOut(t *testing.T) {
	bus := NewLocalEventBus()
	defer bus.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	channel := providers.GetFacilityChannel("fac-1")
	sub1, err := bus.Subscribe(ctx, channel)
	require.NoError(t, err)
	sub2, err := bus.Subscribe(ctx, channel)
	require.NoError(t, err)

	event := entities.NewQueueEvent("fac-1", "", entities.QueueEventTypeEntryAdded, nil)
	require.NoError(t, bus.Publish(ctx, channel, event))

	assert.Equal(t, event.ID, waitForEvent(t, sub1).ID)
	assert.Equal(t, event.ID, waitForEvent(t, sub2).ID)
}

func TestLocalEventBus_SubscriberRemovedOnCancel(t *testing.T) {
	bus := NewLocalEventBus()
	defer bus.Close()
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := bus.Subscribe(ctx, "patient:p-1")
	require.NoError(t, err)
	cancel()

	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-sub:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestLocalEventBus_ClosedRejectsPublish(t *testing.T) {
	bus := NewLocalEventBus()
	require.NoError(t, bus.Close())

	err := bus.Publish(context.Background(), "facility:x", entities.NewQueueEvent("x", "", entities.QueueEventTypeQueueUpdate, nil))
	assert.Error(t, err)
	_, err = bus.Subscribe(context.Background(), "facility:x")
	assert.Error(t, err)
}
