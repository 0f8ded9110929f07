package events

import (
	"context"
	"errors"
	"sync"

	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/domain/entities"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/infrastructure/observability"
)

// LocalEventBus implements the EventBus interface in-process, for single
// instance deployments that run without Redis
type LocalEventBus struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan *entities.QueueEvent]struct{}
	closed      bool
}

// NewLocalEventBus creates a new in-process event bus
func NewLocalEventBus() *LocalEventBus {
	return &LocalEventBus{
		subscribers: make(map[string]map[chan *entities.QueueEvent]struct{}),
	}
}

// Publish delivers event to every current subscriber of channel without blocking
func (b *LocalEventBus) Publish(ctx context.Context, channel string, event *entities.QueueEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return errors.New("event bus is closed")
	}
	for subscriber := range b.subscribers[channel] {
		select {
		case subscriber <- event:
		default:
			observability.GetLogger().Warn().
				Str("channel", channel).
				Str("event_id", event.ID).
				Msg("Subscriber channel full, skipping event")
		}
	}
	return nil
}

// Subscribe subscribes to events on a channel until ctx is done
func (b *LocalEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.QueueEvent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errors.New("event bus is closed")
	}
	if b.subscribers[channel] == nil {
		b.subscribers[channel] = make(map[chan *entities.QueueEvent]struct{})
	}
	eventChan := make(chan *entities.QueueEvent, subscriberBuffer)
	b.subscribers[channel][eventChan] = struct{}{}

	go func() {
		<-ctx.Done()
		b.remove(channel, eventChan)
	}()
	return eventChan, nil
}

func (b *LocalEventBus) remove(channel string, eventChan chan *entities.QueueEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subscribers := b.subscribers[channel]
	if _, ok := subscribers[eventChan]; !ok {
		return
	}
	delete(subscribers, eventChan)
	close(eventChan)
	if len(subscribers) == 0 {
		delete(b.subscribers, channel)
	}
}

// Unsubscribe drops every subscriber of a channel
func (b *LocalEventBus) Unsubscribe(ctx context.Context, channel string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for subscriber := range b.subscribers[channel] {
		close(subscriber)
	}
	delete(b.subscribers, channel)
	return nil
}

// Close closes every subscription; later publishes fail
func (b *LocalEventBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for channel, subscribers := range b.subscribers {
		for subscriber := range subscribers {
			close(subscriber)
		}
		delete(b.subscribers, channel)
	}
	b.closed = true
	return nil
}
