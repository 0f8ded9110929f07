package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/domain/entities"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/domain/providers"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/infrastructure/observability"
)

// ErrBroadcastBufferFull is returned when the dispatch queue cannot take another event
var ErrBroadcastBufferFull = errors.New("broadcast buffer full")

// ErrBroadcasterClosed is returned for events submitted after Close
var ErrBroadcasterClosed = errors.New("broadcaster closed")

const publishTimeout = 2 * time.Second

type dispatch struct {
	channels []string
	event    *entities.QueueEvent
}

// QueueBroadcaster implements providers.EventBroadcaster on top of an EventBus.
// Events are queued and published by a single worker so subscribers observe
// them in submission order; callers never wait on the bus. A circuit breaker
// stops calling a bus that keeps failing.
type QueueBroadcaster struct {
	bus     providers.EventBus
	breaker *gobreaker.CircuitBreaker
	metrics *observability.Metrics

	mu     sync.RWMutex
	queue  chan dispatch
	closed bool
	done   chan struct{}
}

// NewQueueBroadcaster creates a broadcaster and starts its dispatch worker
func NewQueueBroadcaster(bus providers.EventBus, bufferSize int) *QueueBroadcaster {
	if bufferSize <= 0 {
		bufferSize = 1024
	}

	b := &QueueBroadcaster{
		bus:   bus,
		queue: make(chan dispatch, bufferSize),
		done:  make(chan struct{}),
	}
	b.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "queue-event-bus",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			observability.GetLogger().Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Event bus circuit breaker changed state")
		},
	})

	go b.run()
	return b
}

// SetMetrics attaches OpenTelemetry instruments
func (b *QueueBroadcaster) SetMetrics(metrics *observability.Metrics) {
	b.metrics = metrics
}

// PublishToFacility queues an event for the facility channel and the
// instance-wide queue updates channel
func (b *QueueBroadcaster) PublishToFacility(ctx context.Context, facilityID string, eventType entities.QueueEventType, payload map[string]interface{}) error {
	event := entities.NewQueueEvent(facilityID, "", eventType, payload)
	return b.enqueue(dispatch{
		channels: []string{providers.GetFacilityChannel(facilityID), providers.EventChannelQueueUpdates},
		event:    event,
	})
}

// PublishToPatient queues an event for the patient channel
func (b *QueueBroadcaster) PublishToPatient(ctx context.Context, facilityID, patientID string, eventType entities.QueueEventType, payload map[string]interface{}) error {
	event := entities.NewQueueEvent(facilityID, patientID, eventType, payload)
	return b.enqueue(dispatch{
		channels: []string{providers.GetPatientChannel(patientID)},
		event:    event,
	})
}

func (b *QueueBroadcaster) enqueue(d dispatch) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBroadcasterClosed
	}
	select {
	case b.queue <- d:
		return nil
	default:
		observability.GetLogger().Warn().
			Str("event_type", string(d.event.EventType)).
			Str("facility_id", d.event.FacilityID).
			Msg("Broadcast buffer full, dropping event")
		return ErrBroadcastBufferFull
	}
}

func (b *QueueBroadcaster) run() {
	defer close(b.done)
	for d := range b.queue {
		for _, channel := range d.channels {
			b.publish(channel, d.event)
		}
	}
}

func (b *QueueBroadcaster) publish(channel string, event *entities.QueueEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, b.bus.Publish(ctx, channel, event)
	})
	if err != nil {
		observability.RecordBroadcastFailure(ctx, b.metrics, string(event.EventType))
		observability.GetLogger().Warn().Err(err).
			Str("channel", channel).
			Str("event_id", event.ID).
			Str("event_type", string(event.EventType)).
			Msg("Failed to publish queue event")
	}
}

// Close stops accepting events and waits until queued ones are published or
// ctx is done
func (b *QueueBroadcaster) Close(ctx context.Context) error {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.queue)
	}
	b.mu.Unlock()

	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State reports the circuit breaker state
func (b *QueueBroadcaster) State() gobreaker.State {
	return b.breaker.State()
}
