package providers

import (
	"context"

	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/domain/entities"
)

// EventBus defines the interface for publishing and subscribing to events
type EventBus interface {
	// Publish publishes an event to all subscribers
	Publish(ctx context.Context, channel string, event *entities.QueueEvent) error

	// Subscribe subscribes to events on a channel
	Subscribe(ctx context.Context, channel string) (<-chan *entities.QueueEvent, error)

	// Unsubscribe unsubscribes from a channel
	Unsubscribe(ctx context.Context, channel string) error

	// Close closes the event bus and all subscriptions
	Close() error
}

// EventBroadcaster fans queue events out to facility-scoped and patient-scoped
// subscribers. Implementations are best-effort and must not block the caller
// on slow subscribers.
type EventBroadcaster interface {
	PublishToFacility(ctx context.Context, facilityID string, eventType entities.QueueEventType, payload map[string]interface{}) error
	PublishToPatient(ctx context.Context, facilityID, patientID string, eventType entities.QueueEventType, payload map[string]interface{}) error
}

// EventChannel constants for different event types
const (
	// EventChannelQueueUpdates carries every facility event, for instance-wide listeners
	EventChannelQueueUpdates = "queue:updates"

	// EventChannelFacilityPrefix is the prefix for facility-specific channels
	EventChannelFacilityPrefix = "facility:"

	// EventChannelPatientPrefix is the prefix for patient-specific channels
	EventChannelPatientPrefix = "patient:"
)

// GetFacilityChannel returns the channel name for a specific facility
func GetFacilityChannel(facilityID string) string {
	return EventChannelFacilityPrefix + facilityID
}

// GetPatientChannel returns the channel name for a specific patient
func GetPatientChannel(patientID string) string {
	return EventChannelPatientPrefix + patientID
}
