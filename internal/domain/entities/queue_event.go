package entities

import (
	"time"

	"github.com/google/uuid"
)

// QueueEventType represents the type of queue event
type QueueEventType string

// Facility channel events
const (
	QueueEventTypeEntryAdded   QueueEventType = "entry_added"
	QueueEventTypeEntryUpdated QueueEventType = "entry_updated"
	QueueEventTypeEntryRemoved QueueEventType = "entry_removed"
	QueueEventTypeQueueUpdate  QueueEventType = "queue_update"
)

// Patient channel events
const (
	QueueEventTypePosition QueueEventType = "position"
	QueueEventTypeStatus   QueueEventType = "status"
	QueueEventTypeRemoved  QueueEventType = "removed"
	QueueEventTypeCalled   QueueEventType = "called"
)

// QueueEvent represents a real-time update for a facility queue or one patient
type QueueEvent struct {
	ID         string                 `json:"id"`
	FacilityID string                 `json:"facility_id"`
	PatientID  string                 `json:"patient_id,omitempty"`
	EventType  QueueEventType         `json:"event_type"`
	Timestamp  time.Time              `json:"timestamp"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
}

// NewQueueEvent creates a new queue event
func NewQueueEvent(facilityID, patientID string, eventType QueueEventType, payload map[string]interface{}) *QueueEvent {
	return &QueueEvent{
		ID:         uuid.New().String(),
		FacilityID: facilityID,
		PatientID:  patientID,
		EventType:  eventType,
		Timestamp:  time.Now(),
		Payload:    payload,
	}
}

// EntryPayload renders the subscriber-facing view of an entry
func EntryPayload(entry *QueueEntry) map[string]interface{} {
	payload := map[string]interface{}{
		"entry_id":      entry.ID,
		"patient_id":    entry.PatientID,
		"status":        entry.Status,
		"priority_tier": entry.PriorityTier,
	}
	if entry.Specialty != "" {
		payload["specialty"] = entry.Specialty
	}
	if entry.IsWaiting() {
		payload["position"] = entry.Position
		payload["estimated_wait_minutes"] = entry.EstimatedWaitMinutes
	}
	return payload
}
