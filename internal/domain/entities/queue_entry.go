package entities

import (
	"time"
)

// PriorityTier represents the clinical urgency of a queue entry
type PriorityTier string

const (
	PriorityTierEmergency  PriorityTier = "emergency"
	PriorityTierUrgent     PriorityTier = "urgent"
	PriorityTierSemiUrgent PriorityTier = "semi_urgent"
	PriorityTierNormal     PriorityTier = "normal"
	PriorityTierLow        PriorityTier = "low"
)

// PriorityTiers lists every tier, most urgent first
var PriorityTiers = []PriorityTier{
	PriorityTierEmergency,
	PriorityTierUrgent,
	PriorityTierSemiUrgent,
	PriorityTierNormal,
	PriorityTierLow,
}

// Rank returns the tier ordinal; lower is served first.
// Unknown tiers rank after every known tier.
func (p PriorityTier) Rank() int {
	for i, tier := range PriorityTiers {
		if tier == p {
			return i
		}
	}
	return len(PriorityTiers)
}

// IsValid reports whether p is a known tier
func (p PriorityTier) IsValid() bool {
	return p.Rank() < len(PriorityTiers)
}

// QueueStatus represents where an entry is in its lifecycle
type QueueStatus string

const (
	QueueStatusWaiting    QueueStatus = "waiting"
	QueueStatusInProgress QueueStatus = "in_progress"
	QueueStatusCompleted  QueueStatus = "completed"
	QueueStatusCancelled  QueueStatus = "cancelled"
	QueueStatusNoShow     QueueStatus = "no_show"
)

// IsValid reports whether s is a known status
func (s QueueStatus) IsValid() bool {
	switch s {
	case QueueStatusWaiting, QueueStatusInProgress, QueueStatusCompleted, QueueStatusCancelled, QueueStatusNoShow:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed out of s
func (s QueueStatus) IsTerminal() bool {
	return s == QueueStatusCompleted || s == QueueStatusCancelled || s == QueueStatusNoShow
}

var queueTransitions = map[QueueStatus][]QueueStatus{
	QueueStatusWaiting:    {QueueStatusInProgress, QueueStatusCancelled, QueueStatusNoShow},
	QueueStatusInProgress: {QueueStatusCompleted, QueueStatusCancelled, QueueStatusNoShow},
}

// CanTransition reports whether the queue state machine allows from -> to
func CanTransition(from, to QueueStatus) bool {
	for _, allowed := range queueTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// QueueEntry represents one patient's place in one facility's queue
type QueueEntry struct {
	ID                   string       `json:"id" db:"id"`
	FacilityID           string       `json:"facility_id" db:"facility_id"`
	PatientID            string       `json:"patient_id" db:"patient_id"`
	PriorityTier         PriorityTier `json:"priority_tier" db:"priority_tier"`
	Specialty            string       `json:"specialty,omitempty" db:"specialty"`
	Status               QueueStatus  `json:"status" db:"status"`
	CheckInTime          time.Time    `json:"check_in_time" db:"check_in_time"`
	StartTime            *time.Time   `json:"start_time,omitempty" db:"start_time"`
	EndTime              *time.Time   `json:"end_time,omitempty" db:"end_time"`
	Position             int          `json:"position,omitempty" db:"position"`
	EstimatedWaitMinutes int          `json:"estimated_wait_minutes,omitempty" db:"estimated_wait_minutes"`
	Notes                string       `json:"notes,omitempty" db:"notes"`
	CreatedAt            time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time    `json:"updated_at" db:"updated_at"`
}

// IsWaiting reports whether the entry still holds a queue position
func (e *QueueEntry) IsWaiting() bool {
	return e.Status == QueueStatusWaiting
}

// Clone returns a deep copy of the entry
func (e *QueueEntry) Clone() *QueueEntry {
	c := *e
	if e.StartTime != nil {
		t := *e.StartTime
		c.StartTime = &t
	}
	if e.EndTime != nil {
		t := *e.EndTime
		c.EndTime = &t
	}
	return &c
}

// QueueEntryPatch holds the fields staff may edit on an existing entry.
// Nil fields are left untouched.
type QueueEntryPatch struct {
	PriorityTier *PriorityTier `json:"priority_tier,omitempty"`
	Specialty    *string       `json:"specialty,omitempty"`
	Status       *QueueStatus  `json:"status,omitempty"`
	Notes        *string       `json:"notes,omitempty"`
}

// IsEmpty reports whether the patch changes nothing
func (p QueueEntryPatch) IsEmpty() bool {
	return p.PriorityTier == nil && p.Specialty == nil && p.Status == nil && p.Notes == nil
}
