package entities

import "time"

// UnassignedSpecialty groups waiting entries that carry no specialty tag
const UnassignedSpecialty = "unassigned"

// QueueStats summarises the waiting entries of one facility
type QueueStats struct {
	FacilityID         string         `json:"facility_id"`
	TotalWaiting       int            `json:"total_waiting"`
	ByPriorityTier     map[string]int `json:"by_priority_tier"`
	BySpecialty        map[string]int `json:"by_specialty"`
	AverageWaitMinutes float64        `json:"average_wait_minutes"`
	GeneratedAt        time.Time      `json:"generated_at"`
}
