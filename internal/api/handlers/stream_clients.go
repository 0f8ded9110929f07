package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/domain/entities"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/infrastructure/observability"
)

const (
	defaultHeartbeatInterval = 30 * time.Second
	clientBufferSize         = 32
)

// FacilitySnapshotter lists a facility's waiting entries in serve order
type FacilitySnapshotter interface {
	ListWaiting(ctx context.Context, facilityID string) ([]*entities.QueueEntry, error)
}

// PatientSnapshotter lists a patient's active entries across facilities
type PatientSnapshotter interface {
	ActiveEntries(ctx context.Context, patientID string) ([]*entities.QueueEntry, error)
}

// ClientCounter reports connected stream clients
type ClientCounter interface {
	GetClientCount() int
}

// clientRegistry tracks the live client channels of each bus channel
type clientRegistry struct {
	clients map[string]map[chan *entities.QueueEvent]bool
	mu      sync.RWMutex
}

func newClientRegistry() *clientRegistry {
	return &clientRegistry{
		clients: make(map[string]map[chan *entities.QueueEvent]bool),
	}
}

func (r *clientRegistry) register(channel string, clientChan chan *entities.QueueEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.clients[channel] == nil {
		r.clients[channel] = make(map[chan *entities.QueueEvent]bool)
	}
	r.clients[channel][clientChan] = true
	observability.GetLogger().Debug().
		Str("channel", channel).
		Int("total", len(r.clients[channel])).
		Msg("Stream client registered")
}

func (r *clientRegistry) unregister(channel string, clientChan chan *entities.QueueEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if clients, exists := r.clients[channel]; exists {
		delete(clients, clientChan)
		observability.GetLogger().Debug().
			Str("channel", channel).
			Int("remaining", len(clients)).
			Msg("Stream client unregistered")

		if len(clients) == 0 {
			delete(r.clients, channel)
		}
	}
}

func (r *clientRegistry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, clients := range r.clients {
		count += len(clients)
	}
	return count
}

// forwardEvents copies bus events to a client channel, dropping events the
// client is too slow to take
func forwardEvents(ctx context.Context, eventChan <-chan *entities.QueueEvent, clientChan chan<- *entities.QueueEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			select {
			case clientChan <- event:
			default:
				observability.GetLogger().Warn().
					Str("event_id", event.ID).
					Str("event_type", string(event.EventType)).
					Msg("Stream client buffer full, dropping event")
			}
		}
	}
}

func facilitySnapshot(ctx context.Context, source FacilitySnapshotter, facilityID string) (map[string]interface{}, error) {
	snapshot := map[string]interface{}{
		"facility_id": facilityID,
		"entries":     []map[string]interface{}{},
		"timestamp":   time.Now(),
	}
	if source == nil {
		return snapshot, nil
	}

	waiting, err := source.ListWaiting(ctx, facilityID)
	if err != nil {
		return nil, err
	}
	snapshot["entries"] = entryPayloads(waiting)
	return snapshot, nil
}

func patientSnapshot(ctx context.Context, source PatientSnapshotter, patientID string) (map[string]interface{}, error) {
	snapshot := map[string]interface{}{
		"patient_id": patientID,
		"entries":    []map[string]interface{}{},
		"timestamp":  time.Now(),
	}
	if source == nil {
		return snapshot, nil
	}

	active, err := source.ActiveEntries(ctx, patientID)
	if err != nil {
		return nil, err
	}
	payloads := entryPayloads(active)
	for i, entry := range active {
		payloads[i]["facility_id"] = entry.FacilityID
	}
	snapshot["entries"] = payloads
	return snapshot, nil
}

func entryPayloads(entries []*entities.QueueEntry) []map[string]interface{} {
	payloads := make([]map[string]interface{}, len(entries))
	for i, entry := range entries {
		payloads[i] = entities.EntryPayload(entry)
	}
	return payloads
}

// StreamStats handles GET /api/stream/stats
func StreamStats(counters map[string]ClientCounter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := make(map[string]int, len(counters)+1)
		total := 0
		for name, counter := range counters {
			n := counter.GetClientCount()
			stats[name] = n
			total += n
		}
		stats["total"] = total
		respondWithJSON(w, http.StatusOK, stats)
	}
}
