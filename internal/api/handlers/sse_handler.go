package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/domain/entities"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/domain/providers"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/infrastructure/observability"
)

// SSEHandler handles Server-Sent Events for real-time queue updates
type SSEHandler struct {
	eventBus   providers.EventBus
	facilities FacilitySnapshotter
	patients   PatientSnapshotter
	registry   *clientRegistry
	heartbeat  time.Duration
}

// NewSSEHandler creates a new SSE handler. The snapshotters may be nil, in
// which case streams open with an empty snapshot.
func NewSSEHandler(eventBus providers.EventBus, facilities FacilitySnapshotter, patients PatientSnapshotter) *SSEHandler {
	return &SSEHandler{
		eventBus:   eventBus,
		facilities: facilities,
		patients:   patients,
		registry:   newClientRegistry(),
		heartbeat:  defaultHeartbeatInterval,
	}
}

// SetHeartbeatInterval overrides the keep-alive period
func (h *SSEHandler) SetHeartbeatInterval(interval time.Duration) {
	if interval > 0 {
		h.heartbeat = interval
	}
}

// StreamFacilityUpdates handles SSE connections for a facility's queue
// GET /api/stream/facilities/{id}
func (h *SSEHandler) StreamFacilityUpdates(w http.ResponseWriter, r *http.Request) {
	facilityID := r.PathValue("id")
	if facilityID == "" {
		respondWithError(w, http.StatusBadRequest, "facility ID is required")
		return
	}

	h.stream(w, r, providers.GetFacilityChannel(facilityID), func(ctx context.Context) (map[string]interface{}, error) {
		return facilitySnapshot(ctx, h.facilities, facilityID)
	})
}

// StreamPatientUpdates handles SSE connections for one patient's position and status
// GET /api/stream/patients/{id}
func (h *SSEHandler) StreamPatientUpdates(w http.ResponseWriter, r *http.Request) {
	patientID := r.PathValue("id")
	if patientID == "" {
		respondWithError(w, http.StatusBadRequest, "patient ID is required")
		return
	}

	h.stream(w, r, providers.GetPatientChannel(patientID), func(ctx context.Context) (map[string]interface{}, error) {
		return patientSnapshot(ctx, h.patients, patientID)
	})
}

func (h *SSEHandler) stream(
	w http.ResponseWriter,
	r *http.Request,
	channel string,
	snapshot func(ctx context.Context) (map[string]interface{}, error),
) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondWithError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ctx := r.Context()
	logger := observability.LoggerFromContext(ctx)

	// Subscribe before the snapshot so no event between the two is lost
	eventChan, err := h.eventBus.Subscribe(ctx, channel)
	if err != nil {
		logger.Error().Err(err).Str("channel", channel).Msg("Failed to subscribe to channel")
		respondWithError(w, http.StatusServiceUnavailable, "event stream unavailable")
		return
	}

	initial, err := snapshot(ctx)
	if err != nil {
		logger.Error().Err(err).Str("channel", channel).Msg("Failed to load stream snapshot")
		respondWithAppError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	clientChan := make(chan *entities.QueueEvent, clientBufferSize)
	h.registry.register(channel, clientChan)
	defer h.registry.unregister(channel, clientChan)

	h.sendEvent(w, "connected", map[string]interface{}{
		"channel":   channel,
		"timestamp": time.Now(),
	})
	h.sendEvent(w, "snapshot", initial)
	flusher.Flush()

	go forwardEvents(ctx, eventChan, clientChan)

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug().Str("channel", channel).Msg("Client disconnected from stream")
			return
		case <-ticker.C:
			h.sendEvent(w, "heartbeat", map[string]interface{}{
				"timestamp": time.Now(),
			})
			flusher.Flush()
		case event := <-clientChan:
			if event == nil {
				continue
			}
			h.sendEvent(w, string(event.EventType), event)
			flusher.Flush()
		}
	}
}

// sendEvent sends an SSE event to the client
func (h *SSEHandler) sendEvent(w http.ResponseWriter, eventType string, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		observability.GetLogger().Error().Err(err).Str("event_type", eventType).Msg("Failed to marshal event data")
		return
	}

	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
}

// GetClientCount returns the number of connected clients
func (h *SSEHandler) GetClientCount() int {
	return h.registry.count()
}
