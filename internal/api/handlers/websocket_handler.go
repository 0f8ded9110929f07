package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/domain/entities"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/domain/providers"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/infrastructure/observability"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsMaxMessageSize = 512
)

// wsMessage frames one event on a WebSocket stream
type wsMessage struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// WebSocketHandler streams queue updates over WebSocket connections
type WebSocketHandler struct {
	eventBus   providers.EventBus
	facilities FacilitySnapshotter
	patients   PatientSnapshotter
	registry   *clientRegistry
	upgrader   websocket.Upgrader
	pingPeriod time.Duration
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(eventBus providers.EventBus, facilities FacilitySnapshotter, patients PatientSnapshotter) *WebSocketHandler {
	return &WebSocketHandler{
		eventBus:   eventBus,
		facilities: facilities,
		patients:   patients,
		registry:   newClientRegistry(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		pingPeriod: wsPingPeriod,
	}
}

// FacilityUpdates handles GET /api/ws/facilities/{id}
func (h *WebSocketHandler) FacilityUpdates(w http.ResponseWriter, r *http.Request) {
	facilityID := r.PathValue("id")
	if facilityID == "" {
		respondWithError(w, http.StatusBadRequest, "facility ID is required")
		return
	}

	h.serve(w, r, providers.GetFacilityChannel(facilityID), func(ctx context.Context) (map[string]interface{}, error) {
		return facilitySnapshot(ctx, h.facilities, facilityID)
	})
}

// PatientUpdates handles GET /api/ws/patients/{id}
func (h *WebSocketHandler) PatientUpdates(w http.ResponseWriter, r *http.Request) {
	patientID := r.PathValue("id")
	if patientID == "" {
		respondWithError(w, http.StatusBadRequest, "patient ID is required")
		return
	}

	h.serve(w, r, providers.GetPatientChannel(patientID), func(ctx context.Context) (map[string]interface{}, error) {
		return patientSnapshot(ctx, h.patients, patientID)
	})
}

func (h *WebSocketHandler) serve(
	w http.ResponseWriter,
	r *http.Request,
	channel string,
	snapshot func(ctx context.Context) (map[string]interface{}, error),
) {
	logger := observability.LoggerFromContext(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		logger.Warn().Err(err).Str("channel", channel).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	eventChan, err := h.eventBus.Subscribe(ctx, channel)
	if err != nil {
		logger.Error().Err(err).Str("channel", channel).Msg("Failed to subscribe to channel")
		h.closeWith(conn, websocket.CloseTryAgainLater, "event stream unavailable")
		return
	}

	initial, err := snapshot(ctx)
	if err != nil {
		logger.Error().Err(err).Str("channel", channel).Msg("Failed to load stream snapshot")
		h.closeWith(conn, websocket.CloseInternalServerErr, "snapshot unavailable")
		return
	}

	clientChan := make(chan *entities.QueueEvent, clientBufferSize)
	h.registry.register(channel, clientChan)
	defer h.registry.unregister(channel, clientChan)

	if err := h.write(conn, "snapshot", initial); err != nil {
		return
	}

	go h.readPump(conn, cancel)
	go forwardEvents(ctx, eventChan, clientChan)

	ticker := time.NewTicker(h.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug().Str("channel", channel).Msg("WebSocket client disconnected")
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case event := <-clientChan:
			if event == nil {
				continue
			}
			if err := h.write(conn, string(event.EventType), event); err != nil {
				logger.Debug().Err(err).Str("channel", channel).Msg("WebSocket write failed")
				return
			}
		}
	}
}

// readPump discards inbound frames and cancels the stream once the peer goes away
func (h *WebSocketHandler) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(wsMaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WebSocketHandler) write(conn *websocket.Conn, eventType string, data interface{}) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(wsMessage{Event: eventType, Data: data})
}

func (h *WebSocketHandler) closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
}

// GetClientCount returns the number of connected clients
func (h *WebSocketHandler) GetClientCount() int {
	return h.registry.count()
}
