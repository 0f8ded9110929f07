package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/adapters/events"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/api/handlers"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/domain/entities"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/domain/providers"
)

type wsFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func newWebSocketServer(t *testing.T, handler *handlers.WebSocketHandler) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/ws/facilities/{id}", handler.FacilityUpdates)
	mux.HandleFunc("GET /api/ws/patients/{id}", handler.PatientUpdates)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func dial(t *testing.T, server *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame wsFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestWebSocketHandler_FacilityStream(t *testing.T) {
	bus := events.NewLocalEventBus()
	defer bus.Close()

	snapshots := &stubFacilitySnapshotter{entries: []*entities.QueueEntry{
		{ID: "e1", PatientID: "p-1", Status: entities.QueueStatusWaiting, Position: 1},
	}}
	handler := handlers.NewWebSocketHandler(bus, snapshots, nil)
	server := newWebSocketServer(t, handler)

	conn := dial(t, server, "/api/ws/facilities/fac-1")

	snapshot := readFrame(t, conn)
	assert.Equal(t, "snapshot", snapshot.Event)
	assert.Contains(t, string(snapshot.Data), `"entry_id":"e1"`)

	require.Eventually(t, func() bool { return handler.GetClientCount() == 1 }, time.Second, 5*time.Millisecond)
	event := entities.NewQueueEvent("fac-1", "", entities.QueueEventTypeQueueUpdate, map[string]interface{}{"changed": 2})
	require.NoError(t, bus.Publish(context.Background(), providers.GetFacilityChannel("fac-1"), event))

	update := readFrame(t, conn)
	assert.Equal(t, string(entities.QueueEventTypeQueueUpdate), update.Event)

	var received entities.QueueEvent
	require.NoError(t, json.Unmarshal(update.Data, &received))
	assert.Equal(t, event.ID, received.ID)
}

func TestWebSocketHandler_PatientStream(t *testing.T) {
	bus := events.NewLocalEventBus()
	defer bus.Close()

	patients := &stubPatientSnapshotter{entries: []*entities.QueueEntry{
		{ID: "e1", FacilityID: "fac-2", PatientID: "p-7", Status: entities.QueueStatusInProgress},
	}}
	handler := handlers.NewWebSocketHandler(bus, nil, patients)
	server := newWebSocketServer(t, handler)

	conn := dial(t, server, "/api/ws/patients/p-7")

	snapshot := readFrame(t, conn)
	assert.Equal(t, "snapshot", snapshot.Event)
	assert.Contains(t, string(snapshot.Data), `"facility_id":"fac-2"`)
	assert.NotContains(t, string(snapshot.Data), `"position"`)

	require.Eventually(t, func() bool { return handler.GetClientCount() == 1 }, time.Second, 5*time.Millisecond)
	event := entities.NewQueueEvent("fac-2", "p-7", entities.QueueEventTypeStatus, map[string]interface{}{"status": "completed"})
	require.NoError(t, bus.Publish(context.Background(), providers.GetPatientChannel("p-7"), event))

	assert.Equal(t, string(entities.QueueEventTypeStatus), readFrame(t, conn).Event)
}

func TestWebSocketHandler_UnregistersOnClientClose(t *testing.T) {
	bus := events.NewLocalEventBus()
	defer bus.Close()
	handler := handlers.NewWebSocketHandler(bus, nil, nil)
	server := newWebSocketServer(t, handler)

	conn := dial(t, server, "/api/ws/facilities/fac-1")
	readFrame(t, conn)
	require.Eventually(t, func() bool { return handler.GetClientCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool { return handler.GetClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketHandler_RejectsPlainHTTP(t *testing.T) {
	bus := events.NewLocalEventBus()
	defer bus.Close()
	handler := handlers.NewWebSocketHandler(bus, nil, nil)
	server := newWebSocketServer(t, handler)

	resp, err := http.Get(server.URL + "/api/ws/facilities/fac-1")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 0, handler.GetClientCount())
}
