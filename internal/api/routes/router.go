package routes

import (
	"net/http"

	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/api/handlers"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/api/middleware"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/infrastructure/observability"
)

// Router holds all route handlers
type Router struct {
	mux *http.ServeMux

	queueHandler     *handlers.QueueHandler
	sseHandler       *handlers.SSEHandler
	websocketHandler *handlers.WebSocketHandler

	metrics *observability.Metrics
}

// NewRouter creates a new router. Any handler may be nil to leave its
// routes unmounted.
func NewRouter(
	queueHandler *handlers.QueueHandler,
	sseHandler *handlers.SSEHandler,
	websocketHandler *handlers.WebSocketHandler,
	metrics *observability.Metrics,
) *Router {
	return &Router{
		mux:              http.NewServeMux(),
		queueHandler:     queueHandler,
		sseHandler:       sseHandler,
		websocketHandler: websocketHandler,
		metrics:          metrics,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	r.mux.HandleFunc("GET /health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			return
		}
	})

	if r.queueHandler != nil {
		// Facility queue endpoints
		r.mux.HandleFunc("POST /api/facilities/{id}/queue", r.queueHandler.AddEntry)
		r.mux.HandleFunc("GET /api/facilities/{id}/queue", r.queueHandler.ListQueue)
		r.mux.HandleFunc("GET /api/facilities/{id}/queue/stats", r.queueHandler.GetStats)
		r.mux.HandleFunc("POST /api/facilities/{id}/queue/call-next", r.queueHandler.CallNext)
		r.mux.HandleFunc("POST /api/facilities/{id}/queue/recompute", r.queueHandler.Recompute)

		// Queue entry endpoints
		r.mux.HandleFunc("GET /api/queue/entries/{entryId}", r.queueHandler.GetEntry)
		r.mux.HandleFunc("PATCH /api/queue/entries/{entryId}", r.queueHandler.UpdateEntry)
		r.mux.HandleFunc("DELETE /api/queue/entries/{entryId}", r.queueHandler.DeleteEntry)
		r.mux.HandleFunc("POST /api/queue/entries/{entryId}/complete", r.queueHandler.CompleteEntry)
		r.mux.HandleFunc("POST /api/queue/entries/{entryId}/cancel", r.queueHandler.CancelEntry)
		r.mux.HandleFunc("POST /api/queue/entries/{entryId}/no-show", r.queueHandler.MarkNoShow)
	}

	counters := make(map[string]handlers.ClientCounter)
	if r.sseHandler != nil {
		r.mux.HandleFunc("GET /api/stream/facilities/{id}", r.sseHandler.StreamFacilityUpdates)
		r.mux.HandleFunc("GET /api/stream/patients/{id}", r.sseHandler.StreamPatientUpdates)
		counters["sse"] = r.sseHandler
	}
	if r.websocketHandler != nil {
		r.mux.HandleFunc("GET /api/ws/facilities/{id}", r.websocketHandler.FacilityUpdates)
		r.mux.HandleFunc("GET /api/ws/patients/{id}", r.websocketHandler.PatientUpdates)
		counters["websocket"] = r.websocketHandler
	}
	if len(counters) > 0 {
		r.mux.HandleFunc("GET /api/stream/stats", handlers.StreamStats(counters))
	}

	// Apply middleware in reverse order (last middleware wraps first)
	var handler http.Handler = r.mux
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.ObservabilityMiddleware(r.metrics)(handler)
	handler = middleware.ResponseOptimization(handler)
	handler = middleware.CORSMiddleware(handler)

	return handler
}
