package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseWriter_PreservesFlusher(t *testing.T) {
	var flushed bool
	handler := LoggingMiddleware(ObservabilityMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)
		w.WriteHeader(http.StatusAccepted)
		flusher.Flush()
		flushed = true
	})))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/stream/facilities/fac-1", nil))

	assert.True(t, flushed)
	assert.True(t, w.Flushed)
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestCompression(t *testing.T) {
	handler := Compression(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"entries":[]}`))
	}))

	t.Run("compresses JSON responses", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/facilities/fac-1/queue", nil)
		req.Header.Set("Accept-Encoding", "gzip")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		require.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
		reader, err := gzip.NewReader(w.Body)
		require.NoError(t, err)
		body, err := io.ReadAll(reader)
		require.NoError(t, err)
		assert.Equal(t, `{"entries":[]}`, string(body))
	})

	t.Run("skips streams", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/stream/patients/p-1", nil)
		req.Header.Set("Accept-Encoding", "gzip")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Empty(t, w.Header().Get("Content-Encoding"))
		assert.Equal(t, `{"entries":[]}`, w.Body.String())
	})
}

func TestCacheControl(t *testing.T) {
	handler := CacheControl(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/facilities/fac-1/queue/stats", nil))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/stream/facilities/fac-1", nil))
	assert.Empty(t, w.Header().Get("Cache-Control"))
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", "https://clinic.example")
	handler := CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("preflight must not reach the handler")
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/queue/entries/e1", nil)
	req.Header.Set("Origin", "https://clinic.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://clinic.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PATCH")
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Last-Event-ID")
}

func TestCORSMiddleware_UnknownOrigin(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", "https://clinic.example, https://triage.example")
	reached := false
	handler := CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/facilities/fac-1/queue", nil)
	req.Header.Set("Origin", "https://evil.example")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.True(t, reached)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://triage.example")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, "https://triage.example", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestObservabilityMiddleware_ResolvesRoutePattern(t *testing.T) {
	var facilityID string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/facilities/{id}/queue", func(w http.ResponseWriter, r *http.Request) {
		facilityID = r.PathValue("id")
		w.WriteHeader(http.StatusOK)
	})
	handler := ObservabilityMiddleware(nil)(LoggingMiddleware(mux))

	req := httptest.NewRequest(http.MethodGet, "/api/facilities/fac-7/queue", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "fac-7", facilityID)
}

func TestRouteOf(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/facilities/fac-7/queue", nil)
	assert.Equal(t, "unmatched", routeOf(req))

	req.Pattern = "GET /api/facilities/{id}/queue"
	assert.Equal(t, "GET /api/facilities/{id}/queue", routeOf(req))
}
