package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/adapters/memory"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/api/handlers"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/application/services"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/domain/entities"
	apperrors "github.com/gabrielamorim27310-ai/MedGo-sub000/pkg/errors"
)

type MockQueueService struct {
	mock.Mock
}

func (m *MockQueueService) entry(args mock.Arguments) (*entities.QueueEntry, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.QueueEntry), args.Error(1)
}

func (m *MockQueueService) entries(args mock.Arguments) ([]*entities.QueueEntry, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.QueueEntry), args.Error(1)
}

func (m *MockQueueService) AddEntry(ctx context.Context, entry *entities.QueueEntry) (*entities.QueueEntry, error) {
	return m.entry(m.Called(ctx, entry))
}

func (m *MockQueueService) GetEntry(ctx context.Context, id string) (*entities.QueueEntry, error) {
	return m.entry(m.Called(ctx, id))
}

func (m *MockQueueService) ListWaiting(ctx context.Context, facilityID string) ([]*entities.QueueEntry, error) {
	return m.entries(m.Called(ctx, facilityID))
}

func (m *MockQueueService) UpdateEntry(ctx context.Context, id string, patch entities.QueueEntryPatch) (*entities.QueueEntry, error) {
	return m.entry(m.Called(ctx, id, patch))
}

func (m *MockQueueService) CompleteEntry(ctx context.Context, id string) (*entities.QueueEntry, error) {
	return m.entry(m.Called(ctx, id))
}

func (m *MockQueueService) CancelEntry(ctx context.Context, id string) (*entities.QueueEntry, error) {
	return m.entry(m.Called(ctx, id))
}

func (m *MockQueueService) MarkNoShow(ctx context.Context, id string) (*entities.QueueEntry, error) {
	return m.entry(m.Called(ctx, id))
}

func (m *MockQueueService) RemoveEntry(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockQueueService) CallNext(ctx context.Context, facilityID, specialty string) (*entities.QueueEntry, error) {
	return m.entry(m.Called(ctx, facilityID, specialty))
}

func (m *MockQueueService) Recalculate(ctx context.Context, facilityID string) ([]*entities.QueueEntry, error) {
	return m.entries(m.Called(ctx, facilityID))
}

func (m *MockQueueService) GetStats(ctx context.Context, facilityID string) (*entities.QueueStats, error) {
	args := m.Called(ctx, facilityID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.QueueStats), args.Error(1)
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"]
}

func TestQueueHandler_AddEntry(t *testing.T) {
	mockService := new(MockQueueService)
	handler := handlers.NewQueueHandler(mockService)

	created := &entities.QueueEntry{ID: "e1", FacilityID: "fac-1", PatientID: "p-1", Status: entities.QueueStatusWaiting, Position: 1}
	mockService.On("AddEntry", mock.Anything, mock.MatchedBy(func(e *entities.QueueEntry) bool {
		return e.FacilityID == "fac-1" && e.PatientID == "p-1" && e.PriorityTier == entities.PriorityTierUrgent && e.Specialty == "Cardiologia"
	})).Return(created, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/facilities/fac-1/queue",
		strings.NewReader(`{"patient_id":"p-1","priority_tier":"urgent","specialty":"Cardiologia"}`))
	req.SetPathValue("id", "fac-1")
	w := httptest.NewRecorder()

	handler.AddEntry(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	var got entities.QueueEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "e1", got.ID)
	assert.Equal(t, 1, got.Position)
	mockService.AssertExpectations(t)
}

func TestQueueHandler_AddEntry_InvalidPayload(t *testing.T) {
	handler := handlers.NewQueueHandler(new(MockQueueService))

	req := httptest.NewRequest(http.MethodPost, "/api/facilities/fac-1/queue", strings.NewReader(`{`))
	req.SetPathValue("id", "fac-1")
	w := httptest.NewRecorder()

	handler.AddEntry(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid request payload", errorBody(t, w))
}

func TestQueueHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"not found", apperrors.NewNotFoundError("queue entry not found"), http.StatusNotFound},
		{"validation", apperrors.NewValidationError("patch is empty"), http.StatusBadRequest},
		{"conflict", apperrors.NewConflictError("duplicate", nil), http.StatusConflict},
		{"invalid transition", apperrors.NewInvalidTransitionError("entry is completed"), http.StatusConflict},
		{"store unavailable", apperrors.NewStoreUnavailableError("store timed out", context.DeadlineExceeded), http.StatusServiceUnavailable},
		{"internal", apperrors.NewInternalError("boom", nil), http.StatusInternalServerError},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockQueueService)
			handler := handlers.NewQueueHandler(mockService)
			mockService.On("GetEntry", mock.Anything, "e1").Return(nil, tt.err)

			req := httptest.NewRequest(http.MethodGet, "/api/queue/entries/e1", nil)
			req.SetPathValue("entryId", "e1")
			w := httptest.NewRecorder()

			handler.GetEntry(w, req)

			assert.Equal(t, tt.code, w.Code)
			assert.NotEmpty(t, errorBody(t, w))
		})
	}
}

func TestQueueHandler_CallNext(t *testing.T) {
	t.Run("returns called entry", func(t *testing.T) {
		mockService := new(MockQueueService)
		handler := handlers.NewQueueHandler(mockService)
		called := &entities.QueueEntry{ID: "e2", Status: entities.QueueStatusInProgress}
		mockService.On("CallNext", mock.Anything, "fac-1", "Pediatria").Return(called, nil)

		req := httptest.NewRequest(http.MethodPost, "/api/facilities/fac-1/queue/call-next", strings.NewReader(`{"specialty":"Pediatria"}`))
		req.SetPathValue("id", "fac-1")
		w := httptest.NewRecorder()

		handler.CallNext(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("empty body calls any specialty", func(t *testing.T) {
		mockService := new(MockQueueService)
		handler := handlers.NewQueueHandler(mockService)
		mockService.On("CallNext", mock.Anything, "fac-1", "").Return(nil, nil)

		req := httptest.NewRequest(http.MethodPost, "/api/facilities/fac-1/queue/call-next", http.NoBody)
		req.SetPathValue("id", "fac-1")
		w := httptest.NewRecorder()

		handler.CallNext(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Body.Bytes())
	})
}

func TestQueueHandler_DeleteEntry(t *testing.T) {
	mockService := new(MockQueueService)
	handler := handlers.NewQueueHandler(mockService)
	mockService.On("RemoveEntry", mock.Anything, "e1").Return(nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/queue/entries/e1", nil)
	req.SetPathValue("entryId", "e1")
	w := httptest.NewRecorder()

	handler.DeleteEntry(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	mockService.AssertExpectations(t)
}

func TestQueueHandler_UpdateEntry_PassesPatch(t *testing.T) {
	mockService := new(MockQueueService)
	handler := handlers.NewQueueHandler(mockService)
	mockService.On("UpdateEntry", mock.Anything, "e1", mock.MatchedBy(func(p entities.QueueEntryPatch) bool {
		return p.PriorityTier != nil && *p.PriorityTier == entities.PriorityTierEmergency && p.Status == nil
	})).Return(&entities.QueueEntry{ID: "e1"}, nil)

	req := httptest.NewRequest(http.MethodPatch, "/api/queue/entries/e1", strings.NewReader(`{"priority_tier":"emergency"}`))
	req.SetPathValue("entryId", "e1")
	w := httptest.NewRecorder()

	handler.UpdateEntry(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockService.AssertExpectations(t)
}

func TestQueueHandler_WithQueueService(t *testing.T) {
	service := services.NewQueueService(memory.NewQueueStore(), nil, nil, services.DefaultQueueServiceConfig())
	service.SetClock(func() time.Time { return time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC) })
	handler := handlers.NewQueueHandler(service)

	add := func(body string) *entities.QueueEntry {
		req := httptest.NewRequest(http.MethodPost, "/api/facilities/fac-1/queue", strings.NewReader(body))
		req.SetPathValue("id", "fac-1")
		w := httptest.NewRecorder()
		handler.AddEntry(w, req)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		var entry entities.QueueEntry
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entry))
		return &entry
	}

	add(`{"patient_id":"p-1","priority_tier":"normal","check_in_time":"2026-03-02T09:00:00Z"}`)
	urgent := add(`{"patient_id":"p-2","priority_tier":"urgent","check_in_time":"2026-03-02T09:10:00Z"}`)
	assert.Equal(t, 1, urgent.Position)

	req := httptest.NewRequest(http.MethodGet, "/api/facilities/fac-1/queue/stats", nil)
	req.SetPathValue("id", "fac-1")
	w := httptest.NewRecorder()
	handler.GetStats(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var stats entities.QueueStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.TotalWaiting)
	assert.Equal(t, 1, stats.ByPriorityTier["urgent"])

	complete := httptest.NewRequest(http.MethodPost, "/api/queue/entries/"+urgent.ID+"/complete", nil)
	complete.SetPathValue("entryId", urgent.ID)
	w = httptest.NewRecorder()
	handler.CompleteEntry(w, complete)
	assert.Equal(t, http.StatusConflict, w.Code)
}
