package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/domain/entities"
)

// QueueService defines the queue operations exposed over REST
type QueueService interface {
	AddEntry(ctx context.Context, entry *entities.QueueEntry) (*entities.QueueEntry, error)
	GetEntry(ctx context.Context, id string) (*entities.QueueEntry, error)
	ListWaiting(ctx context.Context, facilityID string) ([]*entities.QueueEntry, error)
	UpdateEntry(ctx context.Context, id string, patch entities.QueueEntryPatch) (*entities.QueueEntry, error)
	CompleteEntry(ctx context.Context, id string) (*entities.QueueEntry, error)
	CancelEntry(ctx context.Context, id string) (*entities.QueueEntry, error)
	MarkNoShow(ctx context.Context, id string) (*entities.QueueEntry, error)
	RemoveEntry(ctx context.Context, id string) error
	CallNext(ctx context.Context, facilityID, specialty string) (*entities.QueueEntry, error)
	Recalculate(ctx context.Context, facilityID string) ([]*entities.QueueEntry, error)
	GetStats(ctx context.Context, facilityID string) (*entities.QueueStats, error)
}

// QueueHandler handles facility queue requests
type QueueHandler struct {
	service QueueService
}

// NewQueueHandler creates a new queue handler
func NewQueueHandler(service QueueService) *QueueHandler {
	return &QueueHandler{
		service: service,
	}
}

type addEntryRequest struct {
	ID           string                `json:"id,omitempty"`
	PatientID    string                `json:"patient_id"`
	PriorityTier entities.PriorityTier `json:"priority_tier"`
	Specialty    string                `json:"specialty,omitempty"`
	Notes        string                `json:"notes,omitempty"`
	CheckInTime  *time.Time            `json:"check_in_time,omitempty"`
}

type callNextRequest struct {
	Specialty string `json:"specialty,omitempty"`
}

// AddEntry handles POST /api/facilities/{id}/queue
func (h *QueueHandler) AddEntry(w http.ResponseWriter, r *http.Request) {
	facilityID := r.PathValue("id")
	if facilityID == "" {
		respondWithError(w, http.StatusBadRequest, "facility ID is required")
		return
	}

	var req addEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	entry := &entities.QueueEntry{
		ID:           req.ID,
		FacilityID:   facilityID,
		PatientID:    req.PatientID,
		PriorityTier: req.PriorityTier,
		Specialty:    req.Specialty,
		Notes:        req.Notes,
	}
	if req.CheckInTime != nil {
		entry.CheckInTime = *req.CheckInTime
	}

	created, err := h.service.AddEntry(r.Context(), entry)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}

// ListQueue handles GET /api/facilities/{id}/queue
func (h *QueueHandler) ListQueue(w http.ResponseWriter, r *http.Request) {
	facilityID := r.PathValue("id")
	if facilityID == "" {
		respondWithError(w, http.StatusBadRequest, "facility ID is required")
		return
	}

	entries, err := h.service.ListWaiting(r.Context(), facilityID)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"facility_id": facilityID,
		"entries":     entries,
		"count":       len(entries),
	})
}

// GetStats handles GET /api/facilities/{id}/queue/stats
func (h *QueueHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	facilityID := r.PathValue("id")
	if facilityID == "" {
		respondWithError(w, http.StatusBadRequest, "facility ID is required")
		return
	}

	stats, err := h.service.GetStats(r.Context(), facilityID)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, stats)
}

// CallNext handles POST /api/facilities/{id}/queue/call-next
func (h *QueueHandler) CallNext(w http.ResponseWriter, r *http.Request) {
	facilityID := r.PathValue("id")
	if facilityID == "" {
		respondWithError(w, http.StatusBadRequest, "facility ID is required")
		return
	}

	var req callNextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	entry, err := h.service.CallNext(r.Context(), facilityID, req.Specialty)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	if entry == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	respondWithJSON(w, http.StatusOK, entry)
}

// Recompute handles POST /api/facilities/{id}/queue/recompute
func (h *QueueHandler) Recompute(w http.ResponseWriter, r *http.Request) {
	facilityID := r.PathValue("id")
	if facilityID == "" {
		respondWithError(w, http.StatusBadRequest, "facility ID is required")
		return
	}

	changed, err := h.service.Recalculate(r.Context(), facilityID)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"facility_id": facilityID,
		"changed":     changed,
		"count":       len(changed),
	})
}

// GetEntry handles GET /api/queue/entries/{entryId}
func (h *QueueHandler) GetEntry(w http.ResponseWriter, r *http.Request) {
	entryID := r.PathValue("entryId")
	if entryID == "" {
		respondWithError(w, http.StatusBadRequest, "entry ID is required")
		return
	}

	entry, err := h.service.GetEntry(r.Context(), entryID)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, entry)
}

// UpdateEntry handles PATCH /api/queue/entries/{entryId}
func (h *QueueHandler) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	entryID := r.PathValue("entryId")
	if entryID == "" {
		respondWithError(w, http.StatusBadRequest, "entry ID is required")
		return
	}

	var patch entities.QueueEntryPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	entry, err := h.service.UpdateEntry(r.Context(), entryID, patch)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, entry)
}

// DeleteEntry handles DELETE /api/queue/entries/{entryId}
func (h *QueueHandler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	entryID := r.PathValue("entryId")
	if entryID == "" {
		respondWithError(w, http.StatusBadRequest, "entry ID is required")
		return
	}

	if err := h.service.RemoveEntry(r.Context(), entryID); err != nil {
		respondWithAppError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CompleteEntry handles POST /api/queue/entries/{entryId}/complete
func (h *QueueHandler) CompleteEntry(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.service.CompleteEntry)
}

// CancelEntry handles POST /api/queue/entries/{entryId}/cancel
func (h *QueueHandler) CancelEntry(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.service.CancelEntry)
}

// MarkNoShow handles POST /api/queue/entries/{entryId}/no-show
func (h *QueueHandler) MarkNoShow(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.service.MarkNoShow)
}

func (h *QueueHandler) changeStatus(
	w http.ResponseWriter,
	r *http.Request,
	apply func(ctx context.Context, id string) (*entities.QueueEntry, error),
) {
	entryID := r.PathValue("entryId")
	if entryID == "" {
		respondWithError(w, http.StatusBadRequest, "entry ID is required")
		return
	}

	entry, err := apply(r.Context(), entryID)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, entry)
}
