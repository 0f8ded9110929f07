package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/infrastructure/observability"
	apperrors "github.com/gabrielamorim27310-ai/MedGo-sub000/pkg/errors"
)

// respondWithJSON writes a JSON response
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

// respondWithError writes an error response
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithAppError maps an AppError to its HTTP status
func respondWithAppError(w http.ResponseWriter, err error) {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		observability.GetLogger().Error().Err(err).Msg("unhandled error")
		respondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	switch appErr.Type {
	case apperrors.ErrorTypeNotFound:
		respondWithError(w, http.StatusNotFound, appErr.Message)
	case apperrors.ErrorTypeValidation:
		respondWithError(w, http.StatusBadRequest, appErr.Message)
	case apperrors.ErrorTypeConflict, apperrors.ErrorTypeInvalidTransition:
		respondWithError(w, http.StatusConflict, appErr.Message)
	case apperrors.ErrorTypeStoreUnavailable:
		observability.GetLogger().Warn().Err(err).Msg("queue store unavailable")
		respondWithError(w, http.StatusServiceUnavailable, appErr.Message)
	default:
		observability.GetLogger().Error().Err(err).Msg("internal error")
		respondWithError(w, http.StatusInternalServerError, appErr.Message)
	}
}
