// internal/api/handlers/responses.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"photogallery/internal/gallery"
	"photogallery/internal/logging"
	"photogallery/internal/shared"
)

// ErrorResponse is a standard format for API error messages.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse is a standard format for simple API messages.
type MessageResponse struct {
	Message string `json:"message"`
}

// PipelineErrorResponse carries a categorized pipeline failure.
type PipelineErrorResponse struct {
	Error *gallery.ErrorInfo `json:"error"`
}

// respondWithError sends a JSON error response.
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, ErrorResponse{Error: message})
}

// respondWithJSON sends a JSON response.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, `{"error":"Failed to marshal JSON response"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// respondWithPipelineError maps err onto an HTTP status and writes it.
func respondWithPipelineError(w http.ResponseWriter, err error) {
	if errors.Is(err, gallery.ErrCancelled) {
		respondWithError(w, http.StatusConflict, "The upload was cancelled.")
		return
	}
	se, ok := shared.AsError(err)
	if !ok {
		logging.Log.Errorf("Unexpected handler error: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondWithJSON(w, statusFor(se.Kind), PipelineErrorResponse{Error: gallery.NewErrorInfo(se)})
}

// statusFor returns the HTTP status used for a failure kind.
func statusFor(kind shared.Kind) int {
	switch kind {
	case shared.ErrTooLarge:
		return http.StatusRequestEntityTooLarge
	case shared.ErrUnsupportedType:
		return http.StatusUnsupportedMediaType
	case shared.ErrBusy, shared.ErrInvalidState:
		return http.StatusConflict
	}
	switch kind.Category() {
	case shared.CategoryValidation:
		return http.StatusBadRequest
	case shared.CategoryProcessing:
		return http.StatusUnprocessableEntity
	case shared.CategoryStore:
		return http.StatusBadGateway
	case shared.CategoryConfiguration:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
