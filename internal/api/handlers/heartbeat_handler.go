// filepath: internal/api/handlers/heartbeat_handler.go
package handlers

import (
	"net/http"

	"photogallery/internal/logging"
	"photogallery/internal/shared"
)

// @Summary Keep the persistence backend awake
// @Description Calls the heartbeat RPC once and relays its status and body verbatim. Answers 500 when persistence is not configured.
// @Tags Heartbeat
// @Produce  plain
// @Success 200 {string} string "ok"
// @Failure 500 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /keep [get]
// @Router /keep [post]
func (h *Handlers) Keep(w http.ResponseWriter, r *http.Request) {
	res, err := h.Heartbeat.Touch(r.Context())
	if err != nil {
		if se, ok := shared.AsError(err); ok && se.Kind == shared.ErrNotConfigured {
			respondWithError(w, http.StatusInternalServerError, se.Message)
			return
		}
		logging.Log.Errorf("Heartbeat failed: %v", err)
		respondWithError(w, http.StatusBadGateway, err.Error())
		return
	}

	h.Auditor.Log(r.Context(), "heartbeat.touch", "system", "Heartbeat", map[string]interface{}{
		"status": res.Status,
	})

	if res.ContentType != "" {
		w.Header().Set("Content-Type", res.ContentType)
	}
	w.WriteHeader(res.Status)
	w.Write([]byte(res.Body))
}
