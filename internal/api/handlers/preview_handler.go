// filepath: internal/api/handlers/preview_handler.go
package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"photogallery/internal/logging"
)

// @Summary Get the preview of the pending upload
// @Tags Previews
// @Produce  json
// @Success 200 {object} preview.State
// @Failure 409 {object} PipelineErrorResponse
// @Router /uploads/current/preview [get]
func (h *Handlers) GetPreview(w http.ResponseWriter, r *http.Request) {
	ctrl := h.session(w, r)
	st, err := ctrl.PreviewState()
	if err != nil {
		respondWithPipelineError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, st)
}

// @Summary Report that the preview could not be displayed
// @Description Moves the preview on to the next strategy of the session profile.
// @Tags Previews
// @Produce  json
// @Success 200 {object} preview.State
// @Failure 409 {object} PipelineErrorResponse
// @Router /uploads/current/preview/failure [post]
func (h *Handlers) ReportPreviewFailure(w http.ResponseWriter, r *http.Request) {
	ctrl := h.session(w, r)
	st, err := ctrl.ReportPreviewFailure()
	if err != nil {
		respondWithPipelineError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, st)
}

// @Summary Retry the preview
// @Description Restarts preview rendering from the first strategy.
// @Tags Previews
// @Produce  json
// @Success 200 {object} preview.State
// @Failure 409 {object} PipelineErrorResponse
// @Router /uploads/current/preview/retry [post]
func (h *Handlers) RetryPreview(w http.ResponseWriter, r *http.Request) {
	ctrl := h.session(w, r)
	st, err := ctrl.RetryPreview()
	if err != nil {
		respondWithPipelineError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, st)
}

// @Summary Serve a preview reference
// @Description Streams the raw bytes of a pending upload through its transient reference token.
// @Tags Previews
// @Produce  octet-stream
// @Param   token path string true "reference token"
// @Success 200 {file} binary
// @Failure 404 {object} ErrorResponse
// @Router /previews/{token} [get]
func (h *Handlers) ServePreview(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	ref, ok := h.References.Resolve(token)
	if !ok {
		respondWithError(w, http.StatusNotFound, "Preview not found")
		return
	}

	rc, err := ref.File.Open()
	if err != nil {
		// The pending file was released after the token was issued.
		respondWithError(w, http.StatusNotFound, "Preview not found")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", ref.MIMEType)
	w.Header().Set("Content-Length", strconv.FormatInt(ref.File.Size(), 10))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		logging.Log.Debugf("Preview %s copy interrupted: %v", token, err)
	}
}
