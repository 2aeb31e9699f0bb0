// filepath: internal/api/handlers/upload_handler.go
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"photogallery/internal/capability"
	"photogallery/internal/gallery"
	"photogallery/internal/logging"
	"photogallery/internal/models"
	"photogallery/internal/shared"
	"photogallery/internal/storage"
)

// Form fields besides the file that an upload may carry. Anything else is ignored.
var uploadFields = map[string]bool{
	"title":            true,
	"last_modified":    true,
	"camera_capture":   true,
	"reference_decode": true,
}

const maxFieldBytes = 4 << 10

// ConfirmRequest is the body of the confirm endpoint.
type ConfirmRequest struct {
	Title string `json:"title"`
}

// @Summary Select a file for upload
// @Description Streams a multipart upload into the session as the pending file and starts its preview. The previous pending file, if any, is discarded.
// @Tags Uploads
// @Accept  multipart/form-data
// @Produce  json
// @Param file formData file true "image to upload"
// @Param title formData string false "working title"
// @Param last_modified formData integer false "client side modification time in unix milliseconds"
// @Success 200 {object} gallery.Snapshot
// @Failure 400 {object} gallery.Snapshot
// @Failure 413 {object} gallery.Snapshot
// @Router /uploads [post]
func (h *Handlers) CreateUpload(w http.ResponseWriter, r *http.Request) {
	ctrl := h.session(w, r)
	r.Body = http.MaxBytesReader(w, r.Body, h.Cfg.MaxRequestBytes)

	file, values, err := h.readUpload(r)
	if err != nil {
		if file != nil {
			file.Release()
		}
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) || strings.Contains(err.Error(), "request body too large") {
			r.MultipartForm = &multipart.Form{Value: values}
			limit := ctrl.Profile(capability.HintsFromRequest(r)).MaxUploadBytes
			if limit <= 0 || limit > h.Cfg.MaxRequestBytes {
				limit = h.Cfg.MaxRequestBytes
			}
			snap, err := ctrl.Reject(shared.LimitError(shared.ErrTooLarge,
				fmt.Sprintf("File is too large. Maximum size is %s.", shared.FormatBytes(limit)), limit))
			respondWithSnapshot(w, snap, err)
			return
		}
		logging.Log.Warnf("Could not read upload: %v", err)
		respondWithError(w, http.StatusBadRequest, "Could not read the uploaded file.")
		return
	}

	r.MultipartForm = &multipart.Form{Value: values}
	hints := capability.HintsFromRequest(r)

	var handle models.FileHandle
	if file != nil {
		handle = file
	}
	snap, err := ctrl.Select(handle, hints)
	if err == nil && values.Get("title") != "" {
		if err = ctrl.SetTitle(values.Get("title")); err == nil {
			snap = ctrl.Snapshot()
		}
	}
	respondWithSnapshot(w, snap, err)
}

// readUpload streams the multipart body. The file part is spooled directly; the
// small hint fields are collected into values.
func (h *Handlers) readUpload(r *http.Request) (*storage.SpooledFile, url.Values, error) {
	values := url.Values{}
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, values, err
	}

	var file *storage.SpooledFile
	var name, contentType string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return file, values, err
		}

		switch {
		case part.FormName() == "file" && part.FileName() != "" && file == nil:
			name, contentType = part.FileName(), part.Header.Get("Content-Type")
			file, err = storage.Spool(part, name, contentType, time.Now(), h.Cfg.SmallFileBytes, "")
			if err != nil {
				part.Close()
				return nil, values, err
			}
		case uploadFields[part.FormName()]:
			b, err := io.ReadAll(io.LimitReader(part, maxFieldBytes))
			if err != nil {
				part.Close()
				return file, values, err
			}
			values.Set(part.FormName(), string(b))
		}
		part.Close()
	}

	if file != nil && values.Get("last_modified") != "" {
		if ms, err := strconv.ParseInt(values.Get("last_modified"), 10, 64); err == nil && ms > 0 {
			file.SetModTime(time.UnixMilli(ms))
		}
	}
	return file, values, nil
}

// @Summary Get the current upload
// @Description Returns the session state: phase, pending file, preview and gallery.
// @Tags Uploads
// @Produce  json
// @Success 200 {object} gallery.Snapshot
// @Router /uploads/current [get]
func (h *Handlers) GetUpload(w http.ResponseWriter, r *http.Request) {
	ctrl := h.session(w, r)
	respondWithJSON(w, http.StatusOK, ctrl.Snapshot())
}

// @Summary Confirm the pending upload
// @Description Normalizes the pending file, stores it under the given title and reloads the gallery.
// @Tags Uploads
// @Accept  json
// @Produce  json
// @Param   body body ConfirmRequest true "title"
// @Success 200 {object} gallery.Snapshot
// @Failure 400 {object} gallery.Snapshot
// @Failure 409 {object} gallery.Snapshot
// @Failure 422 {object} gallery.Snapshot
// @Failure 502 {object} gallery.Snapshot
// @Router /uploads/current/confirm [post]
func (h *Handlers) ConfirmUpload(w http.ResponseWriter, r *http.Request) {
	ctrl := h.session(w, r)
	var req ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	snap, err := ctrl.Confirm(r.Context(), req.Title)
	respondWithSnapshot(w, snap, err)
}

// @Summary Cancel the pending upload
// @Description Abandons the pending file. An in-flight confirmation stops at its next checkpoint.
// @Tags Uploads
// @Produce  json
// @Success 200 {object} gallery.Snapshot
// @Router /uploads/current [delete]
func (h *Handlers) CancelUpload(w http.ResponseWriter, r *http.Request) {
	ctrl := h.session(w, r)
	respondWithJSON(w, http.StatusOK, ctrl.Cancel())
}

// @Summary Dismiss an upload error
// @Description Clears the last error and any pending file.
// @Tags Uploads
// @Produce  json
// @Success 200 {object} gallery.Snapshot
// @Router /uploads/current/dismiss [post]
func (h *Handlers) DismissUpload(w http.ResponseWriter, r *http.Request) {
	ctrl := h.session(w, r)
	respondWithJSON(w, http.StatusOK, ctrl.Dismiss())
}

// respondWithSnapshot writes snap with the status implied by err.
func respondWithSnapshot(w http.ResponseWriter, snap gallery.Snapshot, err error) {
	if err == nil {
		respondWithJSON(w, http.StatusOK, snap)
		return
	}
	if errors.Is(err, gallery.ErrCancelled) {
		respondWithJSON(w, http.StatusConflict, snap)
		return
	}
	se, ok := shared.AsError(err)
	if !ok {
		respondWithPipelineError(w, err)
		return
	}
	snap.Error = gallery.NewErrorInfo(se)
	respondWithJSON(w, statusFor(se.Kind), snap)
}
