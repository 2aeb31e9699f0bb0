// filepath: internal/api/handlers/gallery_handler.go
package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/minio/minio-go/v7"

	"photogallery/internal/logging"
	"photogallery/internal/shared"
	"photogallery/internal/storage"
)

// @Summary List gallery images
// @Description Reloads the gallery, newest first. On a load failure the list is empty and the error is reported alongside it.
// @Tags Images
// @Produce  json
// @Success 200 {object} gallery.Snapshot
// @Failure 502 {object} gallery.Snapshot
// @Failure 503 {object} gallery.Snapshot
// @Router /images [get]
func (h *Handlers) ListImages(w http.ResponseWriter, r *http.Request) {
	ctrl := h.session(w, r)
	snap, err := ctrl.Reload(r.Context())
	respondWithSnapshot(w, snap, err)
}

// @Summary Delete a gallery image
// @Description Removes the image with the given id and reloads the gallery. Unknown ids are not an error.
// @Tags Images
// @Produce  json
// @Param   id path string true "image id"
// @Success 200 {object} gallery.Snapshot
// @Failure 502 {object} gallery.Snapshot
// @Router /images/{id} [delete]
func (h *Handlers) DeleteImage(w http.ResponseWriter, r *http.Request) {
	ctrl := h.session(w, r)
	id := mux.Vars(r)["id"]
	snap, err := ctrl.Delete(r.Context(), id)
	respondWithSnapshot(w, snap, err)
}

// @Summary Serve a stored image blob
// @Description Streams a normalized image stored in object storage. Only available when payload_mode is "blob".
// @Tags Images
// @Produce  image/jpeg
// @Param   key path string true "object key"
// @Success 200 {file} binary
// @Failure 404 {object} ErrorResponse
// @Router /blobs/{key} [get]
func (h *Handlers) GetBlob(w http.ResponseWriter, r *http.Request) {
	if h.Blobs == nil {
		respondWithPipelineError(w, shared.NewError(shared.ErrNotConfigured, "Object storage is not configured."))
		return
	}
	key := mux.Vars(r)["key"]
	if !storage.ValidKey(key) {
		respondWithError(w, http.StatusNotFound, "Image not found")
		return
	}

	obj, err := h.Blobs.Get(r.Context(), key)
	if err != nil {
		var merr minio.ErrorResponse
		if errors.As(err, &merr) && merr.Code == "NoSuchKey" {
			respondWithError(w, http.StatusNotFound, "Image not found")
			return
		}
		logging.Log.Errorf("Could not read blob %s: %v", key, err)
		respondWithError(w, http.StatusBadGateway, "Could not load the image.")
		return
	}
	defer obj.Close()

	w.Header().Set("Content-Type", obj.ContentType)
	if obj.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, obj); err != nil {
		logging.Log.Debugf("Blob %s copy interrupted: %v", key, err)
	}
}
