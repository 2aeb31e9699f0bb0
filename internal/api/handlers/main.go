// filepath: internal/api/handlers/main.go
package handlers

import (
	"net/http"
	"time"

	"photogallery/internal/blobstore"
	"photogallery/internal/capability"
	"photogallery/internal/config"
	"photogallery/internal/gallery"
	"photogallery/internal/preview"
	"photogallery/internal/services"
)

// SessionCookie carries the upload session id.
const SessionCookie = "gallery_session"

// Handlers provides a struct to hold shared dependencies for API handlers.
type Handlers struct {
	Info       services.InfoService
	Heartbeat  services.HeartbeatService
	Sessions   *gallery.Sessions
	References *preview.References
	Blobs      blobstore.Store // nil unless payload_mode is "blob"
	Profiles   *capability.Table
	Auditor    services.Auditor

	Cfg       *config.Config
	Version   string
	StartTime time.Time
}

// NewHandlers creates a new instance of Handlers with its dependencies.
func NewHandlers(
	info services.InfoService,
	heartbeat services.HeartbeatService,
	sessions *gallery.Sessions,
	references *preview.References,
	blobs blobstore.Store,
	profiles *capability.Table,
	auditor services.Auditor,
	cfg *config.Config,
) *Handlers {
	return &Handlers{
		Info:       info,
		Heartbeat:  heartbeat,
		Sessions:   sessions,
		References: references,
		Blobs:      blobs,
		Profiles:   profiles,
		Auditor:    auditor,
		Cfg:        cfg,
		Version:    info.GetInfo().Version,
		StartTime:  info.GetInfo().UptimeSince,
	}
}

// session returns the caller's upload session, starting a new one (and setting the
// cookie) when the request carries none or an expired one.
func (h *Handlers) session(w http.ResponseWriter, r *http.Request) *gallery.Controller {
	var id string
	if c, err := r.Cookie(SessionCookie); err == nil {
		id = c.Value
	}
	ctrl, created := h.Sessions.GetOrCreate(id)
	if created {
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookie,
			Value:    ctrl.ID(),
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
			Secure:   r.TLS != nil,
		})
	}
	return ctrl
}
