// filepath: internal/api/handlers/info_handler.go
package handlers

import (
	"net/http"

	"photogallery/internal/capability"
)

// CapabilitiesResponse describes the profile chosen for the caller's session.
type CapabilitiesResponse struct {
	Profile  capability.Profile `json:"profile"`
	Accept   string             `json:"accept"`
	Profiles []string           `json:"profiles"`
}

// @Summary Get service information
// @Description Retrieves general information about the service: name, version, uptime and the configured persistence backend.
// @Tags Info
// @Produce  json
// @Success 200 {object} models.Info
// @Router /info [get]
func (h *Handlers) GetInfo(w http.ResponseWriter, r *http.Request) {
	info := h.Info.GetInfo()
	respondWithJSON(w, http.StatusOK, info)
}

// @Summary Get upload capabilities
// @Description Probes the client from its capability headers and returns the processing profile and file chooser accept list for the session.
// @Tags Info
// @Produce  json
// @Param X-Capability-Camera-Capture header string false "camera capture probe result"
// @Param X-Capability-Reference-Decode header string false "reference decode probe result"
// @Success 200 {object} CapabilitiesResponse
// @Router /capabilities [get]
func (h *Handlers) GetCapabilities(w http.ResponseWriter, r *http.Request) {
	ctrl := h.session(w, r)
	p := ctrl.Profile(capability.HintsFromRequest(r))
	respondWithJSON(w, http.StatusOK, CapabilitiesResponse{
		Profile:  p,
		Accept:   capability.AcceptList(p),
		Profiles: h.Profiles.Names(),
	})
}
