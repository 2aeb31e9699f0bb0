package capability

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/mssola/useragent"
)

// Hints are what the client tells us about its environment. Probe results reported
// by the client win over the Sec-CH-UA-Mobile client hint, and the User-Agent is only
// consulted when nothing else is known.
type Hints struct {
	CameraCapture   *bool  // client can capture from a camera
	ReferenceDecode *bool  // a test decode through a reference URL succeeded
	Mobile          *bool  // Sec-CH-UA-Mobile
	UserAgent       string // last resort
}

// Header names carrying client probe results.
const (
	HeaderCameraCapture   = "X-Capability-Camera-Capture"
	HeaderReferenceDecode = "X-Capability-Reference-Decode"
	HeaderUAMobile        = "Sec-CH-UA-Mobile"
)

// Platforms reported in the User-Agent comment that are always handheld, even when
// the string carries no Mobile token.
var handheldPlatforms = map[string]bool{
	"iPhone":     true,
	"iPad":       true,
	"iPod":       true,
	"BlackBerry": true,
	"webOS":      true,
}

// constrainedAccept is the explicit chooser list for browsers that mishandle "image/*".
const constrainedAccept = "image/jpeg,image/jpg,image/png,image/gif,image/webp,image/bmp,image/heic,image/heif,.jpg,.jpeg,.png,.gif,.webp,.bmp,.heic,.heif"

// HintsFromRequest collects hints from headers and, for multipart requests, from the
// camera_capture and reference_decode form fields.
func HintsFromRequest(r *http.Request) Hints {
	h := Hints{UserAgent: r.UserAgent()}
	h.CameraCapture = parseFlag(r.Header.Get(HeaderCameraCapture))
	h.ReferenceDecode = parseFlag(r.Header.Get(HeaderReferenceDecode))
	h.Mobile = parseFlag(r.Header.Get(HeaderUAMobile))

	if r.MultipartForm != nil {
		if v := r.MultipartForm.Value["camera_capture"]; len(v) > 0 && h.CameraCapture == nil {
			h.CameraCapture = parseFlag(v[0])
		}
		if v := r.MultipartForm.Value["reference_decode"]; len(v) > 0 && h.ReferenceDecode == nil {
			h.ReferenceDecode = parseFlag(v[0])
		}
	}
	return h
}

// Classify returns the profile name for the given hints.
func Classify(h Hints) string {
	if h.ReferenceDecode != nil && !*h.ReferenceDecode {
		return Constrained
	}
	probed := h.CameraCapture != nil || h.ReferenceDecode != nil || h.Mobile != nil
	if h.CameraCapture != nil && *h.CameraCapture {
		if constrainedVendor(h.UserAgent) {
			return Constrained
		}
		return Mobile
	}
	if h.Mobile != nil && *h.Mobile {
		if constrainedVendor(h.UserAgent) {
			return Constrained
		}
		return Mobile
	}
	if probed {
		return Desktop
	}

	// User-Agent fallback.
	switch {
	case constrainedVendor(h.UserAgent):
		return Constrained
	case handheld(h.UserAgent):
		return Mobile
	}
	return ""
}

// constrainedVendor matches Samsung devices and Samsung Internet, whose decoders
// need the buffered path.
func constrainedVendor(ua string) bool {
	return strings.Contains(strings.ToLower(ua), "samsung")
}

func handheld(ua string) bool {
	if ua == "" {
		return false
	}
	parsed := useragent.New(ua)
	if parsed.Bot() {
		return false
	}
	return parsed.Mobile() || handheldPlatforms[parsed.Platform()]
}

// Select picks the profile for the given hints. With no usable hint the table's
// fallback profile is returned.
func (t *Table) Select(h Hints) Profile {
	return t.Get(Classify(h))
}

// AcceptList is the value for the file chooser's accept attribute.
func AcceptList(p Profile) string {
	if p.Name == Constrained {
		return constrainedAccept
	}
	return "image/*"
}

// parseFlag understands "true"/"false", "1"/"0" and the structured header forms "?1"/"?0".
func parseFlag(v string) *bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	v = strings.TrimPrefix(v, "?")
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil
	}
	return &b
}
