// filepath: internal/media/payload.go
package media

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"strings"
)

// EmbeddableImage is a self-contained encoded image ready to be persisted.
type EmbeddableImage struct {
	MIMEType    string
	Data        []byte
	Width       int
	Height      int
	Quality     float64 // encode quality, 0 for passthrough
	Step        int     // ladder step that produced the payload, 0 for passthrough
	Passthrough bool
}

// DataURI renders the payload as a data URI.
func (e *EmbeddableImage) DataURI() string {
	return DataURI(e.MIMEType, e.Data)
}

// EncodedLen is the length of DataURI() without building it.
func (e *EmbeddableImage) EncodedLen() int64 {
	return DataURILen(e.MIMEType, len(e.Data))
}

// DataURI builds a base64 data URI.
func DataURI(mimeType string, data []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
}

// DataURILen computes the length of DataURI for n payload bytes.
func DataURILen(mimeType string, n int) int64 {
	return int64(len("data:")+len(mimeType)+len(";base64,")) + int64(base64.StdEncoding.EncodedLen(n))
}

// ParseDataURI splits an image data URI into its media type and decoded bytes.
func ParseDataURI(uri string) (string, []byte, error) {
	if !strings.HasPrefix(uri, "data:image/") {
		return "", nil, fmt.Errorf("not an image data uri")
	}
	comma := strings.IndexByte(uri, ',')
	if comma < 0 {
		return "", nil, fmt.Errorf("malformed data uri")
	}
	meta := uri[len("data:"):comma]
	if !strings.HasSuffix(meta, ";base64") {
		return "", nil, fmt.Errorf("data uri is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(uri[comma+1:])
	if err != nil {
		return "", nil, fmt.Errorf("invalid base64 payload: %w", err)
	}
	return strings.TrimSuffix(meta, ";base64"), data, nil
}

// CheckDecodable verifies that data is an image in a registered format and returns its
// dimensions. Only the header is read.
func CheckDecodable(data []byte) (int, int, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, "", fmt.Errorf("could not decode image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0, "", fmt.Errorf("image has zero dimension")
	}
	return cfg.Width, cfg.Height, format, nil
}
