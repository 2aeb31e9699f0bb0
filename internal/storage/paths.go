// internal/storage/paths.go
package storage

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// ObjectKey builds the object storage key for a normalized image:
// <prefix>/<year>/<month>/<id>.<ext>.
func ObjectKey(prefix string, t time.Time, id, ext string) (string, error) {
	if id == "" || strings.ContainsAny(id, "/\\") || strings.Contains(id, "..") {
		return "", fmt.Errorf("invalid object id: %q", id)
	}
	year := t.Format("2006")
	month := t.Format("01")

	key := path.Join(prefix, year, month, id+"."+strings.TrimPrefix(ext, "."))

	// Keys must stay relative and inside the prefix.
	cleaned := path.Clean(key)
	if strings.HasPrefix(cleaned, "/") || strings.HasPrefix(cleaned, "..") {
		return "", fmt.Errorf("invalid object key: potential path traversal")
	}
	return cleaned, nil
}

// ValidKey reports whether key is a relative key without traversal segments.
func ValidKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") {
		return false
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." || seg == "" {
			return false
		}
	}
	return true
}
