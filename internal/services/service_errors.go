// filepath: internal/services/service_errors.go
package services

import (
	"context"
	"errors"
	"net"
	"strings"

	"photogallery/internal/persistence"
	"photogallery/internal/shared"
)

// friendlyStoreMessage turns a backend failure into a message for the user. Network
// and timeout failures get a readable explanation instead of the raw cause.
func friendlyStoreMessage(prefix string, err error) string {
	if err == nil {
		return prefix + "."
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return prefix + ": the gallery service took too long to respond. Please try again."
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return prefix + ": the gallery service took too long to respond. Please try again."
		}
		return prefix + ": could not reach the gallery service. Check your connection and try again."
	}
	var se *persistence.StatusError
	if errors.As(err, &se) && se.Body != "" {
		return prefix + ": " + se.Body
	}
	msg := err.Error()
	if strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host") {
		return prefix + ": could not reach the gallery service. Check your connection and try again."
	}
	return prefix + ": " + msg
}

// notConfigured reports whether err should reach the caller unchanged.
func notConfigured(err error) bool {
	return errors.Is(err, shared.ErrNotConfigured)
}
