package web

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
)

func TestShellHandler(t *testing.T) {
	r := mux.NewRouter()
	AddRoutes(r)

	tests := []struct {
		name     string
		path     string
		contains string
	}{
		{"root serves index", "/", "<title>Photo Gallery</title>"},
		{"asset", "/app.js", "/api/uploads"},
		{"unknown path falls back to index", "/gallery/123", "<title>Photo Gallery</title>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest("GET", tt.path, nil))
			assert.Equal(t, http.StatusOK, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.contains)
		})
	}
}
