// internal/web/web.go
// Package web serves the embedded upload page.
package web

import (
	"bytes"
	"embed"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"photogallery/internal/logging"
)

//go:embed static
var content embed.FS

const indexPath = "index.html"

// shellHandler serves static assets and falls back to the index page for unknown paths.
type shellHandler struct {
	contentFS fs.FS
	indexPath string
}

func (h shellHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	filePath := path.Clean(strings.TrimPrefix(r.URL.Path, "/"))
	if filePath == "" || filePath == "." {
		filePath = h.indexPath
	}

	file, err := h.contentFS.Open(filePath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			logging.Log.Errorf("web: error opening %s: %v", filePath, err)
			return
		}
		indexBytes, err := fs.ReadFile(h.contentFS, h.indexPath)
		if err != nil {
			http.Error(w, "Internal server error: index.html not found", http.StatusInternalServerError)
			logging.Log.Errorf("web: could not find %s in embedded FS: %v", h.indexPath, err)
			return
		}
		http.ServeContent(w, r, h.indexPath, time.Time{}, bytes.NewReader(indexBytes))
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil || info.IsDir() {
		indexBytes, _ := fs.ReadFile(h.contentFS, h.indexPath)
		http.ServeContent(w, r, h.indexPath, time.Time{}, bytes.NewReader(indexBytes))
		return
	}

	seeker, ok := file.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(file)
		if err != nil {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		http.ServeContent(w, r, filePath, info.ModTime(), bytes.NewReader(data))
		return
	}
	http.ServeContent(w, r, filePath, info.ModTime(), seeker)
}

// Handler returns the handler for the embedded page.
func Handler() http.Handler {
	sub, err := fs.Sub(content, "static")
	if err != nil {
		// The embed directive guarantees the directory exists.
		panic(err)
	}
	return shellHandler{contentFS: sub, indexPath: indexPath}
}

// AddRoutes mounts the page as the catch-all route.
func AddRoutes(router *mux.Router) {
	router.PathPrefix("/").Handler(Handler())
}
