// Package api assembles the HTTP surface of the gallery service.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"photogallery/internal/api/handlers"
	"photogallery/internal/api/middleware"
	"photogallery/internal/config"
	"photogallery/internal/logging"
	"photogallery/internal/web"
)

// Router is the configured HTTP handler plus the background resources it owns.
type Router struct {
	http.Handler
	limiter *middleware.RateLimiter
}

// Close stops background routines owned by the router.
func (r *Router) Close() {
	r.limiter.Stop()
}

// SetupRouter configures the main router and its sub-routers: the JSON API, the
// rate limited heartbeat and upload routes and the embedded page.
func SetupRouter(h *handlers.Handlers, cfg *config.Config) *Router {
	r := mux.NewRouter()
	limiter := middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst, cfg.TrustedProxyNets)

	// Public Endpoints
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")

	apiRouter := r.PathPrefix("/api").Subrouter()
	apiRouter.HandleFunc("/info", h.GetInfo).Methods("GET")
	apiRouter.HandleFunc("/capabilities", h.GetCapabilities).Methods("GET")

	addHeartbeatRoutes(apiRouter, h, limiter)
	addImageRoutes(apiRouter, h)
	addUploadRoutes(apiRouter, h, limiter)

	// Frontend page (public)
	web.AddRoutes(r)

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "X-Capability-Camera-Capture", "X-Capability-Reference-Decode", "Sec-CH-UA-Mobile"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	return &Router{
		Handler: logging.RequestLogger(c.Handler(r)),
		limiter: limiter,
	}
}

// addHeartbeatRoutes configures the keepalive relay.
func addHeartbeatRoutes(r *mux.Router, h *handlers.Handlers, limiter *middleware.RateLimiter) {
	r.Handle("/keep", limiter.Middleware(http.HandlerFunc(h.Keep))).Methods("GET", "POST")
}

// addImageRoutes configures the gallery list and stored image routes.
func addImageRoutes(r *mux.Router, h *handlers.Handlers) {
	r.HandleFunc("/images", h.ListImages).Methods("GET")
	r.HandleFunc("/images/{id}", h.DeleteImage).Methods("DELETE")
	r.HandleFunc("/blobs/{key:.+}", h.GetBlob).Methods("GET")
}

// addUploadRoutes configures the upload session routes.
func addUploadRoutes(r *mux.Router, h *handlers.Handlers, limiter *middleware.RateLimiter) {
	r.Handle("/uploads", limiter.Middleware(http.HandlerFunc(h.CreateUpload))).Methods("POST")
	r.HandleFunc("/uploads/current", h.GetUpload).Methods("GET")
	r.HandleFunc("/uploads/current", h.CancelUpload).Methods("DELETE")
	r.HandleFunc("/uploads/current/confirm", h.ConfirmUpload).Methods("POST")
	r.HandleFunc("/uploads/current/dismiss", h.DismissUpload).Methods("POST")
	r.HandleFunc("/uploads/current/preview", h.GetPreview).Methods("GET")
	r.HandleFunc("/uploads/current/preview/failure", h.ReportPreviewFailure).Methods("POST")
	r.HandleFunc("/uploads/current/preview/retry", h.RetryPreview).Methods("POST")
	r.HandleFunc("/previews/{token}", h.ServePreview).Methods("GET")
}
