// filepath: internal/cli/server.go
package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"photogallery/internal/api"
	"photogallery/internal/api/handlers"
	"photogallery/internal/audit"
	"photogallery/internal/blobstore"
	"photogallery/internal/capability"
	"photogallery/internal/config"
	"photogallery/internal/gallery"
	"photogallery/internal/keepalive"
	"photogallery/internal/logging"
	"photogallery/internal/media"
	"photogallery/internal/persistence"
	"photogallery/internal/preview"
	"photogallery/internal/services"
)

// runServer contains the logic to start the HTTP server with graceful shutdown.
func runServer() error {
	if _, err := os.Stat(cfgFile); errors.Is(err, fs.ErrNotExist) {
		if err := config.SaveConfig(cfgFile, cfg); err != nil {
			logging.Log.Warnf("Failed to write starter configuration to %s: %v", cfgFile, err)
		} else {
			logging.Log.Infof("Starter configuration written to %s.", cfgFile)
		}
	}

	client := services.NewPersistenceClient(cfg)
	defer client.Close()

	blobs := openBlobStore(cfg)

	// Service Initialization
	store := services.NewGalleryStore(client, services.StoreOptions{
		MaxRetries:     cfg.StoreMaxRetries,
		BaseDelay:      cfg.StoreBaseDelay,
		MaxTitleLength: cfg.Upload.MaxTitleLength,
	})
	heartbeatService := services.NewHeartbeatService(client)
	infoService := services.NewInfoService(Version, StartTime, client.Driver(), !persistence.IsDisabled(client), cfg.Upload.PayloadMode)

	// Auditor Initialization
	loggerAuditor := audit.NewLoggerAuditor(cfg.Logging.AuditEnabled)

	references := preview.NewReferences(cfg.PreviewReferenceTTL)
	profiles := capability.NewTable(profileOverrides(cfg.Profiles), cfg.Upload.DefaultProfile)
	normalizer := media.NewNormalizer(media.Options{
		QualityStep:       cfg.Upload.QualityStep,
		MinQuality:        cfg.Upload.MinQuality,
		FallbackDimension: cfg.Upload.FallbackDimension,
		PassthroughBytes:  cfg.PassthroughBytes,
		SmallFileBytes:    cfg.SmallFileBytes,
	})

	deps := gallery.Deps{
		Store:            store,
		Normalizer:       normalizer,
		Profiles:         profiles,
		References:       references,
		Auditor:          loggerAuditor,
		MaxTitleLength:   cfg.Upload.MaxTitleLength,
		PreviewURLPrefix: "/api/previews/",
		PreviewMaxSide:   cfg.Preview.MaxSide,
	}
	// A nil *MinioStore must not become a non-nil interface.
	if blobs != nil {
		deps.Blobs = blobs
	}
	sessions := gallery.NewSessions(deps, cfg.SessionTTL)

	var keepaliveService *keepalive.Service
	if cfg.KeepaliveInterval > 0 && !persistence.IsDisabled(client) {
		keepaliveService = keepalive.NewService(keepalive.Dependencies{
			Heartbeat: heartbeatService,
			Auditor:   loggerAuditor,
		}, cfg.KeepaliveInterval)
		keepaliveService.Start()
		// No defer stop here, we stop explicitly during graceful shutdown
	}

	h := handlers.NewHandlers(
		infoService,
		heartbeatService,
		sessions,
		references,
		deps.Blobs,
		profiles,
		loggerAuditor,
		cfg,
	)

	r := api.SetupRouter(h, cfg)

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              serverAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// --- Graceful Shutdown Setup ---
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		logging.Log.Infof("Server starting on %s (persistence: %s, payload: %s, max request: %s)",
			serverAddr, client.Driver(), cfg.Upload.PayloadMode, cfg.Server.MaxRequestSize)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serverErr:
		return fmt.Errorf("server failed to start: %w", err)
	}
	logging.Log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop background services
	if keepaliveService != nil {
		keepaliveService.Stop()
	}

	if err := srv.Shutdown(ctx); err != nil {
		logging.Log.Errorf("Server forced to shutdown: %v", err)
		return err
	}
	r.Close()
	sessions.Close()

	logging.Log.Info("Server exiting")
	return nil
}

// openBlobStore connects to object storage when payload_mode is "blob". A failed
// connection falls back to data URI payloads.
func openBlobStore(c *config.Config) *blobstore.MinioStore {
	if c.Upload.PayloadMode != config.PayloadBlob {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	store, err := blobstore.NewMinioStore(ctx, c.Blob)
	if err != nil {
		logging.Log.Errorf("Blob store unavailable, storing images as data URIs: %v", err)
		c.Upload.PayloadMode = config.PayloadDataURI
		return nil
	}
	return store
}

// profileOverrides converts the [profiles.*] tables into capability overrides.
func profileOverrides(in map[string]config.ProfileConfig) map[string]capability.Override {
	out := make(map[string]capability.Override, len(in))
	for name, p := range in {
		out[name] = capability.Override{
			MaxDimension:   p.MaxDimension,
			Quality:        p.Quality,
			MaxBytes:       p.MaxBytes,
			MaxUploadBytes: p.MaxUploadBytes,
			MaxRetries:     p.MaxRetries,
			Timeout:        p.TimeoutDur,
			PreviewOrder:   p.PreviewOrder,
			AllowEmptyType: p.AllowEmptyType,
			BufferedDecode: p.BufferedDecode,
		}
	}
	return out
}
