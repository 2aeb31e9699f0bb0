// filepath: internal/services/interfaces.go
package services

import (
	"context"

	"photogallery/internal/models"
)

// Auditor defines the interface for recording notable events.
type Auditor interface {
	// Log records an event.
	// action: what happened (e.g., "image.upload", "image.delete")
	// actor: who did it (upload session id or "system")
	// resource: what was affected (e.g., "Image:101")
	// details: structured metadata about the event
	Log(ctx context.Context, action string, actor string, resource string, details map[string]interface{})
}

// InfoService defines the interface for the info service.
type InfoService interface {
	GetInfo() models.Info
}

// GalleryStore is the validated, retrying front of the persistence collaborator.
type GalleryStore interface {
	Insert(ctx context.Context, rec models.NewRecord) (models.GalleryImage, error)
	Remove(ctx context.Context, id string) error
	List(ctx context.Context) ([]models.GalleryImage, error)
}

// HeartbeatService relays the keepalive RPC.
type HeartbeatService interface {
	Touch(ctx context.Context) (models.HeartbeatResult, error)
}
