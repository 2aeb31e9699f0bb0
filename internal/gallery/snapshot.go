package gallery

import (
	"photogallery/internal/capability"
	"photogallery/internal/models"
	"photogallery/internal/preview"
	"photogallery/internal/shared"
)

// Snapshot is the observable state of a session.
type Snapshot struct {
	Session   string                `json:"session"`
	Phase     Phase                 `json:"phase"`
	Uploading bool                  `json:"uploading"`
	Profile   *capability.Profile   `json:"profile,omitempty"`
	Accept    string                `json:"accept,omitempty"`
	Pending   *PendingInfo          `json:"pending,omitempty"`
	Preview   *preview.State        `json:"preview,omitempty"`
	Images    []models.GalleryImage `json:"images"`
	Error     *ErrorInfo            `json:"error,omitempty"`
}

// PendingInfo describes the selected file waiting for confirmation.
type PendingInfo struct {
	FileName    string `json:"file_name"`
	FileSize    int64  `json:"file_size"`
	ContentType string `json:"content_type"`
	Title       string `json:"title"`
	CameraPhoto bool   `json:"camera_photo"`
}

// ErrorInfo is the user-facing form of a *shared.Error.
type ErrorInfo struct {
	Kind     shared.Kind     `json:"kind"`
	Category shared.Category `json:"category"`
	Message  string          `json:"message"`
	Limit    int64           `json:"limit,omitempty"`
}

// NewErrorInfo converts err; nil stays nil.
func NewErrorInfo(err *shared.Error) *ErrorInfo {
	if err == nil {
		return nil
	}
	return &ErrorInfo{
		Kind:     err.Kind,
		Category: err.Kind.Category(),
		Message:  err.Message,
		Limit:    err.Limit,
	}
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		Session:   c.id,
		Phase:     c.phase,
		Uploading: c.uploadingLocked(),
		Images:    make([]models.GalleryImage, len(c.images)),
		Error:     NewErrorInfo(c.lastErr),
	}
	copy(s.Images, c.images)

	if c.profile != nil {
		p := *c.profile
		s.Profile = &p
		s.Accept = capability.AcceptList(p)
	}
	if c.pending != nil {
		s.Pending = &PendingInfo{
			FileName:    c.pending.file.Name(),
			FileSize:    c.pending.file.Size(),
			ContentType: c.pending.file.ContentType(),
			Title:       c.pending.title,
			CameraPhoto: c.pending.camera,
		}
		if st, ok := c.renderer.Current(); ok {
			s.Preview = &st
		}
	}
	return s
}
