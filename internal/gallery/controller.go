// Package gallery drives one upload session from file selection to a refreshed gallery.
package gallery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"photogallery/internal/blobstore"
	"photogallery/internal/capability"
	"photogallery/internal/logging"
	"photogallery/internal/media"
	"photogallery/internal/models"
	"photogallery/internal/preview"
	"photogallery/internal/services"
	"photogallery/internal/shared"
	"photogallery/internal/storage"
	"photogallery/internal/validation"
)

// Phase is the controller state.
type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhaseFileSelected  Phase = "file_selected"
	PhaseValidated     Phase = "validated"
	PhaseAwaitingTitle Phase = "awaiting_title"
	PhaseNormalizing   Phase = "normalizing"
	PhasePersisting    Phase = "persisting"
	PhaseReloading     Phase = "reloading"
	PhaseError         Phase = "error"
)

// ErrCancelled is returned by Confirm when the upload was cancelled while in flight.
var ErrCancelled = errors.New("upload cancelled")

const blobPrefix = "gallery"

// Normalizer turns a selected file into an embeddable image.
type Normalizer interface {
	Normalize(ctx context.Context, file models.FileHandle, profile capability.Profile) (*media.EmbeddableImage, error)
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Store            services.GalleryStore
	Normalizer       Normalizer
	Profiles         *capability.Table
	References       *preview.References
	Blobs            blobstore.Store // nil unless payloads are stored as blobs
	Auditor          services.Auditor
	Now              func() time.Time
	MaxTitleLength   int
	PreviewURLPrefix string
	PreviewMaxSide   int
}

type pendingUpload struct {
	file   models.FileHandle
	title  string
	key    string
	camera bool
}

func (p *pendingUpload) release() {
	if err := p.file.Release(); err != nil {
		logging.Log.Warnf("Failed to release upload %s: %v", p.file.Name(), err)
	}
}

// Controller is the state machine of one upload session. All methods are safe for
// concurrent use.
type Controller struct {
	id       string
	deps     Deps
	renderer *preview.Renderer

	mu         sync.Mutex
	phase      Phase
	profile    *capability.Profile
	pending    *pendingUpload
	images     []models.GalleryImage
	lastErr    *shared.Error
	generation uint64
	inFlight   bool // a Confirm has not returned yet, cancelled or not
	closed     bool
}

// NewController creates an idle controller for session id.
func NewController(id string, deps Deps) *Controller {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MaxTitleLength <= 0 {
		deps.MaxTitleLength = 100
	}
	if deps.Profiles == nil {
		deps.Profiles = capability.NewTable(nil, capability.Desktop)
	}
	if deps.References == nil {
		deps.References = preview.NewReferences(10 * time.Minute)
	}
	if deps.PreviewMaxSide <= 0 {
		deps.PreviewMaxSide = media.PreviewMaxSide
	}
	return &Controller{
		id:       id,
		deps:     deps,
		renderer: preview.NewRenderer(deps.References, deps.PreviewURLPrefix, deps.PreviewMaxSide),
		phase:    PhaseIdle,
		images:   []models.GalleryImage{},
	}
}

// ID returns the session id.
func (c *Controller) ID() string { return c.id }

func (c *Controller) uploadingLocked() bool {
	if c.inFlight {
		return true
	}
	switch c.phase {
	case PhaseNormalizing, PhasePersisting, PhaseReloading:
		return true
	}
	return false
}

// Profile returns the session's capability profile, probing with h on first use.
func (c *Controller) Profile(h capability.Hints) capability.Profile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.profileLocked(h)
}

func (c *Controller) profileLocked(h capability.Hints) capability.Profile {
	if c.profile == nil {
		p := c.deps.Profiles.Select(h)
		c.profile = &p
		logging.Log.WithFields(logrus.Fields{"session": c.id, "profile": p.Name}).Debug("Capability profile selected")
	}
	return *c.profile
}

// Select makes file the pending upload, replacing any previous one. The controller
// takes ownership of file and releases it on every exit path.
func (c *Controller) Select(file models.FileHandle, hints capability.Hints) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		releaseFile(file)
		return c.snapshotLocked(), shared.NewError(shared.ErrInvalidState, "This upload session has ended.")
	}
	if c.uploadingLocked() {
		releaseFile(file)
		return c.snapshotLocked(), shared.NewError(shared.ErrBusy, "An upload is already in progress. Please wait for it to finish.")
	}

	c.discardPendingLocked()
	c.lastErr = nil

	var camera bool
	if file != nil {
		camera = validation.LikelyCameraPhoto(file, c.deps.Now())
		if camera && hints.CameraCapture == nil {
			t := true
			hints.CameraCapture = &t
		}
	}
	profile := c.profileLocked(hints)

	c.phase = PhaseFileSelected
	res := validation.Validate(file, profile)
	if !res.OK {
		releaseFile(file)
		c.failLocked(res.Err)
		return c.snapshotLocked(), res.Err
	}
	c.phase = PhaseValidated

	c.pending = &pendingUpload{
		file:   file,
		title:  validation.DefaultTitle(file.Name(), c.deps.MaxTitleLength),
		key:    validation.FileKey(file),
		camera: camera,
	}
	logging.Log.WithFields(logrus.Fields{
		"session":  c.id,
		"file":     file.Name(),
		"size":     file.Size(),
		"type":     file.ContentType(),
		"file_key": c.pending.key,
		"camera":   camera,
		"profile":  profile.Name,
	}).Info("File selected")

	ch := c.renderer.Render(context.Background(), file, profile)
	go drain(ch)

	c.phase = PhaseAwaitingTitle
	return c.snapshotLocked(), nil
}

// Reject records a selection that failed before a file could be handed to Select,
// such as a body cut off at the request size cap. Like Select, it replaces the
// pending file.
func (c *Controller) Reject(err *shared.Error) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return c.snapshotLocked(), shared.NewError(shared.ErrInvalidState, "This upload session has ended.")
	}
	if c.uploadingLocked() {
		return c.snapshotLocked(), shared.NewError(shared.ErrBusy, "An upload is already in progress. Please wait for it to finish.")
	}
	c.discardPendingLocked()
	c.failLocked(err)
	return c.snapshotLocked(), err
}

// SetTitle updates the working title without confirming.
func (c *Controller) SetTitle(title string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseAwaitingTitle || c.pending == nil {
		return shared.NewError(shared.ErrInvalidState, "There is no upload waiting for a title.")
	}
	c.pending.title = title
	return nil
}

// Confirm normalizes, stores and reloads. Title problems are reported without
// touching the normalizer or the store.
func (c *Controller) Confirm(ctx context.Context, title string) (Snapshot, error) {
	c.mu.Lock()
	if c.uploadingLocked() {
		c.mu.Unlock()
		return c.Snapshot(), shared.NewError(shared.ErrBusy, "An upload is already in progress. Please wait for it to finish.")
	}
	if c.phase != PhaseAwaitingTitle || c.pending == nil {
		c.mu.Unlock()
		return c.Snapshot(), shared.NewError(shared.ErrInvalidState, "There is no upload waiting for confirmation.")
	}

	title = strings.TrimSpace(title)
	if err := checkTitle(title, c.deps.MaxTitleLength); err != nil {
		c.pending.title = title
		c.lastErr = err
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, err
	}

	pending := c.pending
	pending.title = title
	profile := *c.profile
	gen := c.generation
	c.lastErr = nil
	c.phase = PhaseNormalizing
	c.inFlight = true
	c.mu.Unlock()
	defer c.land()

	log := logging.Log.WithFields(logrus.Fields{"session": c.id, "file": pending.file.Name(), "profile": profile.Name})

	img, err := c.deps.Normalizer.Normalize(ctx, pending.file, profile)
	if done, snap, cerr := c.checkpoint(gen, pending, err); done {
		return snap, cerr
	}
	log.WithFields(logrus.Fields{
		"width": img.Width, "height": img.Height, "bytes": len(img.Data),
		"quality": img.Quality, "passthrough": img.Passthrough,
	}).Info("Image normalized")

	now := c.deps.Now()
	uploadKey := ulid.Make().String()

	c.mu.Lock()
	if c.generation != gen {
		c.inFlight = false
		c.mu.Unlock()
		pending.release()
		return c.Snapshot(), ErrCancelled
	}
	c.phase = PhasePersisting
	c.mu.Unlock()

	imageData, blobKey, err := c.payload(ctx, img, now, uploadKey)
	if done, snap, cerr := c.checkpoint(gen, pending, err); done {
		return snap, cerr
	}

	stored, err := c.deps.Store.Insert(ctx, models.NewRecord{
		Title:     title,
		ImageData: imageData,
		DateTaken: now.Format(models.DateLayout),
		TimeTaken: now.Format(models.TimeLayout),
		UploadKey: uploadKey,
	})
	if err != nil && blobKey != "" {
		c.removeBlob(blobKey)
	}
	if done, snap, cerr := c.checkpoint(gen, pending, err); done {
		return snap, cerr
	}

	c.audit(ctx, "image.upload", "Image:"+stored.ID, map[string]interface{}{
		"title":       title,
		"bytes":       len(img.Data),
		"passthrough": img.Passthrough,
		"profile":     profile.Name,
	})

	c.mu.Lock()
	if c.generation != gen {
		c.inFlight = false
		c.mu.Unlock()
		pending.release()
		log.Warn("Upload finished after it was cancelled; result discarded")
		return c.Snapshot(), ErrCancelled
	}
	c.phase = PhaseReloading
	c.mu.Unlock()

	images, listErr := c.deps.Store.List(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false
	if c.generation != gen {
		pending.release()
		return c.snapshotLocked(), ErrCancelled
	}
	if listErr != nil {
		// The upload itself succeeded; show it on top of what we had.
		c.images = append([]models.GalleryImage{stored}, c.images...)
		c.lastErr = asSharedError(listErr)
	} else {
		c.images = images
	}
	c.discardPendingLocked()
	c.phase = PhaseIdle
	log.WithField("id", stored.ID).Info("Upload stored")
	return c.snapshotLocked(), nil
}

// land clears the in-flight mark when Confirm unwinds. Until then a cancelled
// upload still counts as uploading.
func (c *Controller) land() {
	c.mu.Lock()
	c.inFlight = false
	c.mu.Unlock()
}

// checkpoint runs after every suspension point of Confirm. It reports done when the
// upload was cancelled meanwhile or err moved the session into the error phase.
func (c *Controller) checkpoint(gen uint64, pending *pendingUpload, err error) (bool, Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != gen {
		c.inFlight = false
		pending.release()
		return true, c.snapshotLocked(), ErrCancelled
	}
	if err == nil {
		return false, Snapshot{}, nil
	}
	c.inFlight = false
	se := asSharedError(err)
	c.failLocked(se)
	return true, c.snapshotLocked(), se
}

func (c *Controller) payload(ctx context.Context, img *media.EmbeddableImage, now time.Time, id string) (string, string, error) {
	if c.deps.Blobs == nil {
		return img.DataURI(), "", nil
	}
	key, err := storage.ObjectKey(blobPrefix, now, id, extensionFor(img.MIMEType))
	if err != nil {
		return "", "", shared.WrapError(shared.ErrUploadFailed, "Upload failed: could not name the stored image.", err)
	}
	if err := c.deps.Blobs.Put(ctx, key, bytes.NewReader(img.Data), int64(len(img.Data)), img.MIMEType); err != nil {
		return "", "", shared.WrapError(shared.ErrUploadFailed, "Upload failed: could not store the image.", err)
	}
	return blobstore.Ref(key), key, nil
}

func (c *Controller) removeBlob(key string) {
	if c.deps.Blobs == nil {
		return
	}
	if err := c.deps.Blobs.Remove(context.Background(), key); err != nil {
		logging.Log.Warnf("Failed to remove blob %s: %v", key, err)
	}
}

// Cancel abandons the pending upload. An upload that is already normalizing or
// persisting is marked cancelled and its result discarded when it returns; the
// session stays busy until then.
func (c *Controller) Cancel() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.phase {
	case PhaseNormalizing, PhasePersisting, PhaseReloading:
		c.generation++
		// The in-flight Confirm owns the pending upload and releases it.
		c.pending = nil
		c.renderer.Close()
		c.phase = PhaseIdle
		logging.Log.WithField("session", c.id).Info("In-flight upload cancelled")
	case PhaseIdle:
	default:
		c.discardPendingLocked()
		c.lastErr = nil
		c.phase = PhaseIdle
	}
	return c.snapshotLocked()
}

// Dismiss clears a displayed error and, from the error phase, returns to idle.
func (c *Controller) Dismiss() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastErr = nil
	if c.phase == PhaseError {
		c.discardPendingLocked()
		c.phase = PhaseIdle
	}
	return c.snapshotLocked()
}

// Delete removes an image and reloads the gallery.
func (c *Controller) Delete(ctx context.Context, id string) (Snapshot, error) {
	c.mu.Lock()
	var blobKey string
	for _, img := range c.images {
		if img.ID == id {
			blobKey, _ = blobstore.ParseRef(img.ImageData)
			break
		}
	}
	c.mu.Unlock()

	if err := c.deps.Store.Remove(ctx, id); err != nil {
		se := asSharedError(err)
		c.mu.Lock()
		c.lastErr = se
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, se
	}
	if blobKey != "" {
		c.removeBlob(blobKey)
	}
	c.audit(ctx, "image.delete", "Image:"+id, nil)
	return c.Reload(ctx)
}

// Reload refreshes the gallery list. A failed load leaves an empty list.
func (c *Controller) Reload(ctx context.Context) (Snapshot, error) {
	images, err := c.deps.Store.List(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if images == nil {
		images = []models.GalleryImage{}
	}
	c.images = images
	if err != nil {
		se := asSharedError(err)
		c.lastErr = se
		return c.snapshotLocked(), se
	}
	return c.snapshotLocked(), nil
}

// Images returns the last loaded gallery list.
func (c *Controller) Images() []models.GalleryImage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.GalleryImage, len(c.images))
	copy(out, c.images)
	return out
}

// PreviewState returns the latest preview state of the pending upload.
func (c *Controller) PreviewState() (preview.State, error) {
	st, ok := c.renderer.Current()
	if !ok {
		return preview.State{}, shared.NewError(shared.ErrInvalidState, "There is no preview to show.")
	}
	return st, nil
}

// ReportPreviewFailure advances the preview ladder after the client failed to render it.
func (c *Controller) ReportPreviewFailure() (preview.State, error) {
	if err := c.renderer.ReportRenderFailure(); err != nil {
		return preview.State{}, previewError(err)
	}
	return c.PreviewState()
}

// RetryPreview restarts the preview ladder.
func (c *Controller) RetryPreview() (preview.State, error) {
	if err := c.renderer.Retry(); err != nil {
		return preview.State{}, previewError(err)
	}
	return c.PreviewState()
}

// Teardown releases everything the session holds. The controller rejects new
// selections afterwards.
func (c *Controller) Teardown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.generation++
	c.discardPendingLocked()
	c.renderer.Close()
	c.phase = PhaseIdle
	logging.Log.WithField("session", c.id).Debug("Upload session torn down")
}

func (c *Controller) discardPendingLocked() {
	c.renderer.Close()
	if c.pending != nil {
		c.pending.release()
		c.pending = nil
	}
}

func (c *Controller) failLocked(err *shared.Error) {
	c.lastErr = err
	c.phase = PhaseError
	logging.Log.WithFields(logrus.Fields{
		"session": c.id,
		"kind":    err.Kind,
	}).Warnf("Upload failed: %s", err.Message)
}

func (c *Controller) audit(ctx context.Context, action, resource string, details map[string]interface{}) {
	if c.deps.Auditor != nil {
		c.deps.Auditor.Log(ctx, action, c.id, resource, details)
	}
}

func checkTitle(title string, maxLen int) *shared.Error {
	if title == "" {
		return shared.NewError(shared.ErrTitleRequired, "Please enter a title for your photo.")
	}
	if utf8.RuneCountInString(title) > maxLen {
		return shared.NewError(shared.ErrTitleTooLong, fmt.Sprintf("Title must be at most %d characters.", maxLen))
	}
	return nil
}

func asSharedError(err error) *shared.Error {
	if se, ok := shared.AsError(err); ok {
		return se
	}
	return shared.WrapError(shared.ErrUploadFailed, "Something went wrong. Please try again.", err)
}

func previewError(err error) error {
	switch {
	case errors.Is(err, preview.ErrNoPreview):
		return shared.WrapError(shared.ErrInvalidState, "There is no preview to show.", err)
	case errors.Is(err, preview.ErrNotReady):
		return shared.WrapError(shared.ErrInvalidState, "The preview is not ready.", err)
	}
	return err
}

func releaseFile(file models.FileHandle) {
	if file == nil {
		return
	}
	if err := file.Release(); err != nil {
		logging.Log.Warnf("Failed to release upload %s: %v", file.Name(), err)
	}
}

func drain(ch <-chan preview.State) {
	for range ch {
	}
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg", "":
		return "jpg"
	default:
		return strings.TrimPrefix(mimeType, "image/")
	}
}
