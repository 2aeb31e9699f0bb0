package preview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/sirupsen/logrus"

	"photogallery/internal/capability"
	"photogallery/internal/logging"
	"photogallery/internal/media"
	"photogallery/internal/models"
	"photogallery/internal/shared"
)

// Phase of a preview attempt.
type Phase string

const (
	PhaseLoading Phase = "loading"
	PhaseReady   Phase = "ready"
	PhaseError   Phase = "error"
)

// State is one element of the preview stream.
type State struct {
	Phase    Phase                      `json:"phase"`
	URL      string                     `json:"url,omitempty"`
	Strategy capability.PreviewStrategy `json:"strategy,omitempty"`
	Attempt  int                        `json:"attempt"`
	FileName string                     `json:"file_name"`
	FileSize int64                      `json:"file_size"`
	Message  string                     `json:"message,omitempty"`
}

var (
	ErrNoPreview = errors.New("no preview in progress")
	ErrNotReady  = errors.New("preview is not ready")
)

var defaultOrder = []capability.PreviewStrategy{capability.PreviewReference, capability.PreviewInline, capability.PreviewRaster}

const streamBuffer = 64

type artifact struct {
	url     string
	release func()
}

type attempt struct {
	file    models.FileHandle
	profile capability.Profile
	order   []capability.PreviewStrategy
	out     chan State
	ctx     context.Context
	cancel  context.CancelFunc

	idx      int // strategy currently delivered or being acquired
	failures int // render failures reported by the client
	run      int // bumps on every ladder run so stale acquisitions are dropped
	last     State
	art      *artifact
	closed   bool
}

// Renderer owns at most one preview attempt at a time. Starting a new attempt or
// closing the renderer releases everything the previous attempt acquired.
type Renderer struct {
	refs      *References
	urlPrefix string
	maxSide   int

	mu  sync.Mutex
	cur *attempt
}

// NewRenderer creates a Renderer. Reference URLs are built as urlPrefix + token.
func NewRenderer(refs *References, urlPrefix string, maxSide int) *Renderer {
	return &Renderer{refs: refs, urlPrefix: urlPrefix, maxSide: maxSide}
}

// Render starts a preview for file and returns its state stream. The stream is closed
// when the attempt is replaced or the renderer is closed; ctx bounds its lifetime.
func (r *Renderer) Render(ctx context.Context, file models.FileHandle, profile capability.Profile) <-chan State {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.abandonLocked()

	order := profile.PreviewOrder
	if len(order) == 0 {
		order = defaultOrder
	}
	actx, cancel := context.WithCancel(ctx)
	a := &attempt{
		file:    file,
		profile: profile,
		order:   order,
		out:     make(chan State, streamBuffer),
		ctx:     actx,
		cancel:  cancel,
	}
	r.cur = a
	r.startLocked(a, 0)
	return a.out
}

// ReportRenderFailure records that the client could not display the delivered
// preview and advances to the next strategy, or reports an error once the profile's
// retry budget or the ladder is exhausted.
func (r *Renderer) ReportRenderFailure() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a := r.cur
	if a == nil {
		return ErrNoPreview
	}
	if a.last.Phase != PhaseReady {
		return ErrNotReady
	}
	a.failures++
	a.releaseLocked()
	logging.Log.WithFields(logrus.Fields{
		"file":     a.file.Name(),
		"strategy": a.order[a.idx],
		"failures": a.failures,
	}).Warn("Preview failed to render on client")

	if a.failures > a.profile.MaxRetries || a.idx+1 >= len(a.order) {
		a.run++
		a.emitLocked(a.errorState())
		return nil
	}
	r.startLocked(a, a.idx+1)
	return nil
}

// Retry restarts the ladder from the first strategy with a fresh retry budget.
func (r *Renderer) Retry() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a := r.cur
	if a == nil {
		return ErrNoPreview
	}
	a.failures = 0
	r.startLocked(a, 0)
	return nil
}

// Current returns the latest state of the active attempt.
func (r *Renderer) Current() (State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cur == nil {
		return State{}, false
	}
	return r.cur.last, true
}

// Close tears down the active attempt.
func (r *Renderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.abandonLocked()
}

func (r *Renderer) abandonLocked() {
	a := r.cur
	if a == nil {
		return
	}
	a.closed = true
	a.cancel()
	a.releaseLocked()
	close(a.out)
	r.cur = nil
}

func (r *Renderer) startLocked(a *attempt, idx int) {
	a.run++
	a.releaseLocked()
	a.idx = idx
	a.emitLocked(a.state(PhaseLoading, ""))
	go r.acquire(a, a.run, idx)
}

// acquire walks the ladder from idx. A strategy that cannot be acquired falls through
// to the next one without consuming the retry budget.
func (r *Renderer) acquire(a *attempt, run, idx int) {
	for i := idx; i < len(a.order); i++ {
		art, err := r.acquireOne(a.ctx, a.order[i], a.file)

		r.mu.Lock()
		if a.closed || a.run != run {
			r.mu.Unlock()
			if art != nil {
				art.release()
			}
			return
		}
		if err != nil {
			logging.Log.WithFields(logrus.Fields{
				"file":     a.file.Name(),
				"strategy": a.order[i],
			}).Debugf("Preview strategy unavailable: %v", err)
			if i+1 < len(a.order) {
				a.idx = i + 1
				a.emitLocked(a.state(PhaseLoading, ""))
				r.mu.Unlock()
				continue
			}
			a.emitLocked(a.errorState())
			r.mu.Unlock()
			return
		}
		a.idx = i
		a.art = art
		a.emitLocked(a.state(PhaseReady, art.url))
		r.mu.Unlock()
		return
	}

	r.mu.Lock()
	if !a.closed && a.run == run {
		a.emitLocked(a.errorState())
	}
	r.mu.Unlock()
}

func (r *Renderer) acquireOne(ctx context.Context, strategy capability.PreviewStrategy, file models.FileHandle) (*artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch strategy {
	case capability.PreviewReference:
		return r.acquireReference(file)
	case capability.PreviewInline:
		return acquireInline(ctx, file)
	case capability.PreviewRaster:
		return r.acquireRaster(ctx, file)
	default:
		return nil, fmt.Errorf("unknown preview strategy %q", strategy)
	}
}

// acquireReference registers a reference URL after a header-only test decode.
func (r *Renderer) acquireReference(file models.FileHandle) (*artifact, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, err
	}
	_, format, err := image.DecodeConfig(rc)
	rc.Close()
	if err != nil {
		return nil, fmt.Errorf("reference test decode failed: %w", err)
	}

	token := r.refs.Register(Reference{File: file, MIMEType: "image/" + format})
	return &artifact{
		url:     r.urlPrefix + token,
		release: func() { r.refs.Revoke(token) },
	}, nil
}

// acquireInline embeds the original bytes.
func acquireInline(ctx context.Context, file models.FileHandle) (*artifact, error) {
	data, err := media.ReadAll(file)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mimeType, ok := media.SniffImage(data)
	if !ok {
		mimeType = file.ContentType()
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return &artifact{url: media.DataURI(mimeType, data), release: func() {}}, nil
}

// acquireRaster re-exports the decoded image as a fresh JPEG thumbnail.
func (r *Renderer) acquireRaster(ctx context.Context, file models.FileHandle) (*artifact, error) {
	data, err := media.ReadAll(file)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	thumb, _, _, err := media.CreateImagePreview(bytes.NewReader(data), r.maxSide)
	if err != nil {
		return nil, err
	}
	return &artifact{url: media.DataURI(media.OutputMIMEType, thumb), release: func() {}}, nil
}

func (a *attempt) state(phase Phase, url string) State {
	return State{
		Phase:    phase,
		URL:      url,
		Strategy: a.order[a.idx],
		Attempt:  a.failures + 1,
		FileName: a.file.Name(),
		FileSize: a.file.Size(),
	}
}

func (a *attempt) errorState() State {
	s := a.state(PhaseError, "")
	s.Message = fmt.Sprintf("Preview could not be displayed for %s (%s).", a.file.Name(), shared.FormatBytes(a.file.Size()))
	return s
}

func (a *attempt) releaseLocked() {
	if a.art != nil {
		a.art.release()
		a.art = nil
	}
}

// emitLocked records s and offers it to the subscriber without blocking.
func (a *attempt) emitLocked(s State) {
	a.last = s
	if a.closed {
		return
	}
	select {
	case a.out <- s:
	default:
		logging.Log.Warnf("Preview stream for %s is full, dropping %s state", a.file.Name(), s.Phase)
	}
}
