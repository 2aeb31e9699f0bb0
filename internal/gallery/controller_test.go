package gallery

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"photogallery/internal/blobstore"
	"photogallery/internal/capability"
	"photogallery/internal/media"
	"photogallery/internal/models"
	"photogallery/internal/services/mocks"
	"photogallery/internal/shared"
)

var testNow = time.Date(2026, 10, 19, 14, 5, 0, 0, time.UTC)

// testFile is a FileHandle whose reported size can differ from its content.
type testFile struct {
	name, contentType string
	data              []byte
	size              int64
	released          atomic.Int32
}

func newTestFile(name, contentType string, data []byte) *testFile {
	return &testFile{name: name, contentType: contentType, data: data, size: int64(len(data))}
}

func (f *testFile) Name() string        { return f.name }
func (f *testFile) Size() int64         { return f.size }
func (f *testFile) ContentType() string { return f.contentType }
func (f *testFile) ModTime() time.Time  { return testNow.Add(-time.Hour) }
func (f *testFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.data)), nil
}
func (f *testFile) Release() error {
	f.released.Add(1)
	return nil
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 200, 255})
		}
	}
	buf := new(bytes.Buffer)
	require.NoError(t, jpeg.Encode(buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

// stubNormalizer returns a fixed image, optionally blocking until released.
type stubNormalizer struct {
	calls   atomic.Int32
	gate    chan struct{}
	started chan struct{}
	result  *media.EmbeddableImage
	err     error
}

func (n *stubNormalizer) Normalize(ctx context.Context, file models.FileHandle, profile capability.Profile) (*media.EmbeddableImage, error) {
	n.calls.Add(1)
	if n.started != nil {
		close(n.started)
	}
	if n.gate != nil {
		<-n.gate
	}
	return n.result, n.err
}

type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memBlobs) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memBlobs) Get(ctx context.Context, key string) (*blobstore.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return &blobstore.Object{ReadCloser: io.NopCloser(bytes.NewReader(data)), Size: int64(len(data))}, nil
}

func (m *memBlobs) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func newTestController(store *mocks.MockGalleryStore, norm Normalizer) *Controller {
	return NewController("session-1", Deps{
		Store:            store,
		Normalizer:       norm,
		Profiles:         capability.NewTable(nil, capability.Desktop),
		Now:              func() time.Time { return testNow },
		MaxTitleLength:   100,
		PreviewURLPrefix: "/api/previews/",
	})
}

func desktopHints() capability.Hints {
	f := false
	return capability.Hints{Mobile: &f}
}

func TestController_BeachPhotoEndToEnd(t *testing.T) {
	store := new(mocks.MockGalleryStore)
	ctrl := newTestController(store, media.NewNormalizer(media.Options{PassthroughBytes: -1}))
	defer ctrl.Teardown()

	file := newTestFile("beach.jpg", "image/jpeg", jpegBytes(t, 1800, 1350))

	snap, err := ctrl.Select(file, desktopHints())
	require.NoError(t, err)
	assert.Equal(t, PhaseAwaitingTitle, snap.Phase)
	require.NotNil(t, snap.Pending)
	assert.Equal(t, "beach", snap.Pending.Title)
	assert.Equal(t, capability.Desktop, snap.Profile.Name)

	var captured models.NewRecord
	stored := models.GalleryImage{ID: "42", Title: "Beach day", DateTaken: "2026-10-19", TimeTaken: "14:05", UploadedAt: testNow}
	store.On("Insert", mock.Anything, mock.AnythingOfType("models.NewRecord")).
		Run(func(args mock.Arguments) { captured = args.Get(1).(models.NewRecord) }).
		Return(stored, nil).Once()
	store.On("List", mock.Anything).Return([]models.GalleryImage{stored}, nil).Once()

	snap, err = ctrl.Confirm(context.Background(), "  Beach day ")
	require.NoError(t, err)

	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Nil(t, snap.Pending)
	require.Len(t, snap.Images, 1)
	assert.Equal(t, "42", snap.Images[0].ID)

	assert.Equal(t, "Beach day", captured.Title)
	assert.Equal(t, "2026-10-19", captured.DateTaken)
	assert.Equal(t, "14:05", captured.TimeTaken)
	assert.NotEmpty(t, captured.UploadKey)
	require.True(t, strings.HasPrefix(captured.ImageData, "data:image/jpeg;base64,"))

	_, data, err := media.ParseDataURI(captured.ImageData)
	require.NoError(t, err)
	w, h, _, err := media.CheckDecodable(data)
	require.NoError(t, err)
	assert.Equal(t, 1500, w)
	assert.Equal(t, 1125, h)

	assert.EqualValues(t, 1, file.released.Load())
	store.AssertExpectations(t)
}

func TestController_TooLargeFile(t *testing.T) {
	store := new(mocks.MockGalleryStore)
	norm := &stubNormalizer{}
	ctrl := newTestController(store, norm)
	defer ctrl.Teardown()

	file := newTestFile("big.png", "image/png", []byte("x"))
	file.size = 12 << 20

	snap, err := ctrl.Select(file, desktopHints())
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrTooLarge)
	assert.Equal(t, PhaseError, snap.Phase)
	require.NotNil(t, snap.Error)
	assert.Equal(t, shared.CategoryValidation, snap.Error.Category)
	assert.EqualValues(t, 10<<20, snap.Error.Limit)
	assert.EqualValues(t, 1, file.released.Load())

	snap = ctrl.Dismiss()
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Nil(t, snap.Error)

	assert.Zero(t, norm.calls.Load())
	store.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestController_TitleValidation(t *testing.T) {
	tests := []struct {
		name  string
		title string
		kind  shared.Kind
	}{
		{"Empty", "   ", shared.ErrTitleRequired},
		{"Too Long", strings.Repeat("a", 101), shared.ErrTitleTooLong},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := new(mocks.MockGalleryStore)
			norm := &stubNormalizer{}
			ctrl := newTestController(store, norm)
			defer ctrl.Teardown()

			_, err := ctrl.Select(newTestFile("beach.jpg", "image/jpeg", jpegBytes(t, 20, 20)), desktopHints())
			require.NoError(t, err)

			snap, err := ctrl.Confirm(context.Background(), tc.title)
			assert.ErrorIs(t, err, tc.kind)
			assert.Equal(t, PhaseAwaitingTitle, snap.Phase, "the user can fix the title")
			require.NotNil(t, snap.Error)
			assert.Equal(t, shared.CategoryValidation, snap.Error.Category)

			assert.Zero(t, norm.calls.Load())
			store.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
		})
	}
}

func TestController_BusyAndCancelDuringNormalize(t *testing.T) {
	store := new(mocks.MockGalleryStore)
	norm := &stubNormalizer{
		gate:    make(chan struct{}),
		started: make(chan struct{}),
		result:  &media.EmbeddableImage{MIMEType: "image/jpeg", Data: jpegBytes(t, 10, 10), Width: 10, Height: 10},
	}
	ctrl := newTestController(store, norm)
	defer ctrl.Teardown()

	first := newTestFile("one.jpg", "image/jpeg", jpegBytes(t, 10, 10))
	_, err := ctrl.Select(first, desktopHints())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := ctrl.Confirm(context.Background(), "One")
		done <- err
	}()
	<-norm.started
	assert.Equal(t, PhaseNormalizing, ctrl.Snapshot().Phase)

	second := newTestFile("two.jpg", "image/jpeg", jpegBytes(t, 10, 10))
	_, err = ctrl.Select(second, desktopHints())
	assert.ErrorIs(t, err, shared.ErrBusy)
	assert.EqualValues(t, 1, second.released.Load(), "rejected selection is released")

	snap := ctrl.Cancel()
	assert.Equal(t, PhaseIdle, snap.Phase)

	close(norm.gate)
	assert.ErrorIs(t, <-done, ErrCancelled)
	assert.Equal(t, PhaseIdle, ctrl.Snapshot().Phase)
	assert.GreaterOrEqual(t, first.released.Load(), int32(1))
	store.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestController_CancelledUploadStaysBusyUntilItReturns(t *testing.T) {
	store := new(mocks.MockGalleryStore)
	inserting := make(chan struct{})
	unblock := make(chan struct{})
	store.On("Insert", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		close(inserting)
		<-unblock
	}).Return(models.GalleryImage{ID: "1", Title: "One"}, nil).Once()
	norm := &stubNormalizer{
		result: &media.EmbeddableImage{MIMEType: "image/jpeg", Data: jpegBytes(t, 10, 10), Width: 10, Height: 10},
	}
	ctrl := newTestController(store, norm)
	defer ctrl.Teardown()

	_, err := ctrl.Select(newTestFile("one.jpg", "image/jpeg", jpegBytes(t, 10, 10)), desktopHints())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := ctrl.Confirm(context.Background(), "One")
		done <- err
	}()
	<-inserting

	snap := ctrl.Cancel()
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.True(t, snap.Uploading, "the cancelled insert is still running")

	second := newTestFile("two.jpg", "image/jpeg", jpegBytes(t, 10, 10))
	_, err = ctrl.Select(second, desktopHints())
	assert.ErrorIs(t, err, shared.ErrBusy)
	assert.EqualValues(t, 1, second.released.Load())
	_, err = ctrl.Confirm(context.Background(), "Two")
	assert.ErrorIs(t, err, shared.ErrBusy)

	close(unblock)
	assert.ErrorIs(t, <-done, ErrCancelled)
	assert.False(t, ctrl.Snapshot().Uploading)
	store.AssertNumberOfCalls(t, "Insert", 1)
	assert.EqualValues(t, 1, norm.calls.Load())

	_, err = ctrl.Select(newTestFile("three.jpg", "image/jpeg", jpegBytes(t, 10, 10)), desktopHints())
	assert.NoError(t, err, "the session accepts uploads again")
}

func TestController_CancelFromAwaitingTitle(t *testing.T) {
	ctrl := newTestController(new(mocks.MockGalleryStore), &stubNormalizer{})
	defer ctrl.Teardown()

	file := newTestFile("x.jpg", "image/jpeg", jpegBytes(t, 10, 10))
	_, err := ctrl.Select(file, desktopHints())
	require.NoError(t, err)

	snap := ctrl.Cancel()
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Nil(t, snap.Pending)
	assert.EqualValues(t, 1, file.released.Load())

	_, err = ctrl.Confirm(context.Background(), "x")
	assert.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestController_StoreFailureThenDismiss(t *testing.T) {
	store := new(mocks.MockGalleryStore)
	norm := &stubNormalizer{result: &media.EmbeddableImage{MIMEType: "image/jpeg", Data: jpegBytes(t, 10, 10)}}
	ctrl := newTestController(store, norm)
	defer ctrl.Teardown()

	file := newTestFile("x.jpg", "image/jpeg", jpegBytes(t, 10, 10))
	_, err := ctrl.Select(file, desktopHints())
	require.NoError(t, err)

	store.On("Insert", mock.Anything, mock.Anything).
		Return(models.GalleryImage{}, shared.NewError(shared.ErrUploadFailed, "Upload failed: upstream down"))

	snap, err := ctrl.Confirm(context.Background(), "x")
	assert.ErrorIs(t, err, shared.ErrUploadFailed)
	assert.Equal(t, PhaseError, snap.Phase)
	assert.Equal(t, "Upload failed: upstream down", snap.Error.Message)
	assert.Zero(t, file.released.Load(), "pending upload survives until dismissed")

	snap = ctrl.Dismiss()
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.EqualValues(t, 1, file.released.Load())
}

func TestController_NewSelectionReplacesPending(t *testing.T) {
	ctrl := newTestController(new(mocks.MockGalleryStore), &stubNormalizer{})
	defer ctrl.Teardown()

	first := newTestFile("first.jpg", "image/jpeg", jpegBytes(t, 10, 10))
	second := newTestFile("second.jpg", "image/jpeg", jpegBytes(t, 10, 10))

	_, err := ctrl.Select(first, desktopHints())
	require.NoError(t, err)
	snap, err := ctrl.Select(second, desktopHints())
	require.NoError(t, err)

	assert.EqualValues(t, 1, first.released.Load())
	assert.Equal(t, "second", snap.Pending.Title)
}

func TestController_BlobPayload(t *testing.T) {
	store := new(mocks.MockGalleryStore)
	blobs := &memBlobs{objects: map[string][]byte{}}
	norm := &stubNormalizer{result: &media.EmbeddableImage{MIMEType: "image/jpeg", Data: jpegBytes(t, 10, 10)}}

	ctrl := NewController("s", Deps{
		Store:      store,
		Normalizer: norm,
		Blobs:      blobs,
		Now:        func() time.Time { return testNow },
	})
	defer ctrl.Teardown()

	_, err := ctrl.Select(newTestFile("x.jpg", "image/jpeg", jpegBytes(t, 10, 10)), desktopHints())
	require.NoError(t, err)

	var captured models.NewRecord
	store.On("Insert", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).(models.NewRecord) }).
		Return(models.GalleryImage{ID: "1"}, nil)
	store.On("List", mock.Anything).Return([]models.GalleryImage{}, nil)

	_, err = ctrl.Confirm(context.Background(), "x")
	require.NoError(t, err)

	key, ok := blobstore.ParseRef(captured.ImageData)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(key, "gallery/2026/10/"))
	assert.Contains(t, blobs.objects, key)
}

func TestController_DeleteAndReload(t *testing.T) {
	store := new(mocks.MockGalleryStore)
	ctrl := newTestController(store, &stubNormalizer{})
	defer ctrl.Teardown()

	store.On("List", mock.Anything).Return([]models.GalleryImage{{ID: "1"}, {ID: "2"}}, nil).Once()
	snap, err := ctrl.Reload(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Images, 2)

	store.On("Remove", mock.Anything, "1").Return(nil).Once()
	store.On("List", mock.Anything).Return([]models.GalleryImage{{ID: "2"}}, nil).Once()
	snap, err = ctrl.Delete(context.Background(), "1")
	require.NoError(t, err)
	require.Len(t, snap.Images, 1)
	assert.Equal(t, "2", snap.Images[0].ID)

	store.On("Remove", mock.Anything, "2").Return(shared.NewError(shared.ErrDeleteFailed, "Delete failed")).Once()
	snap, err = ctrl.Delete(context.Background(), "2")
	assert.ErrorIs(t, err, shared.ErrDeleteFailed)
	assert.Len(t, snap.Images, 1, "list is kept when the delete fails")

	store.On("List", mock.Anything).Return([]models.GalleryImage{}, shared.NewError(shared.ErrLoadFailed, "Could not load the gallery")).Once()
	snap, err = ctrl.Reload(context.Background())
	assert.ErrorIs(t, err, shared.ErrLoadFailed)
	assert.Empty(t, snap.Images)
	store.AssertExpectations(t)
}

func TestController_TeardownReleasesPending(t *testing.T) {
	ctrl := newTestController(new(mocks.MockGalleryStore), &stubNormalizer{})
	file := newTestFile("x.jpg", "image/jpeg", jpegBytes(t, 10, 10))
	_, err := ctrl.Select(file, desktopHints())
	require.NoError(t, err)

	ctrl.Teardown()
	assert.EqualValues(t, 1, file.released.Load())

	again := newTestFile("y.jpg", "image/jpeg", jpegBytes(t, 10, 10))
	_, err = ctrl.Select(again, desktopHints())
	assert.ErrorIs(t, err, shared.ErrInvalidState)
	assert.EqualValues(t, 1, again.released.Load())
}

func TestSessions(t *testing.T) {
	sessions := NewSessions(Deps{Store: new(mocks.MockGalleryStore), Normalizer: &stubNormalizer{}}, 50*time.Millisecond)
	defer sessions.Close()

	ctrl, created := sessions.GetOrCreate("")
	require.True(t, created)
	assert.NotEmpty(t, ctrl.ID())

	same, created := sessions.GetOrCreate(ctrl.ID())
	assert.False(t, created)
	assert.Same(t, ctrl, same)

	_, ok := sessions.Get("unknown")
	assert.False(t, ok)

	file := newTestFile("x.jpg", "image/jpeg", jpegBytes(t, 10, 10))
	_, err := ctrl.Select(file, desktopHints())
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return file.released.Load() == 1
	}, 2*time.Second, 10*time.Millisecond, "expired session releases its pending upload")
	assert.Equal(t, 0, sessions.Len())
}
