package services_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"photogallery/internal/config"
	"photogallery/internal/media"
	"photogallery/internal/models"
	"photogallery/internal/persistence"
	"photogallery/internal/repository"
	"photogallery/internal/services"
	"photogallery/internal/services/mocks"
	"photogallery/internal/shared"
)

func pngDataURI(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{255, 0, 0, 255})
	buf := new(bytes.Buffer)
	require.NoError(t, png.Encode(buf, img))
	return media.DataURI("image/png", buf.Bytes())
}

func validRecord(t *testing.T, key string) models.NewRecord {
	return models.NewRecord{
		Title:     "Beach day",
		ImageData: pngDataURI(t),
		DateTaken: "2026-10-19",
		TimeTaken: "14:05",
		UploadKey: key,
	}
}

func fastOptions() services.StoreOptions {
	return services.StoreOptions{MaxRetries: 3, BaseDelay: time.Millisecond, MaxTitleLength: 100}
}

func sqliteClient(t *testing.T) *repository.GalleryStore {
	t.Helper()
	repo, err := repository.NewRepository(filepath.Join(t.TempDir(), "gallery.db"))
	require.NoError(t, err)
	require.NoError(t, repo.MigrateUp())
	store := repository.NewGalleryStore(repo)
	t.Cleanup(func() { store.Close() })
	return store
}

// flakyClient performs the insert and then reports a transport failure, the way a
// connection dropped after the server committed would look.
type flakyClient struct {
	persistence.Client
	failures int32
	calls    int32
}

func (f *flakyClient) Insert(ctx context.Context, rec models.NewRecord) (models.Row, error) {
	n := atomic.AddInt32(&f.calls, 1)
	row, err := f.Client.Insert(ctx, rec)
	if err != nil {
		return nil, err
	}
	if n <= f.failures {
		return nil, errors.New("connection reset by peer")
	}
	return row, nil
}

func TestGalleryStore_RetriedInsertDoesNotDuplicate(t *testing.T) {
	client := &flakyClient{Client: sqliteClient(t), failures: 2}
	store := services.NewGalleryStore(client, fastOptions())
	ctx := context.Background()

	img, err := store.Insert(ctx, validRecord(t, "01JABCDEF"))
	require.NoError(t, err)
	assert.Equal(t, "Beach day", img.Title)
	assert.EqualValues(t, 3, atomic.LoadInt32(&client.calls))

	images, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, img.ID, images[0].ID)
	assert.Equal(t, "14:05", images[0].TimeTaken)
}

func TestGalleryStore_InsertRetryPolicy(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCalls int
	}{
		{"Transient Exhausts Retries", &persistence.StatusError{Op: "insert", Status: http.StatusServiceUnavailable, Body: "busy"}, 4},
		{"Permanent Not Retried", &persistence.StatusError{Op: "insert", Status: http.StatusBadRequest, Body: "bad column"}, 1},
		{"Constraint Not Retried", persistence.ErrPermanent, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := new(mocks.MockPersistenceClient)
			client.On("Insert", mock.Anything, mock.Anything).Return(nil, tc.err)

			store := services.NewGalleryStore(client, fastOptions())
			_, err := store.Insert(context.Background(), validRecord(t, "k"))

			require.Error(t, err)
			assert.ErrorIs(t, err, shared.ErrUploadFailed)
			assert.Equal(t, shared.CategoryStore, shared.KindOf(err).Category())
			client.AssertNumberOfCalls(t, "Insert", tc.wantCalls)
		})
	}
}

func TestGalleryStore_ZeroRetriesMakesOneAttempt(t *testing.T) {
	client := new(mocks.MockPersistenceClient)
	client.On("Insert", mock.Anything, mock.Anything).
		Return(nil, &persistence.StatusError{Op: "insert", Status: http.StatusServiceUnavailable, Body: "busy"})

	opts := fastOptions()
	opts.MaxRetries = 0
	store := services.NewGalleryStore(client, opts)
	_, err := store.Insert(context.Background(), validRecord(t, "k"))

	assert.ErrorIs(t, err, shared.ErrUploadFailed)
	client.AssertNumberOfCalls(t, "Insert", 1)
}

func TestGalleryStore_InsertCarriesLastMessage(t *testing.T) {
	client := new(mocks.MockPersistenceClient)
	client.On("Insert", mock.Anything, mock.Anything).
		Return(nil, &persistence.StatusError{Op: "insert", Status: http.StatusBadGateway, Body: "first"}).Once()
	client.On("Insert", mock.Anything, mock.Anything).
		Return(nil, &persistence.StatusError{Op: "insert", Status: http.StatusForbidden, Body: "row level security"}).Once()

	store := services.NewGalleryStore(client, fastOptions())
	_, err := store.Insert(context.Background(), validRecord(t, "k"))

	require.Error(t, err)
	e, ok := shared.AsError(err)
	require.True(t, ok)
	assert.Contains(t, e.Message, "row level security")
	client.AssertNumberOfCalls(t, "Insert", 2)
}

func TestGalleryStore_InsertValidatesBeforeCalling(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.NewRecord)
		kind   shared.Kind
	}{
		{"Empty Title", func(r *models.NewRecord) { r.Title = "   " }, shared.ErrTitleRequired},
		{"Long Title", func(r *models.NewRecord) { r.Title = string(bytes.Repeat([]byte("é"), 101)) }, shared.ErrTitleTooLong},
		{"Missing Date", func(r *models.NewRecord) { r.DateTaken = "" }, shared.ErrInvalidRecord},
		{"Bad Date", func(r *models.NewRecord) { r.DateTaken = "19/10/2026" }, shared.ErrInvalidRecord},
		{"Missing Payload", func(r *models.NewRecord) { r.ImageData = "" }, shared.ErrInvalidRecord},
		{"Path Payload", func(r *models.NewRecord) { r.ImageData = "/tmp/beach.jpg" }, shared.ErrInvalidRecord},
		{"Undecodable Payload", func(r *models.NewRecord) { r.ImageData = media.DataURI("image/png", []byte("nope")) }, shared.ErrInvalidRecord},
		{"Bad Blob Ref", func(r *models.NewRecord) { r.ImageData = "blob:../x" }, shared.ErrInvalidRecord},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := new(mocks.MockPersistenceClient)
			store := services.NewGalleryStore(client, fastOptions())

			rec := validRecord(t, "k")
			tc.mutate(&rec)
			_, err := store.Insert(context.Background(), rec)

			assert.ErrorIs(t, err, tc.kind)
			assert.Equal(t, shared.CategoryValidation, shared.KindOf(err).Category())
			client.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
		})
	}
}

func TestGalleryStore_BlobReferenceAccepted(t *testing.T) {
	store := services.NewGalleryStore(sqliteClient(t), fastOptions())
	rec := validRecord(t, "k")
	rec.ImageData = "blob:gallery/2026/10/01JABC.jpg"

	img, err := store.Insert(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, rec.ImageData, img.ImageData)
}

func TestGalleryStore_NotConfigured(t *testing.T) {
	store := services.NewGalleryStore(persistence.NewDisabled("test"), fastOptions())
	ctx := context.Background()

	_, err := store.Insert(ctx, validRecord(t, "k"))
	assert.ErrorIs(t, err, shared.ErrNotConfigured)

	images, err := store.List(ctx)
	assert.ErrorIs(t, err, shared.ErrNotConfigured)
	assert.NotNil(t, images)
	assert.Empty(t, images)

	assert.ErrorIs(t, store.Remove(ctx, "1"), shared.ErrNotConfigured)
}

func TestGalleryStore_List(t *testing.T) {
	t.Run("Maps And Skips Malformed Rows", func(t *testing.T) {
		client := new(mocks.MockPersistenceClient)
		client.On("Select", mock.Anything).Return([]models.Row{
			{"id": "2", "title": "B", "image_data": "data:image/png;base64,AA==", "date_taken": "2026-10-19", "uploaded_at": "2026-10-19T10:00:00Z"},
			{"id": "3", "title": "", "image_data": "data:image/png;base64,AA==", "date_taken": "2026-10-19"},
			{"id": "1", "title": "A", "image_data": "data:image/png;base64,AA==", "date_taken": "2026-10-18", "uploaded_at": "2026-10-18 09:00:00"},
		}, nil)

		store := services.NewGalleryStore(client, fastOptions())
		images, err := store.List(context.Background())
		require.NoError(t, err)
		require.Len(t, images, 2)
		assert.Equal(t, "2", images[0].ID)
		assert.Equal(t, 2026, images[0].UploadedAt.Year())
		assert.Equal(t, "1", images[1].ID)
	})

	t.Run("Error Yields Empty List", func(t *testing.T) {
		client := new(mocks.MockPersistenceClient)
		client.On("Select", mock.Anything).Return(nil, errors.New("dial tcp: connection refused"))

		store := services.NewGalleryStore(client, fastOptions())
		images, err := store.List(context.Background())
		assert.ErrorIs(t, err, shared.ErrLoadFailed)
		assert.NotNil(t, images)
		assert.Empty(t, images)

		e, _ := shared.AsError(err)
		assert.Contains(t, e.Message, "could not reach")
	})

	t.Run("Cancelled Caller Does Not Fail Joined Callers", func(t *testing.T) {
		started := make(chan context.Context, 1)
		release := make(chan struct{})
		var first sync.Once
		client := new(mocks.MockPersistenceClient)
		client.On("Select", mock.Anything).
			Run(func(args mock.Arguments) {
				first.Do(func() {
					started <- args.Get(0).(context.Context)
					<-release
				})
			}).
			Return([]models.Row{
				{"id": "1", "title": "A", "image_data": "data:image/png;base64,AA==", "date_taken": "2026-10-18"},
			}, nil)

		store := services.NewGalleryStore(client, fastOptions())

		firstCtx, cancelFirst := context.WithCancel(context.Background())
		firstErr := make(chan error, 1)
		go func() {
			_, err := store.List(firstCtx)
			firstErr <- err
		}()
		queryCtx := <-started

		type result struct {
			images []models.GalleryImage
			err    error
		}
		joined := make(chan result, 1)
		go func() {
			images, err := store.List(context.Background())
			joined <- result{images, err}
		}()

		cancelFirst()
		assert.ErrorIs(t, <-firstErr, shared.ErrLoadFailed)
		assert.NoError(t, queryCtx.Err(), "the shared query outlives the caller that started it")

		close(release)
		got := <-joined
		require.NoError(t, got.err)
		require.Len(t, got.images, 1)
		assert.Equal(t, "1", got.images[0].ID)
	})

	t.Run("Idempotent", func(t *testing.T) {
		store := services.NewGalleryStore(sqliteClient(t), fastOptions())
		ctx := context.Background()
		_, err := store.Insert(ctx, validRecord(t, "a"))
		require.NoError(t, err)

		first, err := store.List(ctx)
		require.NoError(t, err)
		second, err := store.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})
}

func TestGalleryStore_Remove(t *testing.T) {
	t.Run("Unknown Id Is NoOp", func(t *testing.T) {
		store := services.NewGalleryStore(sqliteClient(t), fastOptions())
		assert.NoError(t, store.Remove(context.Background(), "99"))
	})

	t.Run("Failure Is Not Retried", func(t *testing.T) {
		client := new(mocks.MockPersistenceClient)
		client.On("Delete", mock.Anything, "5").Return(false, &persistence.StatusError{Op: "delete", Status: http.StatusServiceUnavailable})

		store := services.NewGalleryStore(client, fastOptions())
		err := store.Remove(context.Background(), "5")
		assert.ErrorIs(t, err, shared.ErrDeleteFailed)
		client.AssertNumberOfCalls(t, "Delete", 1)
	})

	t.Run("Removes Existing", func(t *testing.T) {
		store := services.NewGalleryStore(sqliteClient(t), fastOptions())
		ctx := context.Background()
		img, err := store.Insert(ctx, validRecord(t, "a"))
		require.NoError(t, err)

		require.NoError(t, store.Remove(ctx, img.ID))
		images, err := store.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, images)
	})
}

func TestHeartbeatService_Touch(t *testing.T) {
	client := new(mocks.MockPersistenceClient)
	client.On("Heartbeat", mock.Anything).Return(models.HeartbeatResult{Status: http.StatusNoContent}, nil)

	res, err := services.NewHeartbeatService(client).Touch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, res.Status)
	assert.Equal(t, "ok", res.Body)

	client = new(mocks.MockPersistenceClient)
	client.On("Heartbeat", mock.Anything).Return(models.HeartbeatResult{Status: http.StatusOK, Body: " \n", ContentType: "application/json"}, nil)

	res, err = services.NewHeartbeatService(client).Touch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, " \n", res.Body, "whitespace bodies are relayed unchanged")
	assert.Equal(t, "application/json", res.ContentType)

	_, err = services.NewHeartbeatService(persistence.NewDisabled("")).Touch(context.Background())
	assert.ErrorIs(t, err, shared.ErrNotConfigured)
}

func TestNewPersistenceClient(t *testing.T) {
	tests := []struct {
		name   string
		cfg    config.PersistenceConfig
		driver string
	}{
		{"No Driver", config.PersistenceConfig{}, "disabled"},
		{"Supabase Missing Key", config.PersistenceConfig{Driver: config.DriverSupabase, URL: "https://x.supabase.co"}, "disabled"},
		{"Supabase", config.PersistenceConfig{Driver: config.DriverSupabase, URL: "https://x.supabase.co", AnonKey: "k"}, "supabase"},
		{"SQLite", config.PersistenceConfig{Driver: config.DriverSQLite, DatabasePath: filepath.Join(t.TempDir(), "g.db")}, "sqlite"},
		{"SQLite Missing Path", config.PersistenceConfig{Driver: config.DriverSQLite}, "disabled"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &config.Config{Persistence: tc.cfg}
			require.NoError(t, cfg.ParseAndValidate())

			client := services.NewPersistenceClient(cfg)
			defer client.Close()
			assert.Equal(t, tc.driver, client.Driver())
		})
	}
}
