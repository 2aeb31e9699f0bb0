// filepath: internal/services/gallery_store.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"photogallery/internal/blobstore"
	"photogallery/internal/logging"
	"photogallery/internal/media"
	"photogallery/internal/models"
	"photogallery/internal/persistence"
	"photogallery/internal/shared"
)

// StoreOptions configures the insert retry policy.
type StoreOptions struct {
	MaxRetries     int
	BaseDelay      time.Duration
	MaxTitleLength int
}

// listTimeout bounds the shared gallery query.
const listTimeout = 30 * time.Second

var _ GalleryStore = (*galleryStore)(nil)

type galleryStore struct {
	client persistence.Client
	opts   StoreOptions
	group  singleflight.Group
}

// NewGalleryStore wraps a persistence client with record validation, insert retries
// and row mapping.
func NewGalleryStore(client persistence.Client, opts StoreOptions) *galleryStore {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.MaxTitleLength <= 0 {
		opts.MaxTitleLength = 100
	}
	return &galleryStore{client: client, opts: opts}
}

// Insert validates rec and stores it, retrying transient failures with a growing delay.
func (s *galleryStore) Insert(ctx context.Context, rec models.NewRecord) (models.GalleryImage, error) {
	if err := ValidateRecord(rec, s.opts.MaxTitleLength); err != nil {
		return models.GalleryImage{}, err
	}

	var (
		row     models.Row
		lastErr error
		attempt int
	)
	backoff := retry.WithMaxRetries(uint64(s.opts.MaxRetries), retry.NewFibonacci(s.opts.BaseDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		r, err := s.client.Insert(ctx, rec)
		if err != nil {
			lastErr = err
			if persistence.IsTransient(err) {
				logging.Log.WithFields(logrus.Fields{
					"attempt":    attempt,
					"upload_key": rec.UploadKey,
				}).Warnf("Gallery insert failed, retrying: %v", err)
				return retry.RetryableError(err)
			}
			return err
		}
		row = r
		return nil
	})
	if err != nil {
		if lastErr == nil {
			lastErr = err
		}
		if notConfigured(lastErr) {
			return models.GalleryImage{}, lastErr
		}
		logging.Log.WithField("attempts", attempt).Errorf("Gallery insert failed: %v", lastErr)
		return models.GalleryImage{}, shared.WrapError(shared.ErrUploadFailed, friendlyStoreMessage("Upload failed", lastErr), lastErr)
	}

	img, ok := RowToImage(row)
	if !ok {
		// The backend accepted the row but echoed something unusable; fall back to
		// what was sent.
		img = models.GalleryImage{
			ID:         fmt.Sprint(row[models.ColumnID]),
			Title:      rec.Title,
			ImageData:  rec.ImageData,
			DateTaken:  rec.DateTaken,
			TimeTaken:  rec.TimeTaken,
			UploadedAt: time.Now().UTC(),
		}
	}
	return img, nil
}

// Remove deletes one record. Unknown ids are a no-op.
func (s *galleryStore) Remove(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return shared.NewError(shared.ErrInvalidRecord, "Image id is required.")
	}
	deleted, err := s.client.Delete(ctx, id)
	if err != nil {
		if notConfigured(err) {
			return err
		}
		return shared.WrapError(shared.ErrDeleteFailed, friendlyStoreMessage("Delete failed", err), err)
	}
	if !deleted {
		logging.Log.Debugf("Delete of unknown image %s ignored", id)
	}
	return nil
}

// List returns all records newest first. Concurrent calls share one backend query,
// which runs detached from any one caller so that a caller going away does not fail
// the others. A caller whose context ends stops waiting.
func (s *galleryStore) List(ctx context.Context) ([]models.GalleryImage, error) {
	ch := s.group.DoChan("list", func() (interface{}, error) {
		qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), listTimeout)
		defer cancel()
		rows, err := s.client.Select(qctx)
		if err != nil {
			return nil, err
		}
		images := make([]models.GalleryImage, 0, len(rows))
		for _, row := range rows {
			img, ok := RowToImage(row)
			if !ok {
				logging.Log.WithField("id", row[models.ColumnID]).Warn("Skipping malformed gallery row")
				continue
			}
			images = append(images, img)
		}
		return images, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return []models.GalleryImage{}, shared.WrapError(shared.ErrLoadFailed, "Loading the gallery was interrupted.", ctx.Err())
	}
	v, err := res.Val, res.Err
	if err != nil {
		if notConfigured(err) {
			return []models.GalleryImage{}, err
		}
		return []models.GalleryImage{}, shared.WrapError(shared.ErrLoadFailed, friendlyStoreMessage("Could not load the gallery", err), err)
	}

	// Callers may sort or trim their copy.
	images := v.([]models.GalleryImage)
	out := make([]models.GalleryImage, len(images))
	copy(out, images)
	return out, nil
}

// ValidateRecord checks the fields every stored record must carry.
func ValidateRecord(rec models.NewRecord, maxTitle int) error {
	title := strings.TrimSpace(rec.Title)
	if title == "" {
		return shared.NewError(shared.ErrTitleRequired, "A title is required.")
	}
	if utf8.RuneCountInString(title) > maxTitle {
		return shared.NewError(shared.ErrTitleTooLong, fmt.Sprintf("Title must be at most %d characters.", maxTitle))
	}
	if rec.DateTaken == "" {
		return shared.NewError(shared.ErrInvalidRecord, "Capture date is required.")
	}
	if _, err := time.Parse(models.DateLayout, rec.DateTaken); err != nil {
		return shared.WrapError(shared.ErrInvalidRecord, "Capture date must be YYYY-MM-DD.", err)
	}
	if rec.ImageData == "" {
		return shared.NewError(shared.ErrInvalidRecord, "Image data is required.")
	}
	if strings.HasPrefix(rec.ImageData, blobstore.RefPrefix) {
		if _, ok := blobstore.ParseRef(rec.ImageData); !ok {
			return shared.NewError(shared.ErrInvalidRecord, "Image reference is invalid.")
		}
		return nil
	}
	_, data, err := media.ParseDataURI(rec.ImageData)
	if err != nil {
		return shared.WrapError(shared.ErrInvalidRecord, "Image data must be an embedded image.", err)
	}
	if _, _, _, err := media.CheckDecodable(data); err != nil {
		return shared.WrapError(shared.ErrInvalidRecord, "Image data does not decode as an image.", err)
	}
	return nil
}

// RowToImage maps a backend row into a GalleryImage. Rows missing an id, title,
// payload or capture date are rejected.
func RowToImage(row models.Row) (models.GalleryImage, bool) {
	if row == nil {
		return models.GalleryImage{}, false
	}
	img := models.GalleryImage{
		ID:        idString(row[models.ColumnID]),
		Title:     stringField(row, models.ColumnTitle),
		ImageData: stringField(row, models.ColumnImageData),
		DateTaken: stringField(row, models.ColumnDateTaken),
		TimeTaken: stringField(row, models.ColumnTimeTaken),
	}
	if img.ID == "" || img.Title == "" || img.ImageData == "" || img.DateTaken == "" {
		return models.GalleryImage{}, false
	}
	img.UploadedAt = parseTimestamp(row[models.ColumnUploadedAt])
	return img, true
}

func idString(v interface{}) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case json.Number:
		return id.String()
	case int64:
		return strconv.FormatInt(id, 10)
	case int:
		return strconv.Itoa(id)
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return fmt.Sprint(id)
	}
}

func stringField(row models.Row, key string) string {
	if s, ok := row[key].(string); ok {
		return s
	}
	return ""
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02 15:04:05",
}

func parseTimestamp(v interface{}) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case string:
		for _, layout := range timestampLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed.UTC()
			}
		}
	}
	return time.Time{}
}
