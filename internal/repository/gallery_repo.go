package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/mattn/go-sqlite3"

	"photogallery/internal/logging"
	"photogallery/internal/models"
	"photogallery/internal/persistence"
)

const (
	galleryTable   = "gallery_images"
	heartbeatTable = "heartbeat"

	// Fixed-width so lexical order matches chronological order.
	timestampLayout = "2006-01-02T15:04:05.000000Z"
)

// GalleryStore implements persistence.Client on top of a Repository.
type GalleryStore struct {
	repo *Repository
	now  func() time.Time
}

var _ persistence.Client = (*GalleryStore)(nil)

// NewGalleryStore creates the SQLite-backed gallery client.
func NewGalleryStore(repo *Repository) *GalleryStore {
	return &GalleryStore{repo: repo, now: time.Now}
}

func (g *GalleryStore) Driver() string { return "sqlite" }

func (g *GalleryStore) Close() error { return g.repo.Close() }

// Insert stores rec. A repeated upload key returns the row stored the first time.
func (g *GalleryStore) Insert(ctx context.Context, rec models.NewRecord) (models.Row, error) {
	var uploadKey interface{}
	if rec.UploadKey != "" {
		uploadKey = rec.UploadKey
	}

	query := g.repo.Builder.Insert(galleryTable).
		Columns(
			models.ColumnTitle, models.ColumnImageData, models.ColumnDateTaken,
			models.ColumnTimeTaken, models.ColumnUploadKey, models.ColumnUploadedAt,
		).
		Values(rec.Title, rec.ImageData, rec.DateTaken, rec.TimeTaken, uploadKey, g.now().UTC().Format(timestampLayout)).
		Suffix("ON CONFLICT(" + models.ColumnUploadKey + ") DO NOTHING")

	sqlInsert, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build insert query: %w", err)
	}

	res, err := g.repo.DB.ExecContext(ctx, sqlInsert, args...)
	if err != nil {
		return nil, classify(err)
	}

	if rec.UploadKey != "" {
		return g.selectOne(ctx, squirrel.Eq{models.ColumnUploadKey: rec.UploadKey})
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return g.selectOne(ctx, squirrel.Eq{models.ColumnID: id})
}

// Select returns every row, newest first.
func (g *GalleryStore) Select(ctx context.Context) ([]models.Row, error) {
	query := g.repo.Builder.Select("*").
		From(galleryTable).
		OrderBy(models.ColumnUploadedAt+" DESC", models.ColumnID+" DESC")

	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	rows, err := g.repo.DB.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]models.Row, 0)
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			logging.Log.Errorf("Error scanning gallery row: %v", err)
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// Delete removes the row with id. Unknown or malformed ids are not an error.
func (g *GalleryStore) Delete(ctx context.Context, id string) (bool, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return false, nil
	}

	sqlDelete, args, err := g.repo.Builder.Delete(galleryTable).
		Where(squirrel.Eq{models.ColumnID: n}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build delete query: %w", err)
	}

	res, err := g.repo.DB.ExecContext(ctx, sqlDelete, args...)
	if err != nil {
		return false, classify(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Heartbeat touches the single heartbeat row so the database sees activity.
func (g *GalleryStore) Heartbeat(ctx context.Context) (models.HeartbeatResult, error) {
	now := g.now().UTC().Format(timestampLayout)
	_, err := g.repo.DB.ExecContext(ctx,
		`INSERT INTO `+heartbeatTable+` (id, touched_at, beats) VALUES (1, ?, 1)
		 ON CONFLICT(id) DO UPDATE SET touched_at = excluded.touched_at, beats = beats + 1`, now)
	if err != nil {
		return models.HeartbeatResult{}, fmt.Errorf("heartbeat failed: %w", err)
	}

	var beats int64
	if err := g.repo.DB.QueryRowContext(ctx, `SELECT beats FROM `+heartbeatTable+` WHERE id = 1`).Scan(&beats); err != nil {
		return models.HeartbeatResult{}, fmt.Errorf("heartbeat failed: %w", err)
	}

	body, _ := json.Marshal(map[string]interface{}{"status": "ok", "touched_at": now, "beats": beats})
	return models.HeartbeatResult{
		Status:      http.StatusOK,
		Body:        string(body),
		ContentType: "application/json",
	}, nil
}

func (g *GalleryStore) selectOne(ctx context.Context, where squirrel.Eq) (models.Row, error) {
	sqlQuery, args, err := g.repo.Builder.Select("*").From(galleryTable).Where(where).Limit(1).ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := g.repo.DB.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, sql.ErrNoRows
	}
	return scanRow(rows)
}

// classify marks constraint violations as permanent so they are not retried.
func classify(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %v", persistence.ErrPermanent, err)
	}
	return err
}
