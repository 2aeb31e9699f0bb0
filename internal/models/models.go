// filepath: internal/models/models.go
// Package models contains the core data structures for the application.
package models

import (
	"io"
	"time"
)

// Info represents general information about the service.
type Info struct {
	ServiceName        string    `json:"service_name"`
	Version            string    `json:"version"`
	UptimeSince        time.Time `json:"uptime_since"`
	PersistenceDriver  string    `json:"persistence_driver"`
	PersistenceEnabled bool      `json:"persistence_enabled"`
	PayloadMode        string    `json:"payload_mode"`
}

// GalleryImage is a persisted gallery record.
type GalleryImage struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	ImageData  string    `json:"imageData"`
	DateTaken  string    `json:"dateTaken"`
	TimeTaken  string    `json:"timeTaken"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// NewRecord is the insert payload for a gallery image. UploadKey is fixed for the
// lifetime of one upload attempt so retried inserts collapse into one row.
type NewRecord struct {
	Title     string `json:"title"`
	ImageData string `json:"image_data"`
	DateTaken string `json:"date_taken"`
	TimeTaken string `json:"time_taken"`
	UploadKey string `json:"upload_key"`
}

// Row is a raw record as returned by a persistence backend, keyed by column name.
type Row map[string]interface{}

// HeartbeatResult is the relayed outcome of the keepalive RPC.
type HeartbeatResult struct {
	Status      int    `json:"status"`
	Body        string `json:"body"`
	ContentType string `json:"-"`
}

// FileHandle is a selected raw file. Handles are acquired fresh for every
// upload attempt and must be released by their owner.
type FileHandle interface {
	Name() string
	Size() int64
	ContentType() string
	ModTime() time.Time
	Open() (io.ReadCloser, error)
	Release() error
}

// Column names of the gallery table.
const (
	ColumnID         = "id"
	ColumnTitle      = "title"
	ColumnImageData  = "image_data"
	ColumnDateTaken  = "date_taken"
	ColumnTimeTaken  = "time_taken"
	ColumnUploadedAt = "uploaded_at"
	ColumnUploadKey  = "upload_key"
)

// Date and time layouts captured at upload time.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)
