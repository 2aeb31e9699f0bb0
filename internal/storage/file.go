// filepath: internal/storage/file.go
// Package storage provides the transient file handles that back a pending upload.
// Small uploads stay in memory, larger ones are spooled to a temporary file.
package storage

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"photogallery/internal/models"
)

// SpooledFile is a models.FileHandle that owns its bytes.
type SpooledFile struct {
	name        string
	contentType string
	modTime     time.Time
	size        int64

	mu       sync.Mutex
	data     []byte // set when held in memory
	path     string // set when spooled to disk
	released bool
}

var _ models.FileHandle = (*SpooledFile)(nil)

// Spool copies r into a handle. Data up to memLimit bytes is kept in memory; anything
// larger is streamed into a temporary file under dir (os.TempDir() when empty).
func Spool(r io.Reader, name, contentType string, modTime time.Time, memLimit int64, dir string) (*SpooledFile, error) {
	f := &SpooledFile{name: name, contentType: contentType, modTime: modTime}

	var buf bytes.Buffer
	n, err := io.CopyN(&buf, r, memLimit+1)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("could not read upload: %w", err)
	}
	if n <= memLimit {
		f.data = buf.Bytes()
		f.size = n
		return f, nil
	}

	tmp, err := os.CreateTemp(dir, "upload-*")
	if err != nil {
		return nil, fmt.Errorf("could not create file: %w", err)
	}
	defer tmp.Close()

	// Stream the remainder to disk.
	written, err := io.Copy(tmp, io.MultiReader(&buf, r))
	if err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("could not write file: %w", err)
	}
	f.path = tmp.Name()
	f.size = written
	return f, nil
}

// FromBytes wraps an in-memory payload.
func FromBytes(data []byte, name, contentType string) *SpooledFile {
	return &SpooledFile{name: name, contentType: contentType, modTime: time.Now(), data: data, size: int64(len(data))}
}

func (f *SpooledFile) Name() string        { return f.name }
func (f *SpooledFile) Size() int64         { return f.size }
func (f *SpooledFile) ContentType() string { return f.contentType }
func (f *SpooledFile) ModTime() time.Time  { return f.modTime }

// SetModTime records the client side modification time.
func (f *SpooledFile) SetModTime(t time.Time) { f.modTime = t }

// OnDisk reports whether the handle is backed by a temporary file.
func (f *SpooledFile) OnDisk() bool { return f.path != "" }

// Open returns a fresh reader over the file bytes.
func (f *SpooledFile) Open() (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.released {
		return nil, fmt.Errorf("file handle %q already released", f.name)
	}
	if f.path != "" {
		return os.Open(f.path)
	}
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

// Release drops the in-memory bytes and removes the temporary file. It is safe to call more than once.
func (f *SpooledFile) Release() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.released {
		return nil
	}
	f.released = true
	f.data = nil
	if f.path != "" {
		if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("could not remove spooled file: %w", err)
		}
	}
	return nil
}
