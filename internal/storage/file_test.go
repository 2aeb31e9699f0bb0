package storage

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpool_InMemory(t *testing.T) {
	f, err := Spool(strings.NewReader("small"), "a.jpg", "image/jpeg", time.Now(), 16, t.TempDir())
	require.NoError(t, err)
	assert.False(t, f.OnDisk())
	assert.Equal(t, int64(5), f.Size())

	rc, err := f.Open()
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "small", string(data))

	assert.NoError(t, f.Release())
	_, err = f.Open()
	assert.Error(t, err)
}

func TestSpool_ToDiskAndRelease(t *testing.T) {
	dir := t.TempDir()
	payload := bytes.Repeat([]byte("x"), 64)

	f, err := Spool(bytes.NewReader(payload), "big.png", "image/png", time.Now(), 16, dir)
	require.NoError(t, err)
	assert.True(t, f.OnDisk())
	assert.Equal(t, int64(64), f.Size())

	// Open twice: each reader starts from the beginning.
	for i := 0; i < 2; i++ {
		rc, err := f.Open()
		require.NoError(t, err)
		data, _ := io.ReadAll(rc)
		rc.Close()
		assert.Equal(t, payload, data)
	}

	path := f.path
	assert.NoError(t, f.Release())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, f.Release(), "second release is a no-op")
}

func TestObjectKey(t *testing.T) {
	ts := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)

	key, err := ObjectKey("gallery", ts, "01HX", "jpg")
	require.NoError(t, err)
	assert.Equal(t, "gallery/2026/03/01HX.jpg", key)
	assert.True(t, ValidKey(key))

	_, err = ObjectKey("gallery", ts, "../etc", "jpg")
	assert.Error(t, err)

	assert.False(t, ValidKey("../secret"))
	assert.False(t, ValidKey("/abs/key"))
	assert.False(t, ValidKey("a//b"))
}
