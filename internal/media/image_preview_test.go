// filepath: internal/media/image_preview_test.go
package media

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestImage creates an in-memory PNG buffer
func createTestImage(t *testing.T, width, height int) *bytes.Buffer {
	t.Helper()
	if width <= 0 || height <= 0 {
		t.Fatalf("createTestImage helper: invalid dimensions %dx%d", width, height)
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	blue := color.RGBA{0, 0, 255, 255}
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, blue)
		}
	}

	buf := new(bytes.Buffer)
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("Failed to encode test image: %v", err)
	}
	return buf
}

func TestCreateImagePreview(t *testing.T) {
	testCases := []struct {
		name           string
		origWidth      int
		origHeight     int
		expectedWidth  int
		expectedHeight int
	}{
		{"Landscape Image (600x400)", 600, 400, 200, 133},
		{"Portrait Image (400x600)", 400, 600, 133, 200},
		{"Square Image (500x500)", 500, 500, 200, 200},
		{"Small Image (100x50) - Does not scale up", 100, 50, 100, 50},
		{"Small Portrait (50x100) - Does not scale up", 50, 100, 50, 100},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data, w, h, err := CreateImagePreview(createTestImage(t, tc.origWidth, tc.origHeight), 200)
			require.NoError(t, err)
			assert.Equal(t, tc.expectedWidth, w)
			assert.Equal(t, tc.expectedHeight, h)

			previewImg, format, err := image.Decode(bytes.NewReader(data))
			require.NoError(t, err)
			assert.Equal(t, "jpeg", format, "Preview was not encoded as a JPEG")
			bounds := previewImg.Bounds()
			assert.Equal(t, tc.expectedWidth, bounds.Dx(), "Preview width is incorrect")
			assert.Equal(t, tc.expectedHeight, bounds.Dy(), "Preview height is incorrect")
		})
	}
}

func TestCreateImagePreview_InvalidData(t *testing.T) {
	_, _, _, err := CreateImagePreview(bytes.NewBufferString("this is not a valid image"), 200)
	assert.Error(t, err, "Should have failed for invalid image data")
	if err != nil {
		assert.Contains(t, err.Error(), "could not decode image for preview", "Error message mismatch")
	}
}

func TestFitDimensions(t *testing.T) {
	w, h := FitDimensions(4000, 3000, 1000)
	assert.Equal(t, 1000, w)
	assert.Equal(t, 750, h)

	w, h = FitDimensions(3000, 1, 1000)
	assert.Equal(t, 1000, w)
	assert.Equal(t, 1, h, "never collapses to zero")

	w, h = FitDimensions(10, 20, 0)
	assert.Equal(t, 10, w)
	assert.Equal(t, 20, h)
}
