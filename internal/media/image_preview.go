// filepath: internal/media/image_preview.go
package media

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"io"

	"golang.org/x/image/draw"
)

const (
	// PreviewMaxSide is the default longer side of a raster preview.
	PreviewMaxSide = 320
	previewQuality = 75
)

// CreateImagePreview decodes data and re-exports it as a small opaque JPEG that fits
// within a maxSide bounding box. It is the last resort when the original bytes could
// be fetched but not displayed by the client.
func CreateImagePreview(data io.Reader, maxSide int) ([]byte, int, int, error) {
	if maxSide <= 0 {
		maxSide = PreviewMaxSide
	}

	img, _, err := image.Decode(data)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("could not decode image for preview: %w", err)
	}

	origBounds := img.Bounds()
	if origBounds.Dx() == 0 || origBounds.Dy() == 0 {
		return nil, 0, 0, fmt.Errorf("cannot create preview for zero-dimension image")
	}
	newWidth, newHeight := FitDimensions(origBounds.Dx(), origBounds.Dy(), maxSide)

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.Draw(dst, dst.Rect, image.White, image.Point{}, draw.Src)
	draw.ApproxBiLinear.Scale(dst, dst.Rect, img, origBounds, draw.Over, nil)

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, dst, &jpeg.Options{Quality: previewQuality}); err != nil {
		return nil, 0, 0, fmt.Errorf("failed to encode preview to jpeg: %w", err)
	}
	return buf.Bytes(), newWidth, newHeight, nil
}
