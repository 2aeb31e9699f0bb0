// filepath: internal/media/normalizer.go
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/sirupsen/logrus"

	"photogallery/internal/capability"
	"photogallery/internal/logging"
	"photogallery/internal/models"
	"photogallery/internal/shared"
)

// OutputMIMEType is the media type of every re-encoded payload.
const OutputMIMEType = "image/jpeg"

// Options tune the retry ladder. Zero values fall back to DefaultOptions.
type Options struct {
	QualityStep       float64 // quality reduction per ladder step
	MinQuality        float64 // quality floor
	FallbackDimension int     // longer side used by the last ladder step
	PassthroughBytes  int64   // JPEGs up to this size may be kept as-is, negative disables
	SmallFileBytes    int64   // files above this size use the buffered decode path
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		QualityStep:       0.2,
		MinQuality:        0.3,
		FallbackDimension: 800,
		PassthroughBytes:  1 << 20,
		SmallFileBytes:    2 << 20,
	}
}

// Normalizer bounds an uploaded image's dimensions and encoded size.
type Normalizer struct {
	opts Options
}

// NewNormalizer creates a Normalizer.
func NewNormalizer(opts Options) *Normalizer {
	def := DefaultOptions()
	if opts.QualityStep <= 0 {
		opts.QualityStep = def.QualityStep
	}
	if opts.MinQuality <= 0 {
		opts.MinQuality = def.MinQuality
	}
	if opts.FallbackDimension <= 0 {
		opts.FallbackDimension = def.FallbackDimension
	}
	if opts.PassthroughBytes == 0 {
		opts.PassthroughBytes = def.PassthroughBytes
	}
	if opts.SmallFileBytes <= 0 {
		opts.SmallFileBytes = def.SmallFileBytes
	}
	return &Normalizer{opts: opts}
}

type ladderStep struct {
	maxSide int
	quality float64
}

type normalizeResult struct {
	img *EmbeddableImage
	err error
}

// Normalize decodes file, downsamples it to profile.MaxDimension and re-encodes it as
// JPEG until the data URI fits profile.MaxBytes. The whole operation is bounded by
// profile.Timeout; work still running when the deadline passes is discarded.
func (n *Normalizer) Normalize(ctx context.Context, file models.FileHandle, profile capability.Profile) (*EmbeddableImage, error) {
	if profile.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, profile.Timeout)
		defer cancel()
	}

	done := make(chan normalizeResult, 1)
	go func() {
		img, err := n.normalize(ctx, file, profile)
		done <- normalizeResult{img: img, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, contextError(ctx.Err(), profile)
	case res := <-done:
		if res.err != nil {
			if errors.Is(res.err, context.DeadlineExceeded) || errors.Is(res.err, context.Canceled) {
				return nil, contextError(res.err, profile)
			}
			return nil, res.err
		}
		return res.img, nil
	}
}

func contextError(err error, profile capability.Profile) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return shared.WrapError(shared.ErrProcessingTimeout,
			fmt.Sprintf("Processing the image took longer than %s. Try a smaller photo.", profile.Timeout), err)
	}
	return err
}

func (n *Normalizer) normalize(ctx context.Context, file models.FileHandle, profile capability.Profile) (*EmbeddableImage, error) {
	if out, ok := n.passthrough(file, profile); ok {
		return out, nil
	}

	path := ChooseDecodePath(file, profile, n.opts.SmallFileBytes)
	src, err := decodeSource(ctx, file, path)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, shared.WrapError(shared.ErrDecode, "The selected file could not be read as an image.", err)
	}

	b := src.Bounds()
	logging.Log.WithFields(logrus.Fields{
		"file":        file.Name(),
		"decode_path": path,
		"width":       b.Dx(),
		"height":      b.Dy(),
		"profile":     profile.Name,
	}).Debug("Decoded upload")

	var rendered image.Image
	renderedSide := -1
	for i, step := range n.ladder(profile) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		w, h := FitDimensions(b.Dx(), b.Dy(), step.maxSide)
		if w != renderedSide {
			rendered = FlattenOnWhite(src, w, h)
			renderedSide = w
		}
		data, err := EncodeJPEG(rendered, step.quality)
		if err != nil {
			return nil, shared.WrapError(shared.ErrEncode, "The image could not be re-encoded.", err)
		}
		out := &EmbeddableImage{
			MIMEType: OutputMIMEType,
			Data:     data,
			Width:    w,
			Height:   h,
			Quality:  step.quality,
			Step:     i + 1,
		}
		if profile.MaxBytes <= 0 || out.EncodedLen() <= profile.MaxBytes {
			return out, nil
		}
		logging.Log.Debugf("Encoded %s at %dx%d q%.2f is %d bytes, budget %d", file.Name(), w, h, step.quality, out.EncodedLen(), profile.MaxBytes)
	}

	return nil, shared.LimitError(shared.ErrTooLargeAfterCompression,
		fmt.Sprintf("The image is too large even after compression (limit %s). Try a smaller photo.", shared.FormatBytes(profile.MaxBytes)),
		profile.MaxBytes)
}

// ladder lists the encode attempts: profile quality, one reduced quality, then a
// smaller dimension at a further reduced quality.
func (n *Normalizer) ladder(profile capability.Profile) []ladderStep {
	q := profile.Quality
	if q <= 0 || q > 1 {
		q = 0.85
	}
	fallback := profile.MaxDimension
	if n.opts.FallbackDimension < fallback || fallback <= 0 {
		fallback = n.opts.FallbackDimension
	}
	return []ladderStep{
		{maxSide: profile.MaxDimension, quality: q},
		{maxSide: profile.MaxDimension, quality: n.floor(q - n.opts.QualityStep)},
		{maxSide: fallback, quality: n.floor(q - 2*n.opts.QualityStep)},
	}
}

func (n *Normalizer) floor(q float64) float64 {
	if q < n.opts.MinQuality {
		return n.opts.MinQuality
	}
	return q
}

// passthrough keeps a small, upright JPEG that already fits the profile byte-for-byte.
func (n *Normalizer) passthrough(file models.FileHandle, profile capability.Profile) (*EmbeddableImage, bool) {
	if n.opts.PassthroughBytes <= 0 || file.Size() > n.opts.PassthroughBytes {
		return nil, false
	}
	data, err := ReadAll(file)
	if err != nil {
		return nil, false
	}
	if detected, _ := SniffImage(data); detected != OutputMIMEType {
		return nil, false
	}
	w, h, _, err := CheckDecodable(data)
	if err != nil {
		return nil, false
	}
	if profile.MaxDimension > 0 && (w > profile.MaxDimension || h > profile.MaxDimension) {
		return nil, false
	}
	if o := exifOrientation(data); o > 1 {
		return nil, false
	}
	out := &EmbeddableImage{MIMEType: OutputMIMEType, Data: data, Width: w, Height: h, Passthrough: true}
	if profile.MaxBytes > 0 && out.EncodedLen() > profile.MaxBytes {
		return nil, false
	}
	return out, true
}

// exifOrientation returns the EXIF orientation tag, 1 when absent.
func exifOrientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil {
		return 1
	}
	return v
}

// FitDimensions scales (width, height) so the longer side is at most maxSide,
// preserving the aspect ratio. It never upscales.
func FitDimensions(width, height, maxSide int) (int, int) {
	if width <= 0 || height <= 0 || maxSide <= 0 {
		return width, height
	}
	if width <= maxSide && height <= maxSide {
		return width, height
	}
	var newWidth, newHeight int
	if width >= height {
		newWidth = maxSide
		newHeight = (height * maxSide) / width
	} else {
		newHeight = maxSide
		newWidth = (width * maxSide) / height
	}
	if newWidth < 1 {
		newWidth = 1
	}
	if newHeight < 1 {
		newHeight = 1
	}
	return newWidth, newHeight
}

// FlattenOnWhite resizes src to w x h and draws it over an opaque white surface so
// transparent pixels do not turn black in JPEG output.
func FlattenOnWhite(src image.Image, w, h int) image.Image {
	var resized image.Image = src
	if b := src.Bounds(); b.Dx() != w || b.Dy() != h {
		resized = imaging.Resize(src, w, h, imaging.Lanczos)
	}
	bg := imaging.New(w, h, color.White)
	return imaging.Overlay(bg, resized, image.Pt(0, 0), 1.0)
}

// EncodeJPEG encodes img at quality in 0..1.
func EncodeJPEG(img image.Image, quality float64) ([]byte, error) {
	q := int(quality*100 + 0.5)
	if q < 1 {
		q = 1
	}
	if q > 100 {
		q = 100
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(q)); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
