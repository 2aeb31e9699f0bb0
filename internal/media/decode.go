// filepath: internal/media/decode.go
package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"

	// Register decoders for the formats accepted by the validator.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"

	"photogallery/internal/capability"
	"photogallery/internal/models"
)

// DecodePath selects how the source bytes reach the decoder.
type DecodePath string

const (
	// DecodeReference streams straight from the file handle.
	DecodeReference DecodePath = "reference"
	// DecodeBuffered reads the whole file into memory and sniffs its type first.
	DecodeBuffered DecodePath = "buffered"
)

// ChooseDecodePath uses the reference path only for small files with a concrete
// declared type on profiles that do not force buffering.
func ChooseDecodePath(file models.FileHandle, profile capability.Profile, smallBytes int64) DecodePath {
	if profile.BufferedDecode || file.ContentType() == "" || file.ContentType() == "application/octet-stream" {
		return DecodeBuffered
	}
	if smallBytes > 0 && file.Size() > smallBytes {
		return DecodeBuffered
	}
	return DecodeReference
}

// ReadAll reads the full content of a file handle.
func ReadAll(file models.FileHandle) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// SniffImage detects the media type of data from its magic bytes.
func SniffImage(data []byte) (string, bool) {
	mt := mimetype.Detect(data)
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("image/jpeg") || m.Is("image/png") || m.Is("image/gif") || m.Is("image/webp") ||
			m.Is("image/bmp") || m.Is("image/tiff") {
			return m.String(), true
		}
	}
	return mt.String(), false
}

// decodeSource decodes the file into a bitmap with EXIF orientation applied.
func decodeSource(ctx context.Context, file models.FileHandle, path DecodePath) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if path == DecodeReference {
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("could not open file: %w", err)
		}
		defer rc.Close()
		img, err := imaging.Decode(rc, imaging.AutoOrientation(true))
		if err != nil {
			return nil, fmt.Errorf("could not decode image: %w", err)
		}
		return img, nil
	}

	data, err := ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("could not read file: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if detected, ok := SniffImage(data); !ok {
		return nil, fmt.Errorf("content is not a decodable image (detected %s)", detected)
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("could not decode image: %w", err)
	}
	return img, nil
}
