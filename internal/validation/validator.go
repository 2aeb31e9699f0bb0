// Package validation checks a selected file before any processing happens.
package validation

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"photogallery/internal/capability"
	"photogallery/internal/models"
	"photogallery/internal/shared"
)

// Result is the outcome of Validate. Err is a *shared.Error of the validation category.
type Result struct {
	OK  bool
	Err *shared.Error
}

var allowedTypes = map[string]bool{
	"image/jpeg":    true,
	"image/jpg":     true,
	"image/png":     true,
	"image/gif":     true,
	"image/bmp":     true,
	"image/webp":    true,
	"image/svg+xml": true,
	"image/tiff":    true,
	"image/tif":     true,
	"image/x-icon":  true,
	"image/heic":    true,
	"image/heif":    true,
}

var allowedExtensions = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "gif": true, "bmp": true, "webp": true,
	"svg": true, "tiff": true, "tif": true, "ico": true, "heic": true, "heif": true,
}

var cameraName = regexp.MustCompile(`^(IMG_|DSC_|PHOTO_|image_)`)

// Validate runs the presence, emptiness, size and type checks in that order.
func Validate(file models.FileHandle, profile capability.Profile) Result {
	if file == nil {
		return fail(shared.NewError(shared.ErrNoFile, "No file selected."))
	}
	if file.Size() <= 0 {
		return fail(shared.NewError(shared.ErrEmptyFile, "The selected file is empty."))
	}
	if profile.MaxUploadBytes > 0 && file.Size() > profile.MaxUploadBytes {
		return fail(shared.LimitError(shared.ErrTooLarge,
			fmt.Sprintf("File is too large. Maximum size is %s.", shared.FormatBytes(profile.MaxUploadBytes)),
			profile.MaxUploadBytes))
	}
	if !acceptableType(file.ContentType(), file.Name(), profile.AllowEmptyType) {
		return fail(shared.NewError(shared.ErrUnsupportedType,
			fmt.Sprintf("Unsupported file type %q. Please choose an image.", file.ContentType())))
	}
	return Result{OK: true}
}

// acceptableType accepts a file when any single signal says it is an image, because
// file pickers and camera captures fill in metadata inconsistently.
func acceptableType(contentType, name string, allowEmpty bool) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if strings.HasPrefix(ct, "image/") || allowedTypes[ct] {
		return true
	}
	if ext := Extension(name); ext != "" && allowedExtensions[ext] {
		return true
	}
	return ct == "" && allowEmpty
}

// Extension returns the lower-case extension of name without the dot.
func Extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// DefaultTitle derives a title from a file name: the name without its extension,
// cut to maxLen runes.
func DefaultTitle(name string, maxLen int) string {
	base := filepath.Base(name)
	if base == "." || base == "/" {
		return ""
	}
	title := strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
	if r := []rune(title); maxLen > 0 && len(r) > maxLen {
		title = string(r[:maxLen])
	}
	return title
}

// FileKey identifies a file selection so a re-selected identical file can be recognized.
func FileKey(file models.FileHandle) string {
	return fmt.Sprintf("%s-%d-%d", file.Name(), file.Size(), file.ModTime().UnixMilli())
}

// LikelyCameraPhoto guesses whether the file came straight from a camera capture:
// a camera-style name, modified in the last five minutes and larger than 1MB.
func LikelyCameraPhoto(file models.FileHandle, now time.Time) bool {
	if file == nil || !cameraName.MatchString(filepath.Base(file.Name())) {
		return false
	}
	recent := now.Sub(file.ModTime()) < 5*time.Minute
	return recent && file.Size() > 1<<20
}

func fail(err *shared.Error) Result {
	return Result{Err: err}
}
