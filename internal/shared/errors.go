package shared

import (
	"errors"
	"fmt"
)

// Kind names a failure. Kinds are comparable sentinels: errors.Is(err, shared.ErrTooLarge)
// matches any *Error of that kind.
type Kind string

// Implement the error interface
func (k Kind) Error() string { return string(k) }

// Category groups kinds by how they are surfaced.
type Category string

const (
	CategoryValidation    Category = "validation"
	CategoryProcessing    Category = "processing"
	CategoryStore         Category = "store"
	CategoryConfiguration Category = "configuration"
	CategoryInternal      Category = "internal"
)

//------------
// Definitions
//------------

// validation errors
const (
	ErrNoFile          = Kind("no_file")
	ErrEmptyFile       = Kind("empty_file")
	ErrTooLarge        = Kind("too_large")
	ErrUnsupportedType = Kind("unsupported_type")
	ErrTitleRequired   = Kind("title_required")
	ErrTitleTooLong    = Kind("title_too_long")
	ErrInvalidRecord   = Kind("invalid_record")
	ErrBusy            = Kind("busy")
	ErrInvalidState    = Kind("invalid_state")
)

// processing errors
const (
	ErrDecode                   = Kind("decode_error")
	ErrEncode                   = Kind("encode_error")
	ErrProcessingTimeout        = Kind("processing_timeout")
	ErrTooLargeAfterCompression = Kind("too_large_after_compression")
)

// store errors
const (
	ErrUploadFailed = Kind("upload_failed")
	ErrLoadFailed   = Kind("load_failed")
	ErrDeleteFailed = Kind("delete_failed")
)

// configuration errors
const ErrNotConfigured = Kind("not_configured")

// cli errors
const (
	ErrorCreateFile = Kind("could not create the file")
	ErrorEncodeFile = Kind("could not encode to file")
)

// Category reports the group a kind belongs to.
func (k Kind) Category() Category {
	switch k {
	case ErrNoFile, ErrEmptyFile, ErrTooLarge, ErrUnsupportedType, ErrTitleRequired,
		ErrTitleTooLong, ErrInvalidRecord, ErrBusy, ErrInvalidState:
		return CategoryValidation
	case ErrDecode, ErrEncode, ErrProcessingTimeout, ErrTooLargeAfterCompression:
		return CategoryProcessing
	case ErrUploadFailed, ErrLoadFailed, ErrDeleteFailed:
		return CategoryStore
	case ErrNotConfigured:
		return CategoryConfiguration
	default:
		return CategoryInternal
	}
}

// Error is a structured pipeline failure: a kind plus a message fit for the user.
type Error struct {
	Kind    Kind
	Message string
	Limit   int64 // byte limit for size related kinds, 0 otherwise
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on kind so callers can compare against the Kind sentinels.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case Kind:
		return e.Kind == t
	case *Error:
		return e.Kind == t.Kind
	}
	return false
}

// NewError builds an *Error without a cause.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError builds an *Error carrying the underlying cause.
func WrapError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// LimitError builds an *Error that echoes a byte limit back to the caller.
func LimitError(kind Kind, message string, limit int64) *Error {
	return &Error{Kind: kind, Message: message, Limit: limit}
}

// AsError extracts the *Error from err, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	return ""
}

// FormatBytes renders a byte count for user-facing messages.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
