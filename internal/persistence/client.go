// Package persistence defines the collaborator that stores gallery records.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"photogallery/internal/models"
	"photogallery/internal/shared"
)

// Client is the process-wide persistence collaborator. Select returns rows ordered by
// upload time, newest first.
type Client interface {
	Insert(ctx context.Context, rec models.NewRecord) (models.Row, error)
	Select(ctx context.Context) ([]models.Row, error)
	Delete(ctx context.Context, id string) (bool, error)
	Heartbeat(ctx context.Context) (models.HeartbeatResult, error)
	Driver() string
	Close() error
}

// ErrPermanent marks failures that will not go away on retry.
var ErrPermanent = errors.New("permanent failure")

// StatusError is a non-success HTTP response from a remote backend.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: %d %s: %s", e.Op, e.Status, http.StatusText(e.Status), e.Body)
	}
	return fmt.Sprintf("%s: %d %s", e.Op, e.Status, http.StatusText(e.Status))
}

// Temporary reports whether the status may succeed on retry.
func (e *StatusError) Temporary() bool {
	return e.Status >= 500 || e.Status == http.StatusRequestTimeout || e.Status == http.StatusTooManyRequests
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPermanent) || errors.Is(err, shared.ErrNotConfigured) ||
		errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return true
}

// Disabled is the client used when no backend is configured or initialization failed.
// Every operation reports NotConfigured.
type Disabled struct {
	Reason string
}

var _ Client = (*Disabled)(nil)

// NewDisabled creates a disabled client.
func NewDisabled(reason string) *Disabled {
	return &Disabled{Reason: reason}
}

func (d *Disabled) err() error {
	msg := "Gallery storage is not configured."
	if d.Reason != "" {
		msg = fmt.Sprintf("Gallery storage is not configured (%s).", d.Reason)
	}
	return shared.NewError(shared.ErrNotConfigured, msg)
}

func (d *Disabled) Insert(context.Context, models.NewRecord) (models.Row, error) { return nil, d.err() }
func (d *Disabled) Select(context.Context) ([]models.Row, error)                 { return nil, d.err() }
func (d *Disabled) Delete(context.Context, string) (bool, error)                 { return false, d.err() }
func (d *Disabled) Heartbeat(context.Context) (models.HeartbeatResult, error) {
	return models.HeartbeatResult{}, d.err()
}
func (d *Disabled) Driver() string { return "disabled" }
func (d *Disabled) Close() error   { return nil }

// IsDisabled reports whether c is the disabled client.
func IsDisabled(c Client) bool {
	_, ok := c.(*Disabled)
	return ok
}
