// Package location manages the device position source: a continuous watch
// with layered fallbacks and a typed classification of sensor failures.
package location

import (
	"context"
	"errors"
	"time"

	"github.com/usiu-smartnav/wayfinder/internal/lib/geo"
)

// Position is one sample from the position source.
type Position struct {
	Point     geo.Point `json:"point"`
	Accuracy  float64   `json:"accuracy_meters"`
	Timestamp time.Time `json:"timestamp"`
	// Cached marks a position served from the persisted last-known-good
	// fix rather than the live sensor.
	Cached bool `json:"cached,omitempty"`
}

// Options control a fix or watch request.
type Options struct {
	HighAccuracy bool
	Timeout      time.Duration
	MaximumAge   time.Duration
}

// Sentinel errors a Source reports; Classify maps anything else to Unknown.
var (
	ErrPermissionDenied    = errors.New("location permission denied")
	ErrPositionUnavailable = errors.New("position unavailable")
	ErrTimeout             = errors.New("location request timed out")
)

// ErrorCode classifies a geolocation failure.
type ErrorCode int

const (
	PermissionDenied ErrorCode = iota
	PositionUnavailable
	Timeout
	Unknown
)

// Error is a classified geolocation failure with a user-facing message.
type Error struct {
	Code  ErrorCode
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return e.Message()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Message returns the human-readable description for the failure class.
func (e *Error) Message() string {
	switch e.Code {
	case PermissionDenied:
		return "Location permission denied. Please enable location access in your device settings."
	case PositionUnavailable:
		return "Location information is unavailable. Try moving to an open area or check your network."
	case Timeout:
		return "Location request timed out. Please try again."
	default:
		return "Unable to retrieve your location. Please try again."
	}
}

// Classify maps a source error into exactly one failure class.
func Classify(err error) *Error {
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	switch {
	case errors.Is(err, ErrPermissionDenied):
		return &Error{Code: PermissionDenied, Cause: err}
	case errors.Is(err, ErrPositionUnavailable):
		return &Error{Code: PositionUnavailable, Cause: err}
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return &Error{Code: Timeout, Cause: err}
	default:
		return &Error{Code: Unknown, Cause: err}
	}
}

// Watch is a running continuous position watch.
type Watch interface {
	// Positions delivers samples in arrival order.
	Positions() <-chan Position
	// Errors delivers sensor failures.
	Errors() <-chan error
	// Stop cancels the watch and releases the sensor.
	Stop()
}

// Source abstracts the platform geolocation sensor. Timeout enforcement
// lives in the source, not in the consumers.
type Source interface {
	Watch(ctx context.Context, opts Options) (Watch, error)
	Current(ctx context.Context, opts Options) (Position, error)
}
