package types

import (
	"errors"
	"fmt"
)

var (
	// ErrCanceled if the context was canceled
	ErrCanceled = errors.New("context was canceled")
	// ErrInvalidConfig when a setting cannot be used
	ErrInvalidConfig = errors.New("invalid config")
	// ErrInvalidDescriptor when an image service is missing required fields
	ErrInvalidDescriptor = errors.New("invalid image service descriptor")
	// ErrMissingInput indicates a required field is missing
	ErrMissingInput = errors.New("required input missing")
	// ErrNotFound isn't there, search for your value elsewhere
	ErrNotFound = errors.New("not found")
	// ErrPermanentFetch is returned for a non-2xx response that will not be retried
	ErrPermanentFetch = errors.New("permanent fetch failure")
	// ErrSizeLimitExceeded when a document is larger than allowed
	ErrSizeLimitExceeded = errors.New("size limit exceeded")
	// ErrTileFetch wraps a failure to fetch a single tile of an image service
	ErrTileFetch = errors.New("tile fetch failure")
	// ErrTransientFetch is returned when retries for a 502 class response are exhausted
	ErrTransientFetch = errors.New("transient fetch failure")
	// ErrUnsupportedCompositeAsset when a canvas holds more than one image or annotation page
	ErrUnsupportedCompositeAsset = errors.New("composite assets are not supported")
	// ErrUnsupportedSchema when the @context of a document is not a known version
	ErrUnsupportedSchema = errors.New("unsupported schema")
)

// FetchError describes a failed request with enough detail to diagnose without rerunning.
type FetchError struct {
	URL      string
	Path     string
	Status   int
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s", e.URL)
	if e.Path != "" {
		msg += fmt.Sprintf(" to %s", e.Path)
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(": status %d", e.Status)
	}
	if e.Attempts > 1 {
		msg += fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
