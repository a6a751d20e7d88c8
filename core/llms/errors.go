package llms

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
)

var ErrFormatMismatch = errors.New("response does not match the expected format")

// APIError is a non-OK response from an LLM provider.
type APIError struct {
	Provider   string
	StatusCode int
	Status     string
	Body       string
}

func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: non-OK HTTP status: %s: %s", e.Provider, e.Status, e.Body)
	}
	return fmt.Sprintf("%s: non-OK HTTP status: %s", e.Provider, e.Status)
}

// Transient reports whether repeating the request may succeed: rate limits
// and server side failures.
func (e *APIError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var transient interface{ Transient() bool }
	if errors.As(err, &transient) {
		return transient.Transient()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, context.DeadlineExceeded)
}

// FormatMismatchError carries the offending response next to the reason it
// was rejected. It matches ErrFormatMismatch with errors.Is.
type FormatMismatchError struct {
	Response string
	Reason   error
}

func (e *FormatMismatchError) Error() string {
	if e.Reason != nil {
		return fmt.Sprintf("%s: %v", ErrFormatMismatch.Error(), e.Reason)
	}
	return ErrFormatMismatch.Error()
}

func (e *FormatMismatchError) Is(target error) bool {
	return target == ErrFormatMismatch
}

func (e *FormatMismatchError) Unwrap() error {
	return e.Reason
}
