package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/desertthunder/reelsync/internal/shared"
)

// RequestError describes a failed call to the remote API.
//
// It matches [shared.ErrAPIRequest] and exactly one of [shared.ErrTransient] or [shared.ErrPermanent]
// under [errors.Is], which is how the sync processor decides between retrying and dropping an entry.
type RequestError struct {
	Method     string
	Path       string
	StatusCode int // 0 when no response was received
	Message    string
	// Rejected marks a 2xx response whose body reported success=false.
	Rejected bool
	Err      error
}

func (e *RequestError) Error() string {
	switch {
	case e.StatusCode == 0 && e.Err != nil:
		return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
}

func (e *RequestError) Unwrap() error { return e.Err }

// Is classifies the error against the shared sentinels.
func (e *RequestError) Is(target error) bool {
	switch target {
	case shared.ErrAPIRequest:
		return true
	case shared.ErrTransient:
		return e.Transient()
	case shared.ErrPermanent:
		return !e.Transient()
	case shared.ErrTimeout:
		return e.Timeout()
	case shared.ErrNotAuthenticated:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	}
	return false
}

// Transient reports whether the same request may succeed later: no response at all, a timeout,
// a 5xx, 408, 429, or an auth failure that a refreshed token can fix.
func (e *RequestError) Transient() bool {
	if e.Rejected {
		return false
	}
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode >= 500:
		return true
	}
	switch e.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	return false
}

// Timeout reports whether the request ran out of time.
func (e *RequestError) Timeout() bool {
	if e.StatusCode == http.StatusRequestTimeout || errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}
