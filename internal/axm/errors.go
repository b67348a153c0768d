// Package axm provides an HTTP client for the Apple School Manager and Apple
// Business Manager API with token refresh, bounded retry, cursor pagination,
// and device activity polling.
package axm

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, axm.ErrNotFound) to check.
var (
	ErrBadRequest       = errors.New("axm: bad request")
	ErrUnauthorized     = errors.New("axm: unauthorized")
	ErrForbidden        = errors.New("axm: forbidden")
	ErrNotFound         = errors.New("axm: not found")
	ErrConflict         = errors.New("axm: conflict")
	ErrUnprocessable    = errors.New("axm: unprocessable entity")
	ErrThrottled        = errors.New("axm: throttled")
	ErrServerError      = errors.New("axm: server error")
	ErrUnexpectedStatus = errors.New("axm: unexpected status")
	ErrNetwork          = errors.New("axm: network error")
)

// Sentinel errors for higher-level operations.
var (
	ErrCursorLoop      = errors.New("axm: server repeated a page cursor")
	ErrNoCoverage      = errors.New("axm: no AppleCare coverage")
	ErrInvalidActivity = errors.New("axm: invalid activity request")
	ErrActivityFailed  = errors.New("axm: device activity failed")
	ErrActivityTimeout = errors.New("axm: device activity did not finish in time")
)

// APIError wraps a sentinel error with the request, the final HTTP status,
// and the redacted response body for debugging. StatusCode is 0 when no
// response was received.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	RequestID  string
	Body       string
	Attempts   int
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("axm: %s %s: no response after %d attempt(s): %s", e.Method, e.Path, e.Attempts, e.Body)
	}

	msg := fmt.Sprintf("axm: %s %s: HTTP %d", e.Method, e.Path, e.StatusCode)
	if e.RequestID != "" {
		msg += fmt.Sprintf(" (request-id: %s)", e.RequestID)
	}

	if e.Body != "" {
		msg += ": " + e.Body
	}

	return msg
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyStatus maps a non-2xx HTTP status code to a sentinel error.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusUnprocessableEntity:
		return ErrUnprocessable
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return ErrUnexpectedStatus
	}
}

// ActivityError reports a device activity that could not be created, failed
// on the server, or did not finish within the poll budget. It unwraps to both
// Reason (ErrActivityFailed or ErrActivityTimeout) and, when present, the
// underlying request error.
type ActivityError struct {
	ActivityID   string
	Kind         ActivityKind
	Status       ActivityStatus
	ServerStatus string
	SubStatus    string
	Polls        int
	Reason       error
	Err          error
}

func (e *ActivityError) Error() string {
	msg := e.Reason.Error()

	if e.ActivityID != "" {
		msg += fmt.Sprintf(" (activity %s", e.ActivityID)
		if e.ServerStatus != "" {
			msg += ", status " + e.ServerStatus
		}

		if e.SubStatus != "" {
			msg += "/" + e.SubStatus
		}

		if e.Polls > 0 {
			msg += fmt.Sprintf(", %d poll(s)", e.Polls)
		}

		msg += ")"
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *ActivityError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Reason}
	}

	return []error{e.Reason, e.Err}
}
