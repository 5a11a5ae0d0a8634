package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Common failure modes of the HTTP layer.
var (
	ErrNetwork         = errors.New("network failure, no response received")
	ErrRetriesExceeded = errors.New("retry limit exceeded")
	ErrRefreshFailed   = errors.New("credential refresh failed")
	ErrUserMismatch    = errors.New("bridged credential belongs to a different user")
	ErrUserMissing     = errors.New("no user identity in session snapshot")
	ErrMalformedBody   = errors.New("unrecognisable response body")
)

// Body is the error envelope the backend returns inside `{"error": ...}`.
type Body struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
	Status  int    `json:"status,omitempty"`
}

// Error is a typed HTTP failure carrying everything the recovery layers need:
// the status for classification, the backend error code for the hard sign-out
// allow-list, and the parsed Retry-After value for 429 backoff.
type Error struct {
	Status     int
	Code       string
	Message    string
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d %s", e.Status, e.Message)
}

// New builds an Error from a status and an optional envelope body.
func New(status int, body *Body) *Error {
	e := &Error{Status: status, Message: http.StatusText(status)}
	if body != nil {
		e.Code = body.Code
		if body.Message != "" {
			e.Message = body.Message
		}
		if body.Status != 0 && e.Status == 0 {
			e.Status = body.Status
		}
	}
	return e
}

// StatusOf extracts the HTTP status from err, or 0 when err carries none.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsRateLimited reports whether err is a 429 response.
func IsRateLimited(err error) bool {
	return StatusOf(err) == http.StatusTooManyRequests
}

// IsUnauthorized reports whether err is a 401 response.
func IsUnauthorized(err error) bool {
	return StatusOf(err) == http.StatusUnauthorized
}

// IsNetwork reports whether err means no response was received at all.
func IsNetwork(err error) bool {
	return errors.Is(err, ErrNetwork)
}
