package apierr

import (
	"errors"
	"net/http"
)

// DefaultHardSignOutCodes are the backend error codes that invalidate the
// whole session rather than a single call. The authoritative list is owned by
// the backend contract; callers can override it through configuration.
var DefaultHardSignOutCodes = []string{
	"token_not_valid",
	"authentication_failed",
}

// SignOutClassifier decides whether a failure must terminate the session.
type SignOutClassifier struct {
	codes map[string]struct{}
}

// NewSignOutClassifier builds a classifier from an allow-list of backend
// error codes. An empty list falls back to DefaultHardSignOutCodes.
func NewSignOutClassifier(codes []string) *SignOutClassifier {
	if len(codes) == 0 {
		codes = DefaultHardSignOutCodes
	}
	set := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return &SignOutClassifier{codes: set}
}

// MustSignOut reports whether err is terminal for the session: a 401 that
// survived the refresh flow, a listed backend error code, or one of the
// refresh/identity failure signals.
func (c *SignOutClassifier) MustSignOut(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRefreshFailed) || errors.Is(err, ErrUserMismatch) || errors.Is(err, ErrUserMissing) {
		return true
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Status == http.StatusUnauthorized {
		return true
	}
	_, listed := c.codes[apiErr.Code]
	return listed
}
