package apierr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flowkeep/apiclient/apierr"
)

func TestNewFromEnvelope(t *testing.T) {
	e := apierr.New(http.StatusUnauthorized, &apierr.Body{Code: "token_not_valid", Message: "token expired"})
	require.Equal(t, http.StatusUnauthorized, e.Status)
	require.Equal(t, "token_not_valid", e.Code)
	require.Equal(t, "token expired", e.Message)
	require.Contains(t, e.Error(), "token_not_valid")
}

func TestNewWithoutBodyFallsBackToStatusText(t *testing.T) {
	e := apierr.New(http.StatusBadGateway, nil)
	require.Equal(t, http.StatusText(http.StatusBadGateway), e.Message)
	require.Empty(t, e.Code)
}

func TestStatusOfSeesThroughWrapping(t *testing.T) {
	base := apierr.New(http.StatusTooManyRequests, nil)
	base.RetryAfter = 2 * time.Second
	wrapped := fmt.Errorf("dispatch: %w", base)

	require.Equal(t, http.StatusTooManyRequests, apierr.StatusOf(wrapped))
	require.True(t, apierr.IsRateLimited(wrapped))
	require.False(t, apierr.IsUnauthorized(wrapped))
	require.Equal(t, 0, apierr.StatusOf(errors.New("plain")))
}

func TestIsNetwork(t *testing.T) {
	require.True(t, apierr.IsNetwork(fmt.Errorf("%w: dial tcp refused", apierr.ErrNetwork)))
	require.False(t, apierr.IsNetwork(apierr.New(http.StatusInternalServerError, nil)))
}

func TestMustSignOutDefaults(t *testing.T) {
	c := apierr.NewSignOutClassifier(nil)

	require.False(t, c.MustSignOut(nil))
	require.True(t, c.MustSignOut(apierr.ErrRefreshFailed))
	require.True(t, c.MustSignOut(apierr.ErrUserMismatch))
	require.True(t, c.MustSignOut(apierr.ErrUserMissing))
	require.True(t, c.MustSignOut(apierr.New(http.StatusUnauthorized, nil)))
	require.True(t, c.MustSignOut(apierr.New(http.StatusForbidden, &apierr.Body{Code: "token_not_valid"})))
	require.True(t, c.MustSignOut(apierr.New(http.StatusForbidden, &apierr.Body{Code: "authentication_failed"})))

	require.False(t, c.MustSignOut(apierr.New(http.StatusForbidden, &apierr.Body{Code: "plan_limit_reached"})))
	require.False(t, c.MustSignOut(apierr.New(http.StatusTooManyRequests, nil)))
	require.False(t, c.MustSignOut(errors.New("not an api error")))
}

func TestMustSignOutCustomCodes(t *testing.T) {
	c := apierr.NewSignOutClassifier([]string{"session_revoked"})

	require.True(t, c.MustSignOut(apierr.New(http.StatusForbidden, &apierr.Body{Code: "session_revoked"})))
	// A custom list replaces the defaults instead of extending them.
	require.False(t, c.MustSignOut(apierr.New(http.StatusForbidden, &apierr.Body{Code: "token_not_valid"})))
}
