package client

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnwrapEnvelope(t *testing.T) {
	require.JSONEq(t, `{"id":"1"}`, string(unwrap([]byte(`{"data":{"id":"1"}}`))))
	require.JSONEq(t, `{"id":"1"}`, string(unwrap([]byte(`{"id":"1"}`))))
	require.JSONEq(t, `[1,2]`, string(unwrap([]byte(`[1,2]`))))
}

func TestErrorFromBodyEnvelope(t *testing.T) {
	e := errorFromBody(http.StatusUnauthorized, []byte(`{"error":{"code":"token_not_valid","message":"nope"}}`))
	require.Equal(t, http.StatusUnauthorized, e.Status)
	require.Equal(t, "token_not_valid", e.Code)
	require.Equal(t, "nope", e.Message)
}

func TestErrorFromBodyBare(t *testing.T) {
	e := errorFromBody(http.StatusForbidden, []byte(`{"code":"forbidden","message":"no access"}`))
	require.Equal(t, "forbidden", e.Code)
}

func TestErrorFromBodyMalformed(t *testing.T) {
	e := errorFromBody(http.StatusBadGateway, []byte(`<html>upstream died</html>`))
	require.Equal(t, http.StatusBadGateway, e.Status)
	require.Contains(t, e.Message, "upstream died")

	empty := errorFromBody(http.StatusServiceUnavailable, nil)
	require.Equal(t, http.StatusText(http.StatusServiceUnavailable), empty.Message)
}

func TestDecodeAccessShapes(t *testing.T) {
	access, err := decodeAccess([]byte(`{"access":"tok-1"}`))
	require.NoError(t, err)
	require.Equal(t, "tok-1", access)

	access, err = decodeAccess([]byte(`{"data":{"access":"tok-2"}}`))
	require.NoError(t, err)
	require.Equal(t, "tok-2", access)

	_, err = decodeAccess([]byte(`{"something":"else"}`))
	require.Error(t, err)
}
