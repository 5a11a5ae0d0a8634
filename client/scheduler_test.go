package client

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	require.Equal(t, classWrite, classify(http.MethodPost, "/entries", "/auth/"))
	require.Equal(t, classWrite, classify(http.MethodDelete, "/auth/sessions", "/auth/"))
	require.Equal(t, classAuth, classify(http.MethodGet, "/auth/me", "/auth/"))
	require.Equal(t, classRead, classify(http.MethodGet, "/entries", "/auth/"))
}

func TestPauseWindowIsMonotonic(t *testing.T) {
	s := newScheduler(0, 0)

	s.pauseFor(500 * time.Millisecond)
	first := s.pauseRemaining()
	require.Greater(t, first, 300*time.Millisecond)

	// A shorter concurrent extension must not shrink the window.
	s.pauseFor(50 * time.Millisecond)
	require.GreaterOrEqual(t, s.pauseRemaining(), first-100*time.Millisecond)

	s.pauseFor(time.Second)
	require.Greater(t, s.pauseRemaining(), 600*time.Millisecond)

	s.clearPause()
	require.LessOrEqual(t, s.pauseRemaining(), time.Duration(0))
}

func TestParseRetryAfterSeconds(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "2")
	require.Equal(t, 2*time.Second, parseRetryAfter(h, time.Second, time.Now))
}

func TestParseRetryAfterHTTPDate(t *testing.T) {
	now := time.Now().UTC()
	h := http.Header{}
	h.Set("Retry-After", now.Add(3*time.Second).Format(http.TimeFormat))

	d := parseRetryAfter(h, time.Second, func() time.Time { return now })
	require.InDelta(t, float64(3*time.Second), float64(d), float64(time.Second))

	// A date in the past means no wait, not the default.
	h.Set("Retry-After", now.Add(-time.Minute).Format(http.TimeFormat))
	require.Equal(t, time.Duration(0), parseRetryAfter(h, time.Second, func() time.Time { return now }))
}

func TestParseRetryAfterFallback(t *testing.T) {
	require.Equal(t, time.Second, parseRetryAfter(http.Header{}, time.Second, time.Now))

	h := http.Header{}
	h.Set("Retry-After", "soonish")
	require.Equal(t, time.Second, parseRetryAfter(h, time.Second, time.Now))

	h.Set("Retry-After", "-5")
	require.Equal(t, time.Second, parseRetryAfter(h, time.Second, time.Now))
}

func TestRequestCacheKeyDropsEmptyParams(t *testing.T) {
	withEmpty := Request{Method: http.MethodGet, Path: "/entries", Query: map[string]string{"page": "1", "filter": ""}}
	without := Request{Method: http.MethodGet, Path: "/entries", Query: map[string]string{"page": "1"}}
	require.Equal(t, without.cacheKey("http://x"), withEmpty.cacheKey("http://x"))

	other := Request{Method: http.MethodGet, Path: "/entries", Query: map[string]string{"page": "2"}}
	require.NotEqual(t, without.cacheKey("http://x"), other.cacheKey("http://x"))
}

func TestResponseCacheFreshness(t *testing.T) {
	cache := newResponseCache(8, 50*time.Millisecond)
	resp := &Response{Status: 200, Data: []byte(`[1]`)}
	cache.store("k", resp)

	got, ok := cache.fresh("k")
	require.True(t, ok)
	require.Same(t, resp, got)

	time.Sleep(70 * time.Millisecond)
	_, ok = cache.fresh("k")
	require.False(t, ok)

	// The stale body stays reachable for 304 reuse.
	got, ok = cache.last("k")
	require.True(t, ok)
	require.Same(t, resp, got)

	cache.touch("k")
	_, ok = cache.fresh("k")
	require.True(t, ok)

	cache.clear()
	_, ok = cache.last("k")
	require.False(t, ok)
}
