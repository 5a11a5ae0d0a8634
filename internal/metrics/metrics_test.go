package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounts(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.CacheHit()
	c.CacheHit()
	c.CacheMiss()
	c.SingleFlightShared()
	c.PauseWait()
	c.Retry("rate_limited")
	c.Refresh("success")
	c.BridgeRequest("hit")
	c.SignOut("user")

	require.Equal(t, 2.0, testutil.ToFloat64(c.cacheHits))
	require.Equal(t, 1.0, testutil.ToFloat64(c.cacheMisses))
	require.Equal(t, 1.0, testutil.ToFloat64(c.singleFlightHit))
	require.Equal(t, 1.0, testutil.ToFloat64(c.rateLimitWaits))
	require.Equal(t, 1.0, testutil.ToFloat64(c.retries.WithLabelValues("rate_limited")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.refreshes.WithLabelValues("success")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.bridgeRequests.WithLabelValues("hit")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.signOuts.WithLabelValues("user")))
}

func TestNilCollectorIsNoOp(t *testing.T) {
	var c *Collector
	require.NotPanics(t, func() {
		c.CacheHit()
		c.CacheMiss()
		c.SingleFlightShared()
		c.PauseWait()
		c.Retry("x")
		c.Refresh("x")
		c.BridgeRequest("x")
		c.SignOut("x")
	})
}
