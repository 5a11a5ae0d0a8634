// Package metrics exposes telemetry for the recovery paths of the HTTP
// layer: retries, refreshes, cache behaviour and bridge outcomes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector is the telemetry surface the client and session layers record
// into. A nil *Collector is a valid no-op, so wiring metrics stays optional.
type Collector struct {
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	singleFlightHit prometheus.Counter
	rateLimitWaits  prometheus.Counter
	retries         *prometheus.CounterVec
	refreshes       *prometheus.CounterVec
	bridgeRequests  *prometheus.CounterVec
	signOuts        *prometheus.CounterVec
}

// NewCollector registers the client metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowkeep_client_cache_hits_total",
			Help: "GET responses served from the micro-cache.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowkeep_client_cache_misses_total",
			Help: "GET requests that went to the network.",
		}),
		singleFlightHit: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowkeep_client_singleflight_shared_total",
			Help: "GET requests that joined an in-flight identical call.",
		}),
		rateLimitWaits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowkeep_client_pause_waits_total",
			Help: "Requests delayed by the global rate-limit pause window.",
		}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowkeep_client_retries_total",
			Help: "Request replays by trigger.",
		}, []string{"reason"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowkeep_client_refreshes_total",
			Help: "Credential refresh operations by outcome.",
		}, []string{"outcome"}),
		bridgeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowkeep_client_bridge_requests_total",
			Help: "Cross-tab token requests by outcome.",
		}, []string{"outcome"}),
		signOuts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowkeep_client_sign_outs_total",
			Help: "Sign-out transitions by trigger.",
		}, []string{"trigger"}),
	}

	reg.MustRegister(
		c.cacheHits,
		c.cacheMisses,
		c.singleFlightHit,
		c.rateLimitWaits,
		c.retries,
		c.refreshes,
		c.bridgeRequests,
		c.signOuts,
	)

	return c
}

func (c *Collector) CacheHit() {
	if c != nil {
		c.cacheHits.Inc()
	}
}

func (c *Collector) CacheMiss() {
	if c != nil {
		c.cacheMisses.Inc()
	}
}

func (c *Collector) SingleFlightShared() {
	if c != nil {
		c.singleFlightHit.Inc()
	}
}

func (c *Collector) PauseWait() {
	if c != nil {
		c.rateLimitWaits.Inc()
	}
}

func (c *Collector) Retry(reason string) {
	if c != nil {
		c.retries.WithLabelValues(reason).Inc()
	}
}

func (c *Collector) Refresh(outcome string) {
	if c != nil {
		c.refreshes.WithLabelValues(outcome).Inc()
	}
}

func (c *Collector) BridgeRequest(outcome string) {
	if c != nil {
		c.bridgeRequests.WithLabelValues(outcome).Inc()
	}
}

func (c *Collector) SignOut(trigger string) {
	if c != nil {
		c.signOuts.WithLabelValues(trigger).Inc()
	}
}
