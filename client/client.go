// Package client implements the request pipeline against the flowkeep
// backend: traffic-class pacing, a global rate-limit pause window, GET
// single-flight with a short-lived response cache, bounded 429 backoff and
// the at-most-one credential refresh flow.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/flowkeep/apiclient/apierr"
	"github.com/flowkeep/apiclient/internal/config"
	"github.com/flowkeep/apiclient/internal/metrics"
	"github.com/flowkeep/apiclient/token"
)

// Doer issues a single HTTP request. *http.Client satisfies it; tests
// substitute fakes.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client is the HTTP session coordinator. It has exclusive ownership of the
// process-wide mutable state the pipeline depends on (pause window, cache,
// in-flight map, pending refresh); all check-then-act sequences on that
// state are guarded here, so callers may share one Client freely.
type Client struct {
	cfg       config.Config
	transport Doer
	store     *token.Store
	identity  *token.Identity
	sched     *scheduler
	cache     *responseCache
	log       zerolog.Logger
	metrics   *metrics.Collector
	now       func() time.Time

	sfMu sync.Mutex
	sf   *singleflight.Group

	refreshMu      sync.Mutex
	refreshPending *refreshTask
}

// Option configures a Client.
type Option func(*Client)

// WithTransport replaces the underlying HTTP transport. The transport owns
// the cookie jar carrying the refresh credential.
func WithTransport(d Doer) Option {
	return func(c *Client) {
		if d != nil {
			c.transport = d
		}
	}
}

// WithLogger attaches a logger; the default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithMetrics attaches a telemetry collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Client) { c.metrics = m }
}

// WithNowTime sets the clock (primarily for testing).
func WithNowTime(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
		c.sched.now = now
		c.cache.now = now
	}
}

// New creates a Client for the given backend and token state.
func New(cfg config.Config, store *token.Store, identity *token.Identity, options ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("[client.New] token store is required")
	}
	if identity == nil {
		return nil, fmt.Errorf("[client.New] identity is required")
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("[client.New] cookie jar: %w", err)
	}

	c := &Client{
		cfg:       cfg,
		transport: &http.Client{Jar: jar},
		store:     store,
		identity:  identity,
		sched:     newScheduler(cfg.ReadGap, cfg.AuthGap),
		cache:     newResponseCache(cfg.CacheSize, cfg.CacheTTL),
		log:       zerolog.Nop(),
		now:       time.Now,
		sf:        &singleflight.Group{},
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Do executes one logical request through the full pipeline and returns the
// materialized response, or a typed error after every applicable recovery
// has been exhausted.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if req.Method == "" || req.Path == "" {
		return nil, fmt.Errorf("[Client.Do] method and path are required")
	}
	if req.Method != http.MethodGet {
		return c.dispatch(ctx, req)
	}
	return c.doGet(ctx, req)
}

// doGet serves reads through the micro-cache and the single-flight map.
func (c *Client) doGet(ctx context.Context, req Request) (*Response, error) {
	key := req.cacheKey(c.cfg.BaseURL)
	if resp, ok := c.cache.fresh(key); ok {
		c.metrics.CacheHit()
		return resp.clone(), nil
	}
	c.metrics.CacheMiss()

	c.sfMu.Lock()
	group := c.sf
	c.sfMu.Unlock()

	v, err, shared := group.Do(key, func() (any, error) {
		// Another caller may have populated the cache while this one was
		// queued behind the in-flight map.
		if resp, ok := c.cache.fresh(key); ok {
			return resp, nil
		}
		resp, err := c.dispatch(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.Status == http.StatusNotModified {
			return c.resolveNotModified(ctx, req, key)
		}
		c.cache.store(key, resp)
		return resp, nil
	})
	if shared {
		c.metrics.SingleFlightShared()
	}
	if err != nil {
		return nil, err
	}
	resp, ok := v.(*Response)
	if !ok {
		return nil, apierr.ErrMalformedBody
	}
	// Shared and cached results are handed out as copies so no caller can
	// mutate another's response through the cache or the in-flight map.
	return resp.clone(), nil
}

// resolveNotModified materializes a 304. The normal case reuses the last
// cached body; a 304 with nothing cached should not happen (a conditional
// request implies a prior response) and is logged as an anomaly before one
// forced revalidation with a cache-busting parameter.
func (c *Client) resolveNotModified(ctx context.Context, req Request, key string) (*Response, error) {
	if last, ok := c.cache.last(key); ok {
		c.cache.touch(key)
		return last, nil
	}

	c.log.Warn().Str("path", req.Path).Msg("304 with no cached body, forcing revalidation")
	reval := req
	reval.Query = make(map[string]string, len(req.Query)+1)
	for k, v := range req.Query {
		reval.Query[k] = v
	}
	reval.Query["_"] = strconv.FormatInt(c.now().UnixNano(), 10)
	if req.Header != nil {
		reval.Header = req.Header.Clone()
		reval.Header.Del("If-None-Match")
		reval.Header.Del("If-Modified-Since")
	}

	resp, err := c.dispatch(ctx, reval)
	if err != nil {
		return nil, err
	}
	c.cache.store(key, resp)
	return resp, nil
}

// Reset drops the micro-cache, the in-flight map and the pause window.
// Sign-out is the only caller.
func (c *Client) Reset() {
	c.cache.clear()
	c.sched.clearPause()
	c.sfMu.Lock()
	c.sf = &singleflight.Group{}
	c.sfMu.Unlock()
}

// attempt performs exactly one paced network attempt.
func (c *Client) attempt(ctx context.Context, req Request) (*Response, error) {
	class := classify(req.Method, req.Path, c.cfg.AuthPathPrefix)
	waited, err := c.sched.wait(ctx, class)
	if waited {
		c.metrics.PauseWait()
	}
	if err != nil {
		return nil, err
	}

	attemptCtx := ctx
	cancel := func() {}
	if c.cfg.RequestTimeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
	}
	defer cancel()

	httpReq, err := c.buildHTTPRequest(attemptCtx, req)
	if err != nil {
		return nil, err
	}

	httpResp, err := c.transport.Do(httpReq)
	if err != nil {
		c.log.Debug().Err(err).Str("path", req.Path).Msg("transport failure")
		return nil, fmt.Errorf("%w: %w", apierr.ErrNetwork, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apierr.ErrNetwork, err)
	}

	switch {
	case httpResp.StatusCode == http.StatusNotModified:
		return &Response{Status: httpResp.StatusCode, Header: httpResp.Header}, nil
	case httpResp.StatusCode >= 200 && httpResp.StatusCode <= 299:
		return &Response{
			Status: httpResp.StatusCode,
			Header: httpResp.Header,
			Data:   unwrap(body),
		}, nil
	}

	apiErr := errorFromBody(httpResp.StatusCode, body)
	if httpResp.StatusCode == http.StatusTooManyRequests {
		apiErr.RetryAfter = parseRetryAfter(httpResp.Header, c.cfg.DefaultRetryAfter, c.now)
	} else if httpResp.StatusCode != http.StatusUnauthorized {
		c.log.Warn().Int("status", httpResp.StatusCode).Str("path", req.Path).Msg("request failed")
	}
	return nil, apiErr
}

func (c *Client) buildHTTPRequest(ctx context.Context, req Request) (*http.Request, error) {
	rawURL := c.cfg.BaseURL + req.Path
	if q := req.encodeQuery(); q != "" {
		rawURL += "?" + q
	}

	var bodyReader io.Reader
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("[Client] encode body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, rawURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("[Client] build request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if access := c.store.Get(); access != "" {
		httpReq.Header.Set("Authorization", "Bearer "+access)
	}
	if org := c.identity.OrgID(); org != "" {
		httpReq.Header.Set(c.cfg.OrgHeader, org)
	}
	return httpReq, nil
}

// skipRefreshFor reports whether a 401 on this request must be surfaced
// without the refresh flow: failing sign-in/sign-out calls mean wrong
// credentials, not an expired session.
func (c *Client) skipRefreshFor(req Request) bool {
	return req.Method != http.MethodGet && strings.HasPrefix(req.Path, c.cfg.AuthPathPrefix)
}
