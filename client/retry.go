package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	retry "github.com/avast/retry-go/v5"

	"github.com/flowkeep/apiclient/apierr"
)

// dispatch runs one logical request through the recovery policies: bounded
// backoff for 429, and a single refresh-then-replay for the first 401.
// Other failures surface immediately.
func (c *Client) dispatch(ctx context.Context, req Request) (*Response, error) {
	refreshed := false

	op := func() (*Response, error) {
		resp, err := c.attempt(ctx, req)
		if err == nil || !apierr.IsUnauthorized(err) || refreshed || c.skipRefreshFor(req) {
			return resp, err
		}

		// First 401 for this request: wait for the (possibly shared)
		// refresh, then replay exactly once. A second 401 is final.
		refreshed = true
		if rerr := c.refreshCredential(ctx); rerr != nil {
			if errors.Is(rerr, context.Canceled) || errors.Is(rerr, context.DeadlineExceeded) {
				return nil, rerr
			}
			// Surface the original 401 with the refresh failure attached so
			// the session layer classifies it as terminal.
			return nil, fmt.Errorf("%w: %w", err, apierr.ErrRefreshFailed)
		}
		c.metrics.Retry("unauthorized")
		return c.attempt(ctx, req)
	}

	return retry.NewWithData[*Response](
		retry.Context(ctx),
		retry.Attempts(uint(c.cfg.RateLimitRetries)+1),
		retry.RetryIf(apierr.IsRateLimited),
		retry.DelayType(c.rateLimitDelay),
		retry.OnRetry(func(n uint, err error) {
			c.metrics.Retry("rate_limited")
			c.log.Debug().Uint("attempt", n+1).Str("path", req.Path).Msg("replaying rate-limited request")
		}),
		retry.LastErrorOnly(true),
	).Do(op)
}

// rateLimitDelay computes the wait before replaying a 429: the Retry-After
// value (or the configured default) plus random jitter. The global pause
// window is stretched slightly past the per-request wait so concurrent
// requests back off for a comparable duration.
func (c *Client) rateLimitDelay(_ uint, err error, _ retry.DelayContext) time.Duration {
	delay := c.cfg.DefaultRetryAfter
	var apiErr *apierr.Error
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusTooManyRequests {
		// attempt populates RetryAfter on every 429, with the default
		// already folded in for absent or unparseable headers. A zero is
		// deliberate: a Retry-After date in the past means no wait.
		delay = apiErr.RetryAfter
	}
	if c.cfg.JitterMax > 0 {
		delay += time.Duration(rand.Int63n(int64(c.cfg.JitterMax)))
	}
	c.sched.pauseFor(time.Duration(float64(delay) * c.cfg.PauseFactor))
	return delay
}
