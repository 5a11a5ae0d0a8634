package client

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// retentionFactor keeps entries around well past the freshness TTL so a
// later 304 can reuse the last body. Freshness is still judged against the
// entry's own timestamp, never the LRU's.
const retentionFactor = 600

type cacheEntry struct {
	at   time.Time
	resp *Response
}

// responseCache is the GET micro-cache: entries younger than the TTL are
// served without a network call, older ones only back the 304 reuse path.
type responseCache struct {
	ttl     time.Duration
	entries *expirable.LRU[string, *cacheEntry]
	now     func() time.Time
}

func newResponseCache(size int, ttl time.Duration) *responseCache {
	return &responseCache{
		ttl:     ttl,
		entries: expirable.NewLRU[string, *cacheEntry](size, nil, ttl*retentionFactor),
		now:     time.Now,
	}
}

// fresh returns the response for key when its age is still under the TTL.
func (c *responseCache) fresh(key string) (*Response, bool) {
	e, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.at) >= c.ttl {
		return nil, false
	}
	return e.resp, true
}

// last returns whatever body is retained for key regardless of freshness.
// Used only to materialize a 304.
func (c *responseCache) last(key string) (*Response, bool) {
	e, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	return e.resp, true
}

// store records a successful response under key with the current time.
func (c *responseCache) store(key string, resp *Response) {
	c.entries.Add(key, &cacheEntry{at: c.now(), resp: resp})
}

// touch refreshes the timestamp of an existing entry after the server
// confirmed it is still valid.
func (c *responseCache) touch(key string) {
	if e, ok := c.entries.Get(key); ok {
		c.entries.Add(key, &cacheEntry{at: c.now(), resp: e.resp})
	}
}

// clear drops every entry. Only sign-out does this.
func (c *responseCache) clear() {
	c.entries.Purge()
}
