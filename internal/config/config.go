// Package config holds the tunables of the HTTP/session layer. Values are
// plain struct fields with working defaults; Load and LoadBytes hydrate them
// from YAML or JSON files via koanf.
package config

import (
	"errors"
	"time"
)

// Config carries every knob of the client core. The zero value is not
// usable; start from Default() and override.
type Config struct {
	// BaseURL is the backend origin, e.g. "https://api.flowkeep.app".
	BaseURL string `koanf:"base_url"`

	// AuthPathPrefix marks the authentication surface. GET requests under
	// this prefix are paced as the "auth" traffic class and the refresh and
	// sign-in endpoints live beneath it.
	AuthPathPrefix string `koanf:"auth_path_prefix"`

	// OrgHeader is the header carrying the active organization scope id.
	OrgHeader string `koanf:"org_header"`

	// ReadGap and AuthGap are the minimum intervals between dispatches of
	// the read and auth traffic classes. Writes are never paced.
	ReadGap time.Duration `koanf:"read_gap"`
	AuthGap time.Duration `koanf:"auth_gap"`

	// CacheTTL bounds the age of micro-cache entries; CacheSize bounds how
	// many response bodies are retained.
	CacheTTL  time.Duration `koanf:"cache_ttl"`
	CacheSize int           `koanf:"cache_size"`

	// RateLimitRetries caps replays of a 429'd request. DefaultRetryAfter
	// applies when the Retry-After header is absent or unparseable.
	// JitterMax is the upper bound of the random delay added to each wait.
	// PauseFactor stretches the global pause window past the per-request
	// wait so concurrent requests back off a little longer.
	RateLimitRetries  int           `koanf:"rate_limit_retries"`
	DefaultRetryAfter time.Duration `koanf:"default_retry_after"`
	JitterMax         time.Duration `koanf:"jitter_max"`
	PauseFactor       float64       `koanf:"pause_factor"`

	// BridgeTimeout bounds how long a tab waits for a sibling to answer a
	// token request before falling back to cookie-based refresh.
	BridgeTimeout time.Duration `koanf:"bridge_timeout"`

	// ResyncThrottle is the minimum interval between non-forced session
	// resyncs triggered by cross-tab signals.
	ResyncThrottle time.Duration `koanf:"resync_throttle"`

	// RequestTimeout applies to each individual network attempt.
	RequestTimeout time.Duration `koanf:"request_timeout"`

	// HardSignOutCodes is the allow-list of backend error codes that
	// terminate the session. Empty means the built-in defaults.
	HardSignOutCodes []string `koanf:"hard_sign_out_codes"`
}

// Default returns the configuration used in production unless overridden.
func Default() Config {
	return Config{
		AuthPathPrefix:    "/auth/",
		OrgHeader:         "X-Org-External-Id",
		ReadGap:           300 * time.Millisecond,
		AuthGap:           500 * time.Millisecond,
		CacheTTL:          500 * time.Millisecond,
		CacheSize:         256,
		RateLimitRetries:  3,
		DefaultRetryAfter: time.Second,
		JitterMax:         250 * time.Millisecond,
		PauseFactor:       1.1,
		BridgeTimeout:     800 * time.Millisecond,
		ResyncThrottle:    5 * time.Second,
		RequestTimeout:    30 * time.Second,
	}
}

// Validate rejects configurations the client cannot run with.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("config: base_url is required")
	}
	if c.AuthPathPrefix == "" {
		return errors.New("config: auth_path_prefix is required")
	}
	if c.CacheSize <= 0 {
		return errors.New("config: cache_size must be positive")
	}
	if c.RateLimitRetries < 0 {
		return errors.New("config: rate_limit_retries must not be negative")
	}
	if c.PauseFactor < 1 {
		return errors.New("config: pause_factor must be at least 1")
	}
	return nil
}
