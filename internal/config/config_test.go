package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultValidatesWithBaseURL(t *testing.T) {
	cfg := Default()
	require.Error(t, cfg.Validate(), "base_url has no sensible default")

	cfg.BaseURL = "https://api.flowkeep.app"
	require.NoError(t, cfg.Validate())
}

func TestValidateRejections(t *testing.T) {
	base := Default()
	base.BaseURL = "https://api.flowkeep.app"

	cfg := base
	cfg.AuthPathPrefix = ""
	require.ErrorContains(t, cfg.Validate(), "auth_path_prefix")

	cfg = base
	cfg.CacheSize = 0
	require.ErrorContains(t, cfg.Validate(), "cache_size")

	cfg = base
	cfg.RateLimitRetries = -1
	require.ErrorContains(t, cfg.Validate(), "rate_limit_retries")

	cfg = base
	cfg.PauseFactor = 0.5
	require.ErrorContains(t, cfg.Validate(), "pause_factor")
}

func TestLoadBytesYAMLOverridesDefaults(t *testing.T) {
	cfg, err := LoadBytes([]byte(`
base_url: https://api.flowkeep.app
read_gap: 150ms
rate_limit_retries: 5
hard_sign_out_codes:
  - session_revoked
`), FormatYAML)
	require.NoError(t, err)

	require.Equal(t, "https://api.flowkeep.app", cfg.BaseURL)
	require.Equal(t, 150*time.Millisecond, cfg.ReadGap)
	require.Equal(t, 5, cfg.RateLimitRetries)
	require.Equal(t, []string{"session_revoked"}, cfg.HardSignOutCodes)

	// Untouched keys keep their defaults.
	require.Equal(t, 500*time.Millisecond, cfg.AuthGap)
	require.Equal(t, "/auth/", cfg.AuthPathPrefix)
}

func TestLoadBytesJSON(t *testing.T) {
	cfg, err := LoadBytes([]byte(`{"base_url":"https://api.flowkeep.app","cache_ttl":"250ms"}`), FormatJSON)
	require.NoError(t, err)
	require.Equal(t, 250*time.Millisecond, cfg.CacheTTL)
}

func TestLoadBytesInvalid(t *testing.T) {
	_, err := LoadBytes([]byte(`read_gap: 1s`), FormatYAML)
	require.ErrorContains(t, err, "base_url")

	_, err = LoadBytes([]byte(`{`), FormatJSON)
	require.Error(t, err)

	_, err = LoadBytes(nil, Format("toml"))
	require.ErrorContains(t, err, "unsupported format")
}

func TestDetectFormat(t *testing.T) {
	f, err := detectFormat("client.yaml")
	require.NoError(t, err)
	require.Equal(t, FormatYAML, f)

	f, err = detectFormat("client.json")
	require.NoError(t, err)
	require.Equal(t, FormatJSON, f)

	_, err = detectFormat("client.conf")
	require.Error(t, err)
}
