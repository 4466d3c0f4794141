package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func required() map[string]string {
	return map[string]string{
		"DATABASE_URL":         "postgres://localhost/tierprice",
		"REDIS_URL":            "redis://localhost:6379/0",
		"PRICING_TOKEN_SECRET": "secret",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(required())
	require.NoError(t, err)

	require.Equal(t, 300*time.Second, cfg.Pricing.CacheTTL)
	require.True(t, cfg.Pricing.CacheEnabled)
	require.Equal(t, "tierprice:", cfg.Pricing.CachePrefix)
	require.Equal(t, 300*time.Millisecond, cfg.Pricing.DebounceDelay)
	require.Equal(t, 50*time.Millisecond, cfg.Pricing.QuickDebounceDelay)
	require.Equal(t, 100*time.Millisecond, cfg.Pricing.VariantDelay)
	require.Equal(t, 10*time.Second, cfg.Pricing.RequestTimeout)
	require.Equal(t, 50, cfg.Pricing.ClientCacheMax)
	require.Equal(t, time.Minute, cfg.Pricing.SweepInterval)
	require.Equal(t, 12*time.Hour, cfg.TokenTTL)
	require.Equal(t, "120-M", cfg.RateLimitQuote)
	require.Equal(t, 2, cfg.Currency.Decimals)
	require.Equal(t, ":8080", cfg.HTTPAddr())
}

func TestLoadOverrides(t *testing.T) {
	env := required()
	env["PRICING_CACHE_ENABLED"] = "false"
	env["PRICING_CACHE_TTL"] = "90s"
	env["PRICING_DEBOUNCE_DELAY"] = "not-a-duration"
	env["CORS_ALLOWED_ORIGINS"] = "https://shop.example, ,https://admin.example"
	env["PORT"] = ":9090"

	cfg, err := LoadForTests(env)
	require.NoError(t, err)
	require.False(t, cfg.Pricing.CacheEnabled)
	require.Equal(t, 90*time.Second, cfg.Pricing.CacheTTL)
	require.Equal(t, 300*time.Millisecond, cfg.Pricing.DebounceDelay)
	require.Equal(t, []string{"https://shop.example", "https://admin.example"}, cfg.CORSAllowedOrigins)
	require.Equal(t, ":9090", cfg.HTTPAddr())
}

func TestLoadRequiresSecrets(t *testing.T) {
	for _, key := range []string{"DATABASE_URL", "REDIS_URL", "PRICING_TOKEN_SECRET"} {
		env := required()
		env[key] = ""
		_, err := LoadForTests(env)
		require.Error(t, err, key)
		require.Contains(t, err.Error(), key)
	}
}

func TestClientDefaultsInMilliseconds(t *testing.T) {
	cfg, err := LoadForTests(required())
	require.NoError(t, err)

	client := cfg.Client()
	require.Equal(t, int64(300), client.DebounceDelay)
	require.Equal(t, int64(50), client.QuickDebounceDelay)
	require.Equal(t, int64(300000), client.CacheTTL)
	require.Equal(t, int64(10000), client.RequestTimeout)
	require.Equal(t, 50, client.CacheMaxEntries)
	require.True(t, client.EnableCache)
}
