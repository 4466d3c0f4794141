package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string

	TokenSecret string
	TokenTTL    time.Duration
	AdminToken  string

	Pricing  Pricing
	Currency Currency

	RateLimitQuote    string
	WorkerConcurrency int
}

// Pricing groups the cache and client timing knobs.
type Pricing struct {
	CacheTTL           time.Duration
	CacheEnabled       bool
	CachePrefix        string
	DebounceDelay      time.Duration
	QuickDebounceDelay time.Duration
	VariantDelay       time.Duration
	RequestTimeout     time.Duration
	ClientCacheMax     int
	SweepInterval      time.Duration
}

// Currency controls how money is rendered for the widget.
type Currency struct {
	Symbol      string
	Position    string
	DecimalSep  string
	ThousandSep string
	Decimals    int
}

// ClientDefaults is the configuration block mirrored to the storefront widget.
type ClientDefaults struct {
	DebounceDelay      int64 `json:"debounce_delay"`
	QuickDebounceDelay int64 `json:"quick_debounce_delay"`
	VariantDelay       int64 `json:"variant_delay"`
	CacheTTL           int64 `json:"cache_ttl"`
	EnableCache        bool  `json:"enable_cache"`
	RequestTimeout     int64 `json:"request_timeout"`
	CacheMaxEntries    int   `json:"cache_max_entries"`
	SweepInterval      int64 `json:"sweep_interval"`
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		TokenSecret:        k.String("PRICING_TOKEN_SECRET"),
		TokenTTL:           parseDuration(k.String("PRICING_TOKEN_TTL"), "12h"),
		AdminToken:         strings.TrimSpace(k.String("PRICING_ADMIN_TOKEN")),
		Pricing: Pricing{
			CacheTTL:           parseDuration(k.String("PRICING_CACHE_TTL"), "300s"),
			CacheEnabled:       parseBoolDefault(k.String("PRICING_CACHE_ENABLED"), true),
			CachePrefix:        valueOrDefault(k.String("PRICING_CACHE_PREFIX"), "tierprice:"),
			DebounceDelay:      parseDuration(k.String("PRICING_DEBOUNCE_DELAY"), "300ms"),
			QuickDebounceDelay: parseDuration(k.String("PRICING_QUICK_DEBOUNCE_DELAY"), "50ms"),
			VariantDelay:       parseDuration(k.String("PRICING_VARIANT_DELAY"), "100ms"),
			RequestTimeout:     parseDuration(k.String("PRICING_REQUEST_TIMEOUT"), "10s"),
			ClientCacheMax:     parseInt(k.String("PRICING_CLIENT_CACHE_MAX"), 50),
			SweepInterval:      parseDuration(k.String("PRICING_CACHE_SWEEP_INTERVAL"), "60s"),
		},
		Currency: Currency{
			Symbol:      valueOrDefault(k.String("CURRENCY_SYMBOL"), "€"),
			Position:    valueOrDefault(strings.ToLower(k.String("CURRENCY_POSITION")), "left"),
			DecimalSep:  valueOrDefault(k.String("CURRENCY_DECIMAL_SEP"), ","),
			ThousandSep: valueOrDefault(k.String("CURRENCY_THOUSAND_SEP"), "."),
			Decimals:    parseInt(k.String("CURRENCY_DECIMALS"), 2),
		},
		RateLimitQuote:    valueOrDefault(k.String("RATE_LIMIT_QUOTE"), "120-M"),
		WorkerConcurrency: parseInt(k.String("WORKER_CONCURRENCY"), 5),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.TokenSecret == "" {
		return nil, errors.New("PRICING_TOKEN_SECRET is required")
	}
	if cfg.Pricing.ClientCacheMax < 1 {
		return nil, errors.New("PRICING_CLIENT_CACHE_MAX must be positive")
	}
	if cfg.Currency.Decimals < 0 {
		return nil, errors.New("CURRENCY_DECIMALS must not be negative")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// Client converts the pricing block into the millisecond values the widget expects.
func (c *Config) Client() ClientDefaults {
	p := c.Pricing
	return ClientDefaults{
		DebounceDelay:      p.DebounceDelay.Milliseconds(),
		QuickDebounceDelay: p.QuickDebounceDelay.Milliseconds(),
		VariantDelay:       p.VariantDelay.Milliseconds(),
		CacheTTL:           p.CacheTTL.Milliseconds(),
		EnableCache:        p.CacheEnabled,
		RequestTimeout:     p.RequestTimeout.Milliseconds(),
		CacheMaxEntries:    p.ClientCacheMax,
		SweepInterval:      p.SweepInterval.Milliseconds(),
	}
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseInt(value string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
