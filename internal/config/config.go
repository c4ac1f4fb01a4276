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

	"github.com/noah-isme/backend-detailing/internal/pricing"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string
	CurrencyCode       string

	PricingFallbackPrice  float64
	PricingMaxQuantity    int
	InvoiceDefaultService string
	InvoiceTaxRate        float64
	InvoiceTaxEnabled     bool

	CatalogCacheTTL  time.Duration
	SettingsCacheTTL time.Duration
	IdempotencyTTL   time.Duration
	LockTTL          time.Duration
	LockRetryBackoff time.Duration

	LoyaltyAwardAsync bool
	QueueConcurrency  int
	QueueMaxRetry     int
	QueueRetryBase    time.Duration

	DeliveryWebhookURL    string
	DeliveryWebhookSecret string
	OutboundTimeout       time.Duration
	RetryBase             time.Duration
	RetryMaxAttempts      int
	RetryJitter           float64
	CircuitMinRequests    int
	CircuitFailureRate    float64
	CircuitOpenFor        time.Duration

	RateLimit      string
	BodyLimitBytes int64
	MigrateOnStart bool
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
		CurrencyCode:       strings.ToUpper(valueOrDefault(k.String("CURRENCY_CODE"), "USD")),

		PricingFallbackPrice:  parseFloat(k.String("PRICING_FALLBACK_PRICE"), 150),
		PricingMaxQuantity:    parseInt(k.String("PRICING_MAX_QUANTITY"), 10),
		InvoiceDefaultService: valueOrDefault(k.String("INVOICE_DEFAULT_SERVICE"), "Full Detail"),
		InvoiceTaxRate:        parseFloat(k.String("INVOICE_TAX_RATE"), 0),
		InvoiceTaxEnabled:     parseBool(k.String("INVOICE_TAX_ENABLED")),

		CatalogCacheTTL:  parseDuration(k.String("CATALOG_CACHE_TTL"), "5m"),
		SettingsCacheTTL: parseDuration(k.String("SETTINGS_CACHE_TTL"), "1m"),
		IdempotencyTTL:   parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		LockTTL:          parseDuration(k.String("LOCK_TTL"), "30s"),
		LockRetryBackoff: parseDuration(k.String("LOCK_RETRY_BACKOFF"), "50ms"),

		LoyaltyAwardAsync: parseBoolDefault(k.String("LOYALTY_AWARD_ASYNC"), true),
		QueueConcurrency:  parseInt(k.String("QUEUE_CONCURRENCY"), 5),
		QueueMaxRetry:     parseInt(k.String("QUEUE_MAX_RETRY"), 8),
		QueueRetryBase:    parseDuration(k.String("QUEUE_RETRY_BASE"), "5s"),

		DeliveryWebhookURL:    strings.TrimSpace(k.String("DELIVERY_WEBHOOK_URL")),
		DeliveryWebhookSecret: k.String("DELIVERY_WEBHOOK_SECRET"),
		OutboundTimeout:       parseDuration(k.String("OUTBOUND_TIMEOUT"), "5s"),
		RetryBase:             parseDuration(k.String("RETRY_BASE"), "200ms"),
		RetryMaxAttempts:      parseInt(k.String("RETRY_MAX_ATTEMPTS"), 3),
		RetryJitter:           parseFloat(k.String("RETRY_JITTER"), 0.2),
		CircuitMinRequests:    parseInt(k.String("CIRCUIT_MIN_REQUESTS"), 5),
		CircuitFailureRate:    parseFloat(k.String("CIRCUIT_FAILURE_RATE"), 0.5),
		CircuitOpenFor:        parseDuration(k.String("CIRCUIT_OPEN_FOR"), "30s"),

		RateLimit:      valueOrDefault(k.String("RATE_LIMIT"), "120-M"),
		BodyLimitBytes: int64(parseInt(k.String("BODY_LIMIT_BYTES"), 1<<20)),
		MigrateOnStart: parseBool(k.String("MIGRATE_ON_START")),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.InvoiceTaxRate < 0 || cfg.InvoiceTaxRate > 1 {
		return nil, fmt.Errorf("INVOICE_TAX_RATE must be between 0 and 1, got %v", cfg.InvoiceTaxRate)
	}
	if cfg.PricingMaxQuantity < 1 {
		return nil, errors.New("PRICING_MAX_QUANTITY must be at least 1")
	}
	if !(cfg.PricingFallbackPrice > 0) {
		return nil, errors.New("PRICING_FALLBACK_PRICE must be greater than 0")
	}

	return cfg, nil
}

// PricingPolicy returns the engine bounds configured for this deployment.
func (c *Config) PricingPolicy() pricing.Policy {
	return pricing.Policy{FallbackPrice: c.PricingFallbackPrice, MinQuantity: 1, MaxQuantity: c.PricingMaxQuantity}
}

// DefaultTaxConfig is used until invoice settings are saved.
func (c *Config) DefaultTaxConfig() pricing.TaxConfig {
	return pricing.TaxConfig{Enabled: c.InvoiceTaxEnabled, Rate: c.InvoiceTaxRate}
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
		return strings.TrimSpace(value)
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

func parseBool(value string) bool {
	return parseBoolDefault(value, false)
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

func parseFloat(value string, fallback float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
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
