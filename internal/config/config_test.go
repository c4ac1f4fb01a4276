package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-detailing/internal/pricing"
)

func baseEnv() map[string]string {
	return map[string]string{
		"DATABASE_URL":           "postgres://localhost/detailing",
		"REDIS_URL":              "redis://localhost:6379/0",
		"INVOICE_TAX_RATE":       "",
		"INVOICE_TAX_ENABLED":    "",
		"PRICING_FALLBACK_PRICE": "",
		"PRICING_MAX_QUANTITY":   "",
		"LOYALTY_AWARD_ASYNC":    "",
		"CATALOG_CACHE_TTL":      "",
		"PORT":                   "",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(baseEnv())
	require.NoError(t, err)
	require.Equal(t, 150.0, cfg.PricingFallbackPrice)
	require.Equal(t, 10, cfg.PricingMaxQuantity)
	require.Equal(t, 0.0, cfg.InvoiceTaxRate)
	require.False(t, cfg.InvoiceTaxEnabled)
	require.True(t, cfg.LoyaltyAwardAsync)
	require.Equal(t, 5*time.Minute, cfg.CatalogCacheTTL)
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.Equal(t, 10, cfg.PricingPolicy().MaxQuantity)
	require.Equal(t, 150.0, cfg.PricingPolicy().FallbackPrice)
}

func TestLoadOverrides(t *testing.T) {
	env := baseEnv()
	env["INVOICE_TAX_RATE"] = "0.085"
	env["INVOICE_TAX_ENABLED"] = "true"
	env["LOYALTY_AWARD_ASYNC"] = "off"
	env["PORT"] = ":9090"
	cfg, err := LoadForTests(env)
	require.NoError(t, err)
	require.Equal(t, 0.085, cfg.InvoiceTaxRate)
	require.True(t, cfg.InvoiceTaxEnabled)
	require.False(t, cfg.LoyaltyAwardAsync)
	require.Equal(t, ":9090", cfg.HTTPAddr())
	require.Equal(t, pricing.TaxConfig{Enabled: true, Rate: 0.085}, cfg.DefaultTaxConfig())
}

func TestLoadRejectsInvalidTaxRate(t *testing.T) {
	env := baseEnv()
	env["INVOICE_TAX_RATE"] = "1.5"
	_, err := LoadForTests(env)
	require.Error(t, err)
}

func TestLoadRejectsNonPositiveFallbackPrice(t *testing.T) {
	for _, raw := range []string{"0", "-5", "NaN"} {
		env := baseEnv()
		env["PRICING_FALLBACK_PRICE"] = raw
		_, err := LoadForTests(env)
		require.ErrorContains(t, err, "PRICING_FALLBACK_PRICE", raw)
	}
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	env := baseEnv()
	env["DATABASE_URL"] = ""
	_, err := LoadForTests(env)
	require.Error(t, err)
}
