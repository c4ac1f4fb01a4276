package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-detailing/internal/cache"
	"github.com/noah-isme/backend-detailing/internal/common"
	"github.com/noah-isme/backend-detailing/internal/db"
	"github.com/noah-isme/backend-detailing/internal/obs"
	"github.com/noah-isme/backend-detailing/internal/pricing"
)

// rates are stored as NUMERIC(6,5)
const ratePlaces = 5

// ErrNotConfigured is returned by a Store when no settings row exists yet.
var ErrNotConfigured = errors.New("invoice settings not configured")

// Update is the validated payload for changing the tax configuration.
type Update struct {
	TaxRate    *float64 `json:"taxRate" validate:"required,gte=0,lte=1"`
	TaxEnabled *bool    `json:"taxEnabled" validate:"required"`
}

// Store persists the singleton settings row.
type Store interface {
	Get(ctx context.Context) (pricing.TaxConfig, error)
	Put(ctx context.Context, cfg pricing.TaxConfig) error
}

// Service resolves the current tax configuration.
type Service struct {
	store    Store
	cache    *cache.JSON
	defaults pricing.TaxConfig
}

// NewService constructs a Service. Defaults apply until settings are saved.
func NewService(store Store, jc *cache.JSON, defaults pricing.TaxConfig) *Service {
	return &Service{store: store, cache: jc, defaults: defaults}
}

// TaxConfig returns the stored configuration, the cached copy, or the defaults.
// Storage failures degrade to the defaults so invoices can still be priced.
func (s *Service) TaxConfig(ctx context.Context) pricing.TaxConfig {
	cfg, err := s.Current(ctx)
	if err != nil {
		obs.Logger(ctx).Warn().Err(err).Msg("invoice settings unavailable, using defaults")
		return s.defaults
	}
	return cfg
}

// Current is TaxConfig with storage errors surfaced.
func (s *Service) Current(ctx context.Context) (pricing.TaxConfig, error) {
	var cached pricing.TaxConfig
	if ok, err := s.cache.Get(ctx, cache.KeyInvoiceSettings, &cached); err == nil && ok {
		return cached, nil
	}
	if s.store == nil {
		return s.defaults, nil
	}
	cfg, err := s.store.Get(ctx)
	if errors.Is(err, ErrNotConfigured) {
		return s.defaults, nil
	}
	if err != nil {
		return pricing.TaxConfig{}, err
	}
	if err := s.cache.Set(ctx, cache.KeyInvoiceSettings, cfg); err != nil {
		obs.Logger(ctx).Warn().Err(err).Msg("settings cache write failed")
	}
	return cfg, nil
}

// Save validates and persists an update, returning the new configuration. The
// rate is rounded to the precision the database keeps.
func (s *Service) Save(ctx context.Context, in Update) (pricing.TaxConfig, error) {
	if err := common.Validate(in); err != nil {
		return pricing.TaxConfig{}, err
	}
	if s.store == nil {
		return pricing.TaxConfig{}, errors.New("settings store not configured")
	}
	rate := decimal.NewFromFloat(*in.TaxRate).Round(ratePlaces).InexactFloat64()
	cfg := pricing.TaxConfig{Enabled: *in.TaxEnabled, Rate: rate}
	if err := s.store.Put(ctx, cfg); err != nil {
		return pricing.TaxConfig{}, err
	}
	if err := s.cache.Invalidate(ctx, cache.KeyInvoiceSettings); err != nil {
		obs.Logger(ctx).Warn().Err(err).Msg("settings cache invalidate failed")
	}
	obs.Logger(ctx).Info().Bool("tax_enabled", cfg.Enabled).Float64("tax_rate", cfg.Rate).Msg("invoice settings updated")
	return cfg, nil
}

// PGStore keeps settings in the invoice_settings singleton row.
type PGStore struct {
	DB db.DBTX
}

// Get implements Store.
func (s *PGStore) Get(ctx context.Context) (pricing.TaxConfig, error) {
	var cfg pricing.TaxConfig
	err := s.DB.QueryRow(ctx, `SELECT tax_rate::float8, tax_enabled FROM invoice_settings WHERE id = 1`).Scan(&cfg.Rate, &cfg.Enabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return pricing.TaxConfig{}, ErrNotConfigured
	}
	if err != nil {
		return pricing.TaxConfig{}, fmt.Errorf("load invoice settings: %w", err)
	}
	return cfg, nil
}

// Put implements Store.
func (s *PGStore) Put(ctx context.Context, cfg pricing.TaxConfig) error {
	_, err := s.DB.Exec(ctx, `
INSERT INTO invoice_settings (id, tax_rate, tax_enabled) VALUES (1, $1, $2)
ON CONFLICT (id) DO UPDATE SET tax_rate = EXCLUDED.tax_rate, tax_enabled = EXCLUDED.tax_enabled, updated_at = now()`,
		cfg.Rate, cfg.Enabled)
	if err != nil {
		return fmt.Errorf("save invoice settings: %w", err)
	}
	return nil
}
