package main

import (
	"context"
	"errors"
	"time"

	"github.com/noah-isme/backend-detailing/internal/app"
	"github.com/noah-isme/backend-detailing/internal/catalog"
	"github.com/noah-isme/backend-detailing/internal/config"
	"github.com/noah-isme/backend-detailing/internal/obs"
	"github.com/noah-isme/backend-detailing/internal/settings"
)

// defaultServices is the starter detailing menu.
var defaultServices = []catalog.Record{
	{Name: "Full Detail", PriceRange: "$150-200", DurationMinutes: 240, Description: "Interior and exterior detail"},
	{Name: "Exterior Wash", PriceRange: "$40", DurationMinutes: 45, Description: "Hand wash and dry"},
	{Name: "Interior Detail", PriceRange: "$80-120", DurationMinutes: 120, Description: "Vacuum, shampoo and wipe-down"},
	{Name: "Wax", PriceRange: "$75", DurationMinutes: 60, Description: "Hand-applied carnauba wax"},
	{Name: "Paint Correction", PriceRange: "$300-500", DurationMinutes: 360},
	{Name: "Ceramic Coating", PriceRange: "from $899", DurationMinutes: 480},
	{Name: "Headlight Restoration", PriceRange: "$60", DurationMinutes: 45},
	{Name: "Fleet Package", PriceRange: "Ask for quote"},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger("console", "info").With().Str("component", "seeder").Logger()
	ctx := logger.WithContext(context.Background())

	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	deps, err := app.Open(openCtx, cfg, logger, app.Options{ApplicationName: "detailing-seeder"})
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("open dependencies")
	}
	defer deps.Close()

	services, err := deps.Services(app.ServiceOptions{})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise services")
	}

	for i, rec := range defaultServices {
		rec.SortOrder = i
		if err := services.Catalog.Upsert(ctx, rec); err != nil {
			logger.Error().Err(err).Str("service", rec.Name).Msg("seed service")
			continue
		}
		logger.Info().Str("service", rec.Name).Str("price_range", rec.PriceRange).Msg("seeded service")
	}

	store := &settings.PGStore{DB: deps.DB}
	if _, err := store.Get(ctx); errors.Is(err, settings.ErrNotConfigured) {
		defaults := cfg.DefaultTaxConfig()
		if _, err := services.Settings.Save(ctx, settings.Update{TaxRate: &defaults.Rate, TaxEnabled: &defaults.Enabled}); err != nil {
			logger.Error().Err(err).Msg("seed invoice settings")
		}
	} else if err != nil {
		logger.Error().Err(err).Msg("read invoice settings")
	}

	logger.Info().Msg("seeding completed")
}
