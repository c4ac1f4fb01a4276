package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-detailing/internal/catalog"
	"github.com/noah-isme/backend-detailing/internal/common"
	"github.com/noah-isme/backend-detailing/internal/health"
	"github.com/noah-isme/backend-detailing/internal/invoice"
	"github.com/noah-isme/backend-detailing/internal/loyalty"
	"github.com/noah-isme/backend-detailing/internal/obs"
	"github.com/noah-isme/backend-detailing/internal/security"
	"github.com/noah-isme/backend-detailing/internal/settings"
)

type routerConfig struct {
	Logger         zerolog.Logger
	HTTPMetrics    *obs.HTTPMetrics
	MetricsHandler http.Handler
	Tracing        bool
	AllowedOrigins []string
	Headers        security.Headers
	BodyLimit      int64
	RateLimit      func(http.Handler) http.Handler
	Idem           common.Idem

	Health   health.Handler
	Catalog  *catalog.Handler
	Settings *settings.Handler
	Invoice  *invoice.Handler
	Loyalty  *loyalty.Handler
}

func newRouter(cfg routerConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	r.Use(obs.HTTPObs{Metrics: cfg.HTTPMetrics}.Middleware)
	r.Use(obs.RequestLogger{Logger: cfg.Logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg.AllowedOrigins),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Idempotency-Key"},
		ExposedHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		MaxAge:         300,
	}))
	r.Use(cfg.Headers.Middleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		common.JSONError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
	})

	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}
	r.Get("/health/live", cfg.Health.Live)
	r.Get("/health/ready", cfg.Health.Ready)

	r.Route("/api", func(api chi.Router) {
		api.Use(security.BodyLimit{Max: cfg.BodyLimit}.Middleware)
		if cfg.RateLimit != nil {
			api.Use(cfg.RateLimit)
		}

		if cfg.Catalog != nil {
			api.Get("/services", cfg.Catalog.List)
		}
		if cfg.Settings != nil {
			api.Get("/invoice/settings", cfg.Settings.Get)
			api.Put("/invoice/settings", cfg.Settings.Put)
		}
		if cfg.Invoice != nil {
			api.Post("/invoice/draft", cfg.Invoice.Draft)
			api.Post("/invoice/items", cfg.Invoice.Items)
			api.Post("/invoice/totals", cfg.Invoice.Totals)
			api.With(cfg.Idem.Middleware).Post("/dashboard/send-invoice", cfg.Invoice.Send)
			api.Get("/invoices/{id}", cfg.Invoice.Get)
		}
		if cfg.Loyalty != nil {
			api.With(cfg.Idem.Middleware).Post("/invoice/award-loyalty-points", cfg.Loyalty.Award)
			api.Get("/loyalty/{phone}", cfg.Loyalty.Balance)
		}
	})
	return r
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
