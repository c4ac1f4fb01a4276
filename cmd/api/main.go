package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/backend-detailing/internal/app"
	"github.com/noah-isme/backend-detailing/internal/catalog"
	"github.com/noah-isme/backend-detailing/internal/common"
	"github.com/noah-isme/backend-detailing/internal/config"
	"github.com/noah-isme/backend-detailing/internal/health"
	"github.com/noah-isme/backend-detailing/internal/invoice"
	"github.com/noah-isme/backend-detailing/internal/loyalty"
	"github.com/noah-isme/backend-detailing/internal/obs"
	"github.com/noah-isme/backend-detailing/internal/queue"
	"github.com/noah-isme/backend-detailing/internal/ratelimit"
	"github.com/noah-isme/backend-detailing/internal/resilience"
	"github.com/noah-isme/backend-detailing/internal/security"
	"github.com/noah-isme/backend-detailing/internal/settings"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "detailing")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	if metricsEnabled {
		obs.MustRegisterDomainMetrics(metricsNamespace, nil)
		resilience.MustRegisterMetrics(metricsNamespace, nil)
		queue.MustRegisterMetrics(metricsNamespace, nil)
	}

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:    "detailing-api",
			ServiceVersion: envOrDefault("APP_VERSION", ""),
			Endpoint:       envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:       envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio:  envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0),
			Environment:    cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	if cfg.MigrateOnStart {
		if err := app.RunMigrations(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
		logger.Info().Msg("migrations applied")
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	deps, err := app.Open(startCtx, cfg, logger, app.Options{ApplicationName: "detailing-api", RedisMetrics: metricsEnabled})
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("open dependencies")
	}
	defer deps.Close()

	services, err := deps.Services(app.ServiceOptions{})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise services")
	}

	limiterStore, err := ratelimit.NewRedisStore(deps.Redis, "ratelimit:api")
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limit store")
	}
	apiLimiter, err := ratelimit.New(limiterStore, cfg.RateLimit)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse RATE_LIMIT")
	}
	rateLimit := ratelimit.Handler{
		Limiter: apiLimiter,
		OnError: func(err error) { logger.Warn().Err(err).Msg("rate limiter unavailable") },
	}

	routes := routerConfig{
		Logger:         logger,
		Tracing:        tracingEnabled,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Headers: security.Headers{
			Enable:     envBool("SECURE_HEADERS_ENABLE", true),
			EnableHSTS: envBool("SECURE_HSTS_ENABLE", cfg.AppEnv == "production"),
		},
		BodyLimit: cfg.BodyLimitBytes,
		RateLimit: rateLimit.Middleware,
		Idem:      common.Idem{R: deps.Redis, TTL: cfg.IdempotencyTTL},
		Health: health.Handler{Probes: []health.Probe{
			{Name: "db", Timeout: envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500), Check: deps.DB.Ping},
			{Name: "redis", Timeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300), Check: func(ctx context.Context) error {
				return deps.Redis.Ping(ctx).Err()
			}},
		}},
		Catalog:  catalog.NewHandler(catalog.HandlerConfig{Service: services.Catalog}),
		Settings: &settings.Handler{Service: services.Settings},
		Invoice:  invoice.NewHandler(services.Invoice),
		Loyalty:  &loyalty.Handler{Service: services.Loyalty},
	}
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		routes.HTTPMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
		routes.MetricsHandler = promhttp.Handler()
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           newRouter(routes),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Bool("loyalty_async", cfg.LoyaltyAwardAsync).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	case <-ctx.Done():
		health.SetReady(false)
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), envDurationMillis("SHUTDOWN_TIMEOUT_MS", 15000))
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown")
		}
	}
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return time.Duration(parsed) * time.Millisecond
		}
	}
	return time.Duration(fallback) * time.Millisecond
}
