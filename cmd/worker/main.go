package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-detailing/internal/app"
	"github.com/noah-isme/backend-detailing/internal/config"
	"github.com/noah-isme/backend-detailing/internal/events"
	"github.com/noah-isme/backend-detailing/internal/obs"
	"github.com/noah-isme/backend-detailing/internal/queue"
	"github.com/noah-isme/backend-detailing/internal/resilience"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "detailing")
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)
	resilience.MustRegisterMetrics(metricsNamespace, nil)
	queue.MustRegisterMetrics(metricsNamespace, nil)

	if !strings.EqualFold(envOrDefault("OBS_ENABLE_TRACING", "true"), "false") {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:    "detailing-worker",
			ServiceVersion: envOrDefault("APP_VERSION", ""),
			Endpoint:       envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:       envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			Environment:    cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	deps, err := app.Open(startCtx, cfg, logger, app.Options{ApplicationName: "detailing-worker"})
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("open dependencies")
	}
	defer deps.Close()

	var notifiers []events.Notifier
	delivery, err := app.DeliveryNotifier(cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("configure delivery webhook")
	}
	if delivery != nil {
		notifiers = append(notifiers, delivery)
	} else {
		logger.Warn().Msg("DELIVERY_WEBHOOK_URL not set; events are persisted but not forwarded")
	}

	services, err := deps.Services(app.ServiceOptions{Notifiers: notifiers})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise services")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	srv := asynq.NewServer(app.TaskRedisOpt(redisOpts), asynq.Config{
		Concurrency:     cfg.QueueConcurrency,
		Queues:          queue.Queues(),
		Logger:          queue.Logger{L: logger},
		ShutdownTimeout: 20 * time.Second,
		RetryDelayFunc: func(n int, _ error, _ *asynq.Task) time.Duration {
			return resilience.Backoff(cfg.QueueRetryBase, n+1, cfg.RetryJitter)
		},
	})

	mux := queue.NewMux(logger, services.Loyalty, services.Events)
	logger.Info().Int("concurrency", cfg.QueueConcurrency).Msg("worker starting")
	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start worker")
	}
	<-ctx.Done()
	logger.Info().Msg("worker shutting down")
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
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
