package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-detailing/internal/cache"
	"github.com/noah-isme/backend-detailing/internal/catalog"
	"github.com/noah-isme/backend-detailing/internal/config"
	"github.com/noah-isme/backend-detailing/internal/db"
	"github.com/noah-isme/backend-detailing/internal/events"
	"github.com/noah-isme/backend-detailing/internal/invoice"
	"github.com/noah-isme/backend-detailing/internal/lock"
	"github.com/noah-isme/backend-detailing/internal/loyalty"
	"github.com/noah-isme/backend-detailing/internal/migration"
	"github.com/noah-isme/backend-detailing/internal/notify"
	"github.com/noah-isme/backend-detailing/internal/queue"
	"github.com/noah-isme/backend-detailing/internal/resilience"
	"github.com/noah-isme/backend-detailing/internal/settings"
)

// Dependencies holds the infrastructure shared by the API, the worker and the tools.
type Dependencies struct {
	Config     *config.Config
	Logger     zerolog.Logger
	DB         *pgxpool.Pool
	Redis      *redis.Client
	TaskClient *asynq.Client
}

// Options tunes Open.
type Options struct {
	ApplicationName string
	RedisMetrics    bool
}

// Open connects Postgres and Redis and prepares the task client.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts Options) (*Dependencies, error) {
	pool, err := db.Connect(ctx, cfg.DatabaseURL, db.PoolOptions{ApplicationName: opts.ApplicationName})
	if err != nil {
		return nil, err
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if opts.RedisMetrics {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Dependencies{
		Config:     cfg,
		Logger:     logger,
		DB:         pool,
		Redis:      redisClient,
		TaskClient: asynq.NewClient(TaskRedisOpt(redisOpts)),
	}, nil
}

// TaskRedisOpt points asynq at the same Redis the rest of the process uses.
func TaskRedisOpt(o *redis.Options) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:      o.Addr,
		Username:  o.Username,
		Password:  o.Password,
		DB:        o.DB,
		TLSConfig: o.TLSConfig,
	}
}

// Close releases the connections in reverse order of Open.
func (d *Dependencies) Close() {
	if d.TaskClient != nil {
		if err := d.TaskClient.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close task client")
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close redis")
		}
	}
	if d.DB != nil {
		d.DB.Close()
	}
}

// RunMigrations applies pending schema migrations.
func RunMigrations(databaseURL string) error {
	m, err := migration.New(databaseURL)
	if err != nil {
		return err
	}
	defer func() { _, _ = m.Close() }()
	return migration.Up(m)
}

// ServiceOptions selects the per-process collaborators.
type ServiceOptions struct {
	// Notifiers receive events dispatched in this process. The API leaves it
	// empty because delivery runs on the worker.
	Notifiers []events.Notifier
}

// Services is the wired domain layer.
type Services struct {
	Catalog  *catalog.Service
	Settings *settings.Service
	Events   *events.Bus
	Loyalty  *loyalty.Service
	Invoice  *invoice.Service
	Enqueuer queue.Enqueuer
}

// Services builds the domain services on top of the shared connections.
func (d *Dependencies) Services(opts ServiceOptions) (*Services, error) {
	cfg := d.Config
	policy := cfg.PricingPolicy()

	enqueuer := queue.Enqueuer{Client: d.TaskClient, MaxRetry: cfg.QueueMaxRetry}

	catalogSvc, err := catalog.NewService(catalog.ServiceConfig{
		Store:  catalog.NewPGStore(d.DB),
		Cache:  cache.New(d.Redis, cfg.CatalogCacheTTL),
		Policy: policy,
	})
	if err != nil {
		return nil, fmt.Errorf("catalog service: %w", err)
	}
	settingsSvc := settings.NewService(&settings.PGStore{DB: d.DB}, cache.New(d.Redis, cfg.SettingsCacheTTL), cfg.DefaultTaxConfig())

	bus := &events.Bus{
		Store:     &events.PGStore{DB: d.DB},
		Scheduler: enqueuer,
		Notifiers: opts.Notifiers,
	}

	loyaltySvc := &loyalty.Service{
		Store:   &loyalty.PGStore{Pool: d.DB},
		Locker:  lock.Locker{R: d.Redis, RetryBackoff: cfg.LockRetryBackoff},
		LockTTL: cfg.LockTTL,
		Events:  bus,
	}

	var scheduler invoice.LoyaltyScheduler = loyaltySvc
	if cfg.LoyaltyAwardAsync {
		scheduler = enqueuer
	}
	invoiceSvc, err := invoice.NewService(invoice.Config{
		Store:          &invoice.PGStore{Pool: d.DB},
		Catalog:        catalogSvc,
		Tax:            settingsSvc,
		Events:         bus,
		Loyalty:        scheduler,
		Policy:         policy,
		DefaultService: cfg.InvoiceDefaultService,
		Currency:       cfg.CurrencyCode,
	})
	if err != nil {
		return nil, fmt.Errorf("invoice service: %w", err)
	}

	return &Services{
		Catalog:  catalogSvc,
		Settings: settingsSvc,
		Events:   bus,
		Loyalty:  loyaltySvc,
		Invoice:  invoiceSvc,
		Enqueuer: enqueuer,
	}, nil
}

// DeliveryNotifier builds the webhook notifier for the invoice delivery
// collaborator. It returns nil when no endpoint is configured.
func DeliveryNotifier(cfg *config.Config, logger *zerolog.Logger) (*notify.WebhookNotifier, error) {
	if cfg.DeliveryWebhookURL == "" {
		return nil, nil
	}
	if err := notify.ValidateURL(cfg.DeliveryWebhookURL); err != nil {
		return nil, err
	}
	if cfg.DeliveryWebhookSecret == "" {
		return nil, errors.New("DELIVERY_WEBHOOK_SECRET is required when DELIVERY_WEBHOOK_URL is set")
	}
	return &notify.WebhookNotifier{
		URL:    cfg.DeliveryWebhookURL,
		Secret: cfg.DeliveryWebhookSecret,
		Topics: events.DefaultTopics(),
		HTTP: resilience.HTTPClient{
			Client: resilience.NewTracedClient(cfg.OutboundTimeout),
			Breaker: resilience.NewBreaker(resilience.BreakerOptions{
				MinRequests:  cfg.CircuitMinRequests,
				FailureRatio: cfg.CircuitFailureRate,
				OpenFor:      cfg.CircuitOpenFor,
				Target:       "invoice-delivery",
				Logger:       logger,
			}),
			BaseBackoff: cfg.RetryBase,
			MaxAttempts: cfg.RetryMaxAttempts,
			Jitter:      cfg.RetryJitter,
			Timeout:     cfg.OutboundTimeout,
		},
	}, nil
}
