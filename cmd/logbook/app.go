package main

import (
	"context"
	"errors"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/septivank/compost-logbook/internal/api"
	"github.com/septivank/compost-logbook/internal/config"
	"github.com/septivank/compost-logbook/internal/db"
	"github.com/septivank/compost-logbook/internal/filter"
	"github.com/septivank/compost-logbook/internal/identity"
	"github.com/septivank/compost-logbook/internal/mq"
	"github.com/septivank/compost-logbook/internal/privacy"
	"github.com/septivank/compost-logbook/internal/report"
	"github.com/septivank/compost-logbook/internal/repository"
	"github.com/septivank/compost-logbook/internal/service"
)

// Publishers holds one publisher per exchange
type Publishers struct {
	Ingest *mq.Publisher
	Events *mq.Publisher
}

func startConsumer(
	lc fx.Lifecycle,
	conn *mq.Connection,
	cfg *config.Config,
	logger *zap.Logger,
	processor *service.ProcessorService,
) (*mq.Consumer, error) {
	// cancelled on shutdown
	ctx, cancel := context.WithCancel(context.Background())

	consumer, err := mq.NewConsumer(mq.ConsumerConfig{
		Connection:    conn,
		Queue:         cfg.RabbitMQ.IngestQueue,
		DLQQueue:      cfg.RabbitMQ.DLQQueue,
		Exchange:      cfg.RabbitMQ.IngestExchange,
		RoutingKey:    cfg.RabbitMQ.IngestRoutingKey,
		PrefetchCount: cfg.RabbitMQ.PrefetchCount,
		Logger:        logger,
		Handler:       processor.ProcessMessage,
		IsPermanent:   service.IsPermanent,
	})
	if err != nil {
		cancel()
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			logger.Info("starting ingest consumer",
				zap.String("queue", cfg.RabbitMQ.IngestQueue),
				zap.Int("prefetch", cfg.RabbitMQ.PrefetchCount))
			return consumer.Start(ctx)
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			if err := consumer.Close(); err != nil {
				logger.Error("failed to close consumer", zap.Error(err))
				return err
			}
			logger.Info("ingest consumer stopped gracefully")
			return nil
		},
	})

	return consumer, nil
}

func startServer(lc fx.Lifecycle, e *echo.Echo, cfg *config.Config, logger *zap.Logger) {
	api.RegisterLifecycle(lc, e, cfg.HTTP.Address, cfg.HTTP.ShutdownTimeout, logger)
}

// ProvideDBPool creates a new database pool instance
func ProvideDBPool(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*db.Pool, error) {
	return db.NewPool(lc, logger, cfg.Database.URL, cfg.Database.EnsureSchema)
}

// ProvideRepository creates a new repository instance
func ProvideRepository(pool *db.Pool) *repository.Repository {
	return repository.NewRepository(pool)
}

// ProvideCipher creates the email cipher
func ProvideCipher(cfg *config.Config) (*privacy.Cipher, error) {
	return privacy.NewCipher(cfg.Privacy.EmailSecret)
}

// ProvideIdentityResolver creates the email/device identity resolver
func ProvideIdentityResolver(cipher *privacy.Cipher, logger *zap.Logger) *identity.Resolver {
	return identity.NewResolver(cipher, logger)
}

// ProvideFilterResolver creates the location filter resolver
func ProvideFilterResolver(repo *repository.Repository, logger *zap.Logger) *filter.Resolver {
	return filter.NewResolver(repo, logger)
}

// ProvideReportService creates the report service
func ProvideReportService(
	repo *repository.Repository,
	locations *filter.Resolver,
	identities *identity.Resolver,
	cfg *config.Config,
	logger *zap.Logger,
) *report.Service {
	return report.NewService(repo, repo, locations, identities, cfg.Location(), logger)
}

// ProvideMQConnection creates a new RabbitMQ connection instance
func ProvideMQConnection(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*mq.Connection, error) {
	return mq.NewConnection(lc, logger, cfg.RabbitMQ.URL)
}

// ProvidePublishers creates the ingest and events publishers
func ProvidePublishers(lc fx.Lifecycle, conn *mq.Connection, cfg *config.Config, logger *zap.Logger) (*Publishers, error) {
	ingest, err := mq.NewPublisher(conn, cfg.RabbitMQ.IngestExchange, logger)
	if err != nil {
		return nil, err
	}
	events, err := mq.NewPublisher(conn, cfg.RabbitMQ.EventsExchange, logger)
	if err != nil {
		ingest.Close()
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return errors.Join(ingest.Close(), events.Close())
		},
	})

	return &Publishers{Ingest: ingest, Events: events}, nil
}

// ProvideProcessorService creates a new processor service instance
func ProvideProcessorService(
	repo *repository.Repository,
	publishers *Publishers,
	cipher *privacy.Cipher,
	cfg *config.Config,
	logger *zap.Logger,
) *service.ProcessorService {
	return service.NewProcessorService(repo, publishers.Events, cipher, cfg.Location(), cfg.RabbitMQ.AcceptedRoutingKey, logger)
}

// ProvideRateLimiter creates the submission rate limiter. It returns nil
// when rate limiting is disabled or redis is unreachable.
func ProvideRateLimiter(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) *api.RateLimiter {
	if !cfg.RateLimit.Enabled {
		logger.Info("rate limiting disabled")
		return nil
	}

	rdb := api.NewRedisClient(cfg.RateLimit.RedisAddr, cfg.RateLimit.RedisPass, cfg.RateLimit.RedisDB, logger)
	if rdb == nil {
		return nil
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return rdb.Close()
		},
	})

	return api.NewRateLimiter(
		api.NewRedisCounter(rdb),
		cfg.RateLimit.Limit,
		cfg.RateLimit.Window,
		cfg.RateLimit.Prefix,
		logger,
	)
}

// ProvideHandler creates the HTTP handler
func ProvideHandler(
	publishers *Publishers,
	reports *report.Service,
	limiter *api.RateLimiter,
	pool *db.Pool,
	conn *mq.Connection,
	cfg *config.Config,
	logger *zap.Logger,
) *api.Handler {
	return api.NewHandler(api.HandlerConfig{
		Publisher:  publishers.Ingest,
		RoutingKey: cfg.RabbitMQ.IngestRoutingKey,
		Reports:    reports,
		Limiter:    limiter,
		Checks: map[string]api.HealthCheck{
			"database": pool.Ping,
			"rabbitmq": func(context.Context) error {
				if !conn.Healthy() {
					return errors.New("connection closed")
				}
				return nil
			},
		},
		Logger: logger,
	})
}

// ProvideEcho creates the HTTP router
func ProvideEcho(h *api.Handler, cfg *config.Config, logger *zap.Logger) *echo.Echo {
	return api.NewEcho(h, api.AuthConfig{
		JWTSecret: cfg.Auth.JWTSecret,
		AdminRole: cfg.Auth.AdminRole,
	}, logger)
}
