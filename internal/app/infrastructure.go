package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prperemyshlev/shop-session/internal/config"
	"github.com/prperemyshlev/shop-session/internal/repository"
	"github.com/prperemyshlev/shop-session/pkg/database"
	"github.com/prperemyshlev/shop-session/pkg/observability"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"
)

const serviceName = "shop_session"

type Infrastructure interface {
	// Postgres is nil unless the profile slot is backed by PostgreSQL.
	Postgres() *database.Postgres
	// Redis is nil unless the credential slots are backed by Redis.
	Redis() *database.Redis
	CredentialStore() repository.BlobStore
	DurableStore() repository.BlobStore
	Logger() *zap.Logger
	MetricsHandler() http.Handler
	MeterProvider() *metric.MeterProvider

	Shutdown(ctx context.Context) error
}

type infrastructure struct {
	postgres        *database.Postgres
	redis           *database.Redis
	credentialStore repository.BlobStore
	durableStore    repository.BlobStore
	logger          *zap.Logger
	metricsHandler  http.Handler
	meterProvider   *metric.MeterProvider
}

var _ Infrastructure = &infrastructure{}

func NewInfrastructure(ctx context.Context, cfg config.Config) (*infrastructure, error) {
	i := &infrastructure{}

	logger, err := observability.InitLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	i.logger = logger

	switch cfg.Storage.CredentialsBackend {
	case config.BackendRedis:
		redis, err := database.NewRedis(ctx, cfg.Redis.Address(), cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		i.redis = redis
		i.credentialStore = repository.NewRedisBlobStore(redis)
	default:
		logger.Warn("Credentials are kept in memory and will not survive a restart")
		i.credentialStore = repository.NewMemoryBlobStore()
	}

	switch cfg.Storage.ProfileBackend {
	case config.BackendPostgres:
		postgres, err := database.NewPostgres(ctx, cfg.Postgres.DSN())
		if err != nil {
			i.closeStores()
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		i.postgres = postgres

		if err := database.Migrate(postgres, repository.Migrations, "migrations"); err != nil {
			i.closeStores()
			return nil, fmt.Errorf("failed to migrate PostgreSQL: %w", err)
		}
		i.durableStore = repository.NewPostgresBlobStore(postgres)
	default:
		i.durableStore = repository.NewMemoryBlobStore()
	}

	meterProvider, metricsHandler, err := observability.InitTelemetry(serviceName)
	if err != nil {
		i.closeStores()
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	i.meterProvider = meterProvider
	i.metricsHandler = metricsHandler

	logger.Info("Infrastructure ready",
		zap.String("credentials_backend", cfg.Storage.CredentialsBackend),
		zap.String("profile_backend", cfg.Storage.ProfileBackend),
	)

	return i, nil
}

func (i *infrastructure) Postgres() *database.Postgres {
	return i.postgres
}

func (i *infrastructure) Redis() *database.Redis {
	return i.redis
}

func (i *infrastructure) CredentialStore() repository.BlobStore {
	return i.credentialStore
}

func (i *infrastructure) DurableStore() repository.BlobStore {
	return i.durableStore
}

func (i *infrastructure) Logger() *zap.Logger {
	return i.logger
}

func (i *infrastructure) MetricsHandler() http.Handler {
	return i.metricsHandler
}

func (i *infrastructure) MeterProvider() *metric.MeterProvider {
	return i.meterProvider
}

func (i *infrastructure) Shutdown(ctx context.Context) error {
	errs := make(chan error, 2)

	go func() { errs <- i.closeStores() }()
	go func() { errs <- observability.Shutdown(ctx, i.meterProvider, i.logger) }()

	return errors.Join(<-errs, <-errs)
}

func (i *infrastructure) closeStores() error {
	var errs []error
	if i.postgres != nil {
		errs = append(errs, i.postgres.Close())
	}
	if i.redis != nil {
		errs = append(errs, i.redis.Close())
	}
	return errors.Join(errs...)
}
