package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/saasplatform/backend/internal/config"
	"github.com/saasplatform/backend/internal/deployment"
	"github.com/saasplatform/backend/internal/metrics"
	"github.com/saasplatform/backend/internal/progress"
	"github.com/saasplatform/backend/internal/provisioner"
	"github.com/saasplatform/backend/internal/repository"
	"github.com/saasplatform/backend/internal/service"
)

// app holds the wired core shared by the serve and deploy commands.
type app struct {
	db       *pgxpool.Pool
	redis    *redis.Client
	store    service.SubscriptionRepository
	hub      *progress.Hub
	relay    *progress.RedisRelay
	prov     *provisioner.Provisioner
	executor *deployment.Executor
	subs     *service.SubscriptionService
	registry *prometheus.Registry
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if cfg.DatabaseURL != "" {
		db, err := repository.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("database error: %w", err)
		}
		if err := repository.RunMigrations(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("migration error: %w", err)
		}
		logger.Info("database connected and migrated")
		a.db = db
		a.store = repository.NewSubscriptionRepository(db)
	} else {
		logger.Warn("DATABASE_URL not set, subscriptions are kept in memory")
		a.store = repository.NewMemoryRepository()
	}

	var cloud provisioner.Cloud
	if !cfg.Simulated() {
		azure, err := provisioner.NewAzureCloud(cfg.AzureSubscriptionID, cfg.AzureLocation)
		if err != nil {
			logger.Warn("azure client unavailable", zap.Error(err))
		} else {
			cloud = azure
		}
	}
	a.prov = provisioner.New(provisioner.Config{
		Simulate:  cfg.Simulated(),
		StepDelay: cfg.SimulationStepDelay,
	}, cloud, logger)

	a.hub = progress.NewHub(logger)
	metrics.NewProgressTopics(a.registry, a.hub.Topics)
	var publisher deployment.Publisher = a.hub
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		a.redis = redis.NewClient(opts)
		a.relay = progress.NewRedisRelay(a.redis, a.hub, logger)
		publisher = a.relay
		logger.Info("progress events relayed through redis", zap.String("addr", opts.Addr))
	}

	a.executor = deployment.New(a.store, a.prov, publisher, metrics.NewDeployments(a.registry), logger)
	a.subs = service.NewSubscriptionService(a.store, a.executor, logger)
	return a, nil
}

// startRelay subscribes the relay and returns once Redis has confirmed it, so no
// event published afterwards is lost. It is a no-op without Redis.
func (a *app) startRelay(ctx context.Context) error {
	if a.relay == nil {
		return nil
	}
	if _, err := a.relay.Start(ctx); err != nil {
		return fmt.Errorf("redis relay: %w", err)
	}
	return nil
}

func (a *app) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
