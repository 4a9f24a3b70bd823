package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/medtrail/pkg/audit"
	"github.com/platinummonkey/medtrail/pkg/config"
	"github.com/platinummonkey/medtrail/pkg/observability"
	"github.com/platinummonkey/medtrail/pkg/storage/cache"
	"github.com/platinummonkey/medtrail/pkg/storage/mongo"
	"github.com/platinummonkey/medtrail/pkg/storage/postgres"
)

const replicaCheckInterval = 30 * time.Second

// backend is the configured event store with its lifecycle hooks
type backend struct {
	store audit.Store
	// db is set for the postgres backend so the health checker can ping it
	db    *sql.DB
	check observability.CheckFunc
	close observability.ShutdownFunc
}

func openBackend(ctx context.Context, cfg config.StorageConfig, logger *observability.Logger) (*backend, error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		conns, err := postgres.NewConnectionManager(ctx, postgres.ConnectionConfig{
			PrimaryURL:  cfg.PostgresURL,
			ReplicaURLs: cfg.PostgresReplicaURLs,
			MaxConns:    cfg.PostgresMaxConns,
			MinConns:    cfg.PostgresMinConns,
			Timeout:     cfg.PostgresTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		if len(cfg.PostgresReplicaURLs) > 0 {
			conns.StartHealthCheckRoutine(ctx, replicaCheckInterval)
		}
		store := postgres.NewStore(conns, logger)
		if err := store.EnsureSchema(ctx); err != nil {
			conns.Close()
			return nil, err
		}
		return &backend{
			store: store,
			db:    conns.Primary(),
			close: func(context.Context) error { return store.Close() },
		}, nil

	case config.BackendMongo:
		store, err := mongo.NewStore(ctx, mongo.Config{
			URI:        cfg.MongoURI,
			Database:   cfg.MongoDatabase,
			Collection: cfg.MongoCollection,
			Timeout:    cfg.MongoTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureIndexes(ctx); err != nil {
			logger.WithError(err).Warn("Failed to ensure mongo indexes")
		}
		return &backend{
			store: store,
			check: store.HealthCheck,
			close: store.Close,
		}, nil

	case config.BackendMemory:
		logger.Warn("Using in-memory audit store; entries are lost on restart")
		return &backend{
			store: audit.NewMemoryStore(),
			close: func(context.Context) error { return nil },
		}, nil
	}

	return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}

// withCountCache wraps store in the count cache when enabled. A postgres or
// mongo store is shared between replicas and only Redis carries the write
// generation across them, so without Redis those backends stay uncached.
func withCountCache(store audit.Store, backendName string, cfg config.CacheConfig, client *redis.Client,
	metrics *observability.Metrics, logger *observability.Logger) audit.Store {
	if !cfg.Enabled {
		return store
	}
	if client == nil && backendName != config.BackendMemory {
		logger.WithField("backend", backendName).Warn("Audit count cache needs Redis for a shared backend; caching disabled")
		return store
	}

	logger.WithField("redis", client != nil).Info("Audit count cache enabled")
	return cache.NewStore(store, client, cache.Config{
		TTL:    cfg.TTL,
		L1Size: cfg.L1Size,
	}, metrics, logger)
}
