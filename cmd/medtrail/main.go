package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/medtrail/pkg/async"
	"github.com/platinummonkey/medtrail/pkg/audit"
	"github.com/platinummonkey/medtrail/pkg/auth"
	"github.com/platinummonkey/medtrail/pkg/config"
	"github.com/platinummonkey/medtrail/pkg/lab"
	"github.com/platinummonkey/medtrail/pkg/middleware"
	"github.com/platinummonkey/medtrail/pkg/observability"
	"github.com/platinummonkey/medtrail/pkg/storage/cache"
)

const gaugeRefreshTimeout = 10 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	logger := observability.NewLoggerWithFormat(
		observability.ParseLogLevel(cfg.Observability.LogLevel),
		cfg.Observability.LogFormat,
		os.Stdout,
	)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("medtrail stopped with errors")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
		ExportInterval: cfg.Observability.OTelExportInterval,
	}, logger)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	be, err := openBackend(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}

	redisClient := connectRedis(ctx, cfg.Cache, logger)

	store := withCountCache(be.store, cfg.Storage.Backend, cfg.Cache, redisClient, metrics, logger)

	recorder := audit.NewRecorder(store, logger,
		audit.WithRecorderMetrics(metrics),
		audit.WithWriteTimeout(cfg.Audit.WriteTimeout),
	)
	queries := audit.NewQueryService(store, metrics)

	loc, err := cfg.Audit.Location()
	if err != nil {
		return err
	}

	var tokens *auth.TokenManager
	if cfg.Auth.JWTSecret != "" {
		if tokens, err = auth.NewTokenManager(cfg.Auth.JWTSecret); err != nil {
			return err
		}
	}

	router := newRouter(routerDeps{
		logger:       logger,
		metrics:      metrics,
		tokens:       tokens,
		authRequired: cfg.Auth.Required,
		maxBodyBytes: cfg.Server.MaxBodyBytes,
		trustHeaders: cfg.Audit.TrustIdentityHeaders,
		queries:      queries,
		composer:     audit.NewComposer(loc),
		recorder:     recorder,
		labRepo:      lab.NewRepository(),
		limiter:      newLimiter(ctx, cfg.RateLimit, redisClient),
	})

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      otelhttp.NewHandler(router, "medtrail"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	checker := observability.NewHealthChecker(be.db, redisClient)
	checker.SetVersion(cfg.Observability.OTelServiceVersion)
	if be.check != nil {
		checker.AddCheck("event_store", true, be.check)
	}
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, checker)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           healthMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	scheduler := cron.New()
	refresh := func() {
		async.SafeGo(ctx, logger, gaugeRefreshTimeout, "audit gauge refresh", func(ctx context.Context) error {
			return refreshEntryGauge(ctx, queries, metrics)
		})
	}
	if _, err := scheduler.AddFunc(cfg.Observability.GaugeSchedule, refresh); err != nil {
		return err
	}
	scheduler.Start()
	refresh()

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, server, healthServer)
	shutdown.Register("scheduler", func(ctx context.Context) error {
		select {
		case <-scheduler.Stop().Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	// Pending audit writes must land before the store goes away
	shutdown.Register("audit recorder", recorder.Close)
	shutdown.Register("event store", be.close)
	if redisClient != nil {
		shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })
	}
	shutdown.Register("opentelemetry", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})

	serveErr := make(chan error, 2)
	for _, srv := range []*http.Server{server, healthServer} {
		go func(srv *http.Server) {
			logger.WithField("addr", srv.Addr).Info("Starting HTTP server")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
		}(srv)
	}

	go func() {
		if err := <-serveErr; err != nil {
			logger.WithError(err).Error("HTTP server failed")
			cancel()
		}
	}()

	return shutdown.WaitForSignal(ctx)
}

func connectRedis(ctx context.Context, cfg config.CacheConfig, logger *observability.Logger) *redis.Client {
	if cfg.RedisURL == "" {
		return nil
	}
	client, err := cache.NewRedisClient(ctx, cache.RedisConfig{
		URL:      cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, continuing without it")
		return nil
	}
	return client
}

func newLimiter(ctx context.Context, cfg config.RateLimitConfig, client *redis.Client) middleware.Limiter {
	if !cfg.Enabled {
		return nil
	}
	rl := middleware.RateLimitConfig{
		RequestsPerWindow: cfg.RequestsPerWindow,
		WindowDuration:    cfg.Window,
		BurstSize:         cfg.Burst,
	}
	if client != nil {
		return middleware.NewRedisRateLimiter(client, rl, "")
	}
	limiter := middleware.NewRateLimiter(rl)
	limiter.StartCleanup(ctx)
	return limiter
}

// refreshEntryGauge sets the stored entry gauge; on failure the gauge keeps its last value
func refreshEntryGauge(ctx context.Context, queries *audit.QueryService, metrics *observability.Metrics) error {
	n, err := queries.Count(ctx)
	if err != nil {
		return err
	}
	metrics.AuditEntries.Set(float64(n))
	return nil
}
