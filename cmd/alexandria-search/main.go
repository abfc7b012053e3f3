package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/PolycarpusTack/alexandria-search/pkg/config"
	"github.com/PolycarpusTack/alexandria-search/pkg/events"
	"github.com/PolycarpusTack/alexandria-search/pkg/observability"
	"github.com/PolycarpusTack/alexandria-search/pkg/search"
	"github.com/PolycarpusTack/alexandria-search/pkg/storage/postgres"
)

func main() {
	searchConfigFile := flag.String("search-config", "", "Optional YAML file with search tuning overrides, watched for changes")
	otelEndpoint := flag.String("otel-endpoint", os.Getenv("ALEXANDRIA_OTEL_ENDPOINT"), "OTLP gRPC endpoint (empty disables tracing export)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(parseLogLevel(cfg.LogLevel), os.Stdout)
	logger.Info("starting alexandria-search")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        *otelEndpoint != "",
		Endpoint:       *otelEndpoint,
		ServiceName:    "alexandria-search",
		ServiceVersion: version,
		Insecure:       true,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("failed to initialize tracing, continuing without it")
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	cm, err := postgres.NewConnectionManager(postgres.ConnectionConfig{
		PrimaryURL:  cfg.Database.URL,
		ReplicaURLs: cfg.Database.ReplicaURLs,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		Timeout:     cfg.Database.Timeout,
		MaxLifetime: cfg.Database.MaxLifetime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("failed to connect to database")
		os.Exit(1)
	}
	defer cm.Close()
	cm.StartHealthCheckRoutine(ctx, 30*time.Second)

	settings := config.NewSettings(cfg.Search)
	if *searchConfigFile != "" {
		loaded, err := config.LoadSearchConfigFile(*searchConfigFile, cfg.Search)
		if err != nil {
			logger.WithError(err).Error("failed to load search config file")
			os.Exit(1)
		}
		if err := settings.Update(loaded); err != nil {
			logger.WithError(err).Error("search config file is invalid")
			os.Exit(1)
		}
		if err := config.WatchSearchConfigFile(ctx, *searchConfigFile, settings, func(err error) {
			logger.WithError(err).Warn("search config reload failed")
		}); err != nil {
			logger.WithError(err).Warn("config file watching disabled")
		}
	}

	var cache search.ResultCache
	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		rc, err := postgres.NewResultCache(postgres.CacheConfig{
			URL:      cfg.Redis.URL,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Search.CacheTTL,
		})
		if err != nil {
			logger.WithError(err).Warn("result cache unavailable, searches will not be cached")
		} else {
			cache = rc
			defer rc.Close()
			if opts, err := redis.ParseURL(cfg.Redis.URL); err == nil {
				redisClient = redis.NewClient(opts)
				defer redisClient.Close()
			}
		}
	}

	bus := events.NewBus(logger, 5*time.Second)
	bus.Subscribe(events.TypeSearchPerformed, func(ctx context.Context, e events.Event) {
		logger.WithFields(map[string]interface{}{
			"event_id":     e.ID,
			"result_count": e.Data["result_count"],
			"type":         e.Data["type"],
		}).Debug("search performed")
	})

	svc := search.NewService(search.ServiceOptions{
		DB:       cm.Primary(),
		ReadDB:   cm.Replica(),
		Settings: settings,
		Cache:    cache,
		Bus:      bus,
		Logger:   logger,
		Metrics:  metrics,
	})

	done := make(chan struct{})
	go metrics.CollectDBStats(done, func() (int, int) {
		stats := cm.Stats()
		return stats.InUse, stats.Idle
	}, 15*time.Second)
	defer close(done)

	router := mux.NewRouter()
	router.Use(observability.HTTPMetricsMiddleware(metrics))
	api := router.PathPrefix("/api/v1").Subrouter()
	search.NewHandlers(svc, logger).RegisterRoutes(api)

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Separate listener for probes and metrics.
	healthMux := http.NewServeMux()
	checker := observability.NewHealthChecker(cm.Primary(), redisClient)
	observability.RegisterHealthRoutes(healthMux, checker)
	observability.RegisterMetricsEndpoint(healthMux, registry)
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}
	go func() {
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server failed")
		}
	}()

	go func() {
		logger.WithField("addr", server.Addr).Info("search API listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("server failed")
			cancel()
		}
	}()

	sm := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		bus.Drain()
		return nil
	})
	if providers != nil {
		sm.RegisterShutdownFunc(func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, providers, logger)
		})
	}

	if err := sm.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("shutdown finished with errors")
		os.Exit(1)
	}
	logger.Info("alexandria-search stopped")
}

// version is set at build time via -ldflags.
var version = "dev"

func parseLogLevel(level string) observability.LogLevel {
	switch level {
	case "debug":
		return observability.DebugLevel
	case "warn":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}
