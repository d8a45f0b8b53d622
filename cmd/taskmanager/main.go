package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/danharap/TaskManager-Backend/pkg/api"
	"github.com/danharap/TaskManager-Backend/pkg/audit"
	"github.com/danharap/TaskManager-Backend/pkg/auth"
	"github.com/danharap/TaskManager-Backend/pkg/config"
	"github.com/danharap/TaskManager-Backend/pkg/middleware"
	"github.com/danharap/TaskManager-Backend/pkg/observability"
	"github.com/danharap/TaskManager-Backend/pkg/storage"
	"github.com/danharap/TaskManager-Backend/pkg/storage/sqlstore"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		fmt.Fprint(os.Stdout, config.Usage())
		return
	}
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, nil).
		WithField("service", "taskmanager").
		WithField("version", version)

	if err := run(context.Background(), cfg, logger); err != nil {
		logger.WithError(err).Error("taskmanager exited with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *observability.Logger) error {
	if cfg.ConfigFile != "" {
		logger.WithField("file", cfg.ConfigFile).Info("Loaded configuration file")
	}

	otelCfg := cfg.Observability.OTel()
	if otelCfg.ServiceVersion == "" {
		otelCfg.ServiceVersion = version
	}
	providers, err := observability.InitOTel(ctx, otelCfg, logger)
	if err != nil {
		return fmt.Errorf("initialize OpenTelemetry: %w", err)
	}

	db, err := sqlstore.Open(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	applied, err := sqlstore.RunMigrations(ctx, db)
	if err != nil {
		db.Close()
		return fmt.Errorf("migrate database: %w", err)
	}
	logger.WithFields(map[string]interface{}{
		"driver":  cfg.Storage.Driver,
		"applied": applied,
	}).Info("Database schema is up to date")

	if cfg.MigrateOnly {
		return db.Close()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	store := sqlstore.New(db, sqlstore.WithMetrics(metrics))

	var redisClient *redis.Client
	if cfg.Storage.RedisURL != "" {
		redisClient, err = storage.NewRedisClient(ctx, cfg.Storage)
		if err != nil {
			store.Close()
			return err
		}
		logger.Info("Connected to Redis, login throttling is shared across instances")
	}

	issuer, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		store.Close()
		return err
	}

	trail, err := newAuditTrail(cfg.Audit, logger)
	if err != nil {
		store.Close()
		return err
	}

	server := api.NewServer(api.Config{
		Store:             store,
		Issuer:            issuer,
		Hasher:            newHasher(cfg.Auth),
		Logger:            logger,
		Metrics:           metrics,
		Audit:             trail,
		LoginLimiter:      newLimiter(cfg.RateLimit.LoginPerMinute, "taskmanager:login", redisClient, metrics),
		RegisterLimiter:   newLimiter(cfg.RateLimit.RegisterPerMinute, "taskmanager:register", redisClient, metrics),
		TrustProxyHeaders: cfg.RateLimit.TrustProxyHeaders,
		CORSOrigins:       cfg.Server.CORSOrigins,
		MaxBodyBytes:      cfg.Server.MaxBodyBytes,
	})

	apiServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ErrorLog:     log.New(logger.Writer(), "", 0),
	}

	opsMux := http.NewServeMux()
	health := observability.NewHealthChecker(db.DB, redisClient).
		WithVersion(version).
		WithSchemaVersion(sqlstore.SchemaVersion(db.DriverName()))
	observability.RegisterHealthRoutes(opsMux, health)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(opsMux, registry)
	}
	opsServer := &http.Server{
		Addr:              cfg.Server.HealthAddr(),
		Handler:           opsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, apiServer, opsServer)
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		logger.Info("Closing database")
		return store.Close()
	})
	if redisClient != nil {
		shutdown.RegisterShutdownFunc(func(context.Context) error {
			return redisClient.Close()
		})
	}
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		return trail.Close()
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})

	g, gctx := errgroup.WithContext(ctx)

	statsCtx, stopStats := context.WithCancel(gctx)
	defer stopStats()
	go metrics.ReportDBStats(statsCtx, db.DB, 15*time.Second)

	g.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("Starting API server")
		return serve(apiServer)
	})
	g.Go(func() error {
		logger.WithField("addr", opsServer.Addr).Info("Starting health and metrics server")
		return serve(opsServer)
	})
	g.Go(func() error {
		return shutdown.WaitForShutdown(gctx)
	})

	return g.Wait()
}

// newLimiter prefers the Redis limiter so every replica shares counters
func newLimiter(perMinute int, prefix string, redisClient *redis.Client, metrics *observability.Metrics) middleware.Limiter {
	limits := middleware.DefaultLoginRateLimitConfig()
	limits.RequestsPerWindow = perMinute

	if redisClient != nil {
		return middleware.NewDistributedRateLimiter(redisClient, limits, prefix).WithMetrics(metrics)
	}
	return middleware.NewRateLimiter(limits)
}

func newHasher(cfg config.AuthConfig) *auth.PasswordHasher {
	h := auth.NewPasswordHasher(cfg.PasswordScheme)
	if cfg.MaxConcurrentHashes > 0 {
		h = h.WithMaxConcurrent(cfg.MaxConcurrentHashes)
	}
	return h
}

// newAuditTrail logs events to the application log and, when a directory is
// configured, to a rotated audit.log
func newAuditTrail(cfg config.AuditConfig, logger *observability.Logger) (audit.Logger, error) {
	if !cfg.Enabled {
		return audit.NopLogger{}, nil
	}
	sinks := []audit.Logger{audit.NewStructuredLogger(logger)}

	if cfg.Dir != "" {
		file, err := audit.NewFileLogger(audit.FileLoggerConfig{
			Dir:      cfg.Dir,
			MaxSize:  int64(cfg.MaxSizeMB) * 1024 * 1024,
			MaxFiles: cfg.MaxFiles,
		})
		if err != nil {
			return nil, err
		}
		logger.WithField("dir", cfg.Dir).Info("Writing audit trail to file")
		sinks = append(sinks, file)
	}
	return audit.NewMultiLogger(sinks...), nil
}

func serve(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server on %s: %w", srv.Addr, err)
	}
	return nil
}
