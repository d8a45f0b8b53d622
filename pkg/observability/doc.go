// Package observability provides structured logging, Prometheus metrics,
// health checks, graceful shutdown and OpenTelemetry setup.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("user_id", id).Info("task created")
//
// Request handlers pull the per-request logger, already tagged with the
// request ID, from the context:
//
//	observability.FromContext(r.Context()).WithError(err).Error("list tasks failed")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	router.Use(observability.HTTPMetricsMiddleware(metrics))
//	observability.RegisterMetricsEndpoint(opsMux, registry)
//
// # Health Checks
//
// Readiness fails while the database is unreachable or its schema_migrations
// table is behind the expected version. Redis failures only degrade.
//
//	checker := observability.NewHealthChecker(db, redisClient).
//		WithSchemaVersion(sqlstore.SchemaVersion(driver))
//	observability.RegisterHealthRoutes(opsMux, checker)
//
// # Related Packages
//
//   - pkg/config: observability configuration
//   - pkg/httputil: request logging middleware
package observability
