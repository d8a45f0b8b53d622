package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/danharap/TaskManager-Backend/pkg/audit"
	"github.com/danharap/TaskManager-Backend/pkg/auth"
	"github.com/danharap/TaskManager-Backend/pkg/httputil"
	"github.com/danharap/TaskManager-Backend/pkg/middleware"
	"github.com/danharap/TaskManager-Backend/pkg/observability"
	"github.com/danharap/TaskManager-Backend/pkg/storage"
)

// DefaultMaxBodyBytes caps request bodies when Config.MaxBodyBytes is unset
const DefaultMaxBodyBytes int64 = 1 << 20

// Config carries the dependencies of the API server
type Config struct {
	Store  storage.Store
	Issuer *auth.TokenIssuer
	Hasher PasswordHasher
	Logger *observability.Logger

	// Metrics is optional; a private registry is used when nil
	Metrics *observability.Metrics
	// Audit receives account and admin events; nil discards them
	Audit audit.Logger
	// LoginLimiter throttles POST /api/auth/login per client IP; nil disables it
	LoginLimiter middleware.Limiter
	// RegisterLimiter throttles POST /api/auth/register per client IP; nil disables it
	RegisterLimiter middleware.Limiter

	TrustProxyHeaders bool

	CORSOrigins  []string
	MaxBodyBytes int64
}

// Server represents our API server
type Server struct {
	router  *mux.Router
	handler http.Handler
	logger  *observability.Logger
	metrics *observability.Metrics

	authHandlers         *AuthHandlers
	taskHandlers         *TaskHandlers
	notificationHandlers *NotificationHandlers
}

// NewServer creates a new API server
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NewMetrics(prometheus.NewRegistry())
	}
	if cfg.Audit == nil {
		cfg.Audit = audit.NopLogger{}
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	gate := guard{auth: middleware.NewAuthMiddleware(cfg.Issuer)}

	limit := func(limiter middleware.Limiter, name string) *middleware.RateLimitMiddleware {
		if limiter == nil {
			return nil
		}
		return middleware.NewRateLimitMiddleware(limiter, name,
			middleware.WithTrustedProxyHeaders(cfg.TrustProxyHeaders),
			middleware.WithRateLimitMetrics(cfg.Metrics),
		)
	}

	s := &Server{
		router:  mux.NewRouter(),
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		authHandlers: NewAuthHandlers(cfg.Store, cfg.Issuer, cfg.Hasher, cfg.Metrics, cfg.Audit, gate,
			limit(cfg.LoginLimiter, "login"), limit(cfg.RegisterLimiter, "register")),
		taskHandlers:         NewTaskHandlers(cfg.Store, cfg.Metrics, cfg.Audit, gate),
		notificationHandlers: NewNotificationHandlers(cfg.Store, cfg.Metrics, gate),
	}
	s.setupRoutes()

	s.handler = httputil.Chain(
		httputil.RequestIDMiddleware(cfg.Logger),
		httputil.LoggingMiddleware,
		httputil.RecoveryMiddleware,
		httputil.CORSMiddleware(cfg.CORSOrigins),
		httputil.MaxBytesMiddleware(cfg.MaxBodyBytes),
	)(otelhttp.NewHandler(s.router, "taskmanager-api",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	))

	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.Use(observability.HTTPMetricsMiddleware(s.metrics))
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFoundError(w, "Resource not found.")
	})

	s.authHandlers.RegisterRoutes(s.router)
	s.taskHandlers.RegisterRoutes(s.router)
	s.notificationHandlers.RegisterRoutes(s.router)
}

// Router returns the bare route table without the outer middleware chain
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
