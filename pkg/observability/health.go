package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// schemaVersionQuery reads the newest applied migration. The table is created
// by the first migration run, so a missing table also fails readiness.
const schemaVersionQuery = "SELECT COALESCE(MAX(version), 0) FROM schema_migrations"

// HealthChecker reports liveness and readiness of the task store, and of
// Redis when the shared rate limiter is configured
type HealthChecker struct {
	db      *sql.DB
	redis   *redis.Client
	version string
	schema  int

	mu        sync.Mutex
	lastWaits int64
}

// NewHealthChecker creates a new health checker. redis may be nil.
func NewHealthChecker(db *sql.DB, redis *redis.Client) *HealthChecker {
	return &HealthChecker{
		db:    db,
		redis: redis,
	}
}

// WithVersion sets the build version reported by Check
func (h *HealthChecker) WithVersion(version string) *HealthChecker {
	h.version = version
	return h
}

// WithSchemaVersion makes readiness fail until migrations up to version
// have been applied
func (h *HealthChecker) WithSchemaVersion(version int) *HealthChecker {
	h.schema = version
	return h
}

// HealthStatus is the body of every health endpoint
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus is the result for a single backing service
type DependencyStatus struct {
	Status        string      `json:"status"`
	Message       string      `json:"message,omitempty"`
	LatencyMS     int64       `json:"latency_ms"`
	SchemaVersion int         `json:"schema_version,omitempty"`
	Pool          *PoolStatus `json:"pool,omitempty"`
}

// PoolStatus summarizes sql.DBStats for the readiness body
type PoolStatus struct {
	Open      int   `json:"open"`
	InUse     int   `json:"in_use"`
	Idle      int   `json:"idle"`
	MaxOpen   int   `json:"max_open"`
	WaitCount int64 `json:"wait_count"`
}

// Liveness always returns 200 while the process serves HTTP
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, http.StatusOK, HealthStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC(),
		Version:   h.version,
	})
}

// Readiness returns 503 when the task store cannot serve requests
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)
	code := http.StatusOK
	if status.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeHealth(w, code, status)
}

func writeHealth(w http.ResponseWriter, code int, status HealthStatus) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}

// Check evaluates every configured dependency. The database decides between
// healthy and unhealthy; Redis can only degrade, since the rate limiter
// fails open without it.
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now().UTC(),
		Version:      h.version,
		Dependencies: make(map[string]DependencyStatus),
	}

	if h.db != nil {
		db := h.checkDatabase(ctx)
		status.Dependencies["database"] = db
		status.Status = db.Status
	}

	if h.redis != nil {
		rs := h.checkRedis(ctx)
		status.Dependencies["redis"] = rs
		if rs.Status != StatusHealthy && status.Status == StatusHealthy {
			status.Status = StatusDegraded
		}
	}

	return status
}

func (h *HealthChecker) checkDatabase(ctx context.Context) (status DependencyStatus) {
	start := time.Now()
	status.Status = StatusHealthy
	defer func() { status.LatencyMS = time.Since(start).Milliseconds() }()

	if err := h.db.PingContext(ctx); err != nil {
		status.Status = StatusUnhealthy
		status.Message = err.Error()
		return status
	}

	if err := h.db.QueryRowContext(ctx, schemaVersionQuery).Scan(&status.SchemaVersion); err != nil {
		status.Status = StatusUnhealthy
		status.Message = "schema check failed: " + err.Error()
		return status
	}
	if status.SchemaVersion < h.schema {
		status.Status = StatusUnhealthy
		status.Message = fmt.Sprintf("schema at version %d, want %d", status.SchemaVersion, h.schema)
		return status
	}

	stats := h.db.Stats()
	status.Pool = &PoolStatus{
		Open:      stats.OpenConnections,
		InUse:     stats.InUse,
		Idle:      stats.Idle,
		MaxOpen:   stats.MaxOpenConnections,
		WaitCount: stats.WaitCount,
	}

	// SQLite runs on one connection, so a full pool alone is not saturation;
	// callers must also have queued for a connection since the last check.
	h.mu.Lock()
	waited := stats.WaitCount > h.lastWaits
	h.lastWaits = stats.WaitCount
	h.mu.Unlock()
	if waited && stats.MaxOpenConnections > 0 && stats.InUse >= stats.MaxOpenConnections {
		status.Status = StatusDegraded
		status.Message = "connection pool saturated"
	}

	return status
}

func (h *HealthChecker) checkRedis(ctx context.Context) DependencyStatus {
	start := time.Now()
	status := DependencyStatus{Status: StatusHealthy}

	err := h.redis.Ping(ctx).Err()
	status.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		status.Status = StatusUnhealthy
		status.Message = err.Error()
	}

	return status
}

// RegisterHealthRoutes registers health check endpoints
func RegisterHealthRoutes(mux *http.ServeMux, checker *HealthChecker) {
	mux.HandleFunc("/health", checker.Readiness)
	mux.HandleFunc("/health/live", checker.Liveness)
	mux.HandleFunc("/health/ready", checker.Readiness)
}
