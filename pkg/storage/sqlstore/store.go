// Package sqlstore implements storage.Store on PostgreSQL or SQLite through sqlx.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/danharap/TaskManager-Backend/pkg/observability"
	"github.com/danharap/TaskManager-Backend/pkg/storage"
)

// Store is a SQL-backed storage.Store. Queries are written with ? placeholders
// and rebound for the connected driver.
type Store struct {
	db      *sqlx.DB
	metrics *observability.Metrics
}

var _ storage.Store = (*Store)(nil)

// Option configures a Store
type Option func(*Store)

// WithMetrics records storage operation counts and latencies
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// New creates a store on an open connection
func New(db *sqlx.DB, opts ...Option) *Store {
	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying connection
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// HealthCheck pings the database
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// observe records one storage operation; call with defer
func (s *Store) observe(operation string, start time.Time, err *error) {
	if s.metrics == nil {
		return
	}
	backend := s.db.DriverName()
	status := "success"
	if *err != nil && !errors.Is(*err, storage.ErrNotFound) {
		status = "error"
		s.metrics.StorageErrorsTotal.WithLabelValues(operation, backend, errorType(*err)).Inc()
	}
	s.metrics.StorageOperationsTotal.WithLabelValues(operation, backend, status).Inc()
	s.metrics.StorageOperationDuration.WithLabelValues(operation, backend).Observe(time.Since(start).Seconds())
}

func errorType(err error) string {
	switch {
	case errors.Is(err, storage.ErrUsernameTaken):
		return "conflict"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "internal"
	}
}

// isUniqueViolation reports whether err is a unique constraint failure on either driver
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// notFoundIfNoRows maps sql.ErrNoRows to storage.ErrNotFound
func notFoundIfNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	return err
}

// requireAffected returns storage.ErrNotFound when a write touched no rows
func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ownerClause appends an owner filter on column unless ownerID is storage.AnyOwner
func ownerClause(query, column string, args []interface{}, ownerID int64) (string, []interface{}) {
	if ownerID == storage.AnyOwner {
		return query, args
	}
	return query + " AND " + column + " = ?", append(args, ownerID)
}
