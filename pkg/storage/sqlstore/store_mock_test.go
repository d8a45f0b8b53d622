package sqlstore

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danharap/TaskManager-Backend/pkg/auth"
	"github.com/danharap/TaskManager-Backend/pkg/observability"
	"github.com/danharap/TaskManager-Backend/pkg/storage"
)

// setupMockDB returns a postgres-flavoured store over sqlmock
func setupMockDB(t *testing.T, opts ...Option) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, DriverPostgres), opts...), mock
}

func TestStore_GetTask_PostgresPlaceholders(t *testing.T) {
	s, mock := setupMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT "+taskColumns+" FROM tasks WHERE id = $1 AND user_id = $2")).
		WithArgs(int64(5), int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "description", "is_completed", "created_at", "priority", "user_id", "planned_completion_date"}))

	_, err := s.GetTask(context.Background(), 5, 7)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CreateUser_UniqueViolation(t *testing.T) {
	s, mock := setupMockDB(t)

	mock.ExpectQuery("INSERT INTO users").
		WithArgs("alice", "digest", "User").
		WillReturnError(&pq.Error{Code: "23505"})

	err := s.CreateUser(context.Background(), &auth.User{Username: "alice", PasswordHash: "digest"})
	assert.ErrorIs(t, err, storage.ErrUsernameTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CreateUser_DatabaseError(t *testing.T) {
	s, mock := setupMockDB(t)

	mock.ExpectQuery("INSERT INTO users").WillReturnError(errors.New("connection refused"))

	err := s.CreateUser(context.Background(), &auth.User{Username: "alice", PasswordHash: "digest"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, storage.ErrUsernameTaken)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestStore_DeleteUser_RollsBackWhenMissing(t *testing.T) {
	s, mock := setupMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM notifications").WithArgs(int64(3)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM subtasks").WithArgs(int64(3)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM tasks").WithArgs(int64(3)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM users").WithArgs(int64(3)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.DeleteUser(context.Background(), 3)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_DeleteUser_FailureMidway(t *testing.T) {
	s, mock := setupMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM notifications").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM subtasks").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := s.DeleteUser(context.Background(), 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subtasks")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_DeleteUser_Commits(t *testing.T) {
	s, mock := setupMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM notifications").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM subtasks").WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec("DELETE FROM tasks").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM users").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.DeleteUser(context.Background(), 3))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListTasks_AnyOwnerHasNoFilter(t *testing.T) {
	s, mock := setupMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + taskColumns + " FROM tasks WHERE 1 = 1 ORDER BY id")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "description", "is_completed", "created_at", "priority", "user_id", "planned_completion_date"}))

	tasks, err := s.ListTasks(context.Background(), storage.AnyOwner)
	require.NoError(t, err)
	assert.NotNil(t, tasks)
	assert.Empty(t, tasks)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ClearNotifications_Error(t *testing.T) {
	s, mock := setupMockDB(t)

	mock.ExpectExec("DELETE FROM notifications").WithArgs(int64(1)).WillReturnError(errors.New("boom"))

	_, err := s.ClearNotifications(context.Background(), 1)
	assert.Error(t, err)
}

func TestStore_RecordsMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	s, mock := setupMockDB(t, WithMetrics(metrics))

	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT COUNT").WillReturnError(errors.New("boom"))
	mock.ExpectQuery("FROM users WHERE id").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.UsernameExists(context.Background(), "alice")
	require.NoError(t, err)
	_, err = s.UsernameExists(context.Background(), "alice")
	require.Error(t, err)
	_, err = s.GetUser(context.Background(), 1)
	require.ErrorIs(t, err, storage.ErrNotFound)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.StorageOperationsTotal.WithLabelValues("username_exists", DriverPostgres, "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.StorageOperationsTotal.WithLabelValues("username_exists", DriverPostgres, "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.StorageErrorsTotal.WithLabelValues("username_exists", DriverPostgres, "internal")))
	// not found is an expected outcome, not an error
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.StorageOperationsTotal.WithLabelValues("get_user", DriverPostgres, "success")))
}
