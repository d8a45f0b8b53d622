//go:build integration

package sqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danharap/TaskManager-Backend/pkg/auth"
	"github.com/danharap/TaskManager-Backend/pkg/storage"
)

func TestPostgresStore_Lifecycle(t *testing.T) {
	s, cleanup := SetupPostgresContainer(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, s.HealthCheck(ctx))

	alice := &auth.User{Username: "alice", PasswordHash: "digest"}
	require.NoError(t, s.CreateUser(ctx, alice))
	assert.Equal(t, auth.RoleUser, alice.Role)

	err := s.CreateUser(ctx, &auth.User{Username: "alice", PasswordHash: "other"})
	assert.ErrorIs(t, err, storage.ErrUsernameTaken)

	due := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	task := &storage.Task{Title: strPtr("ship"), UserID: alice.ID, PlannedCompletionDate: &due}
	require.NoError(t, s.CreateTask(ctx, task))

	st := &storage.SubTask{Title: strPtr("write tests"), TaskID: task.ID}
	require.NoError(t, s.CreateSubTask(ctx, st))
	assert.Equal(t, storage.DefaultSubTaskStatus, st.Status)

	n := &storage.Notification{UserID: alice.ID, Type: "TaskDue", Message: "ship is due"}
	require.NoError(t, s.CreateNotification(ctx, n))

	got, err := s.GetTask(ctx, task.ID, alice.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PlannedCompletionDate)
	assert.True(t, due.Equal(*got.PlannedCompletionDate))

	_, err = s.GetTask(ctx, task.ID, alice.ID+1)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.DeleteUser(ctx, alice.ID))

	_, err = s.GetTask(ctx, task.ID, storage.AnyOwner)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	subtasks, err := s.ListSubTasks(ctx, task.ID)
	require.NoError(t, err)
	assert.Empty(t, subtasks)
	notifications, err := s.ListNotifications(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, notifications)
}

func TestPostgresStore_MigrationsIdempotent(t *testing.T) {
	s, cleanup := SetupPostgresContainer(t)
	defer cleanup()

	applied, err := RunMigrations(context.Background(), s.DB())
	require.NoError(t, err)
	assert.Empty(t, applied)
}
