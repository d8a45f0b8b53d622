package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/danharap/TaskManager-Backend/pkg/storage"
)

const taskColumns = "id, title, description, is_completed, created_at, priority, user_id, planned_completion_date"

// CreateTask inserts task and sets its ID
func (s *Store) CreateTask(ctx context.Context, task *storage.Task) (err error) {
	defer s.observe("create_task", time.Now(), &err)

	err = s.db.QueryRowxContext(ctx,
		s.db.Rebind(`INSERT INTO tasks (title, description, is_completed, created_at, priority, user_id, planned_completion_date)
			VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		task.Title, task.Description, task.IsCompleted, task.CreatedAt, task.Priority, task.UserID, task.PlannedCompletionDate,
	).Scan(&task.ID)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// GetTask fetches a task, optionally restricted to one owner
func (s *Store) GetTask(ctx context.Context, id, ownerID int64) (_ *storage.Task, err error) {
	defer s.observe("get_task", time.Now(), &err)

	query, args := ownerClause("SELECT "+taskColumns+" FROM tasks WHERE id = ?", "user_id", []interface{}{id}, ownerID)

	var task storage.Task
	if err = s.db.GetContext(ctx, &task, s.db.Rebind(query), args...); err != nil {
		return nil, notFoundIfNoRows(err)
	}
	return &task, nil
}

// ListTasks returns the owner's tasks, or every task for storage.AnyOwner
func (s *Store) ListTasks(ctx context.Context, ownerID int64) (_ []*storage.Task, err error) {
	defer s.observe("list_tasks", time.Now(), &err)

	query, args := ownerClause("SELECT "+taskColumns+" FROM tasks WHERE 1 = 1", "user_id", nil, ownerID)

	tasks := []*storage.Task{}
	if err = s.db.SelectContext(ctx, &tasks, s.db.Rebind(query+" ORDER BY id"), args...); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// UpdateTask overwrites the mutable task fields and reloads the row into task
func (s *Store) UpdateTask(ctx context.Context, task *storage.Task, ownerID int64) (err error) {
	defer s.observe("update_task", time.Now(), &err)

	query, args := ownerClause(
		"UPDATE tasks SET title = ?, description = ?, is_completed = ?, priority = ?, planned_completion_date = ? WHERE id = ?",
		"user_id",
		[]interface{}{task.Title, task.Description, task.IsCompleted, task.Priority, task.PlannedCompletionDate, task.ID},
		ownerID,
	)

	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("failed to update task %d: %w", task.ID, err)
	}
	if err = requireAffected(res); err != nil {
		return err
	}

	if err = s.db.GetContext(ctx, task, s.db.Rebind("SELECT "+taskColumns+" FROM tasks WHERE id = ?"), task.ID); err != nil {
		return notFoundIfNoRows(err)
	}
	return nil
}

// DeleteTask removes a task and its subtasks in one transaction
func (s *Store) DeleteTask(ctx context.Context, id, ownerID int64) (err error) {
	defer s.observe("delete_task", time.Now(), &err)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	query, args := ownerClause("SELECT id FROM tasks WHERE id = ?", "user_id", []interface{}{id}, ownerID)
	var taskID int64
	if err := tx.GetContext(ctx, &taskID, tx.Rebind(query), args...); err != nil {
		return notFoundIfNoRows(err)
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM subtasks WHERE task_id = ?"), taskID); err != nil {
		return fmt.Errorf("failed to delete subtasks of task %d: %w", taskID, err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM tasks WHERE id = ?"), taskID); err != nil {
		return fmt.Errorf("failed to delete task %d: %w", taskID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit task deletion: %w", err)
	}
	return nil
}
