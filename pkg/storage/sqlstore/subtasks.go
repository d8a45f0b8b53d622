package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/danharap/TaskManager-Backend/pkg/storage"
)

const subTaskColumns = "s.id, s.title, s.description, s.is_completed, s.task_id, s.status"

// ownedSubTask restricts a subtask statement to subtasks of the owner's tasks
const ownedSubTask = " AND task_id IN (SELECT id FROM tasks WHERE user_id = ?)"

// CreateSubTask inserts subTask and sets its ID. An empty status becomes storage.DefaultSubTaskStatus.
func (s *Store) CreateSubTask(ctx context.Context, subTask *storage.SubTask) (err error) {
	defer s.observe("create_subtask", time.Now(), &err)

	if subTask.Status == "" {
		subTask.Status = storage.DefaultSubTaskStatus
	}

	err = s.db.QueryRowxContext(ctx,
		s.db.Rebind("INSERT INTO subtasks (title, description, is_completed, task_id, status) VALUES (?, ?, ?, ?, ?) RETURNING id"),
		subTask.Title, subTask.Description, subTask.IsCompleted, subTask.TaskID, subTask.Status,
	).Scan(&subTask.ID)
	if err != nil {
		return fmt.Errorf("failed to insert subtask: %w", err)
	}
	return nil
}

// ListSubTasks returns the subtasks of a task ordered by id
func (s *Store) ListSubTasks(ctx context.Context, taskID int64) (_ []*storage.SubTask, err error) {
	defer s.observe("list_subtasks", time.Now(), &err)

	subTasks := []*storage.SubTask{}
	err = s.db.SelectContext(ctx, &subTasks,
		s.db.Rebind("SELECT "+subTaskColumns+" FROM subtasks s WHERE s.task_id = ? ORDER BY s.id"), taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subtasks: %w", err)
	}
	return subTasks, nil
}

// GetSubTask fetches a subtask whose parent task belongs to ownerID
func (s *Store) GetSubTask(ctx context.Context, id, ownerID int64) (_ *storage.SubTask, err error) {
	defer s.observe("get_subtask", time.Now(), &err)

	query, args := ownerClause(
		"SELECT "+subTaskColumns+" FROM subtasks s JOIN tasks t ON t.id = s.task_id WHERE s.id = ?",
		"t.user_id", []interface{}{id}, ownerID,
	)

	var subTask storage.SubTask
	if err = s.db.GetContext(ctx, &subTask, s.db.Rebind(query), args...); err != nil {
		return nil, notFoundIfNoRows(err)
	}
	return &subTask, nil
}

// UpdateSubTask overwrites title, description, completion flag and status and
// reloads the row into subTask. An empty status becomes storage.DefaultSubTaskStatus.
func (s *Store) UpdateSubTask(ctx context.Context, subTask *storage.SubTask, ownerID int64) (err error) {
	defer s.observe("update_subtask", time.Now(), &err)

	if subTask.Status == "" {
		subTask.Status = storage.DefaultSubTaskStatus
	}

	query := "UPDATE subtasks SET title = ?, description = ?, is_completed = ?, status = ? WHERE id = ?"
	args := []interface{}{subTask.Title, subTask.Description, subTask.IsCompleted, subTask.Status, subTask.ID}
	if ownerID != storage.AnyOwner {
		query += ownedSubTask
		args = append(args, ownerID)
	}

	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("failed to update subtask %d: %w", subTask.ID, err)
	}
	if err = requireAffected(res); err != nil {
		return err
	}

	err = s.db.GetContext(ctx, subTask,
		s.db.Rebind("SELECT "+subTaskColumns+" FROM subtasks s WHERE s.id = ?"), subTask.ID)
	if err != nil {
		return notFoundIfNoRows(err)
	}
	return nil
}

// DeleteSubTask removes a subtask whose parent task belongs to ownerID
func (s *Store) DeleteSubTask(ctx context.Context, id, ownerID int64) (err error) {
	defer s.observe("delete_subtask", time.Now(), &err)

	query := "DELETE FROM subtasks WHERE id = ?"
	args := []interface{}{id}
	if ownerID != storage.AnyOwner {
		query += ownedSubTask
		args = append(args, ownerID)
	}

	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("failed to delete subtask %d: %w", id, err)
	}
	return requireAffected(res)
}
