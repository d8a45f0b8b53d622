package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/danharap/TaskManager-Backend/pkg/audit"
	"github.com/danharap/TaskManager-Backend/pkg/httputil"
	"github.com/danharap/TaskManager-Backend/pkg/observability"
	"github.com/danharap/TaskManager-Backend/pkg/storage"
)

// TaskStore is the persistence surface used by TaskHandlers
type TaskStore interface {
	storage.TaskStore
	storage.SubTaskStore
}

// TaskHandlers handles task and subtask requests
type TaskHandlers struct {
	store   TaskStore
	metrics *observability.Metrics
	trail   audit.Logger
	gate    guard
	now     func() time.Time
}

// NewTaskHandlers creates a new task handlers instance
func NewTaskHandlers(store TaskStore, metrics *observability.Metrics, trail audit.Logger, gate guard) *TaskHandlers {
	return &TaskHandlers{
		store:   store,
		metrics: metrics,
		trail:   trail,
		gate:    gate,
		now:     time.Now,
	}
}

// RegisterRoutes registers task and subtask routes
func (h *TaskHandlers) RegisterRoutes(router *mux.Router) {
	router.Handle("/api/tasks", h.gate.user(h.listTasks)).Methods("GET")
	router.Handle("/api/tasks", h.gate.user(h.createTask)).Methods("POST")
	router.Handle("/api/tasks/all", h.gate.admin(h.listAllTasks)).Methods("GET")
	router.Handle("/api/tasks/{id:[0-9]+}", h.gate.user(h.getTask)).Methods("GET")
	router.Handle("/api/tasks/{id:[0-9]+}", h.gate.user(h.updateTask)).Methods("PUT")
	router.Handle("/api/tasks/{id:[0-9]+}", h.gate.user(h.deleteTask)).Methods("DELETE")

	// Subtasks
	router.Handle("/api/tasks/{taskId:[0-9]+}/subtasks", h.gate.user(h.listSubTasks)).Methods("GET")
	router.Handle("/api/tasks/{taskId:[0-9]+}/subtasks", h.gate.user(h.createSubTask)).Methods("POST")
	router.Handle("/api/tasks/subtasks/{id:[0-9]+}", h.gate.user(h.updateSubTask)).Methods("PUT")
	router.Handle("/api/tasks/subtasks/{id:[0-9]+}", h.gate.user(h.deleteSubTask)).Methods("DELETE")
}

// listAllTasks handles GET /api/tasks/all
func (h *TaskHandlers) listAllTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.store.ListTasks(r.Context(), storage.AnyOwner)
	if err != nil {
		writeInternalError(w, r, err, "failed to list all tasks")
		return
	}
	httputil.WriteSuccess(w, tasks)
}

// listTasks handles GET /api/tasks. Admins also see only their own tasks here.
func (h *TaskHandlers) listTasks(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrUnauthorized(w, r)
	if !ok {
		return
	}

	tasks, err := h.store.ListTasks(r.Context(), principal.UserID)
	if err != nil {
		writeInternalError(w, r, err, "failed to list tasks")
		return
	}
	httputil.WriteSuccess(w, tasks)
}

// getTask handles GET /api/tasks/{id}
func (h *TaskHandlers) getTask(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrUnauthorized(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	task, err := h.store.GetTask(r.Context(), id, ownerFilter(principal))
	if errors.Is(err, storage.ErrNotFound) {
		httputil.WriteNotFoundError(w, taskNotFound(id))
		return
	}
	if err != nil {
		writeInternalError(w, r, err, "failed to get task")
		return
	}
	httputil.WriteSuccess(w, task)
}

// createTask handles POST /api/tasks
func (h *TaskHandlers) createTask(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrUnauthorized(w, r)
	if !ok {
		return
	}

	var req taskRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	task := &storage.Task{
		Title:                 req.Title,
		Description:           req.Description,
		IsCompleted:           req.IsCompleted,
		CreatedAt:             h.now().UTC(),
		Priority:              req.Priority,
		UserID:                principal.UserID,
		PlannedCompletionDate: req.PlannedCompletionDate,
	}
	if err := h.store.CreateTask(r.Context(), task); err != nil {
		writeInternalError(w, r, err, "failed to create task")
		return
	}

	h.metrics.TasksCreatedTotal.Inc()
	httputil.WriteSuccess(w, task)
}

// updateTask handles PUT /api/tasks/{id}. Every writable field is replaced.
func (h *TaskHandlers) updateTask(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrUnauthorized(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req taskRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	task := &storage.Task{
		ID:                    id,
		Title:                 req.Title,
		Description:           req.Description,
		IsCompleted:           req.IsCompleted,
		Priority:              req.Priority,
		PlannedCompletionDate: req.PlannedCompletionDate,
	}
	err := h.store.UpdateTask(r.Context(), task, ownerFilter(principal))
	if errors.Is(err, storage.ErrNotFound) {
		httputil.WriteNotFoundError(w, taskNotFound(id))
		return
	}
	if err != nil {
		writeInternalError(w, r, err, "failed to update task")
		return
	}
	httputil.WriteSuccess(w, task)
}

// deleteTask handles DELETE /api/tasks/{id}. Subtasks go with the task.
func (h *TaskHandlers) deleteTask(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrUnauthorized(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	err := h.store.DeleteTask(r.Context(), id, ownerFilter(principal))
	if errors.Is(err, storage.ErrNotFound) {
		if principal.IsAdmin() {
			httputil.WriteNotFoundError(w, fmt.Sprintf("[Admin] Task with ID %d not found.", id))
		} else {
			httputil.WriteNotFoundError(w, fmt.Sprintf("[User] Task with ID %d not found for your account.", id))
		}
		return
	}
	if err != nil {
		writeInternalError(w, r, err, "failed to delete task")
		return
	}

	observability.GetLogger(r.Context()).WithField("task_id", id).Info("task deleted")
	if principal.IsAdmin() {
		event := audit.NewEvent(r, audit.EventAdminTaskDelete, audit.StatusSuccess)
		event.Metadata = map[string]interface{}{"task_id": id}
		recordAudit(h.trail, r, event)
	}
	httputil.WriteOK(w, fmt.Sprintf("Task with ID %d and its subtasks have been removed.", id))
}

// ownedTask checks that the caller owns the task. Admins get no bypass.
// It writes the error response and returns false on failure.
func (h *TaskHandlers) ownedTask(w http.ResponseWriter, r *http.Request, taskID, userID int64) bool {
	_, err := h.store.GetTask(r.Context(), taskID, userID)
	if errors.Is(err, storage.ErrNotFound) {
		httputil.WriteNotFoundError(w, taskNotFound(taskID))
		return false
	}
	if err != nil {
		writeInternalError(w, r, err, "failed to get task")
		return false
	}
	return true
}

// listSubTasks handles GET /api/tasks/{taskId}/subtasks
func (h *TaskHandlers) listSubTasks(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrUnauthorized(w, r)
	if !ok {
		return
	}
	taskID, ok := httputil.ParsePathInt64OrError(w, r, "taskId")
	if !ok {
		return
	}

	if !h.ownedTask(w, r, taskID, principal.UserID) {
		return
	}

	subTasks, err := h.store.ListSubTasks(r.Context(), taskID)
	if err != nil {
		writeInternalError(w, r, err, "failed to list subtasks")
		return
	}
	httputil.WriteSuccess(w, subTasks)
}

// createSubTask handles POST /api/tasks/{taskId}/subtasks
func (h *TaskHandlers) createSubTask(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrUnauthorized(w, r)
	if !ok {
		return
	}
	taskID, ok := httputil.ParsePathInt64OrError(w, r, "taskId")
	if !ok {
		return
	}

	var req subTaskRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if !h.ownedTask(w, r, taskID, principal.UserID) {
		return
	}

	subTask := &storage.SubTask{
		Title:       req.Title,
		Description: req.Description,
		IsCompleted: req.IsCompleted,
		TaskID:      taskID,
		Status:      req.Status,
	}
	if err := h.store.CreateSubTask(r.Context(), subTask); err != nil {
		writeInternalError(w, r, err, "failed to create subtask")
		return
	}

	h.metrics.SubTasksCreatedTotal.Inc()
	httputil.WriteSuccess(w, subTask)
}

// updateSubTask handles PUT /api/tasks/subtasks/{id}
func (h *TaskHandlers) updateSubTask(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrUnauthorized(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req subTaskRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	subTask := &storage.SubTask{
		ID:          id,
		Title:       req.Title,
		Description: req.Description,
		IsCompleted: req.IsCompleted,
		Status:      req.Status,
	}
	err := h.store.UpdateSubTask(r.Context(), subTask, principal.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		httputil.WriteNotFoundError(w, subTaskNotFound(id))
		return
	}
	if err != nil {
		writeInternalError(w, r, err, "failed to update subtask")
		return
	}
	httputil.WriteSuccess(w, subTask)
}

// deleteSubTask handles DELETE /api/tasks/subtasks/{id}
func (h *TaskHandlers) deleteSubTask(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrUnauthorized(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	err := h.store.DeleteSubTask(r.Context(), id, principal.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		httputil.WriteNotFoundError(w, subTaskNotFound(id))
		return
	}
	if err != nil {
		writeInternalError(w, r, err, "failed to delete subtask")
		return
	}
	httputil.WriteOK(w, fmt.Sprintf("SubTask with ID %d has been removed.", id))
}

func taskNotFound(id int64) string {
	return fmt.Sprintf("Task with ID %d not found.", id)
}

func subTaskNotFound(id int64) string {
	return fmt.Sprintf("SubTask with ID %d not found.", id)
}
