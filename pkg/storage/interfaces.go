package storage

import (
	"context"
	"errors"
	"time"

	"github.com/danharap/TaskManager-Backend/pkg/auth"
)

var (
	// ErrNotFound is returned when a row is missing or not owned by the caller
	ErrNotFound = errors.New("not found")
	// ErrUsernameTaken is returned when a username collides with an existing account
	ErrUsernameTaken = errors.New("username already exists")
)

// AnyOwner disables the owner filter on task lookups. Row ids start at 1.
const AnyOwner int64 = 0

// DefaultSubTaskStatus is stored when a subtask is created without a status
const DefaultSubTaskStatus = "Not Started"

// Task is a unit of work owned by one user
type Task struct {
	ID                    int64      `json:"id" db:"id"`
	Title                 *string    `json:"title" db:"title"`
	Description           *string    `json:"description" db:"description"`
	IsCompleted           bool       `json:"isCompleted" db:"is_completed"`
	CreatedAt             time.Time  `json:"createdAt" db:"created_at"`
	Priority              *string    `json:"priority" db:"priority"`
	UserID                int64      `json:"userId" db:"user_id"`
	PlannedCompletionDate *time.Time `json:"plannedCompletionDate" db:"planned_completion_date"`
}

// SubTask is a step of a task; ownership follows the parent task
type SubTask struct {
	ID          int64   `json:"id" db:"id"`
	Title       *string `json:"title" db:"title"`
	Description *string `json:"description" db:"description"`
	IsCompleted bool    `json:"isCompleted" db:"is_completed"`
	TaskID      int64   `json:"taskId" db:"task_id"`
	Status      string  `json:"status" db:"status"`
}

// Notification is a message addressed to one user
type Notification struct {
	ID        int64     `json:"id" db:"id"`
	UserID    int64     `json:"userId" db:"user_id"`
	Type      string    `json:"type" db:"type"`
	Message   string    `json:"message" db:"message"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	IsRead    bool      `json:"isRead" db:"is_read"`
}

// UserStore persists accounts
type UserStore interface {
	CreateUser(ctx context.Context, user *auth.User) error
	GetUser(ctx context.Context, id int64) (*auth.User, error)
	GetUserByUsername(ctx context.Context, username string) (*auth.User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	ListUsers(ctx context.Context) ([]*auth.User, error)
	UpdateUsername(ctx context.Context, id int64, username string) error
	UpdatePasswordHash(ctx context.Context, id int64, hash string) error
	UpdateRole(ctx context.Context, id int64, role auth.Role) error
	// DeleteUser removes the user with their notifications, tasks and the
	// subtasks of those tasks.
	DeleteUser(ctx context.Context, id int64) error
}

// TaskStore persists tasks. ownerID restricts a lookup to one user's rows;
// AnyOwner lifts the restriction.
type TaskStore interface {
	CreateTask(ctx context.Context, task *Task) error
	GetTask(ctx context.Context, id, ownerID int64) (*Task, error)
	ListTasks(ctx context.Context, ownerID int64) ([]*Task, error)
	// UpdateTask overwrites title, description, completion flag, priority and
	// planned completion date. The stored row is written back into task.
	UpdateTask(ctx context.Context, task *Task, ownerID int64) error
	// DeleteTask removes the task and its subtasks.
	DeleteTask(ctx context.Context, id, ownerID int64) error
}

// SubTaskStore persists subtasks. Ownership is resolved through the parent task.
type SubTaskStore interface {
	CreateSubTask(ctx context.Context, subTask *SubTask) error
	ListSubTasks(ctx context.Context, taskID int64) ([]*SubTask, error)
	GetSubTask(ctx context.Context, id, ownerID int64) (*SubTask, error)
	// UpdateSubTask overwrites title, description, completion flag and status.
	UpdateSubTask(ctx context.Context, subTask *SubTask, ownerID int64) error
	DeleteSubTask(ctx context.Context, id, ownerID int64) error
}

// NotificationStore persists notifications, always scoped to one user
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *Notification) error
	// ListNotifications returns newest first.
	ListNotifications(ctx context.Context, userID int64) ([]*Notification, error)
	MarkNotificationRead(ctx context.Context, id, userID int64) (*Notification, error)
	DeleteNotification(ctx context.Context, id, userID int64) error
	// ClearNotifications deletes every notification of the user and returns the count.
	ClearNotifications(ctx context.Context, userID int64) (int64, error)
}

// Store is the full persistence surface used by the API
type Store interface {
	UserStore
	TaskStore
	SubTaskStore
	NotificationStore

	HealthCheck(ctx context.Context) error
	Close() error
}

// Config for storage backend
type Config struct {
	Driver string // "postgres" or "sqlite3"
	URL    string

	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration

	// Redis config (optional, used by the login rate limiter)
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Driver:          "sqlite3",
		URL:             "file:taskmanager.db?_foreign_keys=on",
		MaxConns:        20,
		MinConns:        2,
		Timeout:         10 * time.Second,
		MaxLifetime:     30 * time.Minute,
		MaxIdleTime:     5 * time.Minute,
		RedisDB:         0,
		RedisMaxRetries: 3,
		RedisPoolSize:   10,
	}
}
