// Package api provides the HTTP REST API server for the task manager.
//
// # Overview
//
// The API maps HTTP verbs onto task, subtask, notification and account
// operations. Every protected route runs behind the bearer token gate from
// pkg/middleware, which places the caller's auth.Principal in the request
// context. Handlers read the principal, apply ownership rules and call the
// storage layer.
//
// # Architecture
//
// The API is built on gorilla/mux and organized into handler groups:
//
//   - AuthHandlers: registration, login, self-service and admin account management
//   - TaskHandlers: task CRUD plus subtasks nested under a task
//   - NotificationHandlers: per-user notifications
//
// Server wires the groups together and wraps the router with request IDs,
// request logging, panic recovery, CORS, body size limits and OpenTelemetry
// spans. Prometheus metrics are recorded per matched route template.
// LoginLimiter and RegisterLimiter, when set, throttle the two unauthenticated
// routes per client IP.
//
//	srv := api.NewServer(api.Config{
//		Store:  store,
//		Issuer: issuer,
//		Hasher: auth.NewPasswordHasher(auth.SchemeArgon2id),
//		Logger: logger,
//	})
//	http.ListenAndServe(":8080", srv)
//
// # API Endpoints
//
// Authentication:
//
//	POST   /api/auth/register                    Create an account
//	POST   /api/auth/login                       Exchange credentials for a token
//	PUT    /api/auth/username                    Rename own account
//	PUT    /api/auth/password                    Change own password
//	DELETE /api/auth/users/me                    Delete own account and its data
//	PUT    /api/auth/admin/users/{id}/username   Rename any account (Admin)
//	GET    /api/auth/users                       List accounts (Admin)
//	DELETE /api/auth/users/{id}                  Delete any account (Admin)
//	PUT    /api/auth/users/{id}/role             Set a role (Admin)
//
// Tasks:
//
//	GET    /api/tasks                            List own tasks
//	GET    /api/tasks/all                        List every task (Admin)
//	POST   /api/tasks                            Create a task
//	GET    /api/tasks/{id}                       Fetch a task
//	PUT    /api/tasks/{id}                       Replace a task's fields
//	DELETE /api/tasks/{id}                       Delete a task and its subtasks
//	GET    /api/tasks/{taskId}/subtasks          List subtasks
//	POST   /api/tasks/{taskId}/subtasks          Create a subtask
//	PUT    /api/tasks/subtasks/{id}              Replace a subtask's fields
//	DELETE /api/tasks/subtasks/{id}              Delete a subtask
//
// Notifications:
//
//	GET    /api/notifications                    List own notifications, newest first
//	POST   /api/notifications                    Create a notification
//	PUT    /api/notifications/{id}/read          Mark as read
//	DELETE /api/notifications/{id}               Delete one
//	DELETE /api/notifications/clear-all          Delete all
//
// # Ownership
//
// Rows that belong to another user answer 404, the same as missing rows.
// Admins may fetch, update and delete any task; list, subtask and
// notification routes never bypass ownership.
//
// # Audit
//
// Registrations, logins (including failures), credential changes, account
// deletion and admin actions are written to Config.Audit.
//
// # Error Responses
//
// Failures carry a JSON body with a single Message field:
//
//	{"Message": "Task with ID 7 not found."}
//
// Unexpected storage faults are logged and answered with 500.
package api
