// Package storage defines the persistence layer for users, tasks, subtasks and notifications.
//
// # Overview
//
// The API layer talks to a single Store interface composed from focused parts:
//
//   - UserStore: accounts, credentials, roles, cascading account deletion
//   - TaskStore: tasks filtered by owner (AnyOwner for administrators)
//   - SubTaskStore: subtasks, ownership derived from the parent task
//   - NotificationStore: per-user notifications, newest first
//
// Missing rows and rows owned by someone else both surface as ErrNotFound so
// callers cannot tell the two apart.
//
// # Backends
//
// pkg/storage/sqlstore implements Store on top of sqlx for PostgreSQL (lib/pq)
// and SQLite (mattn/go-sqlite3):
//
//	db, err := sqlstore.Open(ctx, storage.Config{Driver: "postgres", URL: url})
//	if err := sqlstore.RunMigrations(ctx, db); err != nil { ... }
//	store := sqlstore.New(db)
//
// NewRedisClient connects the optional Redis instance used for distributed
// login rate limiting.
package storage
