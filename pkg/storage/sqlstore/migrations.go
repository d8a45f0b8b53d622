package sqlstore

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns the schema migrations for the given driver
func GetMigrations(driver string) []Migration {
	if driver == DriverPostgres {
		return postgresMigrations()
	}
	return sqliteMigrations()
}

// SchemaVersion is the newest migration version for the given driver
func SchemaVersion(driver string) int {
	latest := 0
	for _, m := range GetMigrations(driver) {
		if m.Version > latest {
			latest = m.Version
		}
	}
	return latest
}

func postgresMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					username TEXT NOT NULL UNIQUE,
					password_hash TEXT NOT NULL,
					role TEXT NOT NULL DEFAULT 'User'
				);
			`,
		},
		{
			Version:     2,
			Description: "Create tasks table",
			SQL: `
				CREATE TABLE IF NOT EXISTS tasks (
					id BIGSERIAL PRIMARY KEY,
					title TEXT,
					description TEXT,
					is_completed BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					priority TEXT,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE
				);

				CREATE INDEX IF NOT EXISTS idx_tasks_user_id ON tasks(user_id);
			`,
		},
		{
			Version:     3,
			Description: "Add planned completion date to tasks",
			SQL:         `ALTER TABLE tasks ADD COLUMN IF NOT EXISTS planned_completion_date TIMESTAMPTZ;`,
		},
		{
			Version:     4,
			Description: "Create subtasks table",
			SQL: `
				CREATE TABLE IF NOT EXISTS subtasks (
					id BIGSERIAL PRIMARY KEY,
					title TEXT,
					description TEXT,
					is_completed BOOLEAN NOT NULL DEFAULT FALSE,
					task_id BIGINT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE
				);

				CREATE INDEX IF NOT EXISTS idx_subtasks_task_id ON subtasks(task_id);
			`,
		},
		{
			Version:     5,
			Description: "Add status to subtasks",
			SQL:         `ALTER TABLE subtasks ADD COLUMN IF NOT EXISTS status TEXT NOT NULL DEFAULT 'Not Started';`,
		},
		{
			Version:     6,
			Description: "Create notifications table",
			SQL: `
				CREATE TABLE IF NOT EXISTS notifications (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					type TEXT NOT NULL DEFAULT '',
					message TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					is_read BOOLEAN NOT NULL DEFAULT FALSE
				);

				CREATE INDEX IF NOT EXISTS idx_notifications_user_created ON notifications(user_id, created_at DESC);
			`,
		},
	}
}

func sqliteMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					username TEXT NOT NULL UNIQUE,
					password_hash TEXT NOT NULL,
					role TEXT NOT NULL DEFAULT 'User'
				);
			`,
		},
		{
			Version:     2,
			Description: "Create tasks table",
			SQL: `
				CREATE TABLE IF NOT EXISTS tasks (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					title TEXT,
					description TEXT,
					is_completed BOOLEAN NOT NULL DEFAULT 0,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					priority TEXT,
					user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE
				);

				CREATE INDEX IF NOT EXISTS idx_tasks_user_id ON tasks(user_id);
			`,
		},
		{
			Version:     3,
			Description: "Add planned completion date to tasks",
			SQL:         `ALTER TABLE tasks ADD COLUMN planned_completion_date TIMESTAMP;`,
		},
		{
			Version:     4,
			Description: "Create subtasks table",
			SQL: `
				CREATE TABLE IF NOT EXISTS subtasks (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					title TEXT,
					description TEXT,
					is_completed BOOLEAN NOT NULL DEFAULT 0,
					task_id INTEGER NOT NULL REFERENCES tasks(id) ON DELETE CASCADE
				);

				CREATE INDEX IF NOT EXISTS idx_subtasks_task_id ON subtasks(task_id);
			`,
		},
		{
			Version:     5,
			Description: "Add status to subtasks",
			SQL:         `ALTER TABLE subtasks ADD COLUMN status TEXT NOT NULL DEFAULT 'Not Started';`,
		},
		{
			Version:     6,
			Description: "Create notifications table",
			SQL: `
				CREATE TABLE IF NOT EXISTS notifications (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					type TEXT NOT NULL DEFAULT '',
					message TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					is_read BOOLEAN NOT NULL DEFAULT 0
				);

				CREATE INDEX IF NOT EXISTS idx_notifications_user_created ON notifications(user_id, created_at DESC);
			`,
		},
	}
}

// RunMigrations applies all pending migrations, each in its own transaction
func RunMigrations(ctx context.Context, db *sqlx.DB) ([]int, error) {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	var versions []int
	if err := db.SelectContext(ctx, &versions, "SELECT version FROM schema_migrations ORDER BY version"); err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool, len(versions))
	for _, v := range versions {
		appliedVersions[v] = true
	}

	var applied []int
	for _, migration := range GetMigrations(db.DriverName()) {
		if appliedVersions[migration.Version] {
			continue
		}

		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			return applied, fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return applied, fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			tx.Rebind("INSERT INTO schema_migrations (version, description) VALUES (?, ?)"),
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return applied, fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return applied, fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}

		applied = append(applied, migration.Version)
	}

	return applied, nil
}
