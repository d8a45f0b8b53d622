package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/danharap/TaskManager-Backend/pkg/auth"
	"github.com/danharap/TaskManager-Backend/pkg/storage"
)

const userColumns = "id, username, password_hash, role"

// CreateUser inserts user and sets its ID
func (s *Store) CreateUser(ctx context.Context, user *auth.User) (err error) {
	defer s.observe("create_user", time.Now(), &err)

	if user.Role == "" {
		user.Role = auth.RoleUser
	}

	err = s.db.QueryRowxContext(ctx,
		s.db.Rebind("INSERT INTO users (username, password_hash, role) VALUES (?, ?, ?) RETURNING id"),
		user.Username, user.PasswordHash, string(user.Role),
	).Scan(&user.ID)
	if isUniqueViolation(err) {
		return storage.ErrUsernameTaken
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// GetUser fetches a user by id
func (s *Store) GetUser(ctx context.Context, id int64) (_ *auth.User, err error) {
	defer s.observe("get_user", time.Now(), &err)

	var user auth.User
	err = s.db.GetContext(ctx, &user, s.db.Rebind("SELECT "+userColumns+" FROM users WHERE id = ?"), id)
	if err != nil {
		return nil, notFoundIfNoRows(err)
	}
	return &user, nil
}

// GetUserByUsername fetches a user by exact, case-sensitive username
func (s *Store) GetUserByUsername(ctx context.Context, username string) (_ *auth.User, err error) {
	defer s.observe("get_user_by_username", time.Now(), &err)

	var user auth.User
	err = s.db.GetContext(ctx, &user, s.db.Rebind("SELECT "+userColumns+" FROM users WHERE username = ?"), username)
	if err != nil {
		return nil, notFoundIfNoRows(err)
	}
	return &user, nil
}

// UsernameExists reports whether any account uses username
func (s *Store) UsernameExists(ctx context.Context, username string) (_ bool, err error) {
	defer s.observe("username_exists", time.Now(), &err)

	var count int
	err = s.db.GetContext(ctx, &count, s.db.Rebind("SELECT COUNT(1) FROM users WHERE username = ?"), username)
	if err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}
	return count > 0, nil
}

// ListUsers returns every account ordered by id
func (s *Store) ListUsers(ctx context.Context) (_ []*auth.User, err error) {
	defer s.observe("list_users", time.Now(), &err)

	users := []*auth.User{}
	if err = s.db.SelectContext(ctx, &users, "SELECT "+userColumns+" FROM users ORDER BY id"); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// UpdateUsername renames a user
func (s *Store) UpdateUsername(ctx context.Context, id int64, username string) (err error) {
	defer s.observe("update_username", time.Now(), &err)

	res, err := s.db.ExecContext(ctx, s.db.Rebind("UPDATE users SET username = ? WHERE id = ?"), username, id)
	if isUniqueViolation(err) {
		return storage.ErrUsernameTaken
	}
	if err != nil {
		return fmt.Errorf("failed to update username: %w", err)
	}
	return requireAffected(res)
}

// UpdatePasswordHash replaces a user's stored digest
func (s *Store) UpdatePasswordHash(ctx context.Context, id int64, hash string) (err error) {
	defer s.observe("update_password", time.Now(), &err)

	res, err := s.db.ExecContext(ctx, s.db.Rebind("UPDATE users SET password_hash = ? WHERE id = ?"), hash, id)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return requireAffected(res)
}

// UpdateRole changes a user's role
func (s *Store) UpdateRole(ctx context.Context, id int64, role auth.Role) (err error) {
	defer s.observe("update_role", time.Now(), &err)

	res, err := s.db.ExecContext(ctx, s.db.Rebind("UPDATE users SET role = ? WHERE id = ?"), string(role), id)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	return requireAffected(res)
}

// DeleteUser removes a user and everything they own in one transaction
func (s *Store) DeleteUser(ctx context.Context, id int64) (err error) {
	defer s.observe("delete_user", time.Now(), &err)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	steps := []struct {
		name  string
		query string
	}{
		{"notifications", "DELETE FROM notifications WHERE user_id = ?"},
		{"subtasks", "DELETE FROM subtasks WHERE task_id IN (SELECT id FROM tasks WHERE user_id = ?)"},
		{"tasks", "DELETE FROM tasks WHERE user_id = ?"},
	}
	for _, step := range steps {
		if _, err := tx.ExecContext(ctx, tx.Rebind(step.query), id); err != nil {
			return fmt.Errorf("failed to delete %s of user %d: %w", step.name, id, err)
		}
	}

	res, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM users WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("failed to delete user %d: %w", id, err)
	}
	if err := requireAffected(res); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit user deletion: %w", err)
	}
	return nil
}
