package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/danharap/TaskManager-Backend/pkg/storage"
)

const notificationColumns = "id, user_id, type, message, created_at, is_read"

// CreateNotification inserts n and sets its ID
func (s *Store) CreateNotification(ctx context.Context, n *storage.Notification) (err error) {
	defer s.observe("create_notification", time.Now(), &err)

	err = s.db.QueryRowxContext(ctx,
		s.db.Rebind("INSERT INTO notifications (user_id, type, message, created_at, is_read) VALUES (?, ?, ?, ?, ?) RETURNING id"),
		n.UserID, n.Type, n.Message, n.CreatedAt, n.IsRead,
	).Scan(&n.ID)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// ListNotifications returns the user's notifications, newest first
func (s *Store) ListNotifications(ctx context.Context, userID int64) (_ []*storage.Notification, err error) {
	defer s.observe("list_notifications", time.Now(), &err)

	notifications := []*storage.Notification{}
	err = s.db.SelectContext(ctx, &notifications,
		s.db.Rebind("SELECT "+notificationColumns+" FROM notifications WHERE user_id = ? ORDER BY created_at DESC, id DESC"), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, nil
}

// MarkNotificationRead sets the read flag and returns the updated row
func (s *Store) MarkNotificationRead(ctx context.Context, id, userID int64) (_ *storage.Notification, err error) {
	defer s.observe("mark_notification_read", time.Now(), &err)

	res, err := s.db.ExecContext(ctx,
		s.db.Rebind("UPDATE notifications SET is_read = ? WHERE id = ? AND user_id = ?"), true, id, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark notification %d read: %w", id, err)
	}
	if err = requireAffected(res); err != nil {
		return nil, err
	}

	var n storage.Notification
	err = s.db.GetContext(ctx, &n,
		s.db.Rebind("SELECT "+notificationColumns+" FROM notifications WHERE id = ? AND user_id = ?"), id, userID)
	if err != nil {
		return nil, notFoundIfNoRows(err)
	}
	return &n, nil
}

// DeleteNotification removes one of the user's notifications
func (s *Store) DeleteNotification(ctx context.Context, id, userID int64) (err error) {
	defer s.observe("delete_notification", time.Now(), &err)

	res, err := s.db.ExecContext(ctx,
		s.db.Rebind("DELETE FROM notifications WHERE id = ? AND user_id = ?"), id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete notification %d: %w", id, err)
	}
	return requireAffected(res)
}

// ClearNotifications deletes all of the user's notifications and returns how many were removed
func (s *Store) ClearNotifications(ctx context.Context, userID int64) (_ int64, err error) {
	defer s.observe("clear_notifications", time.Now(), &err)

	res, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM notifications WHERE user_id = ?"), userID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear notifications: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count cleared notifications: %w", err)
	}
	return n, nil
}
