package store

import (
	"context"
	"time"

	"github.com/pavelanni/examdesk/internal/model"
)

// CreateNotification stores a notification for one user.
func (s *Store) CreateNotification(ctx context.Context, n model.Notification) (model.Notification, error) {
	if n.Type == "" {
		n.Type = model.NotificationSystem
	}
	n.CreatedAt = time.Now().UTC()
	n.IsRead = false
	err := s.conn().queryRow(ctx,
		`INSERT INTO notifications (user_id, title, message, type, is_read, created_at)
		 VALUES (?, ?, ?, ?, ?, ?) RETURNING id`,
		n.UserID, n.Title, n.Message, n.Type, false, n.CreatedAt,
	).Scan(&n.ID)
	if err != nil {
		return model.Notification{}, err
	}
	return n, nil
}

// NotifyRole sends the same notification to every active user with the
// given role and returns how many were created.
func (s *Store) NotifyRole(ctx context.Context, role model.UserRole, title, message string, typ model.NotificationType) (int64, error) {
	res, err := s.conn().exec(ctx,
		`INSERT INTO notifications (user_id, title, message, type, is_read, created_at)
		 SELECT id, ?, ?, ?, ?, ? FROM users WHERE role = ? AND active = ?`,
		title, message, typ, false, time.Now().UTC(), role, true,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListNotifications returns a user's notifications, newest first.
func (s *Store) ListNotifications(ctx context.Context, userID int64) ([]model.Notification, error) {
	rows, err := s.conn().query(ctx,
		`SELECT id, user_id, title, message, type, is_read, created_at
		 FROM notifications WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Notification{}
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// UnreadNotificationCount returns how many of a user's notifications are unread.
func (s *Store) UnreadNotificationCount(ctx context.Context, userID int64) (int, error) {
	var n int
	err := s.conn().queryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = ?`, userID, false,
	).Scan(&n)
	return n, err
}

// MarkNotificationRead marks one of the user's notifications as read. A
// notification owned by someone else is reported as model.ErrNotFound.
func (s *Store) MarkNotificationRead(ctx context.Context, id, userID int64) error {
	res, err := s.conn().exec(ctx,
		`UPDATE notifications SET is_read = ? WHERE id = ? AND user_id = ?`, true, id, userID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// MarkAllNotificationsRead marks every notification of the user as read.
func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID int64) (int64, error) {
	res, err := s.conn().exec(ctx,
		`UPDATE notifications SET is_read = ? WHERE user_id = ? AND is_read = ?`, true, userID, false,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
