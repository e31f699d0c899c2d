package market

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/Elizabethomito/tutormarket/internal/apperr"
	"github.com/Elizabethomito/tutormarket/internal/db"
	"github.com/Elizabethomito/tutormarket/internal/live"
	"github.com/Elizabethomito/tutormarket/internal/models"
)

// notify inserts a notification inside the triggering operation's
// transaction.
func (t *txn) notify(userID string, typ models.NotificationType, payload models.NotificationPayload) error {
	if userID == "" {
		return nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	id := uuid.NewString()
	if _, err := t.exec(`INSERT INTO notifications (id, user_id, type, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, userID, typ, string(body), db.Millis(t.now)); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	t.emit("notification", id, live.UserTopic(userID))
	return nil
}

// ListNotifications returns the caller's notifications, newest first.
func (s *Service) ListNotifications(ctx context.Context, caller models.Identity, unreadOnly bool) ([]models.Notification, error) {
	notes := []models.Notification{}
	err := s.read(ctx, func(t *txn) error {
		me, err := t.viewer(caller)
		if err != nil || me == nil {
			return err
		}
		query := `SELECT id, user_id, type, payload, is_read, created_at FROM notifications WHERE user_id = ?`
		if unreadOnly {
			query += ` AND is_read = 0`
		}
		rows, err := t.query(query+` ORDER BY created_at DESC, rowid DESC`, me.ID)
		if err != nil {
			return fmt.Errorf("list notifications: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var n models.Notification
			var payload string
			var created int64
			if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &payload, &n.IsRead, &created); err != nil {
				return fmt.Errorf("scan notification: %w", err)
			}
			if err := json.Unmarshal([]byte(payload), &n.Payload); err != nil {
				return fmt.Errorf("decode notification %s: %w", n.ID, err)
			}
			n.CreatedAt = db.FromMillis(created)
			notes = append(notes, n)
		}
		return rows.Err()
	})
	return notes, err
}

func (s *Service) UnreadNotificationCount(ctx context.Context, caller models.Identity) (int, error) {
	var n int
	err := s.read(ctx, func(t *txn) error {
		me, err := t.viewer(caller)
		if err != nil || me == nil {
			return err
		}
		return t.queryRow(`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = 0`, me.ID).Scan(&n)
	})
	return n, err
}

// MarkNotificationRead marks one of the caller's notifications read.
func (s *Service) MarkNotificationRead(ctx context.Context, caller models.Identity, notificationID string) error {
	return s.write(ctx, "mark_notification_read", func(t *txn) error {
		me, err := t.requireUser(caller)
		if err != nil {
			return err
		}
		var owner string
		var read bool
		err = t.queryRow(`SELECT user_id, is_read FROM notifications WHERE id = ?`, notificationID).Scan(&owner, &read)
		if err != nil {
			return notFound(err, "notification")
		}
		if owner != me.ID {
			return apperr.Unauthorized("not your notification")
		}
		if read {
			return nil
		}
		if _, err := t.exec(`UPDATE notifications SET is_read = 1 WHERE id = ?`, notificationID); err != nil {
			return fmt.Errorf("mark notification read: %w", err)
		}
		t.emit("notification", notificationID, live.UserTopic(me.ID))
		return nil
	})
}

// MarkAllNotificationsRead returns how many notifications changed.
func (s *Service) MarkAllNotificationsRead(ctx context.Context, caller models.Identity) (int, error) {
	var n int64
	err := s.write(ctx, "mark_all_notifications_read", func(t *txn) error {
		me, err := t.requireUser(caller)
		if err != nil {
			return err
		}
		res, err := t.exec(`UPDATE notifications SET is_read = 1 WHERE user_id = ? AND is_read = 0`, me.ID)
		if err != nil {
			return fmt.Errorf("mark notifications read: %w", err)
		}
		n, _ = res.RowsAffected()
		if n > 0 {
			t.emit("notification", "", live.UserTopic(me.ID))
		}
		return nil
	})
	return int(n), err
}
