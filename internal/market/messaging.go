package market

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Elizabethomito/tutormarket/internal/apperr"
	"github.com/Elizabethomito/tutormarket/internal/db"
	"github.com/Elizabethomito/tutormarket/internal/live"
	"github.com/Elizabethomito/tutormarket/internal/models"
)

const previewRunes = 100

const conversationColumns = `id, participant_a, participant_b, last_message_id, last_message_preview, created_at, updated_at`

func scanConversation(row scanner) (*models.Conversation, error) {
	var c models.Conversation
	var created, updated int64
	if err := row.Scan(&c.ID, &c.ParticipantA, &c.ParticipantB, &c.LastMessageID, &c.LastMessagePreview,
		&created, &updated); err != nil {
		return nil, err
	}
	c.CreatedAt = db.FromMillis(created)
	c.UpdatedAt = db.FromMillis(updated)
	return &c, nil
}

func (t *txn) conversationByID(id string) (*models.Conversation, error) {
	c, err := scanConversation(t.queryRow(`SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "conversation")
	}
	return c, nil
}

// pairKey is the same for (a, b) and (b, a).
func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// findConversation looks the pair up in both orderings.
func (t *txn) findConversation(a, b string) (*models.Conversation, error) {
	c, err := scanConversation(t.queryRow(`SELECT `+conversationColumns+` FROM conversations
		WHERE (participant_a = ? AND participant_b = ?) OR (participant_a = ? AND participant_b = ?)
		LIMIT 1`, a, b, b, a))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	return c, nil
}

// getOrCreateConversation returns the pair's thread, creating it on first
// use. No access check; callers gate it.
func (t *txn) getOrCreateConversation(a, b string) (*models.Conversation, bool, error) {
	existing, err := t.findConversation(a, b)
	if err != nil || existing != nil {
		return existing, false, err
	}
	id := uuid.NewString()
	now := db.Millis(t.now)
	if _, err := t.exec(`INSERT INTO conversations (id, participant_a, participant_b, pair_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`, id, a, b, pairKey(a, b), now, now); err != nil {
		return nil, false, fmt.Errorf("insert conversation: %w", err)
	}
	t.emit("conversation", id, live.UserTopic(a), live.UserTopic(b))
	c, err := t.conversationByID(id)
	return c, true, err
}

// hasDeal reports whether an accepted offer links the two users in either
// direction.
func (t *txn) hasDeal(a, b string) (bool, error) {
	return t.exists(`SELECT 1 FROM offers WHERE status = ?
		AND ((tutor_id = ? AND student_id = ?) OR (tutor_id = ? AND student_id = ?)) LIMIT 1`,
		models.OfferAccepted, a, b, b, a)
}

// GetOrCreateConversation opens the thread between the caller and
// otherUserID. Messaging is only allowed once an offer between the two
// has been accepted; otherwise the error is apperr.ErrMessagingRestricted.
func (s *Service) GetOrCreateConversation(ctx context.Context, caller models.Identity, otherUserID string) (*models.ConversationResponse, error) {
	var resp *models.ConversationResponse
	err := s.write(ctx, "get_or_create_conversation", func(t *txn) error {
		me, err := t.requireActive(caller)
		if err != nil {
			return err
		}
		if otherUserID == me.ID {
			return apperr.Invalid("you cannot message yourself")
		}
		other, err := t.userByID(otherUserID)
		if err != nil {
			return err
		}
		ok, err := t.hasDeal(me.ID, other.ID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.ErrMessagingRestricted
		}
		conv, created, err := t.getOrCreateConversation(me.ID, other.ID)
		if err != nil {
			return err
		}
		conv.OtherUserID = other.ID
		conv.OtherUserName = other.Name
		resp = &models.ConversationResponse{Conversation: *conv, Created: created}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// SendMessage appends to a conversation the caller belongs to, moves the
// conversation to the top of both inboxes and notifies the other side.
func (s *Service) SendMessage(ctx context.Context, caller models.Identity, req models.SendMessageRequest) (*models.Message, error) {
	req.Content = strings.TrimSpace(req.Content)
	if err := s.check(req); err != nil {
		return nil, err
	}

	var msg *models.Message
	err := s.write(ctx, "send_message", func(t *txn) error {
		me, err := t.requireActive(caller)
		if err != nil {
			return err
		}
		conv, err := t.conversationByID(req.ConversationID)
		if err != nil {
			return err
		}
		if !conv.HasParticipant(me.ID) {
			return apperr.Unauthorized("you are not part of this conversation")
		}

		msg = &models.Message{
			ID:             uuid.NewString(),
			ConversationID: conv.ID,
			SenderID:       me.ID,
			Content:        req.Content,
			CreatedAt:      t.now,
		}
		now := db.Millis(t.now)
		if _, err := t.exec(`INSERT INTO messages (id, conversation_id, sender_id, content, created_at) VALUES (?, ?, ?, ?, ?)`,
			msg.ID, msg.ConversationID, msg.SenderID, msg.Content, now); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		preview := truncate(msg.Content, previewRunes)
		if _, err := t.exec(`UPDATE conversations SET last_message_id = ?, last_message_preview = ?, updated_at = ? WHERE id = ?`,
			msg.ID, preview, now, conv.ID); err != nil {
			return fmt.Errorf("update conversation: %w", err)
		}

		other := conv.Other(me.ID)
		if err := t.notify(other, models.NotifyNewMessage, models.NotificationPayload{
			ConversationID: conv.ID,
			ActorID:        me.ID,
			ActorName:      me.Name,
			Text:           preview,
		}); err != nil {
			return err
		}
		t.emit("message", msg.ID, live.ConversationTopic(conv.ID), live.UserTopic(me.ID), live.UserTopic(other))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// MarkRead marks every message the other side sent in the conversation as
// read and returns how many changed. A second call changes nothing.
func (s *Service) MarkRead(ctx context.Context, caller models.Identity, conversationID string) (int, error) {
	var n int64
	err := s.write(ctx, "mark_read", func(t *txn) error {
		me, err := t.requireUser(caller)
		if err != nil {
			return err
		}
		conv, err := t.conversationByID(conversationID)
		if err != nil {
			return err
		}
		if !conv.HasParticipant(me.ID) {
			return apperr.Unauthorized("you are not part of this conversation")
		}
		res, err := t.exec(`UPDATE messages SET is_read = 1 WHERE conversation_id = ? AND sender_id <> ? AND is_read = 0`,
			conv.ID, me.ID)
		if err != nil {
			return fmt.Errorf("mark read: %w", err)
		}
		n, _ = res.RowsAffected()
		if n > 0 {
			t.emit("read", conv.ID, live.ConversationTopic(conv.ID), live.UserTopic(me.ID))
		}
		return nil
	})
	return int(n), err
}

// ListConversations is the caller's inbox, most recently active first.
func (s *Service) ListConversations(ctx context.Context, caller models.Identity) ([]models.Conversation, error) {
	convs := []models.Conversation{}
	err := s.read(ctx, func(t *txn) error {
		me, err := t.viewer(caller)
		if err != nil || me == nil {
			return err
		}
		rows, err := t.query(`
			SELECT c.id, c.participant_a, c.participant_b, c.last_message_id, c.last_message_preview, c.created_at, c.updated_at,
			       u.id, u.name,
			       (SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id AND m.sender_id <> ? AND m.is_read = 0)
			FROM conversations c
			JOIN users u ON u.id = CASE WHEN c.participant_a = ? THEN c.participant_b ELSE c.participant_a END
			WHERE c.participant_a = ? OR c.participant_b = ?
			ORDER BY c.updated_at DESC, c.rowid DESC`, me.ID, me.ID, me.ID, me.ID)
		if err != nil {
			return fmt.Errorf("list conversations: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var c models.Conversation
			var created, updated int64
			if err := rows.Scan(&c.ID, &c.ParticipantA, &c.ParticipantB, &c.LastMessageID, &c.LastMessagePreview,
				&created, &updated, &c.OtherUserID, &c.OtherUserName, &c.UnreadCount); err != nil {
				return fmt.Errorf("scan conversation: %w", err)
			}
			c.CreatedAt = db.FromMillis(created)
			c.UpdatedAt = db.FromMillis(updated)
			convs = append(convs, c)
		}
		return rows.Err()
	})
	return convs, err
}

// ListMessages returns a conversation's messages, oldest first.
func (s *Service) ListMessages(ctx context.Context, caller models.Identity, conversationID string) ([]models.Message, error) {
	msgs := []models.Message{}
	err := s.read(ctx, func(t *txn) error {
		me, err := t.viewer(caller)
		if err != nil || me == nil {
			return err
		}
		conv, err := t.conversationByID(conversationID)
		if err != nil {
			return err
		}
		if !conv.HasParticipant(me.ID) {
			return apperr.Unauthorized("you are not part of this conversation")
		}
		rows, err := t.query(`SELECT id, conversation_id, sender_id, content, is_read, created_at
			FROM messages WHERE conversation_id = ? ORDER BY created_at, rowid`, conv.ID)
		if err != nil {
			return fmt.Errorf("list messages: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var m models.Message
			var created int64
			if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.IsRead, &created); err != nil {
				return fmt.Errorf("scan message: %w", err)
			}
			m.CreatedAt = db.FromMillis(created)
			msgs = append(msgs, m)
		}
		return rows.Err()
	})
	return msgs, err
}

// UnreadMessageCount counts unread messages sent to the caller across
// every conversation.
func (s *Service) UnreadMessageCount(ctx context.Context, caller models.Identity) (int, error) {
	var n int
	err := s.read(ctx, func(t *txn) error {
		me, err := t.viewer(caller)
		if err != nil || me == nil {
			return err
		}
		return t.queryRow(`
			SELECT COUNT(*) FROM messages m JOIN conversations c ON c.id = m.conversation_id
			WHERE (c.participant_a = ? OR c.participant_b = ?) AND m.sender_id <> ? AND m.is_read = 0`,
			me.ID, me.ID, me.ID).Scan(&n)
	})
	return n, err
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "…"
}
