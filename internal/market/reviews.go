package market

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Elizabethomito/tutormarket/internal/apperr"
	"github.com/Elizabethomito/tutormarket/internal/db"
	"github.com/Elizabethomito/tutormarket/internal/live"
	"github.com/Elizabethomito/tutormarket/internal/models"
)

// SubmitReview rates the other party of a resolved ticket. The direction
// follows from who the caller is on the ticket. Reviews open when the
// ticket is resolved and close after the review window.
func (s *Service) SubmitReview(ctx context.Context, caller models.Identity, req models.SubmitReviewRequest) (*models.Review, error) {
	req.Comment = strings.TrimSpace(req.Comment)
	if err := s.check(req); err != nil {
		return nil, err
	}

	var review *models.Review
	err := s.write(ctx, "submit_review", func(t *txn) error {
		me, err := t.requireActive(caller)
		if err != nil {
			return err
		}
		tk, err := t.ticketByID(req.TicketID)
		if err != nil {
			return err
		}

		var direction models.ReviewDirection
		var reviewee string
		switch me.ID {
		case tk.StudentID:
			direction, reviewee = models.StudentToTutor, tk.AssignedTutorID
		case tk.AssignedTutorID:
			direction, reviewee = models.TutorToStudent, tk.StudentID
		default:
			return apperr.Unauthorized("only the student and the assigned tutor can review this ticket")
		}
		if tk.Status != models.TicketResolved || tk.ResolvedAt == nil {
			return apperr.InvalidState("reviews open once the ticket is resolved")
		}
		if s.policy.ReviewWindow > 0 && t.now.Sub(*tk.ResolvedAt) > s.policy.ReviewWindow {
			return apperr.InvalidState("the review window for this ticket has closed")
		}
		dup, err := t.exists(`SELECT 1 FROM reviews WHERE reviewer_id = ? AND ticket_id = ? AND direction = ?`,
			me.ID, tk.ID, direction)
		if err != nil {
			return err
		}
		if dup {
			return apperr.ErrDuplicateReview
		}

		review = &models.Review{
			ID:           uuid.NewString(),
			TicketID:     tk.ID,
			ReviewerID:   me.ID,
			RevieweeID:   reviewee,
			Rating:       req.Rating,
			Comment:      req.Comment,
			Direction:    direction,
			CreatedAt:    t.now,
			ReviewerName: me.Name,
		}
		if _, err := t.exec(`INSERT INTO reviews (id, ticket_id, reviewer_id, reviewee_id, rating, comment, direction, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			review.ID, review.TicketID, review.ReviewerID, review.RevieweeID, review.Rating, review.Comment,
			review.Direction, db.Millis(t.now)); err != nil {
			return fmt.Errorf("insert review: %w", err)
		}
		if err := t.applyRating(reviewee, req.Rating); err != nil {
			return err
		}
		if err := t.notify(reviewee, models.NotifyReviewReceived, models.NotificationPayload{
			TicketID:  tk.ID,
			ActorID:   me.ID,
			ActorName: me.Name,
			Text:      fmt.Sprintf("%d/5", req.Rating),
		}); err != nil {
			return err
		}
		t.emit("review", review.ID, live.TicketTopic(tk.ID), live.UserTopic(reviewee), live.PresenceTopic)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return review, nil
}

// ListReviewsForUser returns reviews received by userID, newest first.
func (s *Service) ListReviewsForUser(ctx context.Context, caller models.Identity, userID string) ([]models.Review, error) {
	reviews := []models.Review{}
	err := s.read(ctx, func(t *txn) error {
		me, err := t.viewer(caller)
		if err != nil || me == nil {
			return err
		}
		rows, err := t.query(`
			SELECT r.id, r.ticket_id, r.reviewer_id, r.reviewee_id, r.rating, r.comment, r.direction, r.created_at, u.name
			FROM reviews r JOIN users u ON u.id = r.reviewer_id
			WHERE r.reviewee_id = ?
			ORDER BY r.created_at DESC, r.rowid DESC`, userID)
		if err != nil {
			return fmt.Errorf("list reviews: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r models.Review
			var created int64
			if err := rows.Scan(&r.ID, &r.TicketID, &r.ReviewerID, &r.RevieweeID, &r.Rating, &r.Comment,
				&r.Direction, &created, &r.ReviewerName); err != nil {
				return fmt.Errorf("scan review: %w", err)
			}
			r.CreatedAt = db.FromMillis(created)
			reviews = append(reviews, r)
		}
		return rows.Err()
	})
	return reviews, err
}
