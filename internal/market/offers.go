package market

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Elizabethomito/tutormarket/internal/apperr"
	"github.com/Elizabethomito/tutormarket/internal/db"
	"github.com/Elizabethomito/tutormarket/internal/live"
	"github.com/Elizabethomito/tutormarket/internal/models"
)

const offerColumns = `id, ticket_id, tutor_id, student_id, price, message, status, created_at, updated_at`

func scanOffer(row scanner) (*models.Offer, error) {
	var o models.Offer
	var created, updated int64
	if err := row.Scan(&o.ID, &o.TicketID, &o.TutorID, &o.StudentID, &o.Price, &o.Message, &o.Status,
		&created, &updated); err != nil {
		return nil, err
	}
	o.CreatedAt = db.FromMillis(created)
	o.UpdatedAt = db.FromMillis(updated)
	return &o, nil
}

func (t *txn) offerByID(id string) (*models.Offer, error) {
	o, err := scanOffer(t.queryRow(`SELECT `+offerColumns+` FROM offers WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "offer")
	}
	return o, nil
}

// SubmitOffer places the caller's bid on an open ticket. A tutor gets one
// offer per ticket, ever; the ticket owner is notified.
func (s *Service) SubmitOffer(ctx context.Context, caller models.Identity, req models.SubmitOfferRequest) (*models.Offer, error) {
	req.Message = strings.TrimSpace(req.Message)
	if err := s.check(req); err != nil {
		return nil, err
	}

	var offer *models.Offer
	err := s.write(ctx, "submit_offer", func(t *txn) error {
		me, err := t.requireActive(caller)
		if err != nil {
			return err
		}
		tk, err := t.ticketByID(req.TicketID)
		if err != nil {
			return err
		}
		if tk.StudentID == me.ID {
			return apperr.Forbidden("you cannot make an offer on your own ticket")
		}
		if tk.Status != models.TicketOpen {
			return apperr.InvalidState("ticket is no longer accepting offers")
		}
		dup, err := t.exists(`SELECT 1 FROM offers WHERE ticket_id = ? AND tutor_id = ?`, tk.ID, me.ID)
		if err != nil {
			return err
		}
		if dup {
			return apperr.ErrDuplicateOffer
		}

		id := uuid.NewString()
		now := db.Millis(t.now)
		// student_id is a snapshot of the owner at submission time.
		if _, err := t.exec(`INSERT INTO offers (id, ticket_id, tutor_id, student_id, price, message, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, tk.ID, me.ID, tk.StudentID, req.Price, req.Message, models.OfferPending, now, now); err != nil {
			return fmt.Errorf("insert offer: %w", err)
		}
		if err := t.notify(tk.StudentID, models.NotifyOfferReceived, models.NotificationPayload{
			TicketID:  tk.ID,
			OfferID:   id,
			ActorID:   me.ID,
			ActorName: me.Name,
			Text:      tk.Title,
		}); err != nil {
			return err
		}
		t.emit("offer", id, live.TicketTopic(tk.ID), live.TicketsTopic, live.UserTopic(me.ID))

		offer, err = t.offerByID(id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return offer, nil
}

// AcceptOffer closes the deal on a ticket. In one transaction it
// accepts the chosen offer, rejects every sibling, moves the ticket to
// in_progress with the tutor assigned, opens the conversation between the
// two parties and notifies everyone involved.
func (s *Service) AcceptOffer(ctx context.Context, caller models.Identity, req models.AcceptOfferRequest) (*models.AcceptOfferResponse, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}

	var resp *models.AcceptOfferResponse
	err := s.write(ctx, "accept_offer", func(t *txn) error {
		me, err := t.requireActive(caller)
		if err != nil {
			return err
		}
		tk, err := t.ticketByID(req.TicketID)
		if err != nil {
			return err
		}
		if tk.StudentID != me.ID {
			return apperr.Unauthorized("only the ticket owner can accept offers")
		}
		if tk.Status != models.TicketOpen {
			return apperr.InvalidState("an offer has already been accepted for this ticket")
		}
		offer, err := t.offerByID(req.OfferID)
		if err != nil {
			return err
		}
		if offer.TicketID != tk.ID {
			return apperr.Invalid("offer does not belong to this ticket")
		}
		if offer.Status != models.OfferPending {
			return apperr.InvalidState("offer is no longer pending")
		}

		// Siblings are read before the update so each gets its notification.
		rejected, err := t.pendingSiblings(tk.ID, offer.ID)
		if err != nil {
			return err
		}

		now := db.Millis(t.now)
		if _, err := t.exec(`UPDATE offers SET status = ?, updated_at = ? WHERE id = ?`,
			models.OfferAccepted, now, offer.ID); err != nil {
			return fmt.Errorf("accept offer: %w", err)
		}
		if _, err := t.exec(`UPDATE offers SET status = ?, updated_at = ? WHERE ticket_id = ? AND id <> ?`,
			models.OfferRejected, now, tk.ID, offer.ID); err != nil {
			return fmt.Errorf("reject sibling offers: %w", err)
		}
		if _, err := t.exec(`UPDATE tickets SET status = ?, assigned_tutor_id = ?, updated_at = ? WHERE id = ?`,
			models.TicketInProgress, offer.TutorID, now, tk.ID); err != nil {
			return fmt.Errorf("assign ticket: %w", err)
		}
		conv, _, err := t.getOrCreateConversation(me.ID, offer.TutorID)
		if err != nil {
			return err
		}

		if err := t.notify(offer.TutorID, models.NotifyOfferAccepted, models.NotificationPayload{
			TicketID:       tk.ID,
			OfferID:        offer.ID,
			ConversationID: conv.ID,
			ActorID:        me.ID,
			ActorName:      me.Name,
			Text:           tk.Title,
		}); err != nil {
			return err
		}
		for _, sib := range rejected {
			if err := t.notify(sib.TutorID, models.NotifyOfferRejected, models.NotificationPayload{
				TicketID: tk.ID,
				OfferID:  sib.ID,
				Text:     tk.Title,
			}); err != nil {
				return err
			}
			t.emit("offer", sib.ID, live.UserTopic(sib.TutorID))
		}
		t.emit("ticket", tk.ID, live.TicketTopic(tk.ID), live.TicketsTopic,
			live.UserTopic(me.ID), live.UserTopic(offer.TutorID))
		s.log.Info("offer accepted", "ticket_id", tk.ID, "offer_id", offer.ID,
			"tutor_id", offer.TutorID, "rejected", len(rejected))

		updated, err := t.ticketByID(tk.ID)
		if err != nil {
			return err
		}
		accepted, err := t.offerByID(offer.ID)
		if err != nil {
			return err
		}
		resp = &models.AcceptOfferResponse{
			Ticket:         *updated,
			Offer:          *accepted,
			Rejected:       len(rejected),
			ConversationID: conv.ID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (t *txn) pendingSiblings(ticketID, keepID string) ([]models.Offer, error) {
	rows, err := t.query(`SELECT `+offerColumns+` FROM offers WHERE ticket_id = ? AND id <> ? AND status = ?`,
		ticketID, keepID, models.OfferPending)
	if err != nil {
		return nil, fmt.Errorf("load sibling offers: %w", err)
	}
	defer rows.Close()
	var out []models.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

// ListOffersForTicket returns the ticket's offers ranked for its owner.
// Admins may look too. Every offer carries its rank score whatever the
// chosen sort, so the four orderings read the same fields.
func (s *Service) ListOffersForTicket(ctx context.Context, caller models.Identity, ticketID string, sortBy models.OfferSort) ([]models.RankedOffer, error) {
	if sortBy == "" {
		sortBy = models.SortBest
	}
	if !validSort(sortBy) {
		return nil, apperr.Invalid("sort must be one of: price rating newest best")
	}

	offers := []models.RankedOffer{}
	err := s.read(ctx, func(t *txn) error {
		me, err := t.viewer(caller)
		if err != nil || me == nil {
			return err
		}
		tk, err := t.ticketByID(ticketID)
		if err != nil {
			return err
		}
		if tk.StudentID != me.ID && !me.IsAdmin {
			return apperr.Unauthorized("only the ticket owner can view its offers")
		}

		rows, err := t.query(`
			SELECT o.id, o.ticket_id, o.tutor_id, o.student_id, o.price, o.message, o.status, o.created_at, o.updated_at,
			       u.name, u.is_verified, u.rating_sum, u.rating_count,
			       COALESCE(p.presence, 'offline'), p.last_active_at, COALESCE(p.subjects, '')
			FROM offers o
			JOIN users u ON u.id = o.tutor_id
			LEFT JOIN tutor_profiles p ON p.user_id = o.tutor_id
			WHERE o.ticket_id = ?
			ORDER BY o.created_at, o.rowid`, tk.ID)
		if err != nil {
			return fmt.Errorf("list offers: %w", err)
		}
		subjects := map[string]string{}
		for rows.Next() {
			var (
				ro               models.RankedOffer
				created, updated int64
				sum, count       int
				presence         models.Presence
				lastActive       sql.NullInt64
				subjectList      string
			)
			if err := rows.Scan(&ro.ID, &ro.TicketID, &ro.TutorID, &ro.StudentID, &ro.Price, &ro.Message, &ro.Status,
				&created, &updated, &ro.TutorName, &ro.TutorVerified, &sum, &count,
				&presence, &lastActive, &subjectList); err != nil {
				rows.Close()
				return fmt.Errorf("scan offer: %w", err)
			}
			ro.CreatedAt = db.FromMillis(created)
			ro.UpdatedAt = db.FromMillis(updated)
			ro.TutorReputation = models.Reputation(sum, count)
			ro.TutorReviewCount = count
			ro.IsOnline = presence == models.PresenceOnline
			if last := db.FromNullMillis(lastActive); last != nil {
				ro.RecentlyActive = ro.IsOnline || t.now.Sub(*last) <= s.policy.RecentlyActive
			} else {
				ro.RecentlyActive = ro.IsOnline
			}
			subjects[ro.TutorID] = subjectList
			offers = append(offers, ro)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		target, err := t.matchTarget(tk)
		if err != nil {
			return err
		}
		for i := range offers {
			skills, err := t.tutorSkills(offers[i].TutorID, subjects[offers[i].TutorID])
			if err != nil {
				return err
			}
			offers[i].MatchPercent = matchPercent(target, skills)
		}
		scoreOffers(offers, s.policy.Weights)
		sortOffers(offers, sortBy)
		return nil
	})
	return offers, err
}

// ListMyOffers is the tutor's side: every offer the caller made, newest first.
func (s *Service) ListMyOffers(ctx context.Context, caller models.Identity) ([]models.MyOffer, error) {
	offers := []models.MyOffer{}
	err := s.read(ctx, func(t *txn) error {
		me, err := t.viewer(caller)
		if err != nil || me == nil {
			return err
		}
		rows, err := t.query(`
			SELECT o.id, o.ticket_id, o.tutor_id, o.student_id, o.price, o.message, o.status, o.created_at, o.updated_at,
			       tk.title, tk.status, su.name
			FROM offers o
			JOIN tickets tk ON tk.id = o.ticket_id
			JOIN users su ON su.id = tk.student_id
			WHERE o.tutor_id = ?
			ORDER BY o.created_at DESC, o.rowid DESC`, me.ID)
		if err != nil {
			return fmt.Errorf("list my offers: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var mo models.MyOffer
			var created, updated int64
			if err := rows.Scan(&mo.ID, &mo.TicketID, &mo.TutorID, &mo.StudentID, &mo.Price, &mo.Message, &mo.Status,
				&created, &updated, &mo.TicketTitle, &mo.TicketStatus, &mo.StudentName); err != nil {
				return fmt.Errorf("scan offer: %w", err)
			}
			mo.CreatedAt = db.FromMillis(created)
			mo.UpdatedAt = db.FromMillis(updated)
			offers = append(offers, mo)
		}
		return rows.Err()
	})
	return offers, err
}
