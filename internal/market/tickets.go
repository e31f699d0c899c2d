package market

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/Elizabethomito/tutormarket/internal/apperr"
	"github.com/Elizabethomito/tutormarket/internal/db"
	"github.com/Elizabethomito/tutormarket/internal/live"
	"github.com/Elizabethomito/tutormarket/internal/models"
)

// ticketSelect returns tickets already enriched with the display fields
// the client shows next to them.
var ticketSelect = sq.Select(
	"t.id", "t.student_id", "t.title", "t.description", "COALESCE(t.course_id, '')", "t.course_code",
	"t.custom_category", "t.help_type", "t.urgency", "t.budget", "t.deadline", "t.status",
	"COALESCE(t.assigned_tutor_id, '')", "t.resolved_at", "t.created_at", "t.updated_at",
	"su.name", "COALESCE(tu.name, '')",
	"(SELECT COUNT(*) FROM offers o WHERE o.ticket_id = t.id)",
).
	From("tickets t").
	Join("users su ON su.id = t.student_id").
	LeftJoin("users tu ON tu.id = t.assigned_tutor_id")

func scanTicket(row scanner) (*models.Ticket, error) {
	var (
		tk                 models.Ticket
		deadline, resolved sql.NullInt64
		created, updated   int64
	)
	err := row.Scan(&tk.ID, &tk.StudentID, &tk.Title, &tk.Description, &tk.CourseID, &tk.CourseCode,
		&tk.CustomCategory, &tk.HelpType, &tk.Urgency, &tk.Budget, &deadline, &tk.Status,
		&tk.AssignedTutorID, &resolved, &created, &updated,
		&tk.StudentName, &tk.AssignedTutorName, &tk.OfferCount)
	if err != nil {
		return nil, err
	}
	tk.Deadline = db.FromNullMillis(deadline)
	tk.ResolvedAt = db.FromNullMillis(resolved)
	tk.CreatedAt = db.FromMillis(created)
	tk.UpdatedAt = db.FromMillis(updated)
	return &tk, nil
}

func (t *txn) ticketByID(id string) (*models.Ticket, error) {
	query, args, err := ticketSelect.Where(sq.Eq{"t.id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build ticket query: %w", err)
	}
	tk, err := scanTicket(t.queryRow(query, args...))
	if err != nil {
		return nil, notFound(err, "ticket")
	}
	return tk, nil
}

func (t *txn) listTickets(q sq.SelectBuilder) ([]models.Ticket, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build ticket query: %w", err)
	}
	rows, err := t.query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	tickets := []models.Ticket{}
	for rows.Next() {
		tk, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		tickets = append(tickets, *tk)
	}
	return tickets, rows.Err()
}

// CreateTicket opens a help request owned by the caller. Exactly one of
// course and custom category must be given; the course code is copied
// onto the ticket as a snapshot.
func (s *Service) CreateTicket(ctx context.Context, caller models.Identity, req models.CreateTicketRequest) (*models.Ticket, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.Description = strings.TrimSpace(req.Description)
	req.CourseID = strings.TrimSpace(req.CourseID)
	req.CustomCategory = strings.TrimSpace(req.CustomCategory)
	if err := s.check(req); err != nil {
		return nil, err
	}
	if (req.CourseID == "") == (req.CustomCategory == "") {
		return nil, apperr.Invalid("exactly one of course_id and custom_category is required")
	}
	if req.HelpType == "" {
		req.HelpType = models.HelpOther
	}
	if req.Urgency == "" {
		req.Urgency = models.UrgencyMedium
	}

	var ticket *models.Ticket
	err := s.write(ctx, "create_ticket", func(t *txn) error {
		me, err := t.requireActive(caller)
		if err != nil {
			return err
		}
		if req.Deadline != nil && !req.Deadline.After(t.now) {
			return apperr.Invalid("deadline must be in the future")
		}

		var courseID sql.NullString
		courseCode := ""
		if req.CourseID != "" {
			course, err := t.courseByID(req.CourseID)
			if err != nil {
				return err
			}
			courseID = sql.NullString{String: course.ID, Valid: true}
			courseCode = course.Code
		}

		id := uuid.NewString()
		now := db.Millis(t.now)
		_, err = t.exec(`INSERT INTO tickets (id, student_id, title, description, course_id, course_code, custom_category,
				help_type, urgency, budget, deadline, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, me.ID, req.Title, req.Description, courseID, courseCode, req.CustomCategory,
			req.HelpType, req.Urgency, req.Budget, db.NullMillis(req.Deadline), models.TicketOpen, now, now)
		if err != nil {
			return fmt.Errorf("insert ticket: %w", err)
		}
		t.emit("ticket", id, live.TicketsTopic, live.UserTopic(me.ID))
		s.log.Info("ticket created", "ticket_id", id, "student_id", me.ID, "budget", req.Budget)

		ticket, err = t.ticketByID(id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// CompleteTicket moves an in-progress ticket to resolved. Only the owner
// may do it, and only after an offer was accepted. Resolution opens the
// review window and notifies the assigned tutor.
func (s *Service) CompleteTicket(ctx context.Context, caller models.Identity, ticketID string) (*models.Ticket, error) {
	var ticket *models.Ticket
	err := s.write(ctx, "complete_ticket", func(t *txn) error {
		me, err := t.requireActive(caller)
		if err != nil {
			return err
		}
		tk, err := t.ticketByID(ticketID)
		if err != nil {
			return err
		}
		if tk.StudentID != me.ID {
			return apperr.Unauthorized("only the ticket owner can complete it")
		}
		switch tk.Status {
		case models.TicketOpen:
			return apperr.InvalidState("accept an offer before completing the ticket")
		case models.TicketResolved:
			return apperr.InvalidState("ticket is already resolved")
		}

		now := db.Millis(t.now)
		if _, err := t.exec(`UPDATE tickets SET status = ?, resolved_at = ?, updated_at = ? WHERE id = ?`,
			models.TicketResolved, now, now, tk.ID); err != nil {
			return fmt.Errorf("resolve ticket: %w", err)
		}
		if err := t.notify(tk.AssignedTutorID, models.NotifyTicketResolved, models.NotificationPayload{
			TicketID:  tk.ID,
			ActorID:   me.ID,
			ActorName: me.Name,
			Text:      tk.Title,
		}); err != nil {
			return err
		}
		t.emit("ticket", tk.ID, live.TicketTopic(tk.ID), live.UserTopic(me.ID), live.UserTopic(tk.AssignedTutorID))
		s.log.Info("ticket resolved", "ticket_id", tk.ID, "tutor_id", tk.AssignedTutorID)

		ticket, err = t.ticketByID(tk.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// GetTicket returns one enriched ticket, or nil for an anonymous caller.
func (s *Service) GetTicket(ctx context.Context, caller models.Identity, ticketID string) (*models.Ticket, error) {
	var ticket *models.Ticket
	err := s.read(ctx, func(t *txn) error {
		me, err := t.viewer(caller)
		if err != nil || me == nil {
			return err
		}
		ticket, err = t.ticketByID(ticketID)
		return err
	})
	return ticket, err
}

// ListOpenTickets is the tutor-facing feed: open tickets other than the
// caller's own, newest first.
func (s *Service) ListOpenTickets(ctx context.Context, caller models.Identity, f models.TicketFilter) ([]models.Ticket, error) {
	tickets := []models.Ticket{}
	err := s.read(ctx, func(t *txn) error {
		me, err := t.viewer(caller)
		if err != nil || me == nil {
			return err
		}
		q := ticketSelect.
			Where(sq.Eq{"t.status": models.TicketOpen}).
			Where(sq.NotEq{"t.student_id": me.ID}).
			OrderBy("t.created_at DESC", "t.rowid DESC")
		if search := strings.TrimSpace(f.Search); search != "" {
			like := "%" + search + "%"
			q = q.Where(sq.Or{sq.Like{"t.title": like}, sq.Like{"t.description": like}})
		}
		if f.CourseID != "" {
			q = q.Where(sq.Eq{"t.course_id": f.CourseID})
		}
		if f.Category != "" {
			q = q.Where(sq.Eq{"t.custom_category": f.Category})
		}
		if f.Urgency != "" {
			q = q.Where(sq.Eq{"t.urgency": f.Urgency})
		}
		tickets, err = t.listTickets(q)
		return err
	})
	return tickets, err
}

// ListMyTickets returns the caller's own tickets, newest first.
func (s *Service) ListMyTickets(ctx context.Context, caller models.Identity) ([]models.Ticket, error) {
	tickets := []models.Ticket{}
	err := s.read(ctx, func(t *txn) error {
		me, err := t.viewer(caller)
		if err != nil || me == nil {
			return err
		}
		tickets, err = t.listTickets(ticketSelect.
			Where(sq.Eq{"t.student_id": me.ID}).
			OrderBy("t.created_at DESC", "t.rowid DESC"))
		return err
	})
	return tickets, err
}

// ListAssignedTickets returns tickets where the caller is the assigned tutor.
func (s *Service) ListAssignedTickets(ctx context.Context, caller models.Identity) ([]models.Ticket, error) {
	tickets := []models.Ticket{}
	err := s.read(ctx, func(t *txn) error {
		me, err := t.viewer(caller)
		if err != nil || me == nil {
			return err
		}
		tickets, err = t.listTickets(ticketSelect.
			Where(sq.Eq{"t.assigned_tutor_id": me.ID}).
			OrderBy("t.updated_at DESC", "t.rowid DESC"))
		return err
	})
	return tickets, err
}
