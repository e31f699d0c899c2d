package market

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/Elizabethomito/tutormarket/internal/apperr"
	"github.com/Elizabethomito/tutormarket/internal/db"
	"github.com/Elizabethomito/tutormarket/internal/live"
	"github.com/Elizabethomito/tutormarket/internal/models"
)

// audit appends one audit row. It must run in the same transaction as
// the change it records.
func (t *txn) audit(actorID, action, targetID, targetType string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	body, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("encode audit details: %w", err)
	}
	if _, err := t.exec(`INSERT INTO audit_logs (id, actor_id, action, target_id, target_type, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), actorID, action, targetID, targetType, string(body), db.Millis(t.now)); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// ReportUser files a report against another user. A reporter may file at
// most policy.ReportMax reports per policy.ReportWindow; the rate-limit
// error says when the oldest report in the window ages out.
func (s *Service) ReportUser(ctx context.Context, caller models.Identity, req models.ReportUserRequest) (*models.Report, error) {
	req.Details = strings.TrimSpace(req.Details)
	if err := s.check(req); err != nil {
		return nil, err
	}

	var report *models.Report
	err := s.write(ctx, "report_user", func(t *txn) error {
		me, err := t.requireActive(caller)
		if err != nil {
			return err
		}
		if req.TargetID == me.ID {
			return apperr.Invalid("you cannot report yourself")
		}
		if _, err := t.userByID(req.TargetID); err != nil {
			return err
		}

		since := t.now.Add(-s.policy.ReportWindow)
		var count int
		var oldest *int64
		if err := t.queryRow(`SELECT COUNT(*), MIN(created_at) FROM reports WHERE reporter_id = ? AND created_at > ?`,
			me.ID, db.Millis(since)).Scan(&count, &oldest); err != nil {
			return fmt.Errorf("count reports: %w", err)
		}
		if count >= s.policy.ReportMax {
			retry := s.policy.ReportWindow
			if oldest != nil {
				retry = db.FromMillis(*oldest).Add(s.policy.ReportWindow).Sub(t.now)
			}
			return apperr.RateLimited(retry.Round(time.Second),
				"you can file at most %d reports per %s", s.policy.ReportMax, s.policy.ReportWindow)
		}

		report = &models.Report{
			ID:         uuid.NewString(),
			ReporterID: me.ID,
			TargetID:   req.TargetID,
			Reason:     req.Reason,
			Details:    req.Details,
			Status:     models.ReportPending,
			CreatedAt:  t.now,
		}
		if _, err := t.exec(`INSERT INTO reports (id, reporter_id, target_id, reason, details, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			report.ID, report.ReporterID, report.TargetID, report.Reason, report.Details, report.Status,
			db.Millis(t.now)); err != nil {
			return fmt.Errorf("insert report: %w", err)
		}
		t.emit("report", report.ID, live.UserTopic(me.ID))
		s.log.Info("user reported", "report_id", report.ID, "target_id", report.TargetID, "reason", report.Reason)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// ListReports is admin only. An empty status lists every report.
func (s *Service) ListReports(ctx context.Context, caller models.Identity, status models.ReportStatus) ([]models.Report, error) {
	q := sq.Select("r.id", "r.reporter_id", "r.target_id", "r.reason", "r.details", "r.status",
		"r.resolved_by", "r.resolved_at", "r.created_at", "ru.name", "tu.name").
		From("reports r").
		Join("users ru ON ru.id = r.reporter_id").
		Join("users tu ON tu.id = r.target_id").
		OrderBy("r.created_at DESC", "r.rowid DESC")
	if status != "" {
		q = q.Where(sq.Eq{"r.status": status})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build report query: %w", err)
	}

	reports := []models.Report{}
	err = s.read(ctx, func(t *txn) error {
		if admin, err := t.viewerAdmin(caller); err != nil || admin == nil {
			return err
		}
		rows, err := t.query(query, args...)
		if err != nil {
			return fmt.Errorf("list reports: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r models.Report
			var resolvedAt *int64
			var created int64
			if err := rows.Scan(&r.ID, &r.ReporterID, &r.TargetID, &r.Reason, &r.Details, &r.Status,
				&r.ResolvedBy, &resolvedAt, &created, &r.ReporterName, &r.TargetName); err != nil {
				return fmt.Errorf("scan report: %w", err)
			}
			if resolvedAt != nil {
				at := db.FromMillis(*resolvedAt)
				r.ResolvedAt = &at
			}
			r.CreatedAt = db.FromMillis(created)
			reports = append(reports, r)
		}
		return rows.Err()
	})
	return reports, err
}

// ResolveReport closes a pending report as resolved or dismissed.
func (s *Service) ResolveReport(ctx context.Context, caller models.Identity, req models.ResolveReportRequest) error {
	if err := s.check(req); err != nil {
		return err
	}
	return s.write(ctx, "resolve_report", func(t *txn) error {
		admin, err := t.requireAdmin(caller)
		if err != nil {
			return err
		}
		var status models.ReportStatus
		var targetID string
		if err := t.queryRow(`SELECT status, target_id FROM reports WHERE id = ?`, req.ReportID).Scan(&status, &targetID); err != nil {
			return notFound(err, "report")
		}
		if status != models.ReportPending {
			return apperr.InvalidState("report is already %s", status)
		}
		now := db.Millis(t.now)
		if _, err := t.exec(`UPDATE reports SET status = ?, resolved_by = ?, resolved_at = ? WHERE id = ?`,
			req.Resolution, admin.ID, now, req.ReportID); err != nil {
			return fmt.Errorf("resolve report: %w", err)
		}
		action := models.AuditReportResolved
		if req.Resolution == models.ReportDismissed {
			action = models.AuditReportDismissed
		}
		s.log.Info("report closed", "report_id", req.ReportID, "resolution", req.Resolution, "admin_id", admin.ID)
		return t.audit(admin.ID, action, req.ReportID, "report", map[string]any{"target_id": targetID})
	})
}

// BanUser bans or unbans a user. Admins cannot ban themselves.
func (s *Service) BanUser(ctx context.Context, caller models.Identity, req models.BanUserRequest) (*models.User, error) {
	req.Reason = strings.TrimSpace(req.Reason)
	if err := s.check(req); err != nil {
		return nil, err
	}

	var user *models.User
	err := s.write(ctx, "ban_user", func(t *txn) error {
		admin, err := t.requireAdmin(caller)
		if err != nil {
			return err
		}
		if req.UserID == admin.ID {
			return apperr.Invalid("you cannot ban yourself")
		}
		target, err := t.userByID(req.UserID)
		if err != nil {
			return err
		}
		reason := req.Reason
		action := models.AuditUserBanned
		if !req.Banned {
			reason = ""
			action = models.AuditUserUnbanned
		}
		if _, err := t.exec(`UPDATE users SET is_banned = ?, ban_reason = ?, updated_at = ? WHERE id = ?`,
			req.Banned, reason, db.Millis(t.now), target.ID); err != nil {
			return fmt.Errorf("update ban: %w", err)
		}
		if err := t.audit(admin.ID, action, target.ID, "user", map[string]any{"reason": req.Reason}); err != nil {
			return err
		}
		t.emit("profile", target.ID, live.UserTopic(target.ID))
		s.log.Info("ban updated", "user_id", target.ID, "banned", req.Banned, "admin_id", admin.ID)
		user, err = t.userByID(target.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// SetVerification sets or clears a user's verified badge.
func (s *Service) SetVerification(ctx context.Context, caller models.Identity, req models.SetFlagRequest) (*models.User, error) {
	action := models.AuditUserUnverified
	if req.Value {
		action = models.AuditUserVerified
	}
	return s.setFlag(ctx, caller, req, "set_verification", "is_verified", action)
}

// SetAdmin grants or revokes admin rights. Admins cannot revoke their own.
func (s *Service) SetAdmin(ctx context.Context, caller models.Identity, req models.SetFlagRequest) (*models.User, error) {
	action := models.AuditAdminRevoked
	if req.Value {
		action = models.AuditAdminGranted
	}
	return s.setFlag(ctx, caller, req, "set_admin", "is_admin", action)
}

// setFlag is shared by SetVerification and SetAdmin. column is one of
// two constants, never caller input.
func (s *Service) setFlag(ctx context.Context, caller models.Identity, req models.SetFlagRequest, op, column, action string) (*models.User, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	var user *models.User
	err := s.write(ctx, op, func(t *txn) error {
		admin, err := t.requireAdmin(caller)
		if err != nil {
			return err
		}
		if column == "is_admin" && !req.Value && req.UserID == admin.ID {
			return apperr.Invalid("you cannot revoke your own admin access")
		}
		target, err := t.userByID(req.UserID)
		if err != nil {
			return err
		}
		if _, err := t.exec(`UPDATE users SET `+column+` = ?, updated_at = ? WHERE id = ?`,
			req.Value, db.Millis(t.now), target.ID); err != nil {
			return fmt.Errorf("update %s: %w", column, err)
		}
		if err := t.audit(admin.ID, action, target.ID, "user", map[string]any{"value": req.Value}); err != nil {
			return err
		}
		t.emit("profile", target.ID, live.UserTopic(target.ID))
		s.log.Info("user flag updated", "user_id", target.ID, "action", action, "admin_id", admin.ID)
		user, err = t.userByID(target.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// ListUsers is the admin user table with text search on name and email.
func (s *Service) ListUsers(ctx context.Context, caller models.Identity, f models.UserFilter) ([]models.User, error) {
	q := sq.Select(userColumns).From("users").OrderBy("created_at DESC", "rowid DESC")
	if search := strings.TrimSpace(f.Search); search != "" {
		like := "%" + search + "%"
		q = q.Where(sq.Or{sq.Like{"name": like}, sq.Like{"email": like}})
	}
	if f.Role != "" {
		q = q.Where(sq.Eq{"role": f.Role})
	}
	if f.Banned != nil {
		q = q.Where(sq.Eq{"is_banned": *f.Banned})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build user query: %w", err)
	}

	users := []models.User{}
	err = s.read(ctx, func(t *txn) error {
		if admin, err := t.viewerAdmin(caller); err != nil || admin == nil {
			return err
		}
		rows, err := t.query(query, args...)
		if err != nil {
			return fmt.Errorf("list users: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			u, err := scanUser(rows)
			if err != nil {
				return fmt.Errorf("scan user: %w", err)
			}
			users = append(users, *u)
		}
		return rows.Err()
	})
	return users, err
}

// ListAuditLogs returns audit entries newest first.
func (s *Service) ListAuditLogs(ctx context.Context, caller models.Identity, f models.AuditFilter) ([]models.AuditLog, error) {
	q := sq.Select("id", "actor_id", "action", "target_id", "target_type", "details", "created_at").
		From("audit_logs").
		OrderBy("created_at DESC", "rowid DESC")
	if f.Action != "" {
		q = q.Where(sq.Eq{"action": f.Action})
	}
	if f.TargetID != "" {
		q = q.Where(sq.Eq{"target_id": f.TargetID})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build audit query: %w", err)
	}

	logs := []models.AuditLog{}
	err = s.read(ctx, func(t *txn) error {
		if admin, err := t.viewerAdmin(caller); err != nil || admin == nil {
			return err
		}
		rows, err := t.query(query, args...)
		if err != nil {
			return fmt.Errorf("list audit logs: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var l models.AuditLog
			var details string
			var created int64
			if err := rows.Scan(&l.ID, &l.ActorID, &l.Action, &l.TargetID, &l.TargetType, &details, &created); err != nil {
				return fmt.Errorf("scan audit log: %w", err)
			}
			if err := json.Unmarshal([]byte(details), &l.Details); err != nil {
				return fmt.Errorf("decode audit details %s: %w", l.ID, err)
			}
			l.CreatedAt = db.FromMillis(created)
			logs = append(logs, l)
		}
		return rows.Err()
	})
	return logs, err
}

// BackfillDenormalized re-copies the snapshot fields from their source
// rows: offers.student_id from the ticket and tickets.course_code from
// the catalog. Snapshots are not kept in sync otherwise.
func (s *Service) BackfillDenormalized(ctx context.Context, caller models.Identity) (*models.BackfillResult, error) {
	result := &models.BackfillResult{}
	err := s.write(ctx, "backfill_denormalized", func(t *txn) error {
		admin, err := t.requireAdmin(caller)
		if err != nil {
			return err
		}
		res, err := t.exec(`UPDATE offers SET student_id = (SELECT student_id FROM tickets WHERE tickets.id = offers.ticket_id)
			WHERE student_id <> (SELECT student_id FROM tickets WHERE tickets.id = offers.ticket_id)`)
		if err != nil {
			return fmt.Errorf("backfill offers: %w", err)
		}
		n, _ := res.RowsAffected()
		result.OffersUpdated = int(n)

		res, err = t.exec(`UPDATE tickets SET course_code = (SELECT code FROM courses WHERE courses.id = tickets.course_id)
			WHERE course_id IS NOT NULL
			  AND course_code <> (SELECT code FROM courses WHERE courses.id = tickets.course_id)`)
		if err != nil {
			return fmt.Errorf("backfill tickets: %w", err)
		}
		n, _ = res.RowsAffected()
		result.TicketsUpdated = int(n)

		s.log.Info("backfill finished", "offers", result.OffersUpdated, "tickets", result.TicketsUpdated)
		return t.audit(admin.ID, models.AuditBackfillRun, "denormalized", "maintenance", map[string]any{
			"offers_updated":  result.OffersUpdated,
			"tickets_updated": result.TicketsUpdated,
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
