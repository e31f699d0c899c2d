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

const groupSelect = `
	SELECT g.id, g.host_id, g.name, COALESCE(g.course_id, ''), g.max_members, g.created_at,
	       (SELECT COUNT(*) FROM study_group_members m WHERE m.group_id = g.id),
	       EXISTS (SELECT 1 FROM study_group_members m WHERE m.group_id = g.id AND m.user_id = ?)
	FROM study_groups g`

func scanGroup(row scanner) (*models.StudyGroup, error) {
	var g models.StudyGroup
	var created int64
	if err := row.Scan(&g.ID, &g.HostID, &g.Name, &g.CourseID, &g.MaxMembers, &created,
		&g.MemberCount, &g.IsMember); err != nil {
		return nil, err
	}
	g.CreatedAt = db.FromMillis(created)
	return &g, nil
}

func (t *txn) groupByID(id, viewerID string) (*models.StudyGroup, error) {
	g, err := scanGroup(t.queryRow(groupSelect+` WHERE g.id = ?`, viewerID, id))
	if err != nil {
		return nil, notFound(err, "study group")
	}
	return g, nil
}

// CreateStudyGroup creates a group hosted by the caller, who joins it.
func (s *Service) CreateStudyGroup(ctx context.Context, caller models.Identity, req models.CreateStudyGroupRequest) (*models.StudyGroup, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.CourseID = strings.TrimSpace(req.CourseID)
	if err := s.check(req); err != nil {
		return nil, err
	}
	var group *models.StudyGroup
	err := s.write(ctx, "create_study_group", func(t *txn) error {
		me, err := t.requireActive(caller)
		if err != nil {
			return err
		}
		var courseID sql.NullString
		if req.CourseID != "" {
			if _, err := t.courseByID(req.CourseID); err != nil {
				return err
			}
			courseID = sql.NullString{String: req.CourseID, Valid: true}
		}
		id := uuid.NewString()
		now := db.Millis(t.now)
		if _, err := t.exec(`INSERT INTO study_groups (id, host_id, name, course_id, max_members, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			id, me.ID, req.Name, courseID, req.MaxMembers, now); err != nil {
			return fmt.Errorf("insert study group: %w", err)
		}
		if _, err := t.exec(`INSERT INTO study_group_members (group_id, user_id, joined_at) VALUES (?, ?, ?)`,
			id, me.ID, now); err != nil {
			return fmt.Errorf("join host: %w", err)
		}
		t.emit("study_group", id, live.UserTopic(me.ID))
		group, err = t.groupByID(id, me.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return group, nil
}

// JoinStudyGroup adds the caller to a group with room left. Joining a
// group you already belong to is a no-op.
func (s *Service) JoinStudyGroup(ctx context.Context, caller models.Identity, groupID string) (*models.StudyGroup, error) {
	var group *models.StudyGroup
	err := s.write(ctx, "join_study_group", func(t *txn) error {
		me, err := t.requireActive(caller)
		if err != nil {
			return err
		}
		g, err := t.groupByID(groupID, me.ID)
		if err != nil {
			return err
		}
		if g.IsMember {
			group = g
			return nil
		}
		if g.MemberCount >= g.MaxMembers {
			return apperr.InvalidState("study group is full")
		}
		if _, err := t.exec(`INSERT INTO study_group_members (group_id, user_id, joined_at) VALUES (?, ?, ?)`,
			g.ID, me.ID, db.Millis(t.now)); err != nil {
			return fmt.Errorf("join study group: %w", err)
		}
		t.emit("study_group", g.ID, live.UserTopic(me.ID), live.UserTopic(g.HostID))
		group, err = t.groupByID(g.ID, me.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return group, nil
}

// LeaveStudyGroup removes the caller. The host cannot leave.
func (s *Service) LeaveStudyGroup(ctx context.Context, caller models.Identity, groupID string) error {
	return s.write(ctx, "leave_study_group", func(t *txn) error {
		me, err := t.requireUser(caller)
		if err != nil {
			return err
		}
		g, err := t.groupByID(groupID, me.ID)
		if err != nil {
			return err
		}
		if g.HostID == me.ID {
			return apperr.Forbidden("the host cannot leave their own study group")
		}
		if !g.IsMember {
			return apperr.InvalidState("you are not a member of this study group")
		}
		if _, err := t.exec(`DELETE FROM study_group_members WHERE group_id = ? AND user_id = ?`, g.ID, me.ID); err != nil {
			return fmt.Errorf("leave study group: %w", err)
		}
		t.emit("study_group", g.ID, live.UserTopic(me.ID), live.UserTopic(g.HostID))
		return nil
	})
}

// ListStudyGroups lists groups, optionally for one course, newest first.
func (s *Service) ListStudyGroups(ctx context.Context, caller models.Identity, courseID string) ([]models.StudyGroup, error) {
	groups := []models.StudyGroup{}
	err := s.read(ctx, func(t *txn) error {
		me, err := t.viewer(caller)
		if err != nil || me == nil {
			return err
		}
		query := groupSelect
		args := []any{me.ID}
		if courseID != "" {
			query += ` WHERE g.course_id = ?`
			args = append(args, courseID)
		}
		rows, err := t.query(query+` ORDER BY g.created_at DESC, g.rowid DESC`, args...)
		if err != nil {
			return fmt.Errorf("list study groups: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			g, err := scanGroup(rows)
			if err != nil {
				return fmt.Errorf("scan study group: %w", err)
			}
			groups = append(groups, *g)
		}
		return rows.Err()
	})
	return groups, err
}
