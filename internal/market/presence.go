package market

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Elizabethomito/tutormarket/internal/apperr"
	"github.com/Elizabethomito/tutormarket/internal/db"
	"github.com/Elizabethomito/tutormarket/internal/live"
	"github.com/Elizabethomito/tutormarket/internal/models"
)

// Subjects are stored as a JSON array in tutor_profiles.subjects.

func encodeSubjects(subjects []string) (string, error) {
	clean := make([]string, 0, len(subjects))
	for _, s := range subjects {
		if s = strings.TrimSpace(s); s != "" {
			clean = append(clean, s)
		}
	}
	b, err := json.Marshal(clean)
	return string(b), err
}

func decodeSubjects(raw string) []string {
	var subjects []string
	if raw == "" || json.Unmarshal([]byte(raw), &subjects) != nil {
		return []string{}
	}
	return subjects
}

// ensureProfile creates an empty tutor profile for userID if none exists.
func (t *txn) ensureProfile(userID string) error {
	_, err := t.exec(`INSERT INTO tutor_profiles (user_id, subjects, updated_at) VALUES (?, '[]', ?)
		ON CONFLICT(user_id) DO NOTHING`, userID, db.Millis(t.now))
	if err != nil {
		return fmt.Errorf("ensure tutor profile: %w", err)
	}
	return nil
}

// SetPresence records the caller's availability. Every change stamps
// lastActiveAt; online turns request intake on and offline turns it off.
func (s *Service) SetPresence(ctx context.Context, caller models.Identity, req models.SetPresenceRequest) (*models.TutorProfile, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	var profile *models.TutorProfile
	err := s.write(ctx, "set_presence", func(t *txn) error {
		me, err := t.requireUser(caller)
		if err != nil {
			return err
		}
		if err := t.ensureProfile(me.ID); err != nil {
			return err
		}
		now := db.Millis(t.now)
		switch req.Status {
		case models.PresenceOnline:
			_, err = t.exec(`UPDATE tutor_profiles SET presence = ?, accepting_requests = 1, last_active_at = ?, updated_at = ? WHERE user_id = ?`,
				req.Status, now, now, me.ID)
		case models.PresenceOffline:
			_, err = t.exec(`UPDATE tutor_profiles SET presence = ?, accepting_requests = 0, last_active_at = ?, updated_at = ? WHERE user_id = ?`,
				req.Status, now, now, me.ID)
		default:
			_, err = t.exec(`UPDATE tutor_profiles SET presence = ?, last_active_at = ?, updated_at = ? WHERE user_id = ?`,
				req.Status, now, now, me.ID)
		}
		if err != nil {
			return fmt.Errorf("set presence: %w", err)
		}
		t.emit("presence", me.ID, live.PresenceTopic, live.UserTopic(me.ID))
		profile, err = t.tutorProfile(me.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// Heartbeat refreshes lastActiveAt without changing presence. Callers
// without a tutor profile are ignored.
func (s *Service) Heartbeat(ctx context.Context, caller models.Identity) error {
	return s.write(ctx, "heartbeat", func(t *txn) error {
		me, err := t.requireUser(caller)
		if err != nil {
			return err
		}
		_, err = t.exec(`UPDATE tutor_profiles SET last_active_at = ? WHERE user_id = ?`, db.Millis(t.now), me.ID)
		if err != nil {
			return fmt.Errorf("heartbeat: %w", err)
		}
		return nil
	})
}

// ReapIdle demotes online tutors whose lastActiveAt is older than the
// idle cutoff to offline and stops their request intake. The cutoff is
// evaluated inside the write transaction, so a presence update that
// commits first wins and is left alone. Running it twice in a row
// demotes nobody the second time.
func (s *Service) ReapIdle(ctx context.Context) (models.ReapResult, error) {
	var result models.ReapResult
	err := s.write(ctx, "reap_idle", func(t *txn) error {
		cutoff := db.Millis(t.now.Add(-s.policy.IdleCutoff))
		rows, err := t.query(`SELECT user_id FROM tutor_profiles
			WHERE presence = ? AND (last_active_at IS NULL OR last_active_at < ?)`, models.PresenceOnline, cutoff)
		if err != nil {
			return fmt.Errorf("find idle tutors: %w", err)
		}
		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("scan idle tutor: %w", err)
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		if _, err := t.exec(`UPDATE tutor_profiles SET presence = ?, accepting_requests = 0, updated_at = ?
			WHERE presence = ? AND (last_active_at IS NULL OR last_active_at < ?)`,
			models.PresenceOffline, db.Millis(t.now), models.PresenceOnline, cutoff); err != nil {
			return fmt.Errorf("demote idle tutors: %w", err)
		}
		for _, id := range ids {
			t.emit("presence", id, live.UserTopic(id))
		}
		t.emit("presence", "", live.PresenceTopic)
		result.Demoted = len(ids)
		return nil
	})
	if err != nil {
		s.metrics.ReaperFailed()
		return result, err
	}
	s.metrics.Demoted(result.Demoted)
	if result.Demoted > 0 {
		s.log.Info("idle tutors demoted", "count", result.Demoted)
	}
	return result, nil
}

const profileSelect = `
	SELECT p.user_id, p.bio, p.hourly_rate, p.subjects, p.presence, p.accepting_requests, p.last_active_at, p.updated_at,
	       u.name, u.is_verified, u.rating_sum, u.rating_count
	FROM tutor_profiles p JOIN users u ON u.id = p.user_id`

func scanProfile(row scanner) (*models.TutorProfile, error) {
	var (
		p          models.TutorProfile
		subjects   string
		lastActive sql.NullInt64
		updated    int64
		sum, count int
	)
	if err := row.Scan(&p.UserID, &p.Bio, &p.HourlyRate, &subjects, &p.Presence, &p.AcceptingRequests,
		&lastActive, &updated, &p.Name, &p.IsVerified, &sum, &count); err != nil {
		return nil, err
	}
	p.Subjects = decodeSubjects(subjects)
	p.LastActiveAt = db.FromNullMillis(lastActive)
	p.UpdatedAt = db.FromMillis(updated)
	p.Reputation = models.Reputation(sum, count)
	p.ReviewCount = count
	return &p, nil
}

// tutorProfile loads a profile with its course offerings.
func (t *txn) tutorProfile(userID string) (*models.TutorProfile, error) {
	p, err := scanProfile(t.queryRow(profileSelect+` WHERE p.user_id = ?`, userID))
	if err != nil {
		return nil, notFound(err, "tutor profile")
	}
	p.Offerings, err = t.offerings(userID)
	return p, err
}

func (t *txn) offerings(tutorID string) ([]models.TutorOffering, error) {
	rows, err := t.query(`SELECT o.id, o.tutor_id, o.course_id, c.code, o.level, o.created_at
		FROM tutor_offerings o JOIN courses c ON c.id = o.course_id
		WHERE o.tutor_id = ? ORDER BY c.code`, tutorID)
	if err != nil {
		return nil, fmt.Errorf("list offerings: %w", err)
	}
	defer rows.Close()
	out := []models.TutorOffering{}
	for rows.Next() {
		var o models.TutorOffering
		var created int64
		if err := rows.Scan(&o.ID, &o.TutorID, &o.CourseID, &o.CourseCode, &o.Level, &created); err != nil {
			return nil, fmt.Errorf("scan offering: %w", err)
		}
		o.CreatedAt = db.FromMillis(created)
		out = append(out, o)
	}
	return out, rows.Err()
}

// UpsertTutorProfile writes the caller's tutor profile. Presence is left
// alone.
func (s *Service) UpsertTutorProfile(ctx context.Context, caller models.Identity, req models.UpsertTutorProfileRequest) (*models.TutorProfile, error) {
	req.Bio = strings.TrimSpace(req.Bio)
	if err := s.check(req); err != nil {
		return nil, err
	}
	subjects, err := encodeSubjects(req.Subjects)
	if err != nil {
		return nil, fmt.Errorf("encode subjects: %w", err)
	}

	var profile *models.TutorProfile
	err = s.write(ctx, "upsert_tutor_profile", func(t *txn) error {
		me, err := t.requireActive(caller)
		if err != nil {
			return err
		}
		if err := t.ensureProfile(me.ID); err != nil {
			return err
		}
		if _, err := t.exec(`UPDATE tutor_profiles SET bio = ?, hourly_rate = ?, subjects = ?, updated_at = ? WHERE user_id = ?`,
			req.Bio, req.HourlyRate, subjects, db.Millis(t.now), me.ID); err != nil {
			return fmt.Errorf("update tutor profile: %w", err)
		}
		t.emit("profile", me.ID, live.UserTopic(me.ID), live.PresenceTopic)
		profile, err = t.tutorProfile(me.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// GetTutorProfile returns a tutor's profile, or nil for an anonymous caller.
func (s *Service) GetTutorProfile(ctx context.Context, caller models.Identity, userID string) (*models.TutorProfile, error) {
	var profile *models.TutorProfile
	err := s.read(ctx, func(t *txn) error {
		me, err := t.viewer(caller)
		if err != nil || me == nil {
			return err
		}
		profile, err = t.tutorProfile(userID)
		return err
	})
	return profile, err
}

// AddTutorOffering declares that the caller tutors a course at a level.
func (s *Service) AddTutorOffering(ctx context.Context, caller models.Identity, req models.AddTutorOfferingRequest) (*models.TutorOffering, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	var offering *models.TutorOffering
	err := s.write(ctx, "add_tutor_offering", func(t *txn) error {
		me, err := t.requireActive(caller)
		if err != nil {
			return err
		}
		course, err := t.courseByID(req.CourseID)
		if err != nil {
			return err
		}
		dup, err := t.exists(`SELECT 1 FROM tutor_offerings WHERE tutor_id = ? AND course_id = ?`, me.ID, course.ID)
		if err != nil {
			return err
		}
		if dup {
			return apperr.Invalid("you already offer %s", course.Code)
		}
		if err := t.ensureProfile(me.ID); err != nil {
			return err
		}
		offering = &models.TutorOffering{
			ID:         uuid.NewString(),
			TutorID:    me.ID,
			CourseID:   course.ID,
			CourseCode: course.Code,
			Level:      req.Level,
			CreatedAt:  t.now,
		}
		if _, err := t.exec(`INSERT INTO tutor_offerings (id, tutor_id, course_id, level, created_at) VALUES (?, ?, ?, ?, ?)`,
			offering.ID, offering.TutorID, offering.CourseID, offering.Level, db.Millis(t.now)); err != nil {
			return fmt.Errorf("insert offering: %w", err)
		}
		t.emit("profile", me.ID, live.UserTopic(me.ID), live.PresenceTopic)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return offering, nil
}

// RemoveTutorOffering deletes one of the caller's offerings.
func (s *Service) RemoveTutorOffering(ctx context.Context, caller models.Identity, offeringID string) error {
	return s.write(ctx, "remove_tutor_offering", func(t *txn) error {
		me, err := t.requireUser(caller)
		if err != nil {
			return err
		}
		var owner string
		err = t.queryRow(`SELECT tutor_id FROM tutor_offerings WHERE id = ?`, offeringID).Scan(&owner)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("offering not found")
		}
		if err != nil {
			return fmt.Errorf("load offering: %w", err)
		}
		if owner != me.ID {
			return apperr.Unauthorized("not your offering")
		}
		if _, err := t.exec(`DELETE FROM tutor_offerings WHERE id = ?`, offeringID); err != nil {
			return fmt.Errorf("delete offering: %w", err)
		}
		t.emit("profile", me.ID, live.UserTopic(me.ID), live.PresenceTopic)
		return nil
	})
}

// ListTutors lists tutor profiles, online tutors first and then by
// reputation.
func (s *Service) ListTutors(ctx context.Context, caller models.Identity, f models.TutorFilter) ([]models.TutorProfile, error) {
	query := profileSelect + ` WHERE u.is_banned = 0`
	var args []any
	if f.CourseID != "" {
		query += ` AND EXISTS (SELECT 1 FROM tutor_offerings o WHERE o.tutor_id = p.user_id AND o.course_id = ?)`
		args = append(args, f.CourseID)
	}
	if f.OnlineOnly {
		query += ` AND p.presence = 'online'`
	}
	query += ` ORDER BY CASE p.presence WHEN 'online' THEN 0 WHEN 'away' THEN 1 ELSE 2 END,
		CASE WHEN u.rating_count = 0 THEN 0.0 ELSE CAST(u.rating_sum AS REAL) / u.rating_count END DESC,
		u.name`

	tutors := []models.TutorProfile{}
	err := s.read(ctx, func(t *txn) error {
		me, err := t.viewer(caller)
		if err != nil || me == nil {
			return err
		}
		rows, err := t.query(query, args...)
		if err != nil {
			return fmt.Errorf("list tutors: %w", err)
		}
		for rows.Next() {
			p, err := scanProfile(rows)
			if err != nil {
				rows.Close()
				return fmt.Errorf("scan tutor: %w", err)
			}
			tutors = append(tutors, *p)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for i := range tutors {
			if tutors[i].Offerings, err = t.offerings(tutors[i].UserID); err != nil {
				return err
			}
		}
		return nil
	})
	return tutors, err
}
