package market

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Elizabethomito/tutormarket/internal/apperr"
	"github.com/Elizabethomito/tutormarket/internal/db"
	"github.com/Elizabethomito/tutormarket/internal/live"
	"github.com/Elizabethomito/tutormarket/internal/models"
)

const userColumns = `id, identity_key, name, email, avatar_url, bio, role, is_verified, is_admin,
	is_banned, ban_reason, rating_sum, rating_count, email_notifications, last_login_at, created_at, updated_at`

func scanUser(row scanner) (*models.User, error) {
	var (
		u                models.User
		lastLogin        sql.NullInt64
		created, updated int64
	)
	err := row.Scan(&u.ID, &u.IdentityKey, &u.Name, &u.Email, &u.AvatarURL, &u.Bio, &u.Role,
		&u.IsVerified, &u.IsAdmin, &u.IsBanned, &u.BanReason, &u.RatingSum, &u.RatingCount,
		&u.EmailNotifications, &lastLogin, &created, &updated)
	if err != nil {
		return nil, err
	}
	u.LastLoginAt = db.FromNullMillis(lastLogin)
	u.CreatedAt = db.FromMillis(created)
	u.UpdatedAt = db.FromMillis(updated)
	u.Reputation = models.Reputation(u.RatingSum, u.RatingCount)
	return &u, nil
}

func (t *txn) userByID(id string) (*models.User, error) {
	u, err := scanUser(t.queryRow(`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "user")
	}
	return u, nil
}

func (t *txn) userByIdentity(subject string) (*models.User, error) {
	return scanUser(t.queryRow(`SELECT `+userColumns+` FROM users WHERE identity_key = ?`, subject))
}

// viewer resolves the caller for a query. An anonymous or not yet synced
// caller yields (nil, nil) so reads can degrade to an empty result.
func (t *txn) viewer(caller models.Identity) (*models.User, error) {
	if caller.Subject == "" {
		return nil, nil
	}
	u, err := t.userByIdentity(caller.Subject)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load caller: %w", err)
	}
	return u, nil
}

// requireUser resolves the caller for a mutation.
func (t *txn) requireUser(caller models.Identity) (*models.User, error) {
	u, err := t.viewer(caller)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperr.ErrUnauthenticated
	}
	return u, nil
}

// requireActive is requireUser plus the ban check.
func (t *txn) requireActive(caller models.Identity) (*models.User, error) {
	u, err := t.requireUser(caller)
	if err != nil {
		return nil, err
	}
	if u.IsBanned {
		return nil, apperr.Forbidden("your account has been suspended")
	}
	return u, nil
}

func (t *txn) requireAdmin(caller models.Identity) (*models.User, error) {
	u, err := t.requireActive(caller)
	if err != nil {
		return nil, err
	}
	if !u.IsAdmin {
		return nil, apperr.Forbidden("admin access required")
	}
	return u, nil
}

// viewerAdmin is viewer for admin-only queries: anonymous callers get
// (nil, nil), signed-in non-admins get Forbidden.
func (t *txn) viewerAdmin(caller models.Identity) (*models.User, error) {
	u, err := t.viewer(caller)
	if err != nil || u == nil {
		return nil, err
	}
	if !u.IsAdmin || u.IsBanned {
		return nil, apperr.Forbidden("admin access required")
	}
	return u, nil
}

// SyncIdentity creates the user for a verified identity on first sight
// and afterwards keeps the profile fields the identity provider owns
// (name, email, avatar) current. Role and the admin/ban/verification
// flags are never touched here, except that a configured bootstrap
// admin is created with the admin flag set.
func (s *Service) SyncIdentity(ctx context.Context, id models.Identity) (*models.User, error) {
	id.Subject = strings.TrimSpace(id.Subject)
	if id.Subject == "" {
		return nil, apperr.ErrUnauthenticated
	}
	name := strings.TrimSpace(id.Name)

	var user *models.User
	err := s.write(ctx, "sync_identity", func(t *txn) error {
		existing, err := t.userByIdentity(id.Subject)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if name == "" {
				name = "Anonymous"
			}
			userID := uuid.NewString()
			now := db.Millis(t.now)
			_, err = t.exec(`INSERT INTO users (id, identity_key, name, email, avatar_url, is_admin, last_login_at, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				userID, id.Subject, name, id.Email, id.AvatarURL, s.admins[id.Subject], now, now, now)
			if err != nil {
				return fmt.Errorf("insert user: %w", err)
			}
			s.log.Info("user created", "user_id", userID, "admin", s.admins[id.Subject])
			user, err = t.userByID(userID)
			return err
		case err != nil:
			return fmt.Errorf("load user: %w", err)
		}

		if name == "" {
			name = existing.Name
		}
		_, err = t.exec(`UPDATE users SET name = ?, email = ?, avatar_url = ?, last_login_at = ?, updated_at = ? WHERE id = ?`,
			name, id.Email, id.AvatarURL, db.Millis(t.now), db.Millis(t.now), existing.ID)
		if err != nil {
			return fmt.Errorf("update user: %w", err)
		}
		if name != existing.Name || id.Email != existing.Email || id.AvatarURL != existing.AvatarURL {
			t.emit("profile", existing.ID, live.UserTopic(existing.ID))
		}
		user, err = t.userByID(existing.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// CurrentUser returns the caller's record. Unlike other reads it reports
// apperr.ErrUnauthenticated for an anonymous caller; the HTTP layer turns
// that into a null body.
func (s *Service) CurrentUser(ctx context.Context, caller models.Identity) (*models.User, error) {
	var user *models.User
	err := s.read(ctx, func(t *txn) error {
		var err error
		user, err = t.requireUser(caller)
		return err
	})
	return user, err
}

// UpdateProfile edits the caller's display name, bio and role.
func (s *Service) UpdateProfile(ctx context.Context, caller models.Identity, req models.UpdateProfileRequest) (*models.User, error) {
	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		req.Name = &trimmed
	}
	if err := s.check(req); err != nil {
		return nil, err
	}

	var user *models.User
	err := s.write(ctx, "update_profile", func(t *txn) error {
		me, err := t.requireUser(caller)
		if err != nil {
			return err
		}
		name, bio, role := me.Name, me.Bio, me.Role
		if req.Name != nil {
			name = *req.Name
		}
		if req.Bio != nil {
			bio = strings.TrimSpace(*req.Bio)
		}
		if req.Role != nil {
			role = *req.Role
		}
		_, err = t.exec(`UPDATE users SET name = ?, bio = ?, role = ?, updated_at = ? WHERE id = ?`,
			name, bio, role, db.Millis(t.now), me.ID)
		if err != nil {
			return fmt.Errorf("update profile: %w", err)
		}
		t.emit("profile", me.ID, live.UserTopic(me.ID))
		user, err = t.userByID(me.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser returns a public profile, or nil for an anonymous caller.
func (s *Service) GetUser(ctx context.Context, caller models.Identity, userID string) (*models.User, error) {
	var user *models.User
	err := s.read(ctx, func(t *txn) error {
		me, err := t.viewer(caller)
		if err != nil || me == nil {
			return err
		}
		user, err = t.userByID(userID)
		return err
	})
	return user, err
}

// applyRating adds one rating to the reviewee's accumulator. Reputation
// is derived from the two counters on read and is never recomputed from
// review rows.
func (t *txn) applyRating(userID string, rating int) error {
	res, err := t.exec(`UPDATE users SET rating_sum = rating_sum + ?, rating_count = rating_count + 1, updated_at = ? WHERE id = ?`,
		rating, db.Millis(t.now), userID)
	if err != nil {
		return fmt.Errorf("apply rating: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("user not found")
	}
	return nil
}
