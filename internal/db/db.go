// Package db handles SQLite initialisation, schema migrations and the
// transaction discipline the marketplace core relies on.
//
// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE: why every write goes through Store.WithTx
// ────────────────────────────────────────────────────────────────────
// Accepting an offer touches four tables (offers, tickets,
// conversations, notifications). If any step fails, none of them may be
// visible. A database/sql transaction gives us the all-or-nothing part.
//
// SQLite allows one writer at a time, but a deferred transaction that
// reads first and writes later can still fail with SQLITE_BUSY when two
// of them race to upgrade their lock. Store serialises writers with a
// mutex before BEGIN, so two "accept" calls on the same ticket run one
// after the other and the second sees the first one's result.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	// Blank import: the modernc driver registers itself with
	// database/sql under the name "sqlite".
	_ "modernc.org/sqlite"
)

// Open opens (or creates) the SQLite database at dsn and runs all migrations.
//
// Recommended DSN formats for modernc.org/sqlite:
//   - Production file: "tutormarket.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
//   - Tests:           MemoryDSN("name")
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// MemoryDSN returns a DSN for a named shared-cache in-memory database.
// Connections in the pool that use the same name see the same tables.
func MemoryDSN(name string) string {
	return fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", name)
}

// migrate runs each DDL statement in the schema individually; the driver
// only executes the first statement of a multi-statement Exec.
func migrate(db *sql.DB) error {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration statement failed: %w\nstatement: %s", err, stmt)
		}
	}
	return nil
}

// Store wraps the connection pool with serialised write transactions.
type Store struct {
	DB *sql.DB
	mu sync.RWMutex
}

// NewStore wraps an opened database.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

// WithTx runs fn inside a write transaction. Writers are serialised; fn's
// error rolls everything back and is returned unchanged.
func (s *Store) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run(ctx, fn)
}

// Read runs fn inside a transaction that never overlaps a writer, so a
// query cannot observe half of another operation's effects.
func (s *Store) Read(ctx context.Context, fn func(*sql.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.run(ctx, fn)
}

func (s *Store) run(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is a no-op after Commit succeeds

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close closes the pool.
func (s *Store) Close() error { return s.DB.Close() }

// Timestamps are stored as INTEGER unix milliseconds so range filters
// (rate-limit windows, idle cutoffs) compare numerically.

// Millis converts t to unix milliseconds.
func Millis(t time.Time) int64 { return t.UnixMilli() }

// FromMillis converts unix milliseconds back to a UTC time.
func FromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// NullMillis converts an optional time; nil stores NULL.
func NullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

// FromNullMillis is the inverse of NullMillis.
func FromNullMillis(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := FromMillis(n.Int64)
	return &t
}

// schema contains every CREATE statement for the application.
//
// LEARNING NOTE: schema design choices
//
//	users           one row per external identity (identity_key). Never
//	                deleted; banning is a flag. rating_sum/rating_count are
//	                the reputation accumulator; the average is computed on
//	                read.
//
//	tickets         a student's paid help request. course_code is a
//	                snapshot copied at creation (see backfill).
//
//	offers          UNIQUE(ticket_id, tutor_id) enforces one offer per
//	                tutor per ticket; the partial index allows at most one
//	                accepted offer per ticket. student_id is copied from the
//	                ticket for cheap "offers on my tickets" queries.
//
//	conversations   pair_key is "<smaller id>|<larger id>", so (A,B) and
//	                (B,A) collide on the UNIQUE constraint.
//
//	reviews         UNIQUE(reviewer_id, ticket_id, direction).
//
//	audit_logs      append-only; nothing updates or deletes these rows.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id                  TEXT PRIMARY KEY,
    identity_key        TEXT NOT NULL UNIQUE,
    name                TEXT NOT NULL,
    email               TEXT NOT NULL DEFAULT '',
    avatar_url          TEXT NOT NULL DEFAULT '',
    bio                 TEXT NOT NULL DEFAULT '',
    role                TEXT NOT NULL DEFAULT 'student' CHECK(role IN ('student','tutor')),
    is_verified         INTEGER NOT NULL DEFAULT 0,
    is_admin            INTEGER NOT NULL DEFAULT 0,
    is_banned           INTEGER NOT NULL DEFAULT 0,
    ban_reason          TEXT NOT NULL DEFAULT '',
    rating_sum          INTEGER NOT NULL DEFAULT 0,
    rating_count        INTEGER NOT NULL DEFAULT 0,
    email_notifications INTEGER NOT NULL DEFAULT 1,
    last_login_at       INTEGER,
    created_at          INTEGER NOT NULL,
    updated_at          INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS departments (
    id         TEXT PRIMARY KEY,
    code       TEXT NOT NULL UNIQUE,
    name       TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS courses (
    id            TEXT PRIMARY KEY,
    department_id TEXT NOT NULL REFERENCES departments(id),
    code          TEXT NOT NULL UNIQUE,
    name          TEXT NOT NULL,
    created_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tickets (
    id                TEXT PRIMARY KEY,
    student_id        TEXT NOT NULL REFERENCES users(id),
    title             TEXT NOT NULL,
    description       TEXT NOT NULL DEFAULT '',
    course_id         TEXT REFERENCES courses(id),
    course_code       TEXT NOT NULL DEFAULT '',
    custom_category   TEXT NOT NULL DEFAULT '',
    help_type         TEXT NOT NULL DEFAULT 'other'
                          CHECK(help_type IN ('homework','exam_prep','project','concept','other')),
    urgency           TEXT NOT NULL DEFAULT 'medium' CHECK(urgency IN ('low','medium','high')),
    budget            INTEGER NOT NULL CHECK(budget > 0),
    deadline          INTEGER,
    status            TEXT NOT NULL DEFAULT 'open' CHECK(status IN ('open','in_progress','resolved')),
    assigned_tutor_id TEXT REFERENCES users(id),
    resolved_at       INTEGER,
    created_at        INTEGER NOT NULL,
    updated_at        INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status, created_at);
CREATE INDEX IF NOT EXISTS idx_tickets_student ON tickets(student_id);

CREATE TABLE IF NOT EXISTS offers (
    id         TEXT PRIMARY KEY,
    ticket_id  TEXT NOT NULL REFERENCES tickets(id),
    tutor_id   TEXT NOT NULL REFERENCES users(id),
    student_id TEXT NOT NULL,
    price      INTEGER NOT NULL CHECK(price > 0),
    message    TEXT NOT NULL DEFAULT '',
    status     TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending','accepted','rejected')),
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    UNIQUE (ticket_id, tutor_id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_offers_one_accepted ON offers(ticket_id) WHERE status = 'accepted';
CREATE INDEX IF NOT EXISTS idx_offers_tutor ON offers(tutor_id);

CREATE TABLE IF NOT EXISTS conversations (
    id                   TEXT PRIMARY KEY,
    participant_a        TEXT NOT NULL REFERENCES users(id),
    participant_b        TEXT NOT NULL REFERENCES users(id),
    pair_key             TEXT NOT NULL UNIQUE,
    last_message_id      TEXT NOT NULL DEFAULT '',
    last_message_preview TEXT NOT NULL DEFAULT '',
    created_at           INTEGER NOT NULL,
    updated_at           INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
    id              TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL REFERENCES conversations(id),
    sender_id       TEXT NOT NULL REFERENCES users(id),
    content         TEXT NOT NULL,
    is_read         INTEGER NOT NULL DEFAULT 0,
    created_at      INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);

CREATE TABLE IF NOT EXISTS reviews (
    id          TEXT PRIMARY KEY,
    ticket_id   TEXT NOT NULL REFERENCES tickets(id),
    reviewer_id TEXT NOT NULL REFERENCES users(id),
    reviewee_id TEXT NOT NULL REFERENCES users(id),
    rating      INTEGER NOT NULL CHECK(rating BETWEEN 1 AND 5),
    comment     TEXT NOT NULL DEFAULT '',
    direction   TEXT NOT NULL CHECK(direction IN ('student_to_tutor','tutor_to_student')),
    created_at  INTEGER NOT NULL,
    UNIQUE (reviewer_id, ticket_id, direction)
);

CREATE INDEX IF NOT EXISTS idx_reviews_reviewee ON reviews(reviewee_id, created_at);

CREATE TABLE IF NOT EXISTS notifications (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL REFERENCES users(id),
    type       TEXT NOT NULL,
    payload    TEXT NOT NULL DEFAULT '{}',
    is_read    INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, is_read, created_at);

CREATE TABLE IF NOT EXISTS reports (
    id          TEXT PRIMARY KEY,
    reporter_id TEXT NOT NULL REFERENCES users(id),
    target_id   TEXT NOT NULL REFERENCES users(id),
    reason      TEXT NOT NULL,
    details     TEXT NOT NULL DEFAULT '',
    status      TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending','resolved','dismissed')),
    resolved_by TEXT NOT NULL DEFAULT '',
    resolved_at INTEGER,
    created_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reports_reporter ON reports(reporter_id, created_at);

CREATE TABLE IF NOT EXISTS audit_logs (
    id          TEXT PRIMARY KEY,
    actor_id    TEXT NOT NULL,
    action      TEXT NOT NULL,
    target_id   TEXT NOT NULL,
    target_type TEXT NOT NULL,
    details     TEXT NOT NULL DEFAULT '{}',
    created_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_logs(created_at);

CREATE TABLE IF NOT EXISTS tutor_profiles (
    user_id            TEXT PRIMARY KEY REFERENCES users(id),
    bio                TEXT NOT NULL DEFAULT '',
    hourly_rate        INTEGER NOT NULL DEFAULT 0,
    subjects           TEXT NOT NULL DEFAULT '',
    presence           TEXT NOT NULL DEFAULT 'offline' CHECK(presence IN ('online','away','offline')),
    accepting_requests INTEGER NOT NULL DEFAULT 0,
    last_active_at     INTEGER,
    updated_at         INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tutor_offerings (
    id         TEXT PRIMARY KEY,
    tutor_id   TEXT NOT NULL REFERENCES users(id),
    course_id  TEXT NOT NULL REFERENCES courses(id),
    level      TEXT NOT NULL CHECK(level IN ('beginner','intermediate','advanced','expert')),
    created_at INTEGER NOT NULL,
    UNIQUE (tutor_id, course_id)
);

CREATE TABLE IF NOT EXISTS study_groups (
    id          TEXT PRIMARY KEY,
    host_id     TEXT NOT NULL REFERENCES users(id),
    name        TEXT NOT NULL,
    course_id   TEXT REFERENCES courses(id),
    max_members INTEGER NOT NULL CHECK(max_members >= 2),
    created_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS study_group_members (
    group_id  TEXT NOT NULL REFERENCES study_groups(id),
    user_id   TEXT NOT NULL REFERENCES users(id),
    joined_at INTEGER NOT NULL,
    PRIMARY KEY (group_id, user_id)
);
`
