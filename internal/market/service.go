// Package market is the marketplace transaction core: identity and
// reputation, catalog, the ticket state machine, offers and ranking, the
// messaging gate, reviews, notifications, moderation with its audit
// trail, tutor presence and study groups.
//
// Every operation runs as one db.Store transaction. Callers pass the
// verified identity explicitly; the core never looks for a "current user"
// anywhere else. Validation and authorization happen before the first
// write, and any returned error rolls the whole transaction back.
//
// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE: events after commit
// ────────────────────────────────────────────────────────────────────
// Mutations record invalidation events on the txn while they run. The
// events are handed to the live publisher only once the transaction has
// committed, so a subscriber can never be told about a change it then
// fails to read back.
package market

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Elizabethomito/tutormarket/internal/apperr"
	"github.com/Elizabethomito/tutormarket/internal/config"
	"github.com/Elizabethomito/tutormarket/internal/db"
	"github.com/Elizabethomito/tutormarket/internal/live"
	"github.com/Elizabethomito/tutormarket/internal/metrics"
)

// Weights blend the three ranking signals into one rank score.
type Weights struct {
	Match      float64
	Price      float64
	Reputation float64
}

// Policy holds the tunable business rules.
type Policy struct {
	ReportWindow    time.Duration
	ReportMax       int
	IdleCutoff      time.Duration
	RecentlyActive  time.Duration
	ReviewWindow    time.Duration
	Weights         Weights
	BootstrapAdmins []string
}

// DefaultPolicy matches the configuration defaults.
func DefaultPolicy() Policy {
	return Policy{
		ReportWindow:   time.Hour,
		ReportMax:      5,
		IdleCutoff:     10 * time.Minute,
		RecentlyActive: 15 * time.Minute,
		ReviewWindow:   30 * 24 * time.Hour,
		Weights:        Weights{Match: 0.5, Price: 0.3, Reputation: 0.2},
	}
}

// PolicyFromConfig copies the relevant sections of cfg.
func PolicyFromConfig(cfg *config.Config) Policy {
	return Policy{
		ReportWindow:   cfg.Moderation.ReportWindow,
		ReportMax:      cfg.Moderation.ReportMax,
		IdleCutoff:     cfg.Presence.IdleCutoff,
		RecentlyActive: cfg.Presence.RecentlyActive,
		ReviewWindow:   cfg.Reviews.Window,
		Weights: Weights{
			Match:      cfg.Ranking.MatchWeight,
			Price:      cfg.Ranking.PriceWeight,
			Reputation: cfg.Ranking.ReputationWeight,
		},
		BootstrapAdmins: cfg.Auth.BootstrapAdmins,
	}
}

// Service exposes every marketplace operation.
type Service struct {
	store    *db.Store
	policy   Policy
	validate *validator.Validate
	log      *slog.Logger
	pub      live.Publisher
	metrics  *metrics.Metrics
	now      func() time.Time
	admins   map[string]bool
}

// Option customises a Service.
type Option func(*Service)

// WithClock replaces time.Now; tests use it to move through presence and
// rate-limit windows.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithPublisher sends committed-change events to p.
func WithPublisher(p live.Publisher) Option {
	return func(s *Service) { s.pub = p }
}

// WithMetrics counts operations and reaper demotions on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New builds a Service on an opened store.
func New(store *db.Store, policy Policy, log *slog.Logger, opts ...Option) *Service {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON field names so messages match what the client sent.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	s := &Service{
		store:    store,
		policy:   policy,
		validate: v,
		log:      log,
		pub:      nopPublisher{},
		now:      time.Now,
		admins:   make(map[string]bool, len(policy.BootstrapAdmins)),
	}
	for _, subject := range policy.BootstrapAdmins {
		s.admins[strings.TrimSpace(subject)] = true
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type nopPublisher struct{}

func (nopPublisher) Publish(...live.Event) {}

// txn is the handle every operation body works with: the open
// transaction, the operation's timestamp and the events to publish once
// it commits.
type txn struct {
	tx     *sql.Tx
	ctx    context.Context
	now    time.Time
	events []live.Event
}

func (t *txn) exec(query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(t.ctx, query, args...)
}

func (t *txn) query(query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(t.ctx, query, args...)
}

func (t *txn) queryRow(query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(t.ctx, query, args...)
}

// emit records one invalidation per topic.
func (t *txn) emit(kind, id string, topics ...string) {
	for _, topic := range topics {
		t.events = append(t.events, live.Event{Topic: topic, Kind: kind, ID: id, At: t.now})
	}
}

// write runs fn in a serialised write transaction and publishes its
// events after commit. op names the operation in metrics and logs.
func (s *Service) write(ctx context.Context, op string, fn func(*txn) error) error {
	t := &txn{ctx: ctx, now: s.now().UTC()}
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		t.tx = tx
		return fn(t)
	})
	s.record(op, err)
	if err != nil {
		return err
	}
	if len(t.events) > 0 {
		s.pub.Publish(t.events...)
	}
	return nil
}

// read runs fn in a read transaction that never overlaps a writer.
func (s *Service) read(ctx context.Context, fn func(*txn) error) error {
	t := &txn{ctx: ctx, now: s.now().UTC()}
	return s.store.Read(ctx, func(tx *sql.Tx) error {
		t.tx = tx
		return fn(t)
	})
}

func (s *Service) record(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(apperr.KindOf(err))
		if outcome == "" {
			outcome = "error"
			s.log.Error("operation failed", "op", op, "error", err)
		}
	}
	s.metrics.Operation(op, outcome)
}

// check runs struct validation and turns the first failure into an
// apperr.Invalid with a readable message.
func (s *Service) check(req any) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			return apperr.Invalid("%s is required", field)
		case "oneof":
			return apperr.Invalid("%s must be one of: %s", field, fe.Param())
		case "max":
			return apperr.Invalid("%s must be at most %s", field, fe.Param())
		case "min":
			return apperr.Invalid("%s must be at least %s", field, fe.Param())
		case "gt":
			return apperr.Invalid("%s must be greater than %s", field, fe.Param())
		case "gte":
			return apperr.Invalid("%s must be at least %s", field, fe.Param())
		default:
			return apperr.Invalid("%s is invalid", field)
		}
	}
	return fmt.Errorf("validate: %w", err)
}

// notFound converts sql.ErrNoRows into an apperr.NotFound for what.
func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound("%s not found", what)
	}
	return fmt.Errorf("load %s: %w", what, err)
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}
