package market

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Elizabethomito/tutormarket/internal/db"
	"github.com/Elizabethomito/tutormarket/internal/live"
	"github.com/Elizabethomito/tutormarket/internal/logging"
	"github.com/Elizabethomito/tutormarket/internal/metrics"
	"github.com/Elizabethomito/tutormarket/internal/models"
)

// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE: test isolation
// ────────────────────────────────────────────────────────────────────
// Each test gets its own named in-memory database, so tests can run in
// any order without sharing rows. The clock is a fakeClock: presence
// cutoffs, report windows and review windows are exercised by moving it
// forward instead of sleeping.

var testDBCounter uint64

const adminSubject = "admin-sub"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recorder is a live.Publisher that keeps everything it was given.
type recorder struct {
	mu     sync.Mutex
	events []live.Event
}

func (r *recorder) Publish(events ...live.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recorder) sawTopic(topic string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.Topic == topic {
			return true
		}
	}
	return false
}

type testEnv struct {
	svc   *Service
	clock *fakeClock
	pub   *recorder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	n := atomic.AddUint64(&testDBCounter, 1)
	conn, err := db.Open(db.MemoryDSN(fmt.Sprintf("markettest%d", n)))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	clock := &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	pub := &recorder{}
	policy := DefaultPolicy()
	policy.BootstrapAdmins = []string{adminSubject}
	svc := New(db.NewStore(conn), policy, logging.Discard(),
		WithClock(clock.Now), WithPublisher(pub), WithMetrics(metrics.New()))
	return &testEnv{svc: svc, clock: clock, pub: pub}
}

var ctx = context.Background()

func seedUser(t *testing.T, env *testEnv, subject, name string) (models.Identity, *models.User) {
	t.Helper()
	id := models.Identity{Subject: subject, Name: name, Email: subject + "@uni.test"}
	u, err := env.svc.SyncIdentity(ctx, id)
	if err != nil {
		t.Fatalf("sync %s: %v", subject, err)
	}
	return id, u
}

func seedCatalog(t *testing.T, env *testEnv) {
	t.Helper()
	if _, err := env.svc.SeedCatalog(ctx); err != nil {
		t.Fatalf("seed catalog: %v", err)
	}
}

func seedTicket(t *testing.T, env *testEnv, student models.Identity, budget int64) *models.Ticket {
	t.Helper()
	tk, err := env.svc.CreateTicket(ctx, student, models.CreateTicketRequest{
		Title:    "Help with recursion",
		CourseID: SeedCourseCS101ID,
		Budget:   budget,
	})
	if err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	return tk
}

func seedOffer(t *testing.T, env *testEnv, tutor models.Identity, ticketID string, price int64) *models.Offer {
	t.Helper()
	o, err := env.svc.SubmitOffer(ctx, tutor, models.SubmitOfferRequest{TicketID: ticketID, Price: price})
	if err != nil {
		t.Fatalf("submit offer: %v", err)
	}
	return o
}

// deal is a ticket with one accepted offer.
type deal struct {
	student, tutor     models.Identity
	studentID, tutorID string
	ticket             *models.Ticket
	offer              *models.Offer
	conversationID     string
}

func seedDeal(t *testing.T, env *testEnv) deal {
	t.Helper()
	seedCatalog(t, env)
	student, su := seedUser(t, env, "student-sub", "Sam Student")
	tutor, tu := seedUser(t, env, "tutor-sub", "Tia Tutor")
	tk := seedTicket(t, env, student, 5000)
	o := seedOffer(t, env, tutor, tk.ID, 4000)
	resp, err := env.svc.AcceptOffer(ctx, student, models.AcceptOfferRequest{OfferID: o.ID, TicketID: tk.ID})
	if err != nil {
		t.Fatalf("accept offer: %v", err)
	}
	return deal{
		student: student, tutor: tutor,
		studentID: su.ID, tutorID: tu.ID,
		ticket: &resp.Ticket, offer: &resp.Offer,
		conversationID: resp.ConversationID,
	}
}
