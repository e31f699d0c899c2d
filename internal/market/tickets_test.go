package market

import (
	"errors"
	"testing"
	"time"

	"github.com/Elizabethomito/tutormarket/internal/apperr"
	"github.com/Elizabethomito/tutormarket/internal/live"
	"github.com/Elizabethomito/tutormarket/internal/models"
)

func TestCreateTicket(t *testing.T) {
	env := newTestEnv(t)
	seedCatalog(t, env)
	student, su := seedUser(t, env, "student-sub", "Sam")

	tk := seedTicket(t, env, student, 5000)
	if tk.Status != models.TicketOpen {
		t.Errorf("status: got %q, want open", tk.Status)
	}
	if tk.StudentID != su.ID || tk.StudentName != "Sam" {
		t.Errorf("owner: got %q/%q", tk.StudentID, tk.StudentName)
	}
	if tk.CourseCode != "CS101" {
		t.Errorf("course code snapshot: got %q", tk.CourseCode)
	}
	if tk.AssignedTutorID != "" {
		t.Error("open ticket must not have an assigned tutor")
	}
	if tk.HelpType != models.HelpOther || tk.Urgency != models.UrgencyMedium {
		t.Errorf("defaults: help_type=%q urgency=%q", tk.HelpType, tk.Urgency)
	}
	if !env.pub.sawTopic(live.TicketsTopic) {
		t.Error("new ticket should invalidate the open feed")
	}
}

func TestCreateTicket_Validation(t *testing.T) {
	env := newTestEnv(t)
	seedCatalog(t, env)
	student, _ := seedUser(t, env, "student-sub", "Sam")
	past := env.clock.Now().Add(-time.Hour)

	tests := []struct {
		name string
		req  models.CreateTicketRequest
		want error
	}{
		{"course and category", models.CreateTicketRequest{Title: "x", CourseID: SeedCourseCS101ID, CustomCategory: "Essays", Budget: 10}, apperr.ErrInvalid},
		{"neither course nor category", models.CreateTicketRequest{Title: "x", Budget: 10}, apperr.ErrInvalid},
		{"zero budget", models.CreateTicketRequest{Title: "x", CustomCategory: "Essays", Budget: 0}, apperr.ErrInvalid},
		{"blank title", models.CreateTicketRequest{Title: "   ", CustomCategory: "Essays", Budget: 10}, apperr.ErrInvalid},
		{"bad urgency", models.CreateTicketRequest{Title: "x", CustomCategory: "Essays", Budget: 10, Urgency: "asap"}, apperr.ErrInvalid},
		{"past deadline", models.CreateTicketRequest{Title: "x", CustomCategory: "Essays", Budget: 10, Deadline: &past}, apperr.ErrInvalid},
		{"unknown course", models.CreateTicketRequest{Title: "x", CourseID: "nope", Budget: 10}, apperr.ErrNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.CreateTicket(ctx, student, tc.req)
			if !errors.Is(err, tc.want) {
				t.Errorf("got %v, want %v", err, tc.want)
			}
		})
	}

	if _, err := env.svc.CreateTicket(ctx, models.Identity{}, models.CreateTicketRequest{
		Title: "x", CustomCategory: "Essays", Budget: 10,
	}); !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Errorf("anonymous create: got %v, want unauthenticated", err)
	}
}

func TestCompleteTicket(t *testing.T) {
	env := newTestEnv(t)
	seedCatalog(t, env)
	student, _ := seedUser(t, env, "student-sub", "Sam")
	tutor, _ := seedUser(t, env, "tutor-sub", "Tia")
	tk := seedTicket(t, env, student, 5000)

	if _, err := env.svc.CompleteTicket(ctx, student, tk.ID); !errors.Is(err, apperr.ErrInvalidState) {
		t.Errorf("completing an open ticket: got %v, want invalid_state", err)
	}

	o := seedOffer(t, env, tutor, tk.ID, 4000)
	if _, err := env.svc.AcceptOffer(ctx, student, models.AcceptOfferRequest{OfferID: o.ID, TicketID: tk.ID}); err != nil {
		t.Fatalf("AcceptOffer: %v", err)
	}
	if _, err := env.svc.CompleteTicket(ctx, tutor, tk.ID); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Errorf("tutor completing: got %v, want unauthorized", err)
	}

	done, err := env.svc.CompleteTicket(ctx, student, tk.ID)
	if err != nil {
		t.Fatalf("CompleteTicket: %v", err)
	}
	if done.Status != models.TicketResolved || done.ResolvedAt == nil {
		t.Errorf("got status %q resolved_at %v", done.Status, done.ResolvedAt)
	}
	if done.AssignedTutorName != "Tia" {
		t.Errorf("assigned tutor name: %q", done.AssignedTutorName)
	}

	if _, err := env.svc.CompleteTicket(ctx, student, tk.ID); !errors.Is(err, apperr.ErrInvalidState) {
		t.Errorf("resolved is terminal: got %v, want invalid_state", err)
	}

	notes, _ := env.svc.ListNotifications(ctx, tutor, true)
	var resolved int
	for _, n := range notes {
		if n.Type == models.NotifyTicketResolved {
			resolved++
		}
	}
	if resolved != 1 {
		t.Errorf("tutor ticket_resolved notifications: got %d, want 1", resolved)
	}
}

func TestTicketFeeds(t *testing.T) {
	env := newTestEnv(t)
	seedCatalog(t, env)
	alice, _ := seedUser(t, env, "alice", "Alice")
	bob, _ := seedUser(t, env, "bob", "Bob")
	tutor, _ := seedUser(t, env, "tutor-sub", "Tia")

	aliceTicket := seedTicket(t, env, alice, 1000)
	env.clock.Advance(time.Minute)
	bobTicket, err := env.svc.CreateTicket(ctx, bob, models.CreateTicketRequest{
		Title: "Essay structure", Description: "Need feedback on my thesis", CustomCategory: "Writing",
		Urgency: models.UrgencyHigh, Budget: 2000,
	})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}

	feed, err := env.svc.ListOpenTickets(ctx, tutor, models.TicketFilter{})
	if err != nil {
		t.Fatalf("ListOpenTickets: %v", err)
	}
	if len(feed) != 2 || feed[0].ID != bobTicket.ID {
		t.Fatalf("feed should list both, newest first: %+v", feed)
	}

	own, _ := env.svc.ListOpenTickets(ctx, alice, models.TicketFilter{})
	if len(own) != 1 || own[0].ID != bobTicket.ID {
		t.Errorf("feed must hide the caller's own tickets: %+v", own)
	}

	search, _ := env.svc.ListOpenTickets(ctx, tutor, models.TicketFilter{Search: "thesis"})
	if len(search) != 1 || search[0].ID != bobTicket.ID {
		t.Errorf("search on description: %+v", search)
	}
	byCourse, _ := env.svc.ListOpenTickets(ctx, tutor, models.TicketFilter{CourseID: SeedCourseCS101ID})
	if len(byCourse) != 1 || byCourse[0].ID != aliceTicket.ID {
		t.Errorf("course filter: %+v", byCourse)
	}
	byUrgency, _ := env.svc.ListOpenTickets(ctx, tutor, models.TicketFilter{Urgency: models.UrgencyHigh})
	if len(byUrgency) != 1 {
		t.Errorf("urgency filter: %+v", byUrgency)
	}

	anon, err := env.svc.ListOpenTickets(ctx, models.Identity{}, models.TicketFilter{})
	if err != nil || len(anon) != 0 {
		t.Errorf("anonymous feed should be empty, got %d, %v", len(anon), err)
	}

	o := seedOffer(t, env, tutor, aliceTicket.ID, 900)
	if _, err := env.svc.AcceptOffer(ctx, alice, models.AcceptOfferRequest{OfferID: o.ID, TicketID: aliceTicket.ID}); err != nil {
		t.Fatalf("AcceptOffer: %v", err)
	}
	assigned, _ := env.svc.ListAssignedTickets(ctx, tutor)
	if len(assigned) != 1 || assigned[0].ID != aliceTicket.ID {
		t.Errorf("assigned tickets: %+v", assigned)
	}
	mine, _ := env.svc.ListMyTickets(ctx, alice)
	if len(mine) != 1 || mine[0].Status != models.TicketInProgress {
		t.Errorf("my tickets: %+v", mine)
	}
	feed, _ = env.svc.ListOpenTickets(ctx, tutor, models.TicketFilter{})
	if len(feed) != 1 {
		t.Errorf("accepted ticket should leave the open feed: %+v", feed)
	}
}
