package handlers

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Elizabethomito/tutormarket/internal/apperr"
	"github.com/Elizabethomito/tutormarket/internal/live"
	"github.com/Elizabethomito/tutormarket/internal/market"
	"github.com/Elizabethomito/tutormarket/internal/models"
)

func seedCatalog(t *testing.T, srv *Server) {
	t.Helper()
	if _, err := srv.Market.SeedCatalog(t.Context()); err != nil {
		t.Fatalf("seed catalog: %v", err)
	}
}

func TestMe_AnonymousIsNull(t *testing.T) {
	h := newTestServer(t).Routes()
	rec := call(t, h, http.MethodGet, "/api/me", "", nil)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "null" {
		t.Errorf("anonymous /me: %d %q", rec.Code, rec.Body.String())
	}

	// Signed token but never synced: still null.
	rec = call(t, h, http.MethodGet, "/api/me", tokenFor(t, "ghost", "Ghost"), nil)
	if strings.TrimSpace(rec.Body.String()) != "null" {
		t.Errorf("unsynced /me: %q", rec.Body.String())
	}
}

func TestAuthBoundaries(t *testing.T) {
	h := newTestServer(t).Routes()

	rec := call(t, h, http.MethodPost, "/api/tickets", "", models.CreateTicketRequest{Title: "x", Budget: 1})
	expectError(t, rec, http.StatusUnauthorized, apperr.KindUnauthenticated)

	rec = call(t, h, http.MethodGet, "/api/tickets", "not-a-jwt", nil)
	expectError(t, rec, http.StatusUnauthorized, apperr.KindUnauthenticated)

	// Anonymous queries degrade to empty lists.
	rec = call(t, h, http.MethodGet, "/api/notifications", "", nil)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("anonymous notifications: %d %s", rec.Code, rec.Body.String())
	}

	// Signed in but not an admin.
	tok, _ := syncUser(t, h, "plain", "Plain")
	rec = call(t, h, http.MethodGet, "/api/admin/users", tok, nil)
	expectError(t, rec, http.StatusForbidden, apperr.KindForbidden)
}

func TestTicketLifecycle(t *testing.T) {
	srv := newTestServer(t)
	seedCatalog(t, srv)
	h := srv.Routes()

	studentTok, student := syncUser(t, h, "student", "Sam Student")
	tutorTok, tutor := syncUser(t, h, "tutor", "Tia Tutor")
	otherTok, _ := syncUser(t, h, "other", "Oli Other")

	rec := call(t, h, http.MethodPost, "/api/tickets", studentTok, models.CreateTicketRequest{
		Title:    "Help with recursion",
		CourseID: market.SeedCourseCS101ID,
		Budget:   5000,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create ticket: %d %s", rec.Code, rec.Body.String())
	}
	var tk models.Ticket
	decodeBody(t, rec, &tk)
	if tk.CourseCode != "CS101" || tk.Status != models.TicketOpen {
		t.Errorf("ticket: %+v", tk)
	}

	rec = call(t, h, http.MethodPost, "/api/tickets/"+tk.ID+"/offers", tutorTok, models.SubmitOfferRequest{Price: 4000})
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit offer: %d %s", rec.Code, rec.Body.String())
	}
	var offer models.Offer
	decodeBody(t, rec, &offer)

	rec = call(t, h, http.MethodPost, "/api/tickets/"+tk.ID+"/offers", tutorTok, models.SubmitOfferRequest{Price: 3500})
	expectError(t, rec, http.StatusConflict, apperr.KindDuplicateOffer)

	rec = call(t, h, http.MethodPost, "/api/tickets/"+tk.ID+"/offers", studentTok, models.SubmitOfferRequest{Price: 100})
	expectError(t, rec, http.StatusForbidden, apperr.KindForbidden)

	rec = call(t, h, http.MethodGet, "/api/tickets/"+tk.ID+"/offers", otherTok, nil)
	expectError(t, rec, http.StatusForbidden, apperr.KindUnauthorized)

	rec = call(t, h, http.MethodGet, "/api/tickets/"+tk.ID+"/offers?sort=cheapest", studentTok, nil)
	expectError(t, rec, http.StatusBadRequest, apperr.KindInvalid)

	rec = call(t, h, http.MethodGet, "/api/tickets/"+tk.ID+"/offers?sort=price", studentTok, nil)
	var ranked []models.RankedOffer
	decodeBody(t, rec, &ranked)
	if len(ranked) != 1 || ranked[0].TutorName != "Tia Tutor" {
		t.Errorf("ranked offers: %+v", ranked)
	}

	rec = call(t, h, http.MethodPost, "/api/tickets/"+tk.ID+"/offers/"+offer.ID+"/accept", studentTok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("accept: %d %s", rec.Code, rec.Body.String())
	}
	var accepted models.AcceptOfferResponse
	decodeBody(t, rec, &accepted)
	if accepted.Ticket.Status != models.TicketInProgress || accepted.Ticket.AssignedTutorID != tutor.ID || accepted.ConversationID == "" {
		t.Errorf("accept response: %+v", accepted)
	}

	rec = call(t, h, http.MethodPost, "/api/tickets/"+tk.ID+"/offers/"+offer.ID+"/accept", studentTok, nil)
	expectError(t, rec, http.StatusConflict, apperr.KindInvalidState)

	// The conversation already exists; opening it again is a 200.
	rec = call(t, h, http.MethodPost, "/api/conversations", tutorTok, conversationRequest{UserID: student.ID})
	if rec.Code != http.StatusOK {
		t.Fatalf("open conversation: %d %s", rec.Code, rec.Body.String())
	}
	var conv models.ConversationResponse
	decodeBody(t, rec, &conv)
	if conv.Created || conv.Conversation.ID != accepted.ConversationID {
		t.Errorf("conversation: %+v", conv)
	}

	rec = call(t, h, http.MethodPost, "/api/conversations/"+conv.Conversation.ID+"/messages", tutorTok,
		models.SendMessageRequest{Content: "  Hi Sam, when suits you?  "})
	if rec.Code != http.StatusCreated {
		t.Fatalf("send message: %d %s", rec.Code, rec.Body.String())
	}
	rec = call(t, h, http.MethodGet, "/api/messages/unread-count", studentTok, nil)
	var count models.CountResponse
	decodeBody(t, rec, &count)
	if count.Count != 1 {
		t.Errorf("unread messages: %d", count.Count)
	}
	rec = call(t, h, http.MethodPost, "/api/conversations/"+conv.Conversation.ID+"/read", studentTok, nil)
	decodeBody(t, rec, &count)
	if count.Count != 1 {
		t.Errorf("marked read: %d", count.Count)
	}

	rec = call(t, h, http.MethodPost, "/api/tickets/"+tk.ID+"/reviews", studentTok, models.SubmitReviewRequest{Rating: 5})
	expectError(t, rec, http.StatusConflict, apperr.KindInvalidState)

	rec = call(t, h, http.MethodPost, "/api/tickets/"+tk.ID+"/complete", tutorTok, nil)
	expectError(t, rec, http.StatusForbidden, apperr.KindUnauthorized)
	rec = call(t, h, http.MethodPost, "/api/tickets/"+tk.ID+"/complete", studentTok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("complete: %d %s", rec.Code, rec.Body.String())
	}

	rec = call(t, h, http.MethodPost, "/api/tickets/"+tk.ID+"/reviews", studentTok, models.SubmitReviewRequest{Rating: 5, Comment: "Great"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("review: %d %s", rec.Code, rec.Body.String())
	}
	rec = call(t, h, http.MethodPost, "/api/tickets/"+tk.ID+"/reviews", studentTok, models.SubmitReviewRequest{Rating: 4})
	expectError(t, rec, http.StatusConflict, apperr.KindDuplicateReview)

	rec = call(t, h, http.MethodGet, "/api/users/"+tutor.ID, studentTok, nil)
	var profile models.User
	decodeBody(t, rec, &profile)
	if profile.Reputation != 5 || profile.RatingCount != 1 {
		t.Errorf("tutor reputation: %+v", profile)
	}

	rec = call(t, h, http.MethodGet, "/api/notifications/unread-count", tutorTok, nil)
	decodeBody(t, rec, &count)
	// offer_accepted, ticket_resolved, review_received
	if count.Count != 3 {
		t.Errorf("tutor unread notifications: %d", count.Count)
	}
}

func TestMessagingRestricted(t *testing.T) {
	h := newTestServer(t).Routes()
	_, student := syncUser(t, h, "student", "Sam")
	strangerTok, _ := syncUser(t, h, "stranger", "Zed")

	rec := call(t, h, http.MethodPost, "/api/conversations", strangerTok, conversationRequest{UserID: student.ID})
	expectError(t, rec, http.StatusForbidden, apperr.KindMessagingRestricted)
}

func TestReportUser_RateLimitedOverHTTP(t *testing.T) {
	h := newTestServer(t).Routes()
	tok, _ := syncUser(t, h, "reporter", "Rae")
	_, target := syncUser(t, h, "target", "Tom")

	for i := 0; i < 5; i++ {
		rec := call(t, h, http.MethodPost, "/api/reports", tok, models.ReportUserRequest{TargetID: target.ID, Reason: models.ReasonSpam})
		if rec.Code != http.StatusCreated {
			t.Fatalf("report %d: %d %s", i+1, rec.Code, rec.Body.String())
		}
	}
	rec := call(t, h, http.MethodPost, "/api/reports", tok, models.ReportUserRequest{TargetID: target.ID, Reason: models.ReasonSpam})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	secs, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	if err != nil || secs <= 0 || secs > 3600 {
		t.Errorf("Retry-After: %q", rec.Header().Get("Retry-After"))
	}
}

func TestAdminBan(t *testing.T) {
	h := newTestServer(t).Routes()
	adminTok, admin := syncUser(t, h, adminSub, "Root")
	userTok, user := syncUser(t, h, "user", "Uma")

	rec := call(t, h, http.MethodPost, "/api/admin/users/"+user.ID+"/ban", userTok, banRequest{Banned: true})
	expectError(t, rec, http.StatusForbidden, apperr.KindForbidden)

	rec = call(t, h, http.MethodPost, "/api/admin/users/"+user.ID+"/ban", adminTok, banRequest{Banned: true, Reason: "scam"})
	if rec.Code != http.StatusOK {
		t.Fatalf("ban: %d %s", rec.Code, rec.Body.String())
	}

	rec = call(t, h, http.MethodGet, "/api/admin/users?banned=true", adminTok, nil)
	var users []models.User
	decodeBody(t, rec, &users)
	if len(users) != 1 || users[0].ID != user.ID || !users[0].IsBanned {
		t.Errorf("banned users: %+v", users)
	}

	rec = call(t, h, http.MethodGet, "/api/admin/audit-logs?target_id="+user.ID, adminTok, nil)
	var logs []models.AuditLog
	decodeBody(t, rec, &logs)
	if len(logs) != 1 || logs[0].Action != models.AuditUserBanned || logs[0].ActorID != admin.ID {
		t.Errorf("audit: %+v", logs)
	}

	rec = call(t, h, http.MethodPut, "/api/tutor/profile", userTok, models.UpsertTutorProfileRequest{Bio: "hi"})
	expectError(t, rec, http.StatusForbidden, apperr.KindForbidden)
}

func TestTutorPresenceAndGroups(t *testing.T) {
	srv := newTestServer(t)
	seedCatalog(t, srv)
	h := srv.Routes()
	tok, _ := syncUser(t, h, "tutor", "Tia")

	rec := call(t, h, http.MethodPost, "/api/tutor/offerings", tok, models.AddTutorOfferingRequest{CourseID: market.SeedCourseCS101ID, Level: models.LevelExpert})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add offering: %d %s", rec.Code, rec.Body.String())
	}
	rec = call(t, h, http.MethodPost, "/api/tutor/presence", tok, models.SetPresenceRequest{Status: "busy"})
	expectError(t, rec, http.StatusBadRequest, apperr.KindInvalid)
	rec = call(t, h, http.MethodPost, "/api/tutor/presence", tok, models.SetPresenceRequest{Status: models.PresenceOnline})
	if rec.Code != http.StatusOK {
		t.Fatalf("presence: %d %s", rec.Code, rec.Body.String())
	}
	if rec = call(t, h, http.MethodPost, "/api/tutor/heartbeat", tok, nil); rec.Code != http.StatusNoContent {
		t.Errorf("heartbeat: %d", rec.Code)
	}

	rec = call(t, h, http.MethodGet, "/api/tutors?online=true&course_id="+market.SeedCourseCS101ID, tok, nil)
	var tutors []models.TutorProfile
	decodeBody(t, rec, &tutors)
	if len(tutors) != 1 || !tutors[0].AcceptingRequests {
		t.Errorf("tutors: %+v", tutors)
	}

	rec = call(t, h, http.MethodPost, "/api/study-groups", tok, models.CreateStudyGroupRequest{Name: "Cram", MaxMembers: 2})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create group: %d %s", rec.Code, rec.Body.String())
	}
	var g models.StudyGroup
	decodeBody(t, rec, &g)
	rec = call(t, h, http.MethodPost, "/api/study-groups/"+g.ID+"/leave", tok, nil)
	expectError(t, rec, http.StatusForbidden, apperr.KindForbidden)
}

func TestLive_PrivateTopicsRefused(t *testing.T) {
	h := newTestServer(t).Routes()
	tok, _ := syncUser(t, h, "me", "Me")
	_, other := syncUser(t, h, "other", "Other")

	rec := call(t, h, http.MethodGet, "/api/live?topic="+live.UserTopic(other.ID), tok, nil)
	expectError(t, rec, http.StatusBadRequest, apperr.KindInvalid)

	rec = call(t, h, http.MethodGet, "/api/live", "", nil)
	expectError(t, rec, http.StatusBadRequest, apperr.KindInvalid)
}

func TestLive_StreamsTicketFeed(t *testing.T) {
	srv := newTestServer(t)
	seedCatalog(t, srv)
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/live?topic=" + live.TicketsTopic
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	tok, _ := syncUser(t, ts.Config.Handler, "student", "Sam")
	rec := call(t, ts.Config.Handler, http.MethodPost, "/api/tickets", tok, models.CreateTicketRequest{
		Title:          "Proofs by induction",
		CustomCategory: "Discrete maths",
		Budget:         3000,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create ticket: %d %s", rec.Code, rec.Body.String())
	}

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var ev live.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Topic != live.TicketsTopic {
		t.Errorf("event topic: %+v", ev)
	}
}
