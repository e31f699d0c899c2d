package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Elizabethomito/tutormarket/internal/apperr"
	"github.com/Elizabethomito/tutormarket/internal/auth"
	"github.com/Elizabethomito/tutormarket/internal/db"
	"github.com/Elizabethomito/tutormarket/internal/live"
	"github.com/Elizabethomito/tutormarket/internal/logging"
	"github.com/Elizabethomito/tutormarket/internal/market"
	"github.com/Elizabethomito/tutormarket/internal/metrics"
	"github.com/Elizabethomito/tutormarket/internal/models"
)

const (
	testSecret = "handlers-test-secret"
	testIssuer = "tutormarket-test"
	adminSub   = "admin-sub"
)

var testDBCounter uint64

// newTestServer creates a Server backed by a unique in-memory SQLite database.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	// Each test gets its own named shared-cache memory DB so connections
	// in the pool all see the same tables without interfering across tests.
	id := atomic.AddUint64(&testDBCounter, 1)
	conn, err := db.Open(db.MemoryDSN(fmt.Sprintf("handlerstest%d", id)))
	if err != nil {
		t.Fatalf("newTestServer: open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	log := logging.Discard()
	hub := live.NewHub(log, 0)
	m := metrics.New()
	policy := market.DefaultPolicy()
	policy.BootstrapAdmins = []string{adminSub}
	svc := market.New(db.NewStore(conn), policy, log, market.WithPublisher(hub), market.WithMetrics(m))

	return &Server{
		Market:      svc,
		Hub:         hub,
		Upgrader:    live.NewUpgrader("*"),
		Metrics:     m,
		Log:         log,
		Secret:      testSecret,
		Issuer:      testIssuer,
		CORSOrigin:  "*",
		SeedEnabled: true,
	}
}

// jsonBody encodes v to JSON and returns a bytes.Buffer.
func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("jsonBody: %v", err)
	}
	return buf
}

// tokenFor signs an identity token the way the external auth layer would.
func tokenFor(t *testing.T, subject, name string) string {
	t.Helper()
	tok, err := auth.GenerateToken(models.Identity{Subject: subject, Name: name, Email: subject + "@uni.test"},
		testSecret, testIssuer, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return tok
}

// call sends one request through the full router.
func call(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		r = jsonBody(t, body)
	}
	req := httptest.NewRequest(method, path, r)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// decodeBody decodes a recorder body into v.
func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v (%s)", err, rec.Body.String())
	}
}

// syncUser signs a user in and returns their token and internal user.
func syncUser(t *testing.T, h http.Handler, subject, name string) (string, models.User) {
	t.Helper()
	tok := tokenFor(t, subject, name)
	rec := call(t, h, http.MethodPost, "/api/auth/sync", tok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("sync %s: %d %s", subject, rec.Code, rec.Body.String())
	}
	var u models.User
	decodeBody(t, rec, &u)
	return tok, u
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code apperr.Kind) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
	var body errorBody
	decodeBody(t, rec, &body)
	if body.Code != string(code) {
		t.Errorf("code: got %q, want %q", body.Code, code)
	}
	if body.Error == "" {
		t.Error("error message is empty")
	}
}

func TestStatusFor(t *testing.T) {
	tests := map[apperr.Kind]int{
		apperr.KindUnauthenticated:     http.StatusUnauthorized,
		apperr.KindUnauthorized:        http.StatusForbidden,
		apperr.KindForbidden:           http.StatusForbidden,
		apperr.KindMessagingRestricted: http.StatusForbidden,
		apperr.KindInvalidState:        http.StatusConflict,
		apperr.KindDuplicateOffer:      http.StatusConflict,
		apperr.KindDuplicateReview:     http.StatusConflict,
		apperr.KindNotFound:            http.StatusNotFound,
		apperr.KindRateLimited:         http.StatusTooManyRequests,
		apperr.KindInvalid:             http.StatusBadRequest,
		"":                             http.StatusInternalServerError,
	}
	for kind, want := range tests {
		if got := statusFor(kind); got != want {
			t.Errorf("%q: got %d, want %d", kind, got, want)
		}
	}
}

func TestFail_RateLimitedSetsRetryAfter(t *testing.T) {
	srv := newTestServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/reports", nil)
	srv.fail(rec, req, apperr.RateLimited(90*time.Second+time.Millisecond, "slow down"))

	expectError(t, rec, http.StatusTooManyRequests, apperr.KindRateLimited)
	if got := rec.Header().Get("Retry-After"); got != "91" {
		t.Errorf("Retry-After: got %q, want 91", got)
	}
}

func TestFail_StoreErrorIsOpaque(t *testing.T) {
	srv := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.fail(rec, httptest.NewRequest(http.MethodGet, "/", nil), fmt.Errorf("insert ticket: %w", io.ErrUnexpectedEOF))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if bytes.Contains(rec.Body.Bytes(), []byte("insert ticket")) {
		t.Errorf("internal detail leaked: %s", rec.Body.String())
	}
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestServer(t).Routes()

	rec := call(t, h, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health: %d", rec.Code)
	}
	rec = call(t, h, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte("tutormarket_http_requests_total")) {
		t.Errorf("metrics: %d", rec.Code)
	}
}

func TestSeedDemo_Idempotent(t *testing.T) {
	srv := newTestServer(t)
	h := srv.Routes()

	for i := 0; i < 2; i++ {
		rec := call(t, h, http.MethodPost, "/api/admin/seed", "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("attempt %d: expected 200, got %d: %s", i+1, rec.Code, rec.Body.String())
		}
		var res seedResponse
		decodeBody(t, rec, &res)
		if len(res.Tokens) != 2 {
			t.Errorf("attempt %d: tokens %v", i+1, res.Tokens)
		}
		if i == 1 && (res.Catalog.Departments != 0 || res.Catalog.Courses != 0) {
			t.Errorf("second run inserted catalog rows: %+v", res.Catalog)
		}
	}

	tickets, err := srv.Market.ListMyTickets(t.Context(), demoStudent)
	if err != nil || len(tickets) != 1 {
		t.Errorf("demo tickets: %d, %v", len(tickets), err)
	}
	tutors, _ := srv.Market.ListTutors(t.Context(), demoStudent, models.TutorFilter{OnlineOnly: true})
	if len(tutors) != 1 || tutors[0].Name != demoTutor.Name {
		t.Errorf("demo tutor: %+v", tutors)
	}
}

func TestSeedDemo_NotMountedWhenDisabled(t *testing.T) {
	srv := newTestServer(t)
	srv.SeedEnabled = false
	rec := call(t, srv.Routes(), http.MethodPost, "/api/admin/seed", "", nil)
	if rec.Code != http.StatusNotFound && rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected the route to be absent, got %d", rec.Code)
	}
}
