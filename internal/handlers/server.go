// Package handlers exposes the marketplace core over HTTP.
//
// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE — package structure
// ────────────────────────────────────────────────────────────────────
// All handler files share the same "handlers" package so they can call
// each other's helpers freely without exporting them. The files are
// split by component (tickets, offers, messaging, moderation, ...)
// purely for readability.
//
// Handlers are thin: decode the request, pull the caller identity out of
// the context, call one market.Service method, and write the result.
// Every rule (ownership, state, bans) lives in the service, so the same
// checks apply to tests, the seed and any future transport.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Elizabethomito/tutormarket/internal/apperr"
	"github.com/Elizabethomito/tutormarket/internal/live"
	"github.com/Elizabethomito/tutormarket/internal/market"
	"github.com/Elizabethomito/tutormarket/internal/metrics"
	"github.com/Elizabethomito/tutormarket/internal/middleware"
	"github.com/Elizabethomito/tutormarket/internal/models"
)

// maxBodyBytes caps every JSON request body.
const maxBodyBytes = 1 << 20

// Server holds shared dependencies for all handlers.
// Using a struct instead of package-level globals means tests can spin
// up many independent Server instances without state leaking between them.
type Server struct {
	// Market is the transactional core every handler delegates to.
	Market *market.Service
	// Hub fans committed changes out to websocket subscribers.
	Hub      *live.Hub
	Upgrader *websocket.Upgrader
	// Metrics may be nil; /metrics is then not mounted.
	Metrics *metrics.Metrics
	Log     *slog.Logger

	// Secret and Issuer verify identity tokens.
	Secret string
	Issuer string

	CORSOrigin  string
	SeedEnabled bool
}

// respond writes v as JSON with the given HTTP status code.
// Setting Content-Type before WriteHeader is important — once
// WriteHeader is called the headers are flushed and cannot be changed.
func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Ignoring the encode error: if the client disconnected mid-write
	// there is nothing useful we can do.
	_ = json.NewEncoder(w).Encode(body)
}

// errorBody is the shape of every error response.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// respondError sends {"error": msg, "code": code}.
func respondError(w http.ResponseWriter, status int, code apperr.Kind, msg string) {
	respond(w, status, errorBody{Error: msg, Code: string(code)})
}

// statusFor maps an error kind to its HTTP status.
//
// LEARNING NOTE — unauthorized vs forbidden
// HTTP's 401 means "who are you?" and 403 means "I know who you are and
// the answer is no". Ownership failures and bans are both 403; the code
// field in the body tells the UI which one it is.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperr.KindUnauthorized, apperr.KindForbidden, apperr.KindMessagingRestricted:
		return http.StatusForbidden
	case apperr.KindInvalidState, apperr.KindDuplicateOffer, apperr.KindDuplicateReview:
		return http.StatusConflict
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindRateLimited:
		return http.StatusTooManyRequests
	case apperr.KindInvalid:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// fail writes err using the error taxonomy. Unclassified errors are store
// failures or bugs: they are logged and reported as a bare 500.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var e *apperr.Error
	if !errors.As(err, &e) {
		s.Log.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		respondError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	if e.Kind == apperr.KindRateLimited && e.RetryAfter > 0 {
		secs := int((e.RetryAfter + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	respondError(w, statusFor(e.Kind), e.Kind, e.Error())
}

// decode reads and parses a JSON request body into v.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Invalid("invalid JSON body")
	}
	return nil
}

// caller is the verified identity of the request, zero for anonymous.
func caller(r *http.Request) models.Identity {
	return middleware.GetIdentity(r.Context())
}

// queryBool reads a boolean query parameter; absent or unparsable is nil.
func queryBool(r *http.Request, key string) *bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(key))
	if err != nil {
		return nil
	}
	return &v
}
