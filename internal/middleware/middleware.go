// Package middleware provides HTTP middleware for the tutormarket server.
//
// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE — what is middleware?
// ────────────────────────────────────────────────────────────────────
// In HTTP servers, "middleware" is a function that wraps a handler to
// add behaviour before and/or after it runs:
//
//   func MyMiddleware(next http.Handler) http.Handler {
//       return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
//           // do something before
//           next.ServeHTTP(w, r)  // call the real handler
//           // do something after
//       })
//   }
//
// chi's r.Use chains them in order: the first Use runs outermost.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Elizabethomito/tutormarket/internal/auth"
	"github.com/Elizabethomito/tutormarket/internal/metrics"
	"github.com/Elizabethomito/tutormarket/internal/models"
)

// contextKey is a private type for context keys in this package.
type contextKey string

// ContextIdentity holds the caller's verified models.Identity. It is
// absent for anonymous requests.
const ContextIdentity contextKey = "identity"

func deny(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + msg + `","code":"` + code + `"}`))
}

// bearer extracts the token from "Authorization: Bearer <token>". Browsers
// cannot set headers on a websocket handshake, so a ?token= query
// parameter is accepted as well.
func bearer(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// Identify verifies an identity token when one is present and stores the
// identity in the request context. Requests without a token pass through
// as anonymous; a token that fails verification is rejected with 401.
func Identify(secret, issuer string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := bearer(r)
			if tokenStr == "" {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := auth.ParseToken(tokenStr, secret, issuer)
			if err != nil {
				deny(w, http.StatusUnauthorized, "unauthenticated", "invalid token")
				return
			}
			ctx := context.WithValue(r.Context(), ContextIdentity, claims.Identity())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireIdentity rejects anonymous requests. Must be used after Identify.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetIdentity(r.Context()).Subject == "" {
			deny(w, http.StatusUnauthorized, "unauthenticated", "sign in required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetIdentity returns the caller's identity, or the zero Identity for an
// anonymous request.
func GetIdentity(ctx context.Context) models.Identity {
	id, _ := ctx.Value(ContextIdentity).(models.Identity)
	return id
}

// WithIdentity returns a copy of ctx carrying id. Tests use it to fake a
// signed-in caller without minting a token.
func WithIdentity(ctx context.Context, id models.Identity) context.Context {
	return context.WithValue(ctx, ContextIdentity, id)
}

// CORS adds CORS headers for the configured web client origin ("*" allows
// any origin).
//
// LEARNING NOTE — what is CORS?
// Browsers enforce the Same-Origin Policy: a page at origin A cannot
// fetch from origin B unless B explicitly allows it via CORS headers.
// The OPTIONS preflight is a browser pre-check; we must reply 204 so
// the real request is allowed to proceed.
func CORS(origin string) func(http.Handler) http.Handler {
	if origin == "" {
		origin = "*"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Expose-Headers", "Retry-After")
			if origin != "*" {
				w.Header().Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// route is the chi pattern that matched, e.g. "/api/tickets/{id}". Using
// the pattern keeps label cardinality bounded.
func route(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// Observe logs every request and records it in m. m may be nil.
func Observe(log *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			took := time.Since(start)
			pattern := route(r)
			m.ObserveHTTP(pattern, r.Method, strconv.Itoa(status), took)

			level := slog.LevelInfo
			if status >= 500 {
				level = slog.LevelError
			}
			log.LogAttrs(r.Context(), level, "request",
				slog.String("method", r.Method),
				slog.String("route", pattern),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("took", took),
				slog.String("request_id", chimw.GetReqID(r.Context())),
			)
		})
	}
}
