package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Elizabethomito/tutormarket/internal/apperr"
	"github.com/Elizabethomito/tutormarket/internal/models"
)

// SyncIdentity handles POST /api/auth/sync
//
// The client calls this once after sign-in. The first call creates the
// marketplace user for the token's subject; later calls refresh name,
// email and avatar. Safe to repeat.
func (s *Server) SyncIdentity(w http.ResponseWriter, r *http.Request) {
	user, err := s.Market.SyncIdentity(r.Context(), caller(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, user)
}

// Me handles GET /api/me. Anonymous or not-yet-synced callers get null.
func (s *Server) Me(w http.ResponseWriter, r *http.Request) {
	user, err := s.Market.CurrentUser(r.Context(), caller(r))
	if errors.Is(err, apperr.ErrUnauthenticated) {
		respond(w, http.StatusOK, nil)
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, user)
}

// UpdateProfile handles PATCH /api/me
func (s *Server) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateProfileRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	user, err := s.Market.UpdateProfile(r.Context(), caller(r), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, user)
}

// GetUser handles GET /api/users/{id}
func (s *Server) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.Market.GetUser(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, user)
}

// ListReviewsForUser handles GET /api/users/{id}/reviews
func (s *Server) ListReviewsForUser(w http.ResponseWriter, r *http.Request) {
	reviews, err := s.Market.ListReviewsForUser(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, reviews)
}

// SubmitReview handles POST /api/tickets/{id}/reviews
func (s *Server) SubmitReview(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitReviewRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	req.TicketID = chi.URLParam(r, "id")
	review, err := s.Market.SubmitReview(r.Context(), caller(r), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusCreated, review)
}
