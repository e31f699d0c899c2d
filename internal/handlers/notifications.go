package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Elizabethomito/tutormarket/internal/models"
)

// ListNotifications handles GET /api/notifications?unread=true
func (s *Server) ListNotifications(w http.ResponseWriter, r *http.Request) {
	unreadOnly := false
	if v := queryBool(r, "unread"); v != nil {
		unreadOnly = *v
	}
	notes, err := s.Market.ListNotifications(r.Context(), caller(r), unreadOnly)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, notes)
}

// UnreadNotificationCount handles GET /api/notifications/unread-count
func (s *Server) UnreadNotificationCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.Market.UnreadNotificationCount(r.Context(), caller(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, models.CountResponse{Count: n})
}

// MarkNotificationRead handles POST /api/notifications/{id}/read
func (s *Server) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	if err := s.Market.MarkNotificationRead(r.Context(), caller(r), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkAllNotificationsRead handles POST /api/notifications/read-all
func (s *Server) MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	n, err := s.Market.MarkAllNotificationsRead(r.Context(), caller(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, models.CountResponse{Count: n})
}
