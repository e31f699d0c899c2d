package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Elizabethomito/tutormarket/internal/models"
)

// ListStudyGroups handles GET /api/study-groups?course_id=
func (s *Server) ListStudyGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.Market.ListStudyGroups(r.Context(), caller(r), r.URL.Query().Get("course_id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, groups)
}

// CreateStudyGroup handles POST /api/study-groups
func (s *Server) CreateStudyGroup(w http.ResponseWriter, r *http.Request) {
	var req models.CreateStudyGroupRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	group, err := s.Market.CreateStudyGroup(r.Context(), caller(r), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusCreated, group)
}

// JoinStudyGroup handles POST /api/study-groups/{id}/join
func (s *Server) JoinStudyGroup(w http.ResponseWriter, r *http.Request) {
	group, err := s.Market.JoinStudyGroup(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, group)
}

// LeaveStudyGroup handles POST /api/study-groups/{id}/leave
func (s *Server) LeaveStudyGroup(w http.ResponseWriter, r *http.Request) {
	if err := s.Market.LeaveStudyGroup(r.Context(), caller(r), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
