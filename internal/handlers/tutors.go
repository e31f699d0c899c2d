package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Elizabethomito/tutormarket/internal/models"
)

// ListTutors handles GET /api/tutors?course_id=&online=true
func (s *Server) ListTutors(w http.ResponseWriter, r *http.Request) {
	f := models.TutorFilter{CourseID: r.URL.Query().Get("course_id")}
	if v := queryBool(r, "online"); v != nil {
		f.OnlineOnly = *v
	}
	tutors, err := s.Market.ListTutors(r.Context(), caller(r), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, tutors)
}

// GetTutorProfile handles GET /api/users/{id}/tutor-profile
func (s *Server) GetTutorProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.Market.GetTutorProfile(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, profile)
}

// UpsertTutorProfile handles PUT /api/tutor/profile
func (s *Server) UpsertTutorProfile(w http.ResponseWriter, r *http.Request) {
	var req models.UpsertTutorProfileRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	profile, err := s.Market.UpsertTutorProfile(r.Context(), caller(r), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, profile)
}

// AddTutorOffering handles POST /api/tutor/offerings
func (s *Server) AddTutorOffering(w http.ResponseWriter, r *http.Request) {
	var req models.AddTutorOfferingRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	offering, err := s.Market.AddTutorOffering(r.Context(), caller(r), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusCreated, offering)
}

// RemoveTutorOffering handles DELETE /api/tutor/offerings/{id}
func (s *Server) RemoveTutorOffering(w http.ResponseWriter, r *http.Request) {
	if err := s.Market.RemoveTutorOffering(r.Context(), caller(r), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetPresence handles POST /api/tutor/presence
func (s *Server) SetPresence(w http.ResponseWriter, r *http.Request) {
	var req models.SetPresenceRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	profile, err := s.Market.SetPresence(r.Context(), caller(r), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, profile)
}

// Heartbeat handles POST /api/tutor/heartbeat
//
// The web client pings this every few minutes while a tutor has the app
// open. Without it the idle reaper takes them offline after the cutoff.
func (s *Server) Heartbeat(w http.ResponseWriter, r *http.Request) {
	if err := s.Market.Heartbeat(r.Context(), caller(r)); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
