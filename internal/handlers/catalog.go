package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Elizabethomito/tutormarket/internal/models"
)

// ListDepartments handles GET /api/departments
func (s *Server) ListDepartments(w http.ResponseWriter, r *http.Request) {
	depts, err := s.Market.ListDepartments(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, depts)
}

// ListCourses handles GET /api/courses?department_id=&search=
func (s *Server) ListCourses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	courses, err := s.Market.ListCourses(r.Context(), q.Get("department_id"), q.Get("search"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, courses)
}

// GetCourse handles GET /api/courses/{id}
func (s *Server) GetCourse(w http.ResponseWriter, r *http.Request) {
	course, err := s.Market.GetCourse(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, course)
}

// CreateDepartment handles POST /api/departments  (admin only)
func (s *Server) CreateDepartment(w http.ResponseWriter, r *http.Request) {
	var req models.CreateDepartmentRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	dept, err := s.Market.CreateDepartment(r.Context(), caller(r), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusCreated, dept)
}

// CreateCourse handles POST /api/courses  (admin only)
func (s *Server) CreateCourse(w http.ResponseWriter, r *http.Request) {
	var req models.CreateCourseRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	course, err := s.Market.CreateCourse(r.Context(), caller(r), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusCreated, course)
}
