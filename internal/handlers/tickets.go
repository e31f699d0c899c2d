package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Elizabethomito/tutormarket/internal/models"
)

// CreateTicket handles POST /api/tickets
func (s *Server) CreateTicket(w http.ResponseWriter, r *http.Request) {
	var req models.CreateTicketRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	ticket, err := s.Market.CreateTicket(r.Context(), caller(r), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusCreated, ticket)
}

// GetTicket handles GET /api/tickets/{id}
func (s *Server) GetTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := s.Market.GetTicket(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, ticket)
}

// ListOpenTickets handles GET /api/tickets?search=&course_id=&category=&urgency=
//
// This is the tutor-facing feed; the caller's own tickets are left out.
func (s *Server) ListOpenTickets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tickets, err := s.Market.ListOpenTickets(r.Context(), caller(r), models.TicketFilter{
		Search:   q.Get("search"),
		CourseID: q.Get("course_id"),
		Category: q.Get("category"),
		Urgency:  models.Urgency(q.Get("urgency")),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, tickets)
}

// ListMyTickets handles GET /api/tickets/mine
func (s *Server) ListMyTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := s.Market.ListMyTickets(r.Context(), caller(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, tickets)
}

// ListAssignedTickets handles GET /api/tickets/assigned
func (s *Server) ListAssignedTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := s.Market.ListAssignedTickets(r.Context(), caller(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, tickets)
}

// CompleteTicket handles POST /api/tickets/{id}/complete  (ticket owner only)
func (s *Server) CompleteTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := s.Market.CompleteTicket(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, ticket)
}
