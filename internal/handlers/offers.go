package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Elizabethomito/tutormarket/internal/models"
)

// SubmitOffer handles POST /api/tickets/{id}/offers
func (s *Server) SubmitOffer(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitOfferRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	req.TicketID = chi.URLParam(r, "id")
	offer, err := s.Market.SubmitOffer(r.Context(), caller(r), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusCreated, offer)
}

// AcceptOffer handles POST /api/tickets/{id}/offers/{offerID}/accept
//
// LEARNING NOTE — one request, one transaction
// Accepting flips the offer, rejects every sibling, assigns the ticket
// and opens the conversation. The service does all four inside a single
// database transaction, so a crash halfway through leaves nothing
// behind and two students' browsers racing on the same ticket cannot
// both win.
func (s *Server) AcceptOffer(w http.ResponseWriter, r *http.Request) {
	res, err := s.Market.AcceptOffer(r.Context(), caller(r), models.AcceptOfferRequest{
		TicketID: chi.URLParam(r, "id"),
		OfferID:  chi.URLParam(r, "offerID"),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, res)
}

// ListOffersForTicket handles GET /api/tickets/{id}/offers?sort=price|rating|newest|best
func (s *Server) ListOffersForTicket(w http.ResponseWriter, r *http.Request) {
	sortBy := models.OfferSort(r.URL.Query().Get("sort"))
	offers, err := s.Market.ListOffersForTicket(r.Context(), caller(r), chi.URLParam(r, "id"), sortBy)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, offers)
}

// ListMyOffers handles GET /api/offers/mine
func (s *Server) ListMyOffers(w http.ResponseWriter, r *http.Request) {
	offers, err := s.Market.ListMyOffers(r.Context(), caller(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, offers)
}
