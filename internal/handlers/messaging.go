package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Elizabethomito/tutormarket/internal/models"
)

type conversationRequest struct {
	UserID string `json:"user_id"`
}

// GetOrCreateConversation handles POST /api/conversations
//
// Opens the thread with another user. Only allowed once the two have
// a deal (an accepted offer either way); otherwise 403 with code
// "messaging_restricted" so the UI can explain why.
func (s *Server) GetOrCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req conversationRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.Market.GetOrCreateConversation(r.Context(), caller(r), req.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	respond(w, status, res)
}

// ListConversations handles GET /api/conversations
func (s *Server) ListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := s.Market.ListConversations(r.Context(), caller(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, convs)
}

// ListMessages handles GET /api/conversations/{id}/messages
func (s *Server) ListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.Market.ListMessages(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, msgs)
}

// SendMessage handles POST /api/conversations/{id}/messages
func (s *Server) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req models.SendMessageRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	req.ConversationID = chi.URLParam(r, "id")
	msg, err := s.Market.SendMessage(r.Context(), caller(r), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusCreated, msg)
}

// MarkConversationRead handles POST /api/conversations/{id}/read
func (s *Server) MarkConversationRead(w http.ResponseWriter, r *http.Request) {
	n, err := s.Market.MarkRead(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, models.CountResponse{Count: n})
}

// UnreadMessageCount handles GET /api/messages/unread-count
func (s *Server) UnreadMessageCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.Market.UnreadMessageCount(r.Context(), caller(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, models.CountResponse{Count: n})
}
