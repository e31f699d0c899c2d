package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Elizabethomito/tutormarket/internal/apperr"
	"github.com/Elizabethomito/tutormarket/internal/live"
)

// Live handles GET /api/live?topic=tickets&topic=ticket:<id>
//
// LEARNING NOTE — live queries over one socket
// The browser opens a single websocket and names the topics it is
// rendering. Frames only say "ticket X changed"; the client then re-runs
// its normal GET, which goes through the usual authorisation checks. A
// signed-in caller is always subscribed to their own user:<id> topic
// (notifications, inbox, profile). Other users' topics are refused.
func (s *Server) Live(w http.ResponseWriter, r *http.Request) {
	var topics []string
	me, err := s.Market.CurrentUser(r.Context(), caller(r))
	switch {
	case err == nil:
		topics = append(topics, live.UserTopic(me.ID))
	case errors.Is(err, apperr.ErrUnauthenticated):
	default:
		s.fail(w, r, err)
		return
	}

	for _, t := range r.URL.Query()["topic"] {
		t = strings.TrimSpace(t)
		if me != nil && t == live.UserTopic(me.ID) {
			continue
		}
		if !publicTopic(t) {
			respondError(w, http.StatusBadRequest, apperr.KindInvalid, "unknown or private topic: "+t)
			return
		}
		topics = append(topics, t)
	}
	if len(topics) == 0 {
		respondError(w, http.StatusBadRequest, apperr.KindInvalid, "no topics to follow")
		return
	}

	s.Hub.ServeWS(s.Upgrader, w, r, topics)
}

func publicTopic(t string) bool {
	switch {
	case t == live.TicketsTopic, t == live.PresenceTopic:
		return true
	case strings.HasPrefix(t, "ticket:"), strings.HasPrefix(t, "conversation:"):
		_, id, _ := strings.Cut(t, ":")
		return id != ""
	}
	return false
}
