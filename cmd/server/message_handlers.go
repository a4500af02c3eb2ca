package server

import (
	"fmt"
	"net/http"

	"example.com/socialwall/internal/models"
)

// listMessagesHandler returns ?box=inbox (default) or ?box=sent.
// Reading the inbox marks its unread messages read.
func (s *Server) listMessagesHandler(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	var (
		msgs []models.Message
		err  error
	)
	switch box := r.URL.Query().Get("box"); box {
	case "", "inbox":
		msgs, err = s.messaging.Inbox(r.Context(), user)
	case "sent":
		msgs, err = s.messaging.Sent(r.Context(), user)
	default:
		err = fmt.Errorf("unknown box %q: %w", box, models.ErrValidation)
	}
	if err != nil {
		writeError(w, "http/messages", err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) unreadHandler(w http.ResponseWriter, r *http.Request) {
	n, err := s.messaging.UnreadCount(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, "http/messages", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread": n})
}
