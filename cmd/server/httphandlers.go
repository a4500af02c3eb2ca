package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"example.com/socialwall/internal/middleware"
	"example.com/socialwall/internal/models"
	"example.com/socialwall/internal/onboarding"
)

const maxJSONBody = 1 << 20

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeErrorMsg(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps a service error to a status. Backend details stay in the log.
func writeError(w http.ResponseWriter, module string, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		logg.Info(module, "Rejected request: "+err.Error())
		writeErrorMsg(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrNotFound):
		writeErrorMsg(w, http.StatusNotFound, "not found")
	case errors.Is(err, models.ErrExists):
		writeErrorMsg(w, http.StatusConflict, "already exists")
	default:
		logg.Error(module, "Request failed", err)
		writeErrorMsg(w, http.StatusInternalServerError, "backend error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, module string, dst any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(dst); err != nil {
		logg.Info(module, "Invalid request body: "+err.Error())
		writeErrorMsg(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// currentUser is set by the identity middleware on every protected route.
func currentUser(r *http.Request) string {
	name, _ := middleware.UserFromContext(r.Context())
	return name
}

// --- HTTP Handlers ---

// healthHandler reports whether the table store answers.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		logg.Error("http/healthz", "Store ping failed", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "down"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// sessionHandler enters a name and returns a token for it.
// Expects JSON body: {"user": "alice"}
func (s *Server) sessionHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		User string `json:"user"`
	}
	if !decodeJSON(w, r, "http/session", &body) {
		return
	}

	entry, err := s.onboarding.Enter(r.Context(), body.User)
	if err != nil {
		writeError(w, "http/session", err)
		return
	}
	token, err := s.identity.Mint(entry.User)
	if err != nil {
		logg.Error("http/session", "Failed to sign token", err)
		writeErrorMsg(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	writeJSON(w, http.StatusOK, struct {
		onboarding.Entry
		Token string `json:"token"`
	}{entry, token})
}

// getInfoHandler returns the current user's info form, 404 if never filled.
func (s *Server) getInfoHandler(w http.ResponseWriter, r *http.Request) {
	info, err := s.onboarding.Info(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, "http/users", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// saveInfoHandler stores the info form once; later calls return the first row.
// Expects JSON body: {"birthdate": "1990-01-31", "location": "...", "networks": "..."}
func (s *Server) saveInfoHandler(w http.ResponseWriter, r *http.Request) {
	var form onboarding.InfoForm
	if !decodeJSON(w, r, "http/users", &form) {
		return
	}
	info, err := s.onboarding.SaveInfo(r.Context(), currentUser(r), form)
	if err != nil {
		writeError(w, "http/users", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// listPostsHandler returns the whole wall, newest first.
func (s *Server) listPostsHandler(w http.ResponseWriter, r *http.Request) {
	posts, err := s.wall.Feed(r.Context())
	if err != nil {
		writeError(w, "http/posts", err)
		return
	}
	if posts == nil {
		posts = []models.Post{}
	}
	writeJSON(w, http.StatusOK, posts)
}

// createPostHandler appends a post by the current user.
// Expects JSON body: {"message": "hello"}
func (s *Server) createPostHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message string `json:"message"`
	}
	if !decodeJSON(w, r, "http/posts", &body) {
		return
	}

	post, err := s.wall.Compose(r.Context(), currentUser(r), body.Message)
	if err != nil {
		writeError(w, "http/posts", err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

// postCountHandler returns how many posts a user has; ?author= defaults to the current user.
func (s *Server) postCountHandler(w http.ResponseWriter, r *http.Request) {
	author := r.URL.Query().Get("author")
	if author == "" {
		author = currentUser(r)
	}
	n, err := s.wall.PostCount(r.Context(), author)
	if err != nil {
		writeError(w, "http/posts", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": author, "posts": n})
}
