// ABOUTME: HTTP surface of the session registry
// ABOUTME: Bearer-token auth middleware plus session and thread endpoints

package registry

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/skeinworks/skein/internal/identity"
)

// Ack is the success payload for registry mutations. Field names match
// what the chat client's sync layer expects.
type Ack struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	UserID   string `json:"user_id,omitempty"`
	ThreadID string `json:"thread_id,omitempty"`
}

// Server serves the registry API.
type Server struct {
	store    Store
	verifier identity.TokenVerifier
	logger   *slog.Logger
	router   chi.Router
}

// NewServer wires the registry routes onto a chi router.
func NewServer(store Store, verifier identity.TokenVerifier, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		store:    store,
		verifier: verifier,
		logger:   logger.With("component", "registry"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/api/redis", func(r chi.Router) {
		r.Use(s.requireSessionToken)
		r.Post("/session/create", s.handleCreateSession)
		r.Post("/thread/{threadID}", s.handleLinkThread)
		r.Get("/thread/{threadID}", s.handleGetThread)
	})

	s.router = r
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// requireSessionToken authenticates the bearer token and attaches the
// resolved identity to the request context.
func (s *Server) requireSessionToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeDetail(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		userID, err := s.verifier.Verify(token)
		if err != nil {
			if errors.Is(err, identity.ErrExpiredToken) {
				writeDetail(w, http.StatusUnauthorized, "session token expired")
				return
			}
			s.logger.Warn("token verification failed", "error", err)
			writeDetail(w, http.StatusUnauthorized, "invalid session token")
			return
		}

		ctx := identity.WithContext(r.Context(), identity.Context{UserID: userID, Ready: true})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id := identity.MustFromContext(r.Context())

	if err := s.store.CreateSession(r.Context(), id.UserID); err != nil {
		s.logger.Error("session create failed", "user_id", id.UserID, "error", err)
		writeDetail(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	s.logger.Info("session created", "user_id", id.UserID)
	writeJSON(w, http.StatusOK, Ack{
		Success: true,
		Message: "Session created",
		UserID:  id.UserID,
	})
}

func (s *Server) handleLinkThread(w http.ResponseWriter, r *http.Request) {
	id := identity.MustFromContext(r.Context())
	threadID := chi.URLParam(r, "threadID")
	if threadID == "" {
		writeDetail(w, http.StatusBadRequest, "thread id required")
		return
	}

	if err := s.store.LinkThread(r.Context(), threadID, id.UserID); err != nil {
		s.logger.Error("thread link failed",
			"thread_id", threadID,
			"user_id", id.UserID,
			"error", err)
		writeDetail(w, http.StatusInternalServerError, "failed to link thread")
		return
	}

	s.logger.Info("thread linked", "thread_id", threadID, "user_id", id.UserID)
	writeJSON(w, http.StatusOK, Ack{
		Success:  true,
		Message:  "Thread linked to session",
		UserID:   id.UserID,
		ThreadID: threadID,
	})
}

func (s *Server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")

	owner, err := s.store.ThreadOwner(r.Context(), threadID)
	if errors.Is(err, ErrThreadNotFound) {
		writeDetail(w, http.StatusNotFound, "thread not found")
		return
	}
	if err != nil {
		s.logger.Error("thread lookup failed", "thread_id", threadID, "error", err)
		writeDetail(w, http.StatusInternalServerError, "failed to look up thread")
		return
	}

	writeJSON(w, http.StatusOK, Ack{
		Success:  true,
		Message:  "Thread found",
		UserID:   owner,
		ThreadID: threadID,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDetail writes an error body shaped {"detail": ...}, which is
// what the chat client's sync layer parses on non-2xx responses.
func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
