// Package api exposes a classification session over HTTP and pushes its
// display updates to browsers over a WebSocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pbaille/newschat/internal/session"
	"github.com/pbaille/newschat/internal/sidebar"
)

const maxBodyBytes = 1 << 20

// Server handles HTTP requests for the chat session
type Server struct {
	session *session.Session
	hub     *Hub
	origins []string
	log     *slog.Logger

	// ping reports whether the history backend is reachable.
	ping func(context.Context) error
}

// New creates a new API server
func New(s *session.Session, hub *Hub, allowedOrigins []string, log *slog.Logger) *Server {
	return &Server{
		session: s,
		hub:     hub,
		origins: allowedOrigins,
		log:     log.With("component", "api"),
	}
}

// SetHealthCheck makes /health report 503 while ping fails.
func (s *Server) SetHealthCheck(ping func(context.Context) error) {
	s.ping = ping
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(CORS(s.origins))

	r.Get("/health", s.health)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Logger)

		r.Get("/conversation", s.conversation)
		r.Get("/sidebar", s.listSidebar)
		r.Post("/sidebar/{index}/select", s.selectSidebarItem)
		r.Post("/classify", s.classify)
		r.Post("/select", s.selectPast)
		r.Post("/dictate", s.dictate)
		r.Delete("/history", s.clearHistory)
	})

	r.Get("/ws", s.hub.ServeHTTP)

	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string, readTimeout, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: readTimeout,
		IdleTimeout: 120 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	s.hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info("server stopped")
	return nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.ping != nil {
		if err := s.ping(r.Context()); err != nil {
			s.log.Warn("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// TextRequest is the body of classify and select requests
type TextRequest struct {
	Text string `json:"texto"`
}

func (s *Server) conversation(w http.ResponseWriter, r *http.Request) {
	snap := s.session.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"state":    snap.State,
		"messages": snap.Messages,
	})
}

func (s *Server) listSidebar(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"items": s.session.Snapshot().Sidebar,
	})
}

func (s *Server) classify(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeText(w, r)
	if !ok {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := s.session.Submit(r.Context(), req.Text); err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) selectPast(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeText(w, r)
	if !ok {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "texto is required")
		return
	}

	if err := s.session.SelectPast(r.Context(), req.Text); err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) selectSidebarItem(w http.ResponseWriter, r *http.Request) {
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "index must be an integer")
		return
	}

	if err := s.session.ActivateSidebarItem(r.Context(), i); err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) clearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.session.ClearHistory(r.Context()); err != nil {
		s.writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) dictate(w http.ResponseWriter, r *http.Request) {
	text, err := s.session.Dictate(r.Context())
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TextRequest{Text: text})
}

func (s *Server) writeSessionError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "status", status, "error", err)
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrBusy), errors.Is(err, session.ErrStale):
		return http.StatusConflict
	case errors.Is(err, session.ErrRemoteCall):
		return http.StatusBadGateway
	case errors.Is(err, sidebar.ErrNoSuchItem):
		return http.StatusNotFound
	case errors.Is(err, session.ErrUnsupported):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func decodeText(w http.ResponseWriter, r *http.Request) (TextRequest, bool) {
	var req TextRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	return req, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
