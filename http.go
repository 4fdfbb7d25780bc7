package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/turbekoff/calcbot/pkg/calculator"
)

const maxBodyBytes = 4 << 10

// KeysRequest is the body of POST /api/sessions/{id}/keys.
type KeysRequest struct {
	Keys []string `json:"keys" validate:"required,min=1,max=256,dive,required"`
}

// SessionResponse describes one calculator.
type SessionResponse struct {
	ID string `json:"id"`
	calculator.UiState
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// Server exposes calculators over JSON. Each session is addressed by a
// random UUID and expires like a bot session.
type Server struct {
	sessions *Memcached[*calculator.Session]
	validate *validator.Validate
	logger   *slog.Logger
	srv      *http.Server
}

func NewServer(config *Config, logger *slog.Logger) *Server {
	s := &Server{
		sessions: NewMemcached[*calculator.Session](
			config.MemcachedTTLTimeout,
			config.MemcachedCleanupTimeout,
		),
		validate: validator.New(),
		logger:   logger.With("component", "http"),
	}
	s.srv = &http.Server{
		Addr:              config.HTTPAddr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: config.HTTPReadTimeout,
	}
	return s
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequest)

	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", s.createSession)
		r.Get("/{id}", s.getSession)
		r.Post("/{id}/keys", s.pressKeys)
		r.Delete("/{id}", s.deleteSession)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			s.logger.Error("failed to write health check response", "error", err)
		}
	})
	return r
}

func (s *Server) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) Run() error {
	s.logger.Info("listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen %s: %w", s.srv.Addr, err)
	}
	return ErrClosed
}

func (s *Server) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	if cerr := s.sessions.Close(); cerr != nil && !errors.Is(cerr, ErrMemcachedClosed) {
		err = errors.Join(err, cerr)
	}
	return err
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	id := uuid.New()
	session := calculator.NewSession()
	if !s.sessions.Set(id.String(), session) {
		s.respondWithError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}

	s.respondWithJSON(w, http.StatusCreated, SessionResponse{
		ID:      id.String(),
		UiState: session.View(),
	})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id, session, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.respondWithJSON(w, http.StatusOK, SessionResponse{ID: id, UiState: session.View()})
}

func (s *Server) pressKeys(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}

	var req KeysRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := s.validate.Struct(req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	events, err := calculator.ParseKeys(req.Keys)
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	var view calculator.UiState
	_, ok = s.sessions.Update(id, func(session *calculator.Session) *calculator.Session {
		view = session.Send(events...)
		return session
	})
	if !ok {
		s.respondWithError(w, http.StatusNotFound, ErrSessionExpired.Error())
		return
	}

	s.logger.Debug("keys applied",
		"session", id,
		"keys", strings.Join(req.Keys, " "),
		"display", view.DisplayValue,
	)
	s.respondWithJSON(w, http.StatusOK, SessionResponse{ID: id, UiState: view})
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	id, _, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.sessions.Delete(id)
	w.WriteHeader(http.StatusNoContent)
}

// pathID parses the {id} path parameter, writing the error response itself
// when it is malformed.
func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, "id has invalid format")
		return "", false
	}
	return id.String(), true
}

// lookup resolves the {id} path parameter to a live session, writing the
// error response itself when the id is malformed or the session is gone.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (string, *calculator.Session, bool) {
	id, ok := s.pathID(w, r)
	if !ok {
		return "", nil, false
	}

	session, ok := s.sessions.Get(id)
	if !ok {
		s.respondWithError(w, http.StatusNotFound, ErrSessionExpired.Error())
		return "", nil, false
	}
	return id, session, true
}

func (s *Server) respondWithJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) respondWithError(w http.ResponseWriter, status int, message string) {
	s.respondWithJSON(w, status, ErrorResponse{Error: message})
}
