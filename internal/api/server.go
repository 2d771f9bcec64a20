package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"decide-ai/internal/audit"
	"decide-ai/internal/config"
	"decide-ai/internal/flow"
	"decide-ai/internal/models"
)

const (
	maxBodyBytes        = 64 << 10
	defaultDiagnostics  = 50
	maxDiagnosticsLimit = 500
	defaultSessionTTL   = 2 * time.Hour
)

// CredentialInbox receives keys the user submits over HTTP.
type CredentialInbox interface {
	Pending() bool
	Provide(key string) error
}

// DiagnosticsLog lists recorded backend calls.
type DiagnosticsLog interface {
	Recent(ctx context.Context, limit int) ([]audit.Entry, error)
}

type Server struct {
	router      chi.Router
	sessions    *SessionManager
	credentials CredentialInbox
	diagnostics DiagnosticsLog
	backend     string
}

// Options wires the optional collaborators of a Server.
type Options struct {
	Backend     string
	Credentials CredentialInbox
	Diagnostics DiagnosticsLog
	SessionTTL  time.Duration
}

// SessionView is the JSON shape of a session snapshot.
type SessionView struct {
	ID                string           `json:"sessionId"`
	State             models.FlowState `json:"state"`
	CanAdvance        bool             `json:"canAdvance"`
	CredentialPending bool             `json:"credentialPending"`
}

func NewServer(newFlow func() *flow.Controller, opts Options) *Server {
	if opts.SessionTTL == 0 {
		opts.SessionTTL = defaultSessionTTL
	}
	s := &Server{
		router:      chi.NewRouter(),
		sessions:    NewSessionManager(newFlow, opts.SessionTTL),
		credentials: opts.Credentials,
		diagnostics: opts.Diagnostics,
		backend:     opts.Backend,
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/credential", s.handleCredential)
		r.Get("/diagnostics", s.handleDiagnostics)

		r.Post("/sessions", s.handleCreateSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDeleteSession)
			r.Post("/topic", s.handleSubmitTopic)
			r.Post("/answer", s.handleAnswer)
			r.Post("/next", s.handleNext)
			r.Post("/back", s.handleBack)
			r.Post("/reset", s.handleReset)
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"backend":  s.backend,
		"sessions": s.sessions.Len(),
	})
}

func (s *Server) handleCredential(w http.ResponseWriter, r *http.Request) {
	if s.credentials == nil {
		writeError(w, http.StatusNotFound, "credential submission is not enabled")
		return
	}

	var body struct {
		APIKey string `json:"apiKey"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.credentials.Provide(body.APIKey); err != nil {
		writeError(w, http.StatusBadRequest, "apiKey must not be blank")
		return
	}

	config.WithContext(r.Context()).Info("api key provided by client")
	writeJSON(w, http.StatusOK, map[string]any{"credentialPending": false})
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	if s.diagnostics == nil {
		writeError(w, http.StatusNotFound, "diagnostics are disabled")
		return
	}

	limit := defaultDiagnostics
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxDiagnosticsLimit)
	}

	entries, err := s.diagnostics.Recent(r.Context(), limit)
	if err != nil {
		config.WithContext(r.Context()).WithError(err).Error("list diagnostics")
		writeError(w, http.StatusInternalServerError, "failed to load diagnostics")
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	session := s.sessions.Create()
	config.WithContext(r.Context()).WithField("session_id", session.ID).Info("session created")
	writeJSON(w, http.StatusCreated, s.view(session))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.view(session))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.sessions.Delete(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSubmitTopic(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}

	var body struct {
		Topic string `json:"topic"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := session.Controller.SubmitTopic(r.Context(), body.Topic); err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.view(session))
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}

	var body struct {
		Option string `json:"option"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := session.Controller.SelectOption(body.Option); err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(session))
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}

	task, err := session.Controller.Advance(r.Context())
	if err != nil {
		writeFlowError(w, err)
		return
	}
	status := http.StatusOK
	if task != nil {
		status = http.StatusAccepted
	}
	writeJSON(w, status, s.view(session))
}

func (s *Server) handleBack(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := session.Controller.Back(); err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(session))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	session.Controller.Reset()
	writeJSON(w, http.StatusOK, s.view(session))
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	session, ok := s.sessions.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return session, true
}

func (s *Server) view(session *Session) SessionView {
	view := SessionView{
		ID:         session.ID,
		State:      session.Controller.State(),
		CanAdvance: session.Controller.CanAdvance(),
	}
	if s.credentials != nil {
		view.CredentialPending = s.credentials.Pending()
	}
	return view
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.New("invalid JSON payload")
	}
	return nil
}

func writeFlowError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, flow.ErrBlankTopic), errors.Is(err, flow.ErrUnknownOption):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, flow.ErrBusy), errors.Is(err, flow.ErrInvalidTransition), errors.Is(err, flow.ErrNotAnswered):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
