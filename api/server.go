// Package api exposes the recording engine over HTTP, WebSocket and MCP.
// Routes map one to one onto engine operations; the WebSocket hub relays
// the engine's event stream to per-session subscribers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/recwatch/action"
	"github.com/hazyhaar/recwatch/recorder"
	"github.com/hazyhaar/recwatch/selector"
	"github.com/hazyhaar/recwatch/store"
)

// History reads back persisted sessions for requests the live registry
// can no longer answer.
type History interface {
	ReadSessionRecord(ctx context.Context, sessionID string) (store.SessionRecord, error)
	ListSessionRecords(ctx context.Context, limit int) ([]store.SessionRecord, error)
}

// ServerConfig assembles the control surface. History and Hub may be
// nil; the corresponding routes then answer 404 / are not mounted.
type ServerConfig struct {
	Recorder *recorder.Recorder
	History  History
	Hub      *Hub
	Logger   *slog.Logger
	// DefaultHeadless applies when a start request does not say.
	DefaultHeadless bool
}

// Server wires the engine into the HTTP control surface.
type Server struct {
	rec      *recorder.Recorder
	history  History
	hub      *Hub
	logger   *slog.Logger
	headless bool
}

// NewServer builds the control surface from cfg.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{
		rec:      cfg.Recorder,
		history:  cfg.History,
		hub:      cfg.Hub,
		logger:   cfg.Logger,
		headless: cfg.DefaultHeadless,
	}
}

// Routes returns the full router, middleware included.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api/recorder", func(r chi.Router) {
		r.Post("/start", s.handleStart)
		r.Get("/sessions", s.handleSessions)
		r.Get("/history", s.handleHistory)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.handleSession)
			r.Post("/stop", s.handleStop)
			r.Post("/pause", s.handlePause)
			r.Post("/resume", s.handleResume)
			r.Post("/assertion", s.handleAssertion)
			r.Post("/screenshot", s.handleScreenshot)
			r.Post("/regenerate", s.handleRegenerate)
			r.Get("/elements", s.handleElements)
			r.Delete("/actions/{actionID}", s.handleDeleteAction)
			r.Patch("/actions/{actionID}", s.handleUpdateAction)
		})
	})
	if s.hub != nil {
		r.Get("/ws/recorder/{sessionID}", s.hub.handleUpgrade)
	}
	return r
}

type startRequest struct {
	URL     string `json:"url"`
	Options struct {
		BrowserType string             `json:"browserType"`
		Viewport    *recorder.Viewport `json:"viewport"`
		Headless    *bool              `json:"headless"`
	} `json:"options"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	headless := s.headless
	if req.Options.Headless != nil {
		headless = *req.Options.Headless
	}
	view, err := s.rec.Start(r.Context(), "", req.URL, recorder.Options{
		BrowserType: req.Options.BrowserType,
		Viewport:    req.Options.Viewport,
		Headless:    headless,
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{"success": true, "session": view})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "sessions": s.rec.Sessions()})
}

// handleSession answers from the live registry first, then falls back to
// the durable record so completed or pre-restart sessions stay readable.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	view, err := s.rec.Session(id)
	if err == nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "session": view})
		return
	}
	if !errors.Is(err, recorder.ErrNotFound) || s.history == nil {
		s.writeEngineError(w, err)
		return
	}
	rec, err := s.history.ReadSessionRecord(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "session": rec})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	res, err := s.rec.Stop(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"actions":       res.Actions,
		"generatedCode": res.GeneratedCode,
	})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := s.rec.Pause(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if err := s.rec.Resume(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleAssertion(w http.ResponseWriter, r *http.Request) {
	var req recorder.Assertion
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	a, err := s.rec.AddAssertion(r.Context(), chi.URLParam(r, "sessionID"), req)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{"success": true, "action": a})
}

func (s *Server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	path, err := s.rec.TakeScreenshot(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "path": path})
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	code, err := s.rec.Generate(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "generatedCode": code})
}

// handleElements inventories the live page's interactable elements with
// suggested selectors, for assertion authoring.
func (s *Server) handleElements(w http.ResponseWriter, r *http.Request) {
	html, err := s.rec.PageContent(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	elements, err := selector.AnalyzeHTML(strings.NewReader(html))
	if err != nil {
		s.logger.Error("page analysis failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "page analysis failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "elements": elements})
}

func (s *Server) handleDeleteAction(w http.ResponseWriter, r *http.Request) {
	err := s.rec.DeleteAction(r.Context(), chi.URLParam(r, "sessionID"), chi.URLParam(r, "actionID"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleUpdateAction(w http.ResponseWriter, r *http.Request) {
	var patch action.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	a, err := s.rec.UpdateAction(r.Context(), chi.URLParam(r, "sessionID"), chi.URLParam(r, "actionID"), patch)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "action": a})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "history not configured")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	sessions, err := s.history.ListSessionRecords(r.Context(), limit)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if sessions == nil {
		sessions = []store.SessionRecord{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "sessions": sessions})
}

// writeEngineError maps the engine's error kinds onto HTTP statuses.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, recorder.ErrValidation):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, recorder.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}
