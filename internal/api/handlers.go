package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/wayfinder/internal/db"
	"github.com/banshee-data/wayfinder/internal/httputil"
	"github.com/banshee-data/wayfinder/internal/navigation"
	"github.com/banshee-data/wayfinder/internal/route"
)

// callTimeout bounds how long a request waits for the navigation worker.
const callTimeout = 5 * time.Second

// engineError maps navigation errors onto HTTP responses.
func engineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, navigation.ErrNotRunning), errors.Is(err, navigation.ErrEngineStopped):
		httputil.Conflict(w, err.Error())
	case errors.Is(err, navigation.ErrInvalidRoute):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "navigation worker busy")
	default:
		httputil.InternalServerError(w, err.Error())
	}
}

func (s *Server) showProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	p, ok := s.engine.Progress()
	if !ok {
		httputil.NotFound(w, "no progress yet")
		return
	}
	httputil.WriteJSONOK(w, NewProgressView(p))
}

func (s *Server) showHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.History())
}

func (s *Server) showSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), callTimeout)
	defer cancel()
	st, err := s.engine.SessionState(ctx)
	if err != nil {
		engineError(w, err)
		return
	}
	httputil.WriteJSONOK(w, NewSessionView(st))
}

func (s *Server) listMilestones(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	ms := s.engine.Milestones()
	out := make([]MilestoneView, 0, len(ms))
	for _, m := range ms {
		out = append(out, MilestoneView{ID: m.ID, Enabled: !m.Disabled})
	}
	httputil.WriteJSONOK(w, out)
}

// toggleMilestone handles PUT /api/milestones/{id} with {"enabled": bool}.
func (s *Server) toggleMilestone(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		httputil.MethodNotAllowed(w)
		return
	}
	id, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/api/milestones/"))
	if err != nil {
		httputil.BadRequest(w, "invalid milestone id")
		return
	}
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := httputil.DecodeJSON(w, r, &body); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if !s.engine.SetMilestoneEnabled(id, body.Enabled) {
		httputil.NotFound(w, fmt.Sprintf("milestone %d not found", id))
		return
	}
	httputil.WriteJSONOK(w, MilestoneView{ID: id, Enabled: body.Enabled})
}

// setRoute accepts a directions document. The first route starts
// navigation, or replaces the active route when navigation is running.
func (s *Server) setRoute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	rt, err := route.DecodeFirst(http.MaxBytesReader(w, r.Body, httputil.MaxBodyBytes))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	status := http.StatusCreated
	if r.URL.Query().Get("restart") != "true" && s.engine.Running() {
		err = s.engine.UpdateRoute(rt)
		status = http.StatusOK
	} else {
		err = s.engine.Start(rt)
	}
	if err != nil {
		engineError(w, err)
		return
	}
	httputil.WriteJSON(w, status, map[string]interface{}{
		"route_id": rt.ID,
		"distance": rt.Length(),
		"legs":     len(rt.Legs),
	})
}

func (s *Server) enqueueLocation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var fix route.Fix
	if err := httputil.DecodeJSON(w, r, &fix); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if !fix.Valid() {
		httputil.BadRequest(w, "fix has no usable position")
		return
	}
	if fix.Time.IsZero() {
		fix.Time = time.Now().UTC()
	}
	if err := s.engine.Enqueue(fix); err != nil {
		engineError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]int{"pending": s.engine.Pending()})
}

func (s *Server) createFeedback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req FeedbackRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if req.Type == "" {
		httputil.BadRequest(w, "missing feedback type")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), callTimeout)
	defer cancel()
	id, err := s.engine.RecordFeedback(ctx, req.Type, req.Description, req.Source)
	if err != nil {
		engineError(w, err)
		return
	}
	if id == "" {
		httputil.Conflict(w, "no active session")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FeedbackResponse{ID: id})
}

// changeFeedback handles PUT and DELETE on /api/feedback/{id} while the
// event is still queued.
func (s *Server) changeFeedback(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/feedback/")
	if id == "" {
		httputil.BadRequest(w, "missing feedback id")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), callTimeout)
	defer cancel()

	var (
		ok  bool
		err error
	)
	switch r.Method {
	case http.MethodPut:
		var req FeedbackRequest
		if err := httputil.DecodeJSON(w, r, &req); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		ok, err = s.engine.UpdateFeedback(ctx, id, req.Type, req.Description, req.Screenshot)
	case http.MethodDelete:
		ok, err = s.engine.CancelFeedback(ctx, id)
	default:
		httputil.MethodNotAllowed(w)
		return
	}
	if err != nil {
		engineError(w, err)
		return
	}
	if !ok {
		httputil.NotFound(w, fmt.Sprintf("feedback %s is not pending", id))
		return
	}
	if r.Method == http.MethodDelete {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	httputil.WriteJSONOK(w, FeedbackResponse{ID: id})
}

func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.store == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "telemetry store disabled")
		return false
	}
	return true
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if !s.requireStore(w) {
		return
	}
	sessions, err := s.store.Sessions()
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	out := make([]SessionSummaryView, 0, len(sessions))
	for _, sum := range sessions {
		out = append(out, SessionSummaryView(sum))
	}
	httputil.WriteJSONOK(w, out)
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if !s.requireStore(w) {
		return
	}
	events, err := s.store.Events(r.URL.Query().Get("session_id"))
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	out := make([]EventView, 0, len(events))
	for _, e := range events {
		out = append(out, NewEventView(e))
	}
	httputil.WriteJSONOK(w, out)
}

func (s *Server) eventByID(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/events/")
	if id == "" {
		httputil.BadRequest(w, "missing event id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		e, err := s.store.Event(id)
		if errors.Is(err, db.ErrNotFound) {
			httputil.NotFound(w, err.Error())
			return
		}
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, NewEventView(e))
	case http.MethodDelete:
		err := s.store.DeleteEvent(id)
		if errors.Is(err, db.ErrNotFound) {
			httputil.NotFound(w, err.Error())
			return
		}
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) showGPS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	view := GPSView{Enabled: s.source != nil}
	if s.source != nil {
		view.Stats = s.source.Stats()
		if last, ok := s.source.Last(); ok {
			view.Last = &last
		}
	}
	httputil.WriteJSONOK(w, view)
}
