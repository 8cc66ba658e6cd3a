package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/akrusz/meditation-pal/internal/observe"
)

// defaultListLimit caps the session listing when the client sends no limit.
const defaultListLimit = 50

type sessionJSON struct {
	ID        string     `json:"id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Exchanges int        `json:"exchanges"`
	Active    bool       `json:"active"`
}

type exchangeJSON struct {
	Role           string    `json:"role"`
	Text           string    `json:"text"`
	Timestamp      time.Time `json:"timestamp"`
	SpeechDuration float64   `json:"speech_duration_seconds,omitempty"`
}

// handleListSessions returns recorded sessions, most recent first.
// GET /api/sessions?limit=N
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httpError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	sessions, err := s.store.List(r.Context(), limit)
	if err != nil {
		observe.Logger(r.Context()).Error("list sessions failed", "err", err)
		httpError(w, http.StatusInternalServerError, "could not list sessions")
		return
	}

	live := make(map[string]bool)
	for _, info := range s.manager.Active() {
		live[info.SessionID] = true
	}

	out := make([]sessionJSON, 0, len(sessions))
	for _, sess := range sessions {
		sj := sessionJSON{
			ID:        sess.ID,
			StartedAt: sess.StartedAt,
			Exchanges: sess.Exchanges,
			Active:    live[sess.ID],
		}
		if !sess.EndedAt.IsZero() {
			ended := sess.EndedAt
			sj.EndedAt = &ended
		}
		out = append(out, sj)
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

// handleGetSession returns a session's full transcript.
// GET /api/sessions/{id}
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	exchanges, err := s.store.Exchanges(r.Context(), id)
	if err != nil {
		observe.Logger(r.Context()).Error("load transcript failed", "session_id", id, "err", err)
		httpError(w, http.StatusInternalServerError, "could not load transcript")
		return
	}

	out := make([]exchangeJSON, 0, len(exchanges))
	for _, ex := range exchanges {
		out = append(out, exchangeJSON{
			Role:           string(ex.Role),
			Text:           ex.Text,
			Timestamp:      ex.Timestamp,
			SpeechDuration: ex.SpeechDuration.Seconds(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "exchanges": out})
}

// handleDeleteSession removes a recorded session and its transcript. Live
// sessions must be ended first.
// DELETE /api/sessions/{id}
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if _, ok := s.manager.Get(id); ok {
		httpError(w, http.StatusConflict, "session is active")
		return
	}

	if err := s.store.Delete(r.Context(), id); err != nil {
		observe.Logger(r.Context()).Error("delete session failed", "session_id", id, "err", err)
		httpError(w, http.StatusInternalServerError, "could not delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response failed", "err", err)
	}
}

func httpError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
