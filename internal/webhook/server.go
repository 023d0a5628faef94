// Package webhook serves the inbound HTTP surface: Shelly input
// notifications, a health probe, and a read-only status API.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/tmacey/switchd/internal/config"
	"github.com/tmacey/switchd/internal/engine"
	"github.com/tmacey/switchd/internal/input"
	"github.com/tmacey/switchd/internal/state"
)

// notification is the payload Shelly devices POST on input edges.
type notification struct {
	Input     string `json:"input"`
	State     bool   `json:"state"`
	Timestamp string `json:"timestamp,omitempty"` // RFC 3339, optional
}

// Server is the inbound HTTP endpoint. It only feeds the input store and
// pokes the engine; all switching decisions stay in the reconciliation pass.
type Server struct {
	cfg     config.WebhookConfig
	engine  *engine.Engine
	inputs  *input.Store
	history *state.Store
	now     func() time.Time
}

func NewServer(cfg config.WebhookConfig, eng *engine.Engine, inputs *input.Store, history *state.Store) *Server {
	return &Server{
		cfg:     cfg,
		engine:  eng,
		inputs:  inputs,
		history: history,
		now:     time.Now,
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post(s.cfg.Path, s.handleNotification)
	r.Get("/healthz", s.handleHealth)
	r.Get("/api/status", s.handleStatus)
	r.Get("/api/history", s.handleHistory)

	return r
}

// Run serves until ctx is cancelled. A bind failure is returned to the
// caller; the reconciliation loop keeps running on its interval without
// webhook wakeups.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("path", s.cfg.Path).Msg("Webhook server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("webhook server: %w", err)
	}
}

func (s *Server) handleNotification(w http.ResponseWriter, r *http.Request) {
	var n notification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if n.Input == "" {
		http.Error(w, "missing input name", http.StatusBadRequest)
		return
	}

	at := s.now()
	if n.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, n.Timestamp)
		if err != nil {
			http.Error(w, "invalid timestamp", http.StatusBadRequest)
			return
		}
		at = parsed
	}

	applied := s.inputs.Update(n.Input, n.State, at)
	log.Debug().
		Str("input", n.Input).
		Bool("state", n.State).
		Bool("applied", applied).
		Msg("Webhook notification")

	s.engine.Trigger()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// statusResponse is the last pass snapshot plus the latest switch changes.
type statusResponse struct {
	engine.Snapshot
	History []state.HistoryEntry `json:"history"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	recent, err := s.history.Recent(20)
	if err != nil {
		log.Warn().Err(err).Msg("Reading history for status failed")
	}
	if recent == nil {
		recent = []state.HistoryEntry{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(statusResponse{
		Snapshot: s.engine.Status(),
		History:  recent,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	const limit = 100

	var (
		entries []state.HistoryEntry
		err     error
	)
	if name := r.URL.Query().Get("switch"); name != "" {
		entries, err = s.history.RecentFor(name, limit)
	} else {
		entries, err = s.history.Recent(limit)
	}
	if err != nil {
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []state.HistoryEntry{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(entries)
}
