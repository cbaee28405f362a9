// Package webhook exposes the coordinator's HTTP surface: the signed
// tracker webhook that feeds assignment events in, and a small operator API
// for status, session listing, and session teardown.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/arihanv/relay/internal/orchestrator"
)

// maxBodyBytes bounds webhook payloads. Tracker payloads are small; anything
// larger is hostile or broken.
const maxBodyBytes = 1 << 20

// Coordinator is the part of the orchestrator the HTTP surface drives.
type Coordinator interface {
	HandleAssignment(ctx context.Context, ev orchestrator.AssignmentEvent) error
	StopTask(ctx context.Context, taskID string) error
	Status() orchestrator.Status
	Sessions() []orchestrator.ActiveSession
}

// Config holds HTTP server configuration.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string
	// Secret verifies webhook signatures. Empty disables verification,
	// which is only sane behind a trusted proxy.
	Secret string
	// TargetUserID filters assignment events to one tracker user. Empty
	// accepts every assignment.
	TargetUserID string
}

// Server is the coordinator's HTTP front end.
type Server struct {
	cfg   Config
	coord Coordinator
	http  *http.Server
}

// New creates a Server. Call Start to serve.
func New(cfg Config, coord Coordinator) *Server {
	s := &Server{cfg: cfg, coord: coord}
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router builds the chi route tree. Exposed for tests.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Post("/webhook/linear", s.handleWebhook)
	r.Get("/api/status", s.handleStatus)
	r.Get("/api/sessions", s.handleSessions)
	r.Post("/api/stop/{taskID}", s.handleStop)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

// Start serves until ctx is canceled, then drains with a short grace period.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("[webhook] listening on %s", s.cfg.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// issuePayload is the slice of the tracker's webhook body the coordinator
// cares about.
type issuePayload struct {
	Action string `json:"action"`
	Type   string `json:"type"`
	Data   struct {
		ID         string `json:"id"`
		Identifier string `json:"identifier"`
		Title      string `json:"title"`
		TeamID     string `json:"teamId"`
		Assignee   *struct {
			ID string `json:"id"`
		} `json:"assignee"`
	} `json:"data"`
}

// handleWebhook verifies the signature, filters for issue assignments to the
// target user, and hands the event to the orchestrator asynchronously so the
// tracker gets its 200 without waiting on dependency scans.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	if s.cfg.Secret != "" {
		if err := verifySignature(body, r.Header.Get("Linear-Signature"), s.cfg.Secret); err != nil {
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	}

	var payload issuePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	if !s.isAssignment(payload) {
		w.WriteHeader(http.StatusOK)
		return
	}

	ev := orchestrator.AssignmentEvent{
		TaskID:     payload.Data.ID,
		Identifier: payload.Data.Identifier,
		TeamID:     payload.Data.TeamID,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := s.coord.HandleAssignment(ctx, ev); err != nil {
			log.Printf("[webhook] assignment %s: %v", ev.Identifier, err)
		}
	}()

	w.WriteHeader(http.StatusOK)
}

// isAssignment reports whether the payload is an issue event assigned to the
// configured target user.
func (s *Server) isAssignment(p issuePayload) bool {
	if p.Type != "Issue" {
		return false
	}
	if p.Action != "create" && p.Action != "update" {
		return false
	}
	if p.Data.Assignee == nil {
		return false
	}
	if s.cfg.TargetUserID != "" && p.Data.Assignee.ID != s.cfg.TargetUserID {
		return false
	}
	return true
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.Status())
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.Sessions())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if err := s.coord.StopTask(r.Context(), taskID); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"stopped": taskID})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[webhook] encode response: %v", err)
	}
}
