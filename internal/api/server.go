package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adforge/adforge/internal/engine"
	"github.com/adforge/adforge/internal/pipeline"
	"github.com/adforge/adforge/internal/store"
)

// ServerStatus reports runtime lifecycle states for the HTTP server.
type ServerStatus string

const (
	StatusStarting ServerStatus = "starting"
	StatusReady    ServerStatus = "ready"
	StatusDraining ServerStatus = "draining"
)

// ErrServerDisabled is returned by Start when the API is switched off.
var ErrServerDisabled = errors.New("api: server disabled")

// JobEngine is the subset of the pipeline engine the HTTP surface needs.
type JobEngine interface {
	Start(ctx context.Context, cfg pipeline.Config) (string, error)
	Resume(ctx context.Context, jobID string) error
	Progress(ctx context.Context, jobID string) (pipeline.ProgressSnapshot, error)
	State(ctx context.Context, jobID string) (pipeline.JobState, error)
	List(ctx context.Context, limit int) ([]pipeline.JobState, error)
	Approve(jobID string, variantIDs []string) error
	RejectAll(jobID string) error
	Cancel(jobID string) error
}

// Server exposes engine operations over local HTTP.
type Server struct {
	settings Settings
	engine   JobEngine
	logger   *slog.Logger

	mu        sync.RWMutex
	server    *http.Server
	listener  net.Listener
	status    ServerStatus
	startTime time.Time
}

// Option customizes server construction.
type Option func(*Server)

// WithLogger overrides the default discarding logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer prepares an API server for the given engine.
func NewServer(settings Settings, eng JobEngine, opts ...Option) *Server {
	s := &Server{
		settings: settings,
		engine:   eng,
		logger:   slog.New(slog.NewTextHandler(discardWriter{}, nil)),
		status:   StatusStarting,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Start binds the TCP listener and begins serving HTTP traffic.
func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.engine == nil {
		return fmt.Errorf("api: server not configured")
	}
	if !s.settings.Enabled {
		return ErrServerDisabled
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Errorf("api: server already started")
	}
	addr := s.settings.Address()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("api: listen %s: %w", addr, err)
	}
	s.listener = listener
	s.startTime = time.Now()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/jobs", s.handleJobs)
	mux.HandleFunc("/jobs/", s.handleJob)
	server := &http.Server{
		Handler:      mux,
		ReadTimeout:  s.settings.ReadTimeout,
		WriteTimeout: s.settings.WriteTimeout,
		IdleTimeout:  s.settings.IdleTimeout,
	}
	if ctx != nil {
		server.BaseContext = func(net.Listener) context.Context { return ctx }
	}
	s.server = server
	s.status = StatusReady
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api serve error", "error", err)
		}
	}()
	s.logger.Info("api listening", "addr", listener.Addr().String())
	return nil
}

// Shutdown stops accepting new connections and waits for in-flight requests
// to exit.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil || s.server == nil {
		return nil
	}
	s.status = StatusDraining
	deadline := ctx
	if deadline == nil {
		var cancel context.CancelFunc
		deadline, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}
	if err := s.server.Shutdown(deadline); err != nil {
		return err
	}
	s.listener = nil
	s.server = nil
	return nil
}

// Addr returns the bound TCP address once the server has started.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// BaseURL returns the HTTP base URL for the running server.
func (s *Server) BaseURL() string {
	addr := s.Addr()
	if addr == "" {
		return s.settings.URL()
	}
	return "http://" + addr
}

// Status reports the server's lifecycle state.
func (s *Server) Status() ServerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Server) uptimeSeconds() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.startTime.IsZero() {
		return 0
	}
	return int64(time.Since(s.startTime).Seconds())
}

type healthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

type startRequest struct {
	URL          string   `json:"url"`
	VariantCount int      `json:"variant_count,omitempty"`
	Platform     string   `json:"platform,omitempty"`
	Objective    string   `json:"objective,omitempty"`
	Formats      []string `json:"formats,omitempty"`
	CampaignRef  string   `json:"campaign_ref,omitempty"`
}

type startResponse struct {
	JobID string `json:"job_id"`
}

type approvalRequest struct {
	VariantIDs []string `json:"variant_ids,omitempty"`
	RejectAll  bool     `json:"reject_all,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, http.MethodGet, http.MethodHead)
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        string(s.Status()),
		UptimeSeconds: s.uptimeSeconds(),
	})
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listJobs(w, r)
	case http.MethodPost:
		s.startJob(w, r)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	states, err := s.engine.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("list jobs", "error", err)
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	snapshots := make([]pipeline.ProgressSnapshot, 0, len(states))
	for _, state := range states {
		snapshots = append(snapshots, state.Snapshot())
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": snapshots})
}

func (s *Server) startJob(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	cfg := pipeline.Config{
		URL:          req.URL,
		VariantCount: req.VariantCount,
		Platform:     req.Platform,
		Objective:    req.Objective,
		Formats:      req.Formats,
		CampaignRef:  req.CampaignRef,
	}
	jobID, err := s.engine.Start(r.Context(), cfg)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, startResponse{JobID: jobID})
}

// handleJob routes /jobs/{id} and /jobs/{id}/{action}.
func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/jobs/")
	parts := strings.SplitN(strings.Trim(rest, "/"), "/", 2)
	jobID := parts[0]
	if jobID == "" {
		writeError(w, http.StatusNotFound, "missing job id")
		return
	}
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}
	switch action {
	case "":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		state, err := s.engine.State(r.Context(), jobID)
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, state)
	case "progress":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		snap, err := s.engine.Progress(r.Context(), jobID)
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	case "approval":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		var req approvalRequest
		if !s.decodeBody(w, r, &req) {
			return
		}
		var err error
		if req.RejectAll {
			err = s.engine.RejectAll(jobID)
		} else {
			err = s.engine.Approve(jobID, req.VariantIDs)
		}
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	case "cancel":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		if err := s.engine.Cancel(jobID); err != nil {
			s.writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
	case "resume":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		if err := s.engine.Resume(r.Context(), jobID); err != nil {
			s.writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "resuming"})
	default:
		writeError(w, http.StatusNotFound, "unknown action "+action)
	}
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil {
		writeError(w, http.StatusBadRequest, "empty body")
		return false
	}
	reader := http.MaxBytesReader(w, r.Body, s.settings.MaxBodyBytes)
	defer reader.Close()
	if err := json.NewDecoder(reader).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload exceeds limit")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrJobNotFound) || errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, engine.ErrJobNotLive):
		writeError(w, http.StatusConflict, "job is not awaiting a decision")
	case errors.Is(err, engine.ErrDecisionAlreadyMade):
		writeError(w, http.StatusConflict, "decision already made")
	default:
		s.logger.Error("engine call failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
