// Package server exposes the simulation over HTTP: Prometheus exposition,
// health, configuration and scenario reloads.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/common/expfmt"

	"telesim/internal/ratelimit"
	"telesim/internal/simulation"
)

const maxBodyBytes = 1 << 16

// Server serves the read-only endpoints and the scenario reload endpoint.
type Server struct {
	sim     *simulation.Simulation
	logger  *slog.Logger
	limiter *ratelimit.RateLimiter
	mux     *http.ServeMux
	handler http.Handler
	srv     *http.Server
}

// New creates a server bound to sim. The rate limit comes from the
// simulation's server configuration; a zero rate disables limiting.
func New(sim *simulation.Simulation, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := sim.Config().Server
	s := &Server{
		sim:     sim,
		logger:  logger.With("component", "server"),
		limiter: ratelimit.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		mux:     http.NewServeMux(),
	}
	s.registerHandlers()

	self := sim.Self()
	var h http.Handler = s.mux
	h = s.limiter.Middleware(func(*http.Request) { self.RateLimited.Inc() })(h)
	h = loggingMiddleware(s.logger, self.HTTPRequests, h)
	h = requestIDMiddleware(h)
	s.handler = h
	s.srv = &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the http.Handler for the server, middleware included.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) registerHandlers() {
	s.mux.HandleFunc("GET /metrics", s.handleMetrics)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /config", s.handleConfig)
	s.mux.HandleFunc("GET /scenarios", s.handleScenarios)
	s.mux.HandleFunc("POST /scenario", s.handleScenario)
}

// handleMetrics serves the exposition. A failure gathering the
// self-instrumentation is logged and the families gathered so far are served.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.sim.WriteMetrics(&buf); err != nil {
		if buf.Len() == 0 {
			http.Error(w, "error gathering metrics", http.StatusInternalServerError)
			return
		}
		s.logger.Warn("partial metrics exposition", "error", err,
			"request_id", RequestIDFromContext(r.Context()))
	}
	w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sim.Health())
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sim.Config())
}

func (s *Server) handleScenarios(w http.ResponseWriter, r *http.Request) {
	state, current := s.sim.State()
	writeJSON(w, http.StatusOK, map[string]any{
		"scenarios": s.sim.Scenarios(),
		"current":   current,
		"state":     state,
	})
}

// scenarioRequest is the body of POST /scenario.
type scenarioRequest struct {
	Scenario string   `json:"scenario"`
	Duration *float64 `json:"duration,omitempty"`
}

// handleScenario queues a scenario reload and answers 200 once it is
// accepted.
// Example: POST /scenario {"scenario":"high_load","duration":600}
func (s *Server) handleScenario(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	var req scenarioRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Scenario == "" {
		writeError(w, http.StatusBadRequest, "scenario is required")
		return
	}
	var duration float64
	if req.Duration != nil {
		duration = *req.Duration
		if duration < 0 {
			writeError(w, http.StatusBadRequest, "duration must not be negative")
			return
		}
	}

	if !s.sim.HasScenario(req.Scenario) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown scenario %q", req.Scenario))
		return
	}
	if err := s.sim.Reload(req.Scenario, duration); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	s.logger.Info("scenario reload requested",
		"scenario", req.Scenario,
		"duration_seconds", duration,
		"request_id", RequestIDFromContext(r.Context()),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "accepted",
		"scenario": req.Scenario,
	})
}

// Start listens on addr and serves until Shutdown is called. It returns
// nil after a graceful shutdown.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("http server listening", "addr", ln.Addr().String())
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
