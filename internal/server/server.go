// Package server implements the read-only admin HTTP API for the switch
// daemon.
//
// Flow programming stays with the OpenFlow controller; this surface only
// exposes status, the flow table, and port counters for operators and
// the goswitchctl CLI.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dantte-lp/goswitch/internal/datapath"
)

// StateSource is the slice of the datapath the admin API reads. The
// datapath.Switch satisfies it; tests substitute a fixture.
type StateSource interface {
	Status() datapath.StatusSnapshot
	Flows() []datapath.FlowSnapshot
	Ports() []datapath.PortSnapshot
}

// Server serves the admin API.
type Server struct {
	source  StateSource
	logger  *slog.Logger
	version string
}

// New creates the admin API handler.
func New(source StateSource, version string, logger *slog.Logger) http.Handler {
	s := &Server{
		source:  source,
		logger:  logger.With(slog.String("component", "admin")),
		version: version,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/flows", s.handleFlows)
	mux.HandleFunc("GET /api/v1/ports", s.handlePorts)
	mux.HandleFunc("GET /api/v1/version", s.handleVersion)
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	return s.logRequests(mux)
}

// handleStatus serves the switch summary.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.source.Status())
}

// handleFlows serves the flow table snapshot.
func (s *Server) handleFlows(w http.ResponseWriter, _ *http.Request) {
	flows := s.source.Flows()
	if flows == nil {
		flows = []datapath.FlowSnapshot{}
	}
	s.writeJSON(w, map[string]any{"flows": flows})
}

// handlePorts serves the per-port counters.
func (s *Server) handlePorts(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]any{"ports": s.source.Ports()})
}

// handleVersion serves the build version.
func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]string{"version": s.version})
}

// handleHealthz is the liveness probe.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// writeJSON serializes v with the standard headers.
func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("admin response encode failed",
			slog.String("error", err.Error()),
		)
	}
}

// logRequests logs each admin request with method, path, and duration.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("admin request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("duration", time.Since(start)),
		)
	})
}
