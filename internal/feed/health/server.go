package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Admin exposes the manual escape hatches: force-restore the primary backend
// for a group, or drop and redial a resource's change channel.
type Admin interface {
	ProbePrimary(group string) error
	Reconnect(resource string) error
}

// Server provides HTTP endpoints for health monitoring and administration.
type Server struct {
	monitor *Monitor
	admin   Admin
	server  *http.Server
}

// NewServer creates a new health server.
func NewServer(monitor *Monitor, admin Admin, port int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		monitor: monitor,
		admin:   admin,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/detailed", s.handleDetailed)
	mux.HandleFunc("/admin/probe-primary", s.handleProbePrimary)
	mux.HandleFunc("/admin/reconnect", s.handleReconnect)
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.Report()

	w.Header().Set("Content-Type", "application/json")
	if report.SystemStatus == StatusCritical {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(map[string]string{"status": string(report.SystemStatus)})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.monitor.Report())
}

func (s *Server) handleProbePrimary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	group := r.URL.Query().Get("group")
	if group == "" {
		http.Error(w, "missing group parameter", http.StatusBadRequest)
		return
	}
	if err := s.admin.ProbePrimary(group); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resource := r.URL.Query().Get("resource")
	if resource == "" {
		http.Error(w, "missing resource parameter", http.StatusBadRequest)
		return
	}
	if err := s.admin.Reconnect(resource); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
